package report

import (
	"github.com/assesskit/reportgen/internal/domain/model"
)

// PlannedSection is one entry of the section plan before rendering.
type PlannedSection struct {
	Kind     model.SectionKind
	TestType string // set only for test sections
}

// MissingRequiredTests returns every required test type that is absent from
// the session's results, in configuration order. It never short-circuits on
// the first miss.
func MissingRequiredTests(cfg *model.ProductConfiguration, session *model.TestSessionData) []string {
	var missing []string
	for _, testType := range cfg.RequiredTestTypes() {
		if !session.HasResult(testType) {
			missing = append(missing, testType)
		}
	}
	return missing
}

// PlanSections resolves the ordered section list for a product and session:
// cover, introduction when configured, one section per requirement whose test
// is present in the session (ascending by order, stable on ties), and closing
// when configured. Requirements without a matching session result are skipped;
// required ones must have been validated beforehand via MissingRequiredTests.
func PlanSections(cfg *model.ProductConfiguration, session *model.TestSessionData) []PlannedSection {
	plan := []PlannedSection{{Kind: model.SectionKindCover}}

	if cfg.HasIntroduction() {
		plan = append(plan, PlannedSection{Kind: model.SectionKindIntroduction})
	}

	for _, req := range cfg.SortedRequirements() {
		if !session.HasResult(req.TestType) {
			continue
		}
		plan = append(plan, PlannedSection{Kind: model.SectionKindTest, TestType: req.TestType})
	}

	if cfg.HasClosing() {
		plan = append(plan, PlannedSection{Kind: model.SectionKindClosing})
	}

	return plan
}
