package model

// SectionKind identifies which part of the combined report a section belongs to.
type SectionKind string

const (
	// SectionKindCover is the always-present first section.
	SectionKindCover SectionKind = "cover"
	// SectionKindIntroduction is the optional static section after the cover.
	SectionKindIntroduction SectionKind = "introduction"
	// SectionKindTest is one section per completed psychometric test.
	SectionKindTest SectionKind = "test"
	// SectionKindClosing is the optional static final section.
	SectionKindClosing SectionKind = "closing"
)

// DocumentSection is one independently rendered piece of the final report.
// Sections are ephemeral: their rendered bytes live in a job-scoped temp
// directory and are deleted before the job reaches a terminal state.
type DocumentSection struct {
	Kind     SectionKind
	TestType string // set only for SectionKindTest
	Path     string // rendered PDF on local disk
}

// Label returns a short human-readable identifier for logs and merge errors.
func (s DocumentSection) Label() string {
	if s.Kind == SectionKindTest {
		return string(s.Kind) + ":" + s.TestType
	}
	return string(s.Kind)
}

// CombinedArtifact is the single merged document produced from an ordered
// section list. It stays on local disk until artifact delivery uploads it.
type CombinedArtifact struct {
	Path     string
	Filename string
}
