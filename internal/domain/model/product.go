package model

import (
	"errors"
	"sort"
	"strings"
)

// TestRequirement declares one psychometric test section within a product:
// which test type it covers, its relative position, and whether the session
// must have completed it.
type TestRequirement struct {
	TestType string `json:"test_type" db:"test_type"`
	Order    int    `json:"order"     db:"sort_order"`
	Required bool   `json:"required"  db:"required"`
}

// ProductConfiguration is the read-only, per-product definition of which test
// sections a report contains, their order, and static introduction/closing content.
type ProductConfiguration struct {
	ProductID    string            `json:"product_id"   db:"product_id"`
	DisplayName  string            `json:"display_name" db:"display_name"`
	Active       bool              `json:"active"       db:"active"`
	Requirements []TestRequirement `json:"requirements" db:"requirements"`
	Introduction *string           `json:"introduction,omitempty" db:"introduction"`
	Closing      *string           `json:"closing,omitempty"      db:"closing"`
}

// Validate checks structural invariants of a loaded configuration.
func (p *ProductConfiguration) Validate() error {
	if strings.TrimSpace(p.ProductID) == "" {
		return errors.New("product id is required")
	}
	seen := make(map[string]struct{}, len(p.Requirements))
	for _, req := range p.Requirements {
		if strings.TrimSpace(req.TestType) == "" {
			return errors.New("requirement test type is required")
		}
		if _, dup := seen[req.TestType]; dup {
			return errors.New("duplicate requirement test type: " + req.TestType)
		}
		seen[req.TestType] = struct{}{}
	}
	return nil
}

// SortedRequirements returns the requirements ordered ascending by Order.
// Equal Order values keep their original list position, so the relative output
// order of tied sections always matches the configuration.
func (p *ProductConfiguration) SortedRequirements() []TestRequirement {
	out := make([]TestRequirement, len(p.Requirements))
	copy(out, p.Requirements)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// RequiredTestTypes returns the test types with required=true, in configuration order.
func (p *ProductConfiguration) RequiredTestTypes() []string {
	var out []string
	for _, req := range p.Requirements {
		if req.Required {
			out = append(out, req.TestType)
		}
	}
	return out
}

// HasIntroduction reports whether the product defines a non-empty introduction section.
func (p *ProductConfiguration) HasIntroduction() bool {
	return p.Introduction != nil && strings.TrimSpace(*p.Introduction) != ""
}

// HasClosing reports whether the product defines a non-empty closing section.
func (p *ProductConfiguration) HasClosing() bool {
	return p.Closing != nil && strings.TrimSpace(*p.Closing) != ""
}
