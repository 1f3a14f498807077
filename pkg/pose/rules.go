package pose

import (
	"errors"
	"fmt"
)

// AngleRule is a target angle at the joint Vertex formed with P1 and P3.
type AngleRule struct {
	// P1, Vertex and P3 are keypoint indices. Vertex is the joint whose
	// interior angle is measured.
	P1, Vertex, P3 int

	// TargetDegrees is the ideal joint angle.
	TargetDegrees float64

	// ToleranceDegrees is the symmetric band around the target inside which
	// the rule is satisfied.
	ToleranceDegrees float64

	// FeedbackLow is emitted when the angle is below the band.
	FeedbackLow string
	// FeedbackHigh is emitted when the angle is above the band.
	FeedbackHigh string
	// FeedbackGood is emitted when the angle is inside the band.
	FeedbackGood string
}

// NamedRule pairs an [AngleRule] with its name inside a [RuleSet].
type NamedRule struct {
	Name string
	AngleRule
}

// RuleSet is an ordered collection of named rules for one pose. Order only
// affects the order of emitted feedback, never the score.
type RuleSet []NamedRule

// Validate reports structural problems: duplicate or empty names, negative
// tolerances and indices that cannot exist in any skeleton. Indices beyond
// the detector's topology are not rejected here; such rules are simply never
// evaluated.
func (rs RuleSet) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(rs))
	for i, r := range rs {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("rule[%d]: name is required", i))
		} else if _, dup := seen[r.Name]; dup {
			errs = append(errs, fmt.Errorf("rule[%d]: duplicate name %q", i, r.Name))
		}
		seen[r.Name] = struct{}{}
		if r.P1 < 0 || r.Vertex < 0 || r.P3 < 0 {
			errs = append(errs, fmt.Errorf("rule %q: keypoint indices must be non-negative", r.Name))
		}
		if r.ToleranceDegrees < 0 {
			errs = append(errs, fmt.Errorf("rule %q: tolerance must be non-negative, got %g", r.Name, r.ToleranceDegrees))
		}
		if r.TargetDegrees < 0 || r.TargetDegrees > 180 {
			errs = append(errs, fmt.Errorf("rule %q: target must be within [0, 180], got %g", r.Name, r.TargetDegrees))
		}
	}
	return errors.Join(errs...)
}

// Get returns the rule with the given name.
func (rs RuleSet) Get(name string) (NamedRule, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r, true
		}
	}
	return NamedRule{}, false
}
