// Package security provides input validation for evaluation requests and
// sanitization of values before they reach logs.
package security

import (
	"fmt"
	"math"
	"regexp"
)

// Request limits.
const (
	MaxSystems          = 64
	MaxSystemNameLength = 64
	MaxMetrics          = 32
	MaxFusionInputs     = 16
	MaxPermutations     = 1_000_000
	MaxTopics           = 100_000
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// systemNameRegex matches names that are also safe cache tags.
var systemNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateSystemName validates a system name.
// Requirements: required, 1-64 chars, alphanumeric plus dot, hyphen and
// underscore, starting with an alphanumeric.
func ValidateSystemName(field, name string) error {
	if name == "" {
		return &ValidationError{Field: field, Constraint: "required"}
	}
	if len(name) > MaxSystemNameLength {
		return &ValidationError{
			Field:      field,
			Value:      len(name),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxSystemNameLength),
		}
	}
	if !systemNameRegex.MatchString(name) {
		return &ValidationError{
			Field:      field,
			Value:      SanitizeForLog(name),
			Constraint: "must start with a letter or digit and contain only letters, digits, '.', '-' or '_'",
		}
	}
	return nil
}

// ValidateAlpha validates a significance level. Requirements: 0 < alpha < 1.
func ValidateAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha <= 0 || alpha >= 1 {
		return &ValidationError{
			Field:      "alpha",
			Value:      alpha,
			Constraint: "must be between 0 and 1 exclusive",
		}
	}
	return nil
}

// ValidateFusionWeight validates one fusion weight. Requirements: finite and positive.
func ValidateFusionWeight(field string, weight float64) error {
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		return &ValidationError{
			Field:      field,
			Value:      weight,
			Constraint: "must be a positive finite number",
		}
	}
	return nil
}

// ValidateCount checks 0 <= n <= max.
func ValidateCount(field string, n, max int) error {
	if n < 0 {
		return &ValidationError{Field: field, Value: n, Constraint: "must not be negative"}
	}
	if n > max {
		return &ValidationError{
			Field:      field,
			Value:      n,
			Constraint: fmt.Sprintf("maximum is %d", max),
		}
	}
	return nil
}

// FusionInput is the part of a fusion request that needs checking.
type FusionInput struct {
	Name    string
	Inputs  []string
	Weights []float64
}

// EvaluateRequestValidator checks the shape of an evaluation request
// before any work is done.
type EvaluateRequestValidator struct {
	Systems      []string
	Fusions      []FusionInput
	Metrics      int
	Topics       int
	Alpha        *float64
	Permutations int
}

// Validate validates all fields in the request.
func (v *EvaluateRequestValidator) Validate() error {
	if err := ValidateCount("runs", len(v.Systems)+len(v.Fusions), MaxSystems); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(v.Systems)+len(v.Fusions))
	checkName := func(field, name string) error {
		if err := ValidateSystemName(field, name); err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return &ValidationError{Field: field, Value: name, Constraint: "system names must be unique"}
		}
		seen[name] = struct{}{}
		return nil
	}

	for _, name := range v.Systems {
		if err := checkName("runs.name", name); err != nil {
			return err
		}
	}

	for _, f := range v.Fusions {
		if err := checkName("fusions.name", f.Name); err != nil {
			return err
		}
		if len(f.Inputs) == 0 {
			return &ValidationError{Field: "fusions.inputs", Constraint: "required"}
		}
		if err := ValidateCount("fusions.inputs", len(f.Inputs), MaxFusionInputs); err != nil {
			return err
		}
		if len(f.Weights) > 0 && len(f.Weights) != len(f.Inputs) {
			return &ValidationError{
				Field:      "fusions.weights",
				Value:      len(f.Weights),
				Constraint: fmt.Sprintf("must have one weight per input (%d)", len(f.Inputs)),
			}
		}
		for _, w := range f.Weights {
			if err := ValidateFusionWeight("fusions.weights", w); err != nil {
				return err
			}
		}
	}

	if err := ValidateCount("metrics", v.Metrics, MaxMetrics); err != nil {
		return err
	}
	if err := ValidateCount("topics", v.Topics, MaxTopics); err != nil {
		return err
	}
	if err := ValidateCount("permutations", v.Permutations, MaxPermutations); err != nil {
		return err
	}
	if v.Alpha != nil {
		if err := ValidateAlpha(*v.Alpha); err != nil {
			return err
		}
	}

	return nil
}
