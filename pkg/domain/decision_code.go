package domain

import (
	"strings"

	dErrors "appeals/pkg/domain-errors"
)

// DecisionCode references an entry of the decision taxonomy (preliminary or
// merit catalog). The catalogs are read-only reference data owned elsewhere;
// this type only guarantees the reference is well formed.
//
// Invariant: non-empty, at most 64 characters, upper-case letters, digits,
// '-', '_' or '.'.
type DecisionCode string

const maxDecisionCodeLength = 64

// ParseDecisionCode normalizes and validates a decision reference.
func ParseDecisionCode(raw string) (DecisionCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", dErrors.New(dErrors.CodeValidation, "decision code is required")
	}
	if len(code) > maxDecisionCodeLength {
		return "", dErrors.New(dErrors.CodeValidation, "decision code must be at most 64 characters")
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return "", dErrors.New(dErrors.CodeValidation, "malformed decision code: "+raw)
		}
	}
	return DecisionCode(code), nil
}

func (c DecisionCode) String() string { return string(c) }

// Ptr returns a pointer to a copy of c, handy for optional references.
func (c DecisionCode) Ptr() *DecisionCode {
	return &c
}
