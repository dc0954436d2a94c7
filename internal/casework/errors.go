package casework

import (
	"fmt"
	"strings"
)

// FieldError names one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed or missing input on creation or on a
// transition payload. Nothing is persisted when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func invalid(field, reason string) ValidationError {
	return ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// GuardViolation is returned when a transition is attempted while its
// precondition is false. Current holds the untouched entity.
type GuardViolation struct {
	Operation string
	Guard     string
	Reason    string
	Status    string
	Current   any
}

func (e GuardViolation) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Operation, e.Reason)
}
