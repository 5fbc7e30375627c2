package changes

import (
	"errors"
	"strings"
)

type ValidationIssue struct{ Field, Reason string }

type ValidationError struct{ Issues []ValidationIssue }

var ErrInvalidContract = errors.New("invalid contract")

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return ErrInvalidContract.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Field+": "+is.Reason)
	}
	return ErrInvalidContract.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(f, r string) {
	e.Issues = append(e.Issues, ValidationIssue{Field: f, Reason: r})
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidContract }

func (r EntityChangedV1) Validate() error {
	var v ValidationError
	if r.ID == "" {
		v.add("id", "required")
	}
	if !r.Operation.Valid() {
		v.add("operation", "must be one of create, update, delete")
	}
	if len(v.Issues) > 0 {
		return &v
	}
	return nil
}
