package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMaterialNotFound is matched by every *MaterialNotFoundError.
var ErrMaterialNotFound = errors.New("material not found")

// MaterialNotFoundError is returned by Compute when the order references a
// material missing from the catalog.
type MaterialNotFoundError struct {
	Name string
}

func (e *MaterialNotFoundError) Error() string {
	return fmt.Sprintf("material %q not found", e.Name)
}

func (e *MaterialNotFoundError) Is(target error) bool {
	return target == ErrMaterialNotFound
}

// UnknownFactorError is returned under the RejectUnknownFactor policy.
type UnknownFactorError struct {
	Kind string
	Key  string
}

func (e *UnknownFactorError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Key)
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned by ValidateOrder.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid order: " + strings.Join(parts, "; ")
}
