// pkg/validator/errors.go
package validator

import "fmt"

// PatternError is returned when a regex pattern does not compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("validator: invalid regex pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }
