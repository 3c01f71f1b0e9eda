package retry

import "fmt"

// ExhaustedError is returned when every attempt of a logical call failed
// with a transient error.
type ExhaustedError struct {
	Policy   string
	Attempts int
	Class    Classification
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts (%s): %v", e.Policy, e.Attempts, e.Class, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
