package bot

import "fmt"

// DeliveryError reports that a finished file could not be sent to the user.
type DeliveryError struct {
	Path string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Path, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Code identifies the error in handler summaries.
func (e *DeliveryError) Code() string { return "DELIVERY_FAILED" }
