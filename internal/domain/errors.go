package domain

import "fmt"

// InvalidSampleError reports a payload that cannot be accepted as a
// TelemetrySample. The ingestion path drops the payload and keeps running.
type InvalidSampleError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidSampleError) Error() string {
	msg := "invalid sample"
	if e.Field != "" {
		msg += fmt.Sprintf(": %s", e.Field)
	}
	if e.Reason != "" {
		msg += fmt.Sprintf(": %s", e.Reason)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *InvalidSampleError) Unwrap() error { return e.Err }
