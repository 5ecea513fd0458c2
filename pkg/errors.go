// Package pkg provides the ripper and builder logic for PlayStation disc
// images. This file contains the error kinds surfaced to the CLI layer.
package pkg

// UsageError marks a command-line usage problem. The CLI maps it to exit
// code 64 instead of the generic runtime error code.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}
