package core

import (
	"fmt"
	"strings"
)

// TransportError is a connection or HTTP level failure talking to the rig.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError means config values were rejected, locally or by the rig.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed [%s]: %s", strings.Join(e.Fields, ","), e.Message)
}

// DecodeError describes a stream frame that was dropped. It never reaches the operator.
type DecodeError struct {
	Frame  []byte
	Reason string
}

func (e *DecodeError) Error() string {
	const max = 64
	frame := e.Frame
	if len(frame) > max {
		frame = frame[:max]
	}
	return fmt.Sprintf("drop frame %q: %s", frame, e.Reason)
}
