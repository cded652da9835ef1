package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Event is anything the event stream hands to its subscribers.
type Event interface {
	isEvent()
}

// DeviceEvent is an event decoded from a rig frame.
type DeviceEvent interface {
	Event
	isDeviceEvent()
}

// StateChange reports the rig entering lifecycle state Cmd.
type StateChange struct {
	Cmd string
}

// StepCompleted reports roll step Seq finished with a preview artifact.
type StepCompleted struct {
	Seq uint64
}

type CloseCause int

const (
	CloseNormal CloseCause = iota
	CloseError
)

func (c CloseCause) String() string {
	if c == CloseNormal {
		return "normal"
	}
	return "error"
}

// ConnectionDialing is emitted when a reconnect leaves Disconnected.
type ConnectionDialing struct{}

// ConnectionOpened is emitted after a successful handshake.
type ConnectionOpened struct{}

// ConnectionClosed is emitted when the stream leaves Connecting or Connected.
type ConnectionClosed struct {
	Cause CloseCause
	Err   error
}

func (StateChange) isEvent()       {}
func (StepCompleted) isEvent()     {}
func (ConnectionDialing) isEvent() {}
func (ConnectionOpened) isEvent()  {}
func (ConnectionClosed) isEvent()  {}

func (StateChange) isDeviceEvent()   {}
func (StepCompleted) isDeviceEvent() {}

type frame struct {
	Cmd json.RawMessage `json:"cmd"`
	Evt json.RawMessage `json:"evt"`
	Seq json.RawMessage `json:"seq"`
}

const evtStepOK = "step_ok"

// DecodeFrame classifies one inbound text frame. A frame may carry both a
// state change and a completed step; the state change comes first. Frames
// that are not a single JSON object, or that carry neither shape, return a
// *DecodeError.
func DecodeFrame(data []byte) ([]DeviceEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Frame: data, Reason: "not a JSON object"}
	}

	var f frame
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, &DecodeError{Frame: data, Reason: err.Error()}
	}

	var events []DeviceEvent
	var cmd string
	if json.Unmarshal(f.Cmd, &cmd) == nil && cmd != "" {
		events = append(events, StateChange{Cmd: cmd})
	}

	reason := "unrecognized shape"
	var evt string
	if json.Unmarshal(f.Evt, &evt) == nil && evt == evtStepOK {
		seq, err := parseSeq(f.Seq)
		if err == nil {
			events = append(events, StepCompleted{Seq: seq})
		} else {
			reason = err.Error()
		}
	}

	if len(events) == 0 {
		return nil, &DecodeError{Frame: data, Reason: reason}
	}
	return events, nil
}

// parseSeq accepts a JSON number token only; quoted numbers are not a seq.
func parseSeq(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, errors.New("step_ok without seq")
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, fmt.Errorf("seq %s is not a number", raw)
	}
	n := json.Number(raw)
	if i, err := n.Int64(); err == nil {
		if i < 0 {
			return 0, fmt.Errorf("negative seq %d", i)
		}
		return uint64(i), nil
	}
	// 3.0 is still an integer; 3.5 is not
	f, err := n.Float64()
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, fmt.Errorf("seq %s is not a non-negative integer", n)
	}
	return uint64(f), nil
}
