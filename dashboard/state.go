// Package dashboard reconciles config results, command acknowledgements and
// stream events into the single state the operator sees.
package dashboard

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ilievs/rigdash/core"
)

const maxLogEntries = 200

type LogEntry struct {
	At      time.Time `json:"at"`
	Error   bool      `json:"error,omitempty"`
	Message string    `json:"message"`
}

// State is the rendered truth. Values are never mutated in place: every
// transition builds a new State, so snapshots can be shared freely.
type State struct {
	Config        *core.DeviceConfig  `json:"config"`
	Connection    core.ConnState      `json:"connection"`
	LastCommand   *core.CommandResult `json:"last_command"`
	DisplayStatus string              `json:"display_status"`
	PreviewURL    string              `json:"preview_url"`
	// LastSeq is the highest step accepted since the last ConnectionOpened.
	LastSeq *uint64    `json:"last_seq"`
	Log     []LogEntry `json:"log"`
}

func InitialState() State {
	return State{Connection: core.Connecting}
}

// Inputs that do not come from the event stream.
type (
	ConfigLoaded struct {
		Config core.DeviceConfig
	}
	ConfigSaved struct {
		Config core.DeviceConfig
		Ack    core.Ack
	}
	ConfigFailed struct {
		Op  ConfigOp
		Err error
	}
	CommandCompleted struct {
		Result core.CommandResult
	}
)

type ConfigOp string

const (
	OpLoad ConfigOp = "load"
	OpSave ConfigOp = "save"
)

type PreviewResolver interface {
	Resolve(seq uint64) string
}

// Reducer holds the collaborators a transition needs. Apply itself has no
// other side effects than logging and metrics.
type Reducer struct {
	Preview PreviewResolver
	Now     func() time.Time
}

func (r Reducer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r Reducer) Apply(s State, in any) State {
	switch in := in.(type) {
	case ConfigLoaded:
		cfg := in.Config
		s.Config = &cfg
		s.Log = r.log(s.Log, false, "Config loaded")

	case ConfigSaved:
		cfg := in.Config
		s.Config = &cfg
		s.Log = r.log(s.Log, false, "Config saved: "+in.Ack.String())

	case ConfigFailed:
		verb := "loading"
		if in.Op == OpSave {
			verb = "saving"
		}
		s.Log = r.log(s.Log, true, fmt.Sprintf("Error %s config: %v", verb, in.Err))

	case CommandCompleted:
		res := in.Result
		s.LastCommand = &res
		if res.Err != nil {
			s.Log = r.log(s.Log, true, fmt.Sprintf("Error /%s: %v", res.Command, res.Err))
		} else {
			s.Log = r.log(s.Log, false, fmt.Sprintf("/%s → %s", res.Command, res.Ack))
		}

	case core.StateChange:
		s.DisplayStatus = "State: " + in.Cmd

	case core.StepCompleted:
		if s.LastSeq != nil && in.Seq <= *s.LastSeq {
			steps.WithLabelValues("rejected").Inc()
			slog.Debug("discarding non-advancing step", "seq", in.Seq, "last_seq", *s.LastSeq)
			return s
		}
		steps.WithLabelValues("accepted").Inc()
		seq := in.Seq
		s.LastSeq = &seq
		s.PreviewURL = r.Preview.Resolve(seq)
		s.DisplayStatus = fmt.Sprintf("Rolling… seq %d", seq)

	case core.ConnectionDialing:
		s.Connection = core.Connecting

	case core.ConnectionOpened:
		s.Connection = core.Connected
		s.LastSeq = nil
		s.Log = r.log(s.Log, false, "WS connected")

	case core.ConnectionClosed:
		s.Connection = core.Disconnected
		if in.Err != nil {
			s.Log = r.log(s.Log, true, "WS disconnected: "+in.Err.Error())
		} else {
			s.Log = r.log(s.Log, false, "WS disconnected")
		}

	default:
		slog.Warn("ignoring unknown dashboard input", "input", fmt.Sprintf("%T", in))
	}
	return s
}

// log returns a new slice so earlier snapshots keep their own entries.
func (r Reducer) log(entries []LogEntry, isErr bool, msg string) []LogEntry {
	start := 0
	if len(entries) >= maxLogEntries {
		start = len(entries) - maxLogEntries + 1
	}
	out := make([]LogEntry, 0, len(entries)-start+1)
	out = append(out, entries[start:]...)
	return append(out, LogEntry{At: r.now(), Error: isErr, Message: msg})
}
