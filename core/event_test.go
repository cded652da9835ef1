package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameRecognized(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  []DeviceEvent
	}{
		{"state change", `{"cmd":"running"}`, []DeviceEvent{StateChange{Cmd: "running"}}},
		{"state change with config echo", `{"cmd":"start","sides":6,"rolls":10}`, []DeviceEvent{StateChange{Cmd: "start"}}},
		{"step", `{"evt":"step_ok","seq":7}`, []DeviceEvent{StepCompleted{Seq: 7}}},
		{"step zero", `{"evt":"step_ok","seq":0}`, []DeviceEvent{StepCompleted{Seq: 0}}},
		{"step float integer", `{"evt":"step_ok","seq":3.0}`, []DeviceEvent{StepCompleted{Seq: 3}}},
		{"leading whitespace", "  \n{\"cmd\":\"paused\"}", []DeviceEvent{StateChange{Cmd: "paused"}}},
		{"state change and step", `{"cmd":"running","evt":"step_ok","seq":2}`,
			[]DeviceEvent{StateChange{Cmd: "running"}, StepCompleted{Seq: 2}}},
		{"state change keeps a bad step out", `{"cmd":"running","evt":"step_ok","seq":"2"}`,
			[]DeviceEvent{StateChange{Cmd: "running"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFrameDropped(t *testing.T) {
	frames := []string{
		``,
		`not json`,
		`echo: ws_hello`,
		`[1,2,3]`,
		`"running"`,
		`{"evt":"ready"}`,
		`{"evt":"step_ok"}`,
		`{"evt":"step_ok","seq":"4"}`,
		`{"evt":"step_ok","seq":null}`,
		`{"evt":"step_ok","seq":true}`,
		`{"evt":"step_ok","seq":-1}`,
		`{"evt":"step_ok","seq":2.5}`,
		`{"cmd":""}`,
		`{"cmd":42}`,
		`{"cmd":"running"`,
		`{"cmd":"running"} trailing junk`,
		`{"cmd":"running"}{"cmd":"stopped"}`,
		`{}`,
	}

	for _, f := range frames {
		events, err := DecodeFrame([]byte(f))
		assert.Empty(t, events, "frame %q", f)
		var derr *DecodeError
		assert.True(t, errors.As(err, &derr), "frame %q should yield a DecodeError, got %v", f, err)
	}
}

func TestDecodeErrorTruncatesFrame(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &DecodeError{Frame: long, Reason: "not a JSON object"}
	assert.Less(t, len(err.Error()), 120)
}
