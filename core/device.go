package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DeviceConfig is the rig's full configuration record. It is always sent whole.
type DeviceConfig struct {
	Sides       int    `json:"sides" validate:"gte=2"`
	Rolls       int    `json:"rolls" validate:"gte=1"`
	SettleMs    int    `json:"settle_ms" validate:"gte=0"`
	FrameSize   string `json:"frame_size" validate:"required,printascii,max=16"`
	JPEGQuality int    `json:"jpeg_quality" validate:"gte=1,lte=100"`
}

// DefaultDeviceConfig is what a freshly booted rig reports.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Sides:       6,
		Rolls:       10,
		SettleMs:    100,
		FrameSize:   "VGA",
		JPEGQuality: 12,
	}
}

// Validate checks every field against its documented range.
func (c DeviceConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate device config")
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, jsonFieldName(fe.StructField()))
	}
	return &ValidationError{
		Fields:  fields,
		Message: fmt.Sprintf("invalid value for %s", strings.Join(fields, ", ")),
	}
}

func jsonFieldName(structField string) string {
	switch structField {
	case "Sides":
		return "sides"
	case "Rolls":
		return "rolls"
	case "SettleMs":
		return "settle_ms"
	case "FrameSize":
		return "frame_size"
	case "JPEGQuality":
		return "jpeg_quality"
	}
	return structField
}

type Command string

const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"
)

// Commands lists the lifecycle commands in the order the dashboard shows them.
var Commands = []Command{CommandStart, CommandPause, CommandResume, CommandStop}

func ParseCommand(name string) (Command, error) {
	for _, c := range Commands {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}

// Ack is the opaque JSON payload a rig returns for a save or a command.
type Ack json.RawMessage

func (a Ack) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("null"), nil
	}
	return a, nil
}

func (a *Ack) UnmarshalJSON(data []byte) error {
	*a = append((*a)[:0], data...)
	return nil
}

func (a Ack) String() string {
	if len(a) == 0 {
		return "{}"
	}
	return string(a)
}

// CommandResult is the acknowledgement of one dispatched command.
type CommandResult struct {
	ID          string    `json:"id"`
	Command     Command   `json:"command"`
	Ack         Ack       `json:"ack,omitempty"`
	Err         error     `json:"-"`
	IssuedAt    time.Time `json:"issued_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func (r CommandResult) OK() bool {
	return r.Err == nil
}

func (r CommandResult) MarshalJSON() ([]byte, error) {
	type plain CommandResult
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

type ConnState int

const (
	Connecting ConnState = iota
	Connected
	Disconnected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
