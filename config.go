package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/ilievs/rigdash/system"
)

// Settings is everything the subcommands read from viper.
type Settings struct {
	RigURL     string
	RigTimeout time.Duration

	StreamTransport string
	Reconnect       bool
	BackoffInitial  time.Duration
	BackoffMax      time.Duration

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	HTTPListen string

	MockRigListen     string
	MockRigMQTTListen string
	MockRigStep       time.Duration
}

func loadSettings(v *viper.Viper) Settings {
	return Settings{
		RigURL:            v.GetString("rig.url"),
		RigTimeout:        v.GetDuration("rig.timeout"),
		StreamTransport:   v.GetString("stream.transport"),
		Reconnect:         v.GetBool("stream.reconnect"),
		BackoffInitial:    v.GetDuration("stream.backoff.initial"),
		BackoffMax:        v.GetDuration("stream.backoff.max"),
		MQTTBroker:        v.GetString("mqtt.broker"),
		MQTTTopic:         v.GetString("mqtt.topic"),
		MQTTClientID:      v.GetString("mqtt.client_id"),
		MQTTUsername:      v.GetString("mqtt.username"),
		MQTTPassword:      v.GetString("mqtt.password"),
		HTTPListen:        v.GetString("http.listen"),
		MockRigListen:     v.GetString("mockrig.listen"),
		MockRigMQTTListen: v.GetString("mockrig.mqtt_listen"),
		MockRigStep:       v.GetDuration("mockrig.step_interval"),
	}
}

func setupFileLogging(file, level, format string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open log file %s", file)
	}
	return system.SetupLoggingTo(f, level, format)
}
