package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilievs/rigdash/core"
)

func TestLoadSettingsDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	s := loadSettings(v)
	assert.Equal(t, "http://localhost:8000", s.RigURL)
	assert.Equal(t, 5*time.Second, s.RigTimeout)
	assert.Equal(t, "ws", s.StreamTransport)
	assert.False(t, s.Reconnect)
	assert.Equal(t, "rig/events", s.MQTTTopic)
	assert.Equal(t, ":8080", s.HTTPListen)
	assert.Zero(t, s.MockRigStep)
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("RIGDASH_RIG_URL", "http://rig.local:9000")
	t.Setenv("RIGDASH_STREAM_RECONNECT", "true")
	t.Setenv("RIGDASH_STREAM_BACKOFF_MAX", "10s")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvPrefix("RIGDASH")
	v.SetEnvKeyReplacer(envReplacer)

	s := loadSettings(v)
	assert.Equal(t, "http://rig.local:9000", s.RigURL)
	assert.True(t, s.Reconnect)
	assert.Equal(t, 10*time.Second, s.BackoffMax)
}

func TestNewApplicationTransports(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	s := loadSettings(v)

	app, err := newApplication(s)
	require.NoError(t, err)
	assert.Equal(t, core.Connecting, app.stream.State())

	s.StreamTransport = "mqtt"
	_, err = newApplication(s)
	require.NoError(t, err)

	s.StreamTransport = "carrier-pigeon"
	_, err = newApplication(s)
	assert.Error(t, err)

	s.StreamTransport = "ws"
	s.RigURL = "ftp://rig"
	_, err = newApplication(s)
	assert.Error(t, err)
}
