// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecrets_SimpleMap(t *testing.T) {
	result, ok := MaskSecrets(map[string]any{
		"username": "admin",
		"password": "secret123",
		"host":     "example.com",
	}).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "admin", result["username"])
	assert.Equal(t, "***", result["password"])
	assert.Equal(t, "example.com", result["host"])
}

func TestMaskSecrets_AppConfigUsesYAMLKeys(t *testing.T) {
	cfg := Defaults()
	cfg.Version = "v-test"
	cfg.Encoder.DestinationURL = "rtmp://a.rtmp.youtube.com/live2/secret-key"

	masked, ok := MaskSecrets(cfg).(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, masked, "Version")

	enc, ok := masked["encoder"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/***", enc["destinationURL"])
	assert.Equal(t, "libx264", enc["videoCodec"])
	assert.Equal(t, "5s", enc["gracePeriod"])
}

func TestMaskSecrets_NonURLSecret(t *testing.T) {
	type creds struct {
		StreamKey string `yaml:"streamKey"`
	}
	masked, ok := MaskSecrets(&creds{StreamKey: "abc"}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "***", masked["streamKey"])
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/***", MaskURL("rtmp://a.rtmp.youtube.com/live2/secret-key"))
	assert.Equal(t, "", MaskURL(""))
}
