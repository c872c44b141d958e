package flags

import (
	"io"
	"testing"
	"time"

	"gotest.tools/assert"

	"hop.computer/passage/config"
)

func TestParseArgs(t *testing.T) {
	f, err := ParseArgs([]string{"passage"}, io.Discard)
	assert.NilError(t, err)
	assert.Equal(t, DefaultConfigPath, f.ConfigPath)

	f, err = ParseArgs([]string{"passage", "-V", "-plain", "-status", ":4040", "listener.yaml"}, io.Discard)
	assert.NilError(t, err)
	assert.DeepEqual(t, &ListenerFlags{
		ConfigPath:    "listener.yaml",
		Verbose:       true,
		Plain:         true,
		StatusAddress: ":4040",
	}, f)

	f, err = ParseArgs([]string{"passage", "-C", "/etc/passage.toml"}, io.Discard)
	assert.NilError(t, err)
	assert.Equal(t, "/etc/passage.toml", f.ConfigPath)

	_, err = ParseArgs([]string{"passage", "a.toml", "b.toml"}, io.Discard)
	assert.Equal(t, ErrExcessArgs, err)

	_, err = ParseArgs([]string{"passage", "-C", "a.toml", "b.toml"}, io.Discard)
	assert.ErrorContains(t, err, "twice")

	_, err = ParseArgs([]string{"passage", "-nope"}, io.Discard)
	assert.Check(t, err != nil)
}

func TestVerboseFlagLeavesPreviewsAlone(t *testing.T) {
	f, err := ParseArgs([]string{"passage", "-V", "-status", ":4040"}, io.Discard)
	assert.NilError(t, err)

	c := &config.Config{StatusAddress: "localhost:1", RelayURL: "ws://relay.example.net"}
	applyOverrides(f, c)
	assert.Equal(t, false, c.Verbose)
	assert.Equal(t, ":4040", c.StatusAddress)
	assert.Equal(t, "ws://relay.example.net", c.RelayURL)
}

func TestParseRelaydArgs(t *testing.T) {
	f, err := ParseRelaydArgs([]string{"relayd", "-addr", ":9999", "-key", "svc=secret", "-key", "api=k=v", "-timeout", "5s"}, io.Discard)
	assert.NilError(t, err)
	assert.Equal(t, ":9999", f.Address)
	assert.Equal(t, 5*time.Second, f.RequestTimeout)
	assert.DeepEqual(t, map[string]string{"svc": "secret", "api": "k=v"}, f.Keys)

	_, err = ParseRelaydArgs([]string{"relayd", "-key", "novalue"}, io.Discard)
	assert.Check(t, err != nil)

	_, err = ParseRelaydArgs([]string{"relayd", "extra"}, io.Discard)
	assert.Equal(t, ErrExcessArgs, err)
}
