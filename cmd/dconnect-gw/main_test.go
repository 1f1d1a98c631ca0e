package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/dconnect-gw/internal/config"
	"github.com/mattjoyce/dconnect-gw/internal/lock"
	"github.com/mattjoyce/dconnect-gw/internal/log"
	"github.com/mattjoyce/dconnect-gw/internal/profile"
	"github.com/mattjoyce/dconnect-gw/internal/profile/mediastream"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// writeGateway lays out a config directory with one exec plugin and returns
// the config path.
func writeGateway(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	pluginDir := filepath.Join(dir, "plugins", "echo")
	require.NoError(t, os.MkdirAll(pluginDir, 0755))
	manifest := "name: echo\nversion: 1.2.0\nprotocol: 1\nentrypoint: run.sh\nprofiles: [battery]\n"
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "manifest.yaml"), []byte(manifest), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "run.sh"),
		[]byte("#!/bin/sh\ncat >/dev/null\necho '{\"result\":0}'\n"), 0755))

	cfg := "gateway:\n  listen: 127.0.0.1:0\nplugin_roots: [plugins]\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, path := range [][]string{
		{"start"},
		{"config", "check"},
		{"config", "lock"},
		{"plugin", "list"},
		{"version"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
	assert.Equal(t, ".", flag.DefValue)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dconnect-gw version "+version+"\n", out)
}

func TestConfigCheck(t *testing.T) {
	path := writeGateway(t, "")

	out, err := execute(t, "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "Configuration valid.\n", out)
}

func TestConfigCheckJSONInvalid(t *testing.T) {
	path := writeGateway(t, "metrics:\n  enabled: true\n  path: /healthz\n")

	out, err := execute(t, "config", "check", "--config", path, "--format", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration invalid")

	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Category string `json:"category"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "metrics", result.Errors[0].Category)
}

func TestConfigCheckStrict(t *testing.T) {
	path := writeGateway(t, "nats:\n  url: nats://127.0.0.1:4222\n")

	_, err := execute(t, "config", "check", "--config", path)
	require.NoError(t, err)

	_, err = execute(t, "config", "check", "--config", path, "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--strict")
}

func TestConfigCheckBadFormat(t *testing.T) {
	_, err := execute(t, "config", "check", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigLockThenTamper(t *testing.T) {
	path := writeGateway(t, "")

	out, err := execute(t, "config", "lock", "--config", filepath.Dir(path))
	require.NoError(t, err)
	assert.Contains(t, out, "Locked "+path)

	_, err = execute(t, "config", "check", "--config", path)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("supports: []\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = execute(t, "config", "check", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config verification failed")
}

func TestPluginList(t *testing.T) {
	path := writeGateway(t, "")

	out, err := execute(t, "plugin", "list", "--config", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Equal(t, []string{"echo", "1.2.0", "exec", "run.sh", "battery"}, strings.Fields(lines[1]))

	out, err = execute(t, "plugin", "list", "--config", path, "--format", "json")
	require.NoError(t, err)
	var rows []pluginSummary
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "echo", rows[0].Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "plugins", "echo"), rows[0].Path)
}

func TestPluginListEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))

	out, err := execute(t, "plugin", "list", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "No plugins discovered.\n", out)
}

func TestBuiltinModules(t *testing.T) {
	cfg := config.Defaults()
	cfg.Supports = []string{mediastream.Name, profile.AvailabilityName}
	cfg.Profiles.MediastreamRecording = &mediastream.Config{
		Recorders: []mediastream.Recorder{{Name: "mic", Type: mediastream.TypeAudio}},
	}

	modules := builtinModules(cfg)
	require.Len(t, modules, 2)
	assert.Equal(t, mediastream.Name, modules[0].Name())
	assert.Equal(t, profile.AvailabilityName, modules[1].Name())

	ms, ok := modules[0].(*mediastream.Module)
	require.True(t, ok)
	require.Len(t, ms.Recorders(), 1)
	assert.Equal(t, "mic", ms.Recorders()[0].Name)

	cfg.Supports = nil
	assert.Empty(t, builtinModules(cfg))
}

func TestRunStartStopsOnCancel(t *testing.T) {
	path := writeGateway(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runStart(ctx, path) }()

	pidFile := filepath.Join(filepath.Dir(path), "dconnect-gw.pid")
	require.Eventually(t, func() bool {
		pid, err := lock.ReadPID(pidFile)
		return err == nil && pid == os.Getpid()
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runStart did not return after cancel")
	}
}

func TestRunStartRefusesSecondInstance(t *testing.T) {
	path := writeGateway(t, "")

	held, err := lock.AcquirePIDLock(filepath.Join(filepath.Dir(path), "dconnect-gw.pid"))
	require.NoError(t, err)
	defer held.Release()

	err = runStart(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrHeld)
}

func TestRunStartBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("supports: [teleport]\n"), 0644))

	err := runStart(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
