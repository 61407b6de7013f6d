package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reconciliation-engine/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{Driver: "memory"},
		Guard:    config.GuardConfig{Backend: "memory", TTL: time.Second, Bucket: time.Second, SweepInterval: time.Minute},
		Closing:  config.ClosingConfig{DuplicatePolicy: "per_shift"},
	}
}

func TestRun_ReturnsStartupErrors(t *testing.T) {
	// GIVEN: A configuration with an unknown duplicate policy
	cfg := testConfig()
	cfg.Closing.DuplicatePolicy = "per_week"

	// WHEN: Running the server
	err := run(cfg, zap.NewNop())

	// THEN: The failure comes back to the caller instead of exiting
	require.Error(t, err)
	assert.Contains(t, err.Error(), "per_week")
}

func TestExitCode_LogsFailureAndFlushes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	// WHEN: The run failed
	code := exitCode(logger, errors.New("listen tcp :8080: address already in use"))

	// THEN: The failure is logged at error level and the process exits 1
	assert.Equal(t, 1, code)
	entries := logs.FilterMessage("server failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "listen tcp :8080: address already in use", entries[0].ContextMap()["error"])

	// A clean run exits 0 without logging.
	assert.Equal(t, 0, exitCode(logger, nil))
	assert.Equal(t, 1, logs.Len())
}
