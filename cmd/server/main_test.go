package main

import (
	"bytes"
	"io"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"tilerealm/pkg/config"
	"tilerealm/pkg/durable"
)

// TestConfigureLogging tests the logging configuration function.
func TestConfigureLogging(t *testing.T) {
	tests := []struct {
		name          string
		logLevel      string
		expectedLevel logrus.Level
	}{
		{name: "debug level", logLevel: "debug", expectedLevel: logrus.DebugLevel},
		{name: "info level", logLevel: "info", expectedLevel: logrus.InfoLevel},
		{name: "warn level", logLevel: "warn", expectedLevel: logrus.WarnLevel},
		{name: "error level", logLevel: "error", expectedLevel: logrus.ErrorLevel},
		{name: "invalid level falls back to info", logLevel: "invalid", expectedLevel: logrus.InfoLevel},
		{name: "empty level falls back to info", logLevel: "", expectedLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logrus.SetOutput(io.Discard)
			defer logrus.SetOutput(os.Stderr)

			configureLogging(tt.logLevel)
			assert.Equal(t, tt.expectedLevel, logrus.GetLevel())
		})
	}
}

// TestLogStartupInfo tests that startup info is logged correctly.
func TestLogStartupInfo(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	defer logrus.SetOutput(os.Stderr)

	cfg := &config.Config{
		ServerPort:    8080,
		WebDir:        "./web",
		LogLevel:      "info",
		EnableDevMode: true,
	}

	logStartupInfo(cfg)

	output := buf.String()
	assert.Contains(t, output, "Starting tilerealm server")
	assert.Contains(t, output, "8080")
	assert.Contains(t, output, "./web")
}

// TestSetupShutdownHandling tests the shutdown signal channel setup.
func TestSetupShutdownHandling(t *testing.T) {
	sigChan, errChan := setupShutdownHandling()

	assert.NotNil(t, sigChan)
	assert.NotNil(t, errChan)
	assert.Equal(t, 1, cap(sigChan))
	assert.Equal(t, 1, cap(errChan))

	signal.Stop(sigChan)
}

// TestConnectDurableStoreFallsBackToMemory verifies that an empty DSN yields
// an in-memory store rather than attempting a Postgres connection.
func TestConnectDurableStoreFallsBackToMemory(t *testing.T) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := &config.Config{DatabaseDSN: ""}

	store, err := connectDurableStore(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, store)

	_, ok := store.(*durable.MemoryStore)
	assert.True(t, ok, "expected a MemoryStore when DatabaseDSN is empty")
}

// TestWaitForShutdownSignal_Signal tests that shutdown signal is handled.
func TestWaitForShutdownSignal_Signal(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	errChan := make(chan error, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		sigChan <- syscall.SIGINT
	}()

	done := make(chan struct{})
	go func() {
		waitForShutdownSignal(sigChan, errChan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("waitForShutdownSignal did not return after signal")
	}
}

// TestWaitForShutdownSignal_Error tests that server errors trigger shutdown.
func TestWaitForShutdownSignal_Error(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	errChan := make(chan error, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		errChan <- assert.AnError
	}()

	done := make(chan struct{})
	go func() {
		waitForShutdownSignal(sigChan, errChan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("waitForShutdownSignal did not return after error")
	}
}

// TestLoadAndConfigureSystem tests the configuration loading function.
func TestLoadAndConfigureSystem(t *testing.T) {
	os.Setenv("SERVER_PORT", "9999")
	os.Setenv("LOG_LEVEL", "warn")
	defer os.Unsetenv("SERVER_PORT")
	defer os.Unsetenv("LOG_LEVEL")

	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := loadAndConfigureSystem()

	assert.NotNil(t, cfg)
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, "warn", cfg.LogLevel)
}

// BenchmarkConfigureLogging benchmarks the logging configuration.
func BenchmarkConfigureLogging(b *testing.B) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	for i := 0; i < b.N; i++ {
		configureLogging("info")
	}
}

// BenchmarkSetupShutdownHandling benchmarks shutdown handler setup.
func BenchmarkSetupShutdownHandling(b *testing.B) {
	for i := 0; i < b.N; i++ {
		sigChan, _ := setupShutdownHandling()
		signal.Stop(sigChan)
	}
}
