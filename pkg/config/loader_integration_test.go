package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tilerealm/pkg/resilience"
)

// TestLoadItemKindsWithCircuitBreakerProtection exercises LoadItemKinds end
// to end against the real config-loader circuit breaker (success, missing
// file, malformed YAML), rather than through a test double.
func TestLoadItemKindsWithCircuitBreakerProtection(t *testing.T) {
	resetCircuitBreakerForTesting()

	tempDir := t.TempDir()

	validFile := filepath.Join(tempDir, "valid.yaml")
	validContent := `
- id: "test_001"
  name: "Test Item"
  value: 10
`
	if err := os.WriteFile(validFile, []byte(validContent), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	kinds, err := LoadItemKinds(validFile)
	if err != nil {
		t.Fatalf("expected successful load, got error: %v", err)
	}
	if len(kinds) != 1 {
		t.Errorf("expected 1 item kind, got %d", len(kinds))
	}

	nonExistentFile := filepath.Join(tempDir, "does_not_exist.yaml")
	if _, err := LoadItemKinds(nonExistentFile); err == nil {
		t.Error("expected error when loading non-existent file")
	} else if errStr := strings.ToLower(err.Error()); !strings.Contains(errStr, "no such file") && !strings.Contains(errStr, "operation failed") {
		t.Errorf("expected file-not-found or circuit-open error, got: %v", err)
	}

	invalidFile := filepath.Join(tempDir, "invalid.yaml")
	if err := os.WriteFile(invalidFile, []byte(`invalid_yaml: [unclosed_bracket`), 0o644); err != nil {
		t.Fatalf("failed to create invalid test file: %v", err)
	}
	if _, err := LoadItemKinds(invalidFile); err == nil {
		t.Error("expected error when parsing invalid YAML")
	} else if errStr := strings.ToLower(err.Error()); !strings.Contains(errStr, "yaml") && !strings.Contains(errStr, "unmarshal") && !strings.Contains(errStr, "operation failed") {
		t.Errorf("expected YAML-parsing or circuit-open error, got: %v", err)
	}
}

// TestConfigLoaderCircuitBreakerConfiguration verifies the config-loader
// circuit breaker is configured the way pkg/resilience defines it.
func TestConfigLoaderCircuitBreakerConfiguration(t *testing.T) {
	resetCircuitBreakerForTesting()

	manager := resilience.GetGlobalCircuitBreakerManager()
	cb := manager.GetOrCreate("config_loader", &resilience.ConfigLoaderConfig)
	config := resilience.ConfigLoaderConfig

	if config.MaxFailures != 2 {
		t.Errorf("expected MaxFailures to be 2, got %d", config.MaxFailures)
	}
	if config.Timeout != 15*time.Second {
		t.Errorf("expected Timeout to be 15s, got %v", config.Timeout)
	}
	if config.Name != "config_loader" {
		t.Errorf("expected Name to be 'config_loader', got %s", config.Name)
	}
	if cb.GetState() != resilience.StateClosed {
		t.Errorf("expected initial state to be closed, got %s", cb.GetState())
	}
}

// TestCircuitBreakerOpensAfterRepeatedFailures drives the config-loader
// circuit breaker open via repeated failures and confirms it reports StateOpen.
func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	resetCircuitBreakerForTesting()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = resilience.ExecuteWithConfigLoaderCircuitBreaker(ctx, func(ctx context.Context) error {
			return fmt.Errorf("failure %d", i)
		})
	}

	manager := resilience.GetGlobalCircuitBreakerManager()
	cb := manager.GetOrCreate("config_loader", &resilience.ConfigLoaderConfig)

	if cb.GetState() != resilience.StateOpen {
		t.Errorf("expected circuit breaker to be open, got %s", cb.GetState())
	}
}
