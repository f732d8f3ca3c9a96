package config

import (
	"os"
	"path/filepath"
	"testing"

	"tilerealm/pkg/resilience"
)

// resetCircuitBreakerForTesting resets the config-loader circuit breaker
// state between test cases so one test's failures don't trip the breaker
// for the next.
func resetCircuitBreakerForTesting() {
	resilience.GetGlobalCircuitBreakerManager().Remove("config_loader")
}

func TestLoadItemKinds_ValidYAMLFile(t *testing.T) {
	resetCircuitBreakerForTesting()

	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "items.yaml")

	content := `
- id: "bronze_sword"
  name: "Bronze Sword"
  rarity: 0
  stackable: false
  equipable: true
  equipment_slot: 3
  attack_speed: 2.4
  value: 50

- id: "raw_shrimp"
  name: "Raw Shrimp"
  rarity: 0
  stackable: true
  stack_cap: 100
  value: 1
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	kinds, err := LoadItemKinds(file)
	if err != nil {
		t.Fatalf("LoadItemKinds failed: %v", err)
	}
	if len(kinds) != 2 {
		t.Fatalf("expected 2 item kinds, got %d", len(kinds))
	}

	sword, ok := kinds["bronze_sword"]
	if !ok {
		t.Fatal("expected bronze_sword to be present")
	}
	if sword.Name != "Bronze Sword" {
		t.Errorf("expected name 'Bronze Sword', got %q", sword.Name)
	}
	if !sword.Equipable {
		t.Error("expected bronze_sword to be equipable")
	}
	if sword.AttackSpeed != 2.4 {
		t.Errorf("expected attack speed 2.4, got %v", sword.AttackSpeed)
	}

	shrimp, ok := kinds["raw_shrimp"]
	if !ok {
		t.Fatal("expected raw_shrimp to be present")
	}
	if !shrimp.Stackable || shrimp.StackCap != 100 {
		t.Errorf("expected raw_shrimp stackable with cap 100, got stackable=%v cap=%d", shrimp.Stackable, shrimp.StackCap)
	}
}

func TestLoadItemKinds_EmptyFile(t *testing.T) {
	resetCircuitBreakerForTesting()

	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "empty.yaml")
	if err := os.WriteFile(file, []byte(""), 0o644); err != nil {
		t.Fatalf("failed to create empty test file: %v", err)
	}

	kinds, err := LoadItemKinds(file)
	if err != nil {
		t.Fatalf("LoadItemKinds failed on empty file: %v", err)
	}
	if len(kinds) != 0 {
		t.Errorf("expected 0 item kinds from empty file, got %d", len(kinds))
	}
}

func TestLoadItemKinds_FileNotFound(t *testing.T) {
	resetCircuitBreakerForTesting()

	kinds, err := LoadItemKinds(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
	if kinds != nil {
		t.Errorf("expected nil table on error, got %v", kinds)
	}
}

func TestLoadItemKinds_InvalidYAML(t *testing.T) {
	resetCircuitBreakerForTesting()

	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "invalid.yaml")
	content := "- id: \"broken\n  name: not closed"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create invalid test file: %v", err)
	}

	kinds, err := LoadItemKinds(file)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
	if kinds != nil {
		t.Errorf("expected nil table on error, got %v", kinds)
	}
}

func TestLoadEntityKinds_ValidYAMLFile(t *testing.T) {
	resetCircuitBreakerForTesting()

	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "entities.yaml")
	content := `
- id: "goblin"
  name: "Goblin"
  max_hp: 15
  attack_level: 5
  defence_level: 5
  strength_level: 5
  attack_speed: 2.4
  is_attackable: true
  aggressive: true
  aggro_range: 3
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	kinds, err := LoadEntityKinds(file)
	if err != nil {
		t.Fatalf("LoadEntityKinds failed: %v", err)
	}
	goblin, ok := kinds["goblin"]
	if !ok {
		t.Fatal("expected goblin to be present")
	}
	if goblin.MaxHP != 15 || !goblin.Aggressive {
		t.Errorf("expected goblin max_hp=15 aggressive=true, got %+v", goblin)
	}
}

func TestLoadEntityKinds_FileNotFound(t *testing.T) {
	resetCircuitBreakerForTesting()

	kinds, err := LoadEntityKinds(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
	if kinds != nil {
		t.Errorf("expected nil table on error, got %v", kinds)
	}
}
