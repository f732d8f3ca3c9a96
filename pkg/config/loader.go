package config

import (
	"context"
	"fmt"
	"os"

	"tilerealm/pkg/game"
	"tilerealm/pkg/resilience"

	"gopkg.in/yaml.v3"
)

// LoadItemKinds loads the item reference-data table from a YAML file (§6
// "Static reference data"). Protected by the config-loader circuit breaker
// so a transient or repeatedly-broken data file fails fast on subsequent
// attempts instead of blocking startup on every retry.
func LoadItemKinds(filename string) (game.ItemKindTable, error) {
	var kinds []game.ItemKind
	ctx := context.Background()

	err := resilience.ExecuteWithConfigLoaderCircuitBreaker(ctx, func(ctx context.Context) error {
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, &kinds)
	})
	if err != nil {
		return nil, fmt.Errorf("loading item kinds from %s: %w", filename, err)
	}

	table := make(game.ItemKindTable, len(kinds))
	for _, kind := range kinds {
		table[kind.ID] = kind
	}
	return table, nil
}

// LoadEntityKinds loads the entity (NPC/monster) reference-data table from a
// YAML file, the same way LoadItemKinds does for items.
func LoadEntityKinds(filename string) (game.EntityKindTable, error) {
	var kinds []game.EntityKind
	ctx := context.Background()

	err := resilience.ExecuteWithConfigLoaderCircuitBreaker(ctx, func(ctx context.Context) error {
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, &kinds)
	})
	if err != nil {
		return nil, fmt.Errorf("loading entity kinds from %s: %w", filename, err)
	}

	table := make(game.EntityKindTable, len(kinds))
	for _, kind := range kinds {
		table[kind.ID] = kind
	}
	return table, nil
}
