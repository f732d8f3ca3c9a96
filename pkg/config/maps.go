package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tilerealm/pkg/game"
	"tilerealm/pkg/resilience"
)

// staticMapDoc is the on-disk shape of one already-parsed map (§6 "Map
// files"): the raw TMX format itself is out of scope, so this is the JSON
// document a build step or hand-authored fixture produces.
type staticMapDoc struct {
	ID         string              `json:"id"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	TileSize   int                 `json:"tile_size"`
	Layers     []game.TileLayer    `json:"layers"`
	Properties [][]game.TileProperties `json:"properties"`
	SpawnPoints []game.SpawnPoint  `json:"spawn_points"`
}

// LoadStaticMaps reads every *.json file in dir and returns the parsed
// static maps keyed by id, with CollisionLayers populated from
// collisionLayerNames (§6 "Layers whose names appear in collision_layer_names
// are treated as blocking"). Protected by the same config-loader circuit
// breaker as LoadItemKinds/LoadEntityKinds.
func LoadStaticMaps(dir string, collisionLayerNames []string) (map[string]*game.StaticMap, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading map directory %s: %w", dir, err)
	}

	collision := make(map[string]bool, len(collisionLayerNames))
	for _, name := range collisionLayerNames {
		collision[name] = true
	}

	maps := make(map[string]*game.StaticMap)
	ctx := context.Background()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var doc staticMapDoc
		err := resilience.ExecuteWithConfigLoaderCircuitBreaker(ctx, func(ctx context.Context) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return json.Unmarshal(data, &doc)
		})
		if err != nil {
			return nil, fmt.Errorf("loading map file %s: %w", path, err)
		}

		maps[doc.ID] = &game.StaticMap{
			ID:              doc.ID,
			Width:           doc.Width,
			Height:          doc.Height,
			TileSize:        doc.TileSize,
			Layers:          doc.Layers,
			Properties:      doc.Properties,
			CollisionLayers: collision,
			SpawnPoints:     doc.SpawnPoints,
		}
	}
	return maps, nil
}
