// Package mapservice caches parsed static map data and answers the
// read-only collision, spawn-point, and chunk queries the rest of the
// server needs. It never mutates a map after load; the live entities and
// ground items a map "owns" are tracked in pkg/hotstate, not here.
package mapservice

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tilerealm/pkg/game"
)

// Service is the process-wide static-map cache, keyed by map id.
type Service struct {
	mu        sync.RWMutex
	maps      map[string]*game.StaticMap
	chunkSize int
	logger    *logrus.Entry
}

// New returns an empty Service; call Load for each map before serving traffic.
func New(chunkSize int, logger *logrus.Entry) *Service {
	if chunkSize <= 0 {
		chunkSize = 16
	}
	return &Service{
		maps:      make(map[string]*game.StaticMap),
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Load registers an already-parsed map (parsing the raw TMX file is out of
// scope; this consumes the parser's output).
func (s *Service) Load(m *game.StaticMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maps[m.ID] = m
	s.logger.WithFields(logrus.Fields{
		"map_id": m.ID,
		"width":  m.Width,
		"height": m.Height,
	}).Info("map loaded")
}

// Get returns the static map by id, or false if unknown.
func (s *Service) Get(mapID string) (*game.StaticMap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.maps[mapID]
	return m, ok
}

// MapIDs returns every loaded map id, in no particular order.
func (s *Service) MapIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.maps))
	for id := range s.maps {
		out = append(out, id)
	}
	return out
}

// Walkable delegates to the named map's collision rule (§6).
func (s *Service) Walkable(mapID string, x, y int) bool {
	m, ok := s.Get(mapID)
	if !ok {
		return false
	}
	return m.Walkable(x, y)
}

// SpawnPointForPlayer returns the named map's first player_spawn entry,
// falling back to the configured default spawn (caller supplies the
// fallback; see config.SpawnMapID/X/Y).
func (s *Service) SpawnPointForPlayer(mapID string) (game.Position, bool) {
	m, ok := s.Get(mapID)
	if !ok {
		return game.Position{}, false
	}
	return m.PlayerSpawn()
}

// EntitySpawns returns the named map's entity_spawn entries, used once at
// startup (and on full-map repopulation) to seed entity instances.
func (s *Service) EntitySpawns(mapID string) ([]game.SpawnPoint, error) {
	m, ok := s.Get(mapID)
	if !ok {
		return nil, fmt.Errorf("mapservice: unknown map %q", mapID)
	}
	return m.EntitySpawns(), nil
}

// Chunks returns the chunks covering a radius-tile square centered on
// (centerX, centerY), implementing §4.5.5 / §6 QUERY_MAP_CHUNKS.
func (s *Service) Chunks(mapID string, centerX, centerY, radius int) ([]game.Chunk, error) {
	m, ok := s.Get(mapID)
	if !ok {
		return nil, fmt.Errorf("mapservice: unknown map %q", mapID)
	}

	minChunkX := (centerX - radius) / s.chunkSize
	maxChunkX := (centerX + radius) / s.chunkSize
	minChunkY := (centerY - radius) / s.chunkSize
	maxChunkY := (centerY + radius) / s.chunkSize

	var chunks []game.Chunk
	for cy := minChunkY; cy <= maxChunkY; cy++ {
		for cx := minChunkX; cx <= maxChunkX; cx++ {
			chunk, ok := s.buildChunk(m, cx, cy)
			if ok {
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks, nil
}

func (s *Service) buildChunk(m *game.StaticMap, chunkX, chunkY int) (game.Chunk, bool) {
	startX, startY := chunkX*s.chunkSize, chunkY*s.chunkSize
	if startX >= m.Width || startY >= m.Height {
		return game.Chunk{}, false
	}

	chunk := game.Chunk{
		ChunkX: chunkX,
		ChunkY: chunkY,
		Layers: make(map[string][]int, len(m.Layers)),
	}

	for _, layer := range m.Layers {
		gids := make([]int, 0, s.chunkSize*s.chunkSize)
		for dy := 0; dy < s.chunkSize; dy++ {
			for dx := 0; dx < s.chunkSize; dx++ {
				x, y := startX+dx, startY+dy
				if !m.InBounds(x, y) {
					gids = append(gids, 0)
					continue
				}
				idx := y*m.Width + x
				if idx < len(layer.GIDs) {
					gids = append(gids, layer.GIDs[idx])
				} else {
					gids = append(gids, 0)
				}
			}
		}
		chunk.Layers[layer.Name] = gids
	}

	props := make([]game.TileProperties, 0, s.chunkSize*s.chunkSize)
	for dy := 0; dy < s.chunkSize; dy++ {
		for dx := 0; dx < s.chunkSize; dx++ {
			x, y := startX+dx, startY+dy
			if m.InBounds(x, y) {
				props = append(props, m.Properties[y][x])
			} else {
				props = append(props, game.TileProperties{})
			}
		}
	}
	chunk.Properties = props

	return chunk, true
}
