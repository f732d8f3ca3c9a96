package game

// TileLayer is one named layer of global tile ids in a parsed map, e.g. a
// "collision" layer used for walkability per §6 "Map files".
type TileLayer struct {
	Name string `json:"name"`
	GIDs []int  `json:"gids"` // row-major, length Width*Height
}

// TileProperties carries the per-tile metadata the map-file parser extracts;
// parsing the raw TMX format itself is out of scope (§1) — this is the shape
// the already-parsed static map data arrives in.
type TileProperties struct {
	Walkable bool `json:"walkable"`
}

// SpawnPoint is an object-layer entry converted from pixel to tile
// coordinates by the (out-of-scope) map-file parser.
type SpawnPoint struct {
	ID               string   `json:"id"`
	Kind             string   `json:"kind"` // "player_spawn" or "entity_spawn"
	Position         Position `json:"position"`
	EntityKindID     string   `json:"entity_kind_id,omitempty"`
	WanderRadius     int      `json:"wander_radius,omitempty"`
	AggroOverride    *int     `json:"aggro_override,omitempty"`
	DisengageOverride *int    `json:"disengage_override,omitempty"`
	PatrolRoute      []Position `json:"patrol_route,omitempty"`
}

// StaticMap is the read-only parsed form of a single Tiled-like map. Maps
// are produced once at load and never mutated; they own the set of spawn
// points but not the live entity-instance/ground-item ids that reference
// them (those live in hot state, see pkg/hotstate).
type StaticMap struct {
	ID              string
	Width, Height   int
	TileSize        int
	Layers          []TileLayer
	Properties      [][]TileProperties // [y][x]
	CollisionLayers map[string]bool    // names treated as blocking, from config.CollisionLayerNames
	SpawnPoints     []SpawnPoint
}

// InBounds reports whether (x, y) lies within the map's tile grid.
func (m *StaticMap) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// Walkable implements §6's collision rule: any non-empty tile on a
// configured collision layer blocks movement; otherwise the per-tile
// walkable property decides.
func (m *StaticMap) Walkable(x, y int) bool {
	if !m.InBounds(x, y) {
		return false
	}
	idx := y*m.Width + x
	for _, layer := range m.Layers {
		if !m.CollisionLayers[layer.Name] {
			continue
		}
		if idx < len(layer.GIDs) && layer.GIDs[idx] != 0 {
			return false
		}
	}
	return m.Properties[y][x].Walkable
}

// PlayerSpawn returns the first player_spawn object-layer entry, per §6
// "first wins".
func (m *StaticMap) PlayerSpawn() (Position, bool) {
	for _, sp := range m.SpawnPoints {
		if sp.Kind == "player_spawn" {
			return sp.Position, true
		}
	}
	return Position{}, false
}

// EntitySpawns returns every entity_spawn object-layer entry.
func (m *StaticMap) EntitySpawns() []SpawnPoint {
	var out []SpawnPoint
	for _, sp := range m.SpawnPoints {
		if sp.Kind == "entity_spawn" {
			out = append(out, sp)
		}
	}
	return out
}

// Chunk is the per-layer tile data for one chunk_size x chunk_size cell of
// the map, as returned by QUERY_MAP_CHUNKS (§4.5.5, §6).
type Chunk struct {
	ChunkX, ChunkY int
	Layers         map[string][]int // layer name -> GIDs, row-major within the chunk
	Properties     []TileProperties // row-major within the chunk
}
