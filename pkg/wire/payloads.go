package wire

import "tilerealm/pkg/game"

// Command payloads (client -> server).

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type MovePayload struct {
	Direction string `json:"direction"`
}

type AttackPayload struct {
	TargetType string `json:"target_type"` // "player" | "entity"
	TargetID   string `json:"target_id"`
}

type ToggleAutoRetaliatePayload struct {
	Enabled bool `json:"enabled"`
}

type InventoryMovePayload struct {
	FromSlot int `json:"from_slot"`
	ToSlot   int `json:"to_slot"`
}

type InventorySortPayload struct {
	SortBy string `json:"sort_by"`
}

type ItemEquipPayload struct {
	InventorySlot int `json:"inventory_slot"`
}

type ItemUnequipPayload struct {
	EquipmentSlot string `json:"equipment_slot"`
}

type ItemDropPayload struct {
	InventorySlot int `json:"inventory_slot"`
	Quantity      int `json:"quantity"`
}

type ItemPickupPayload struct {
	GroundItemID int64 `json:"ground_item_id"`
}

type ChatMessagePayload struct {
	Channel   string `json:"channel"`
	Message   string `json:"message"`
	Recipient string `json:"recipient,omitempty"` // required for channel "whisper"
}

type MapChunksPayload struct {
	CenterX int `json:"center_x"`
	CenterY int `json:"center_y"`
	Radius  int `json:"radius"`
}

type AppearanceUpdatePayload struct {
	Appearance map[string]string `json:"appearance"`
}

// Admin command payloads (§4.5.6), gated on game.RoleModerator/RoleAdmin.

type AdminTeleportPayload struct {
	PlayerID int64  `json:"player_id"`
	MapID    string `json:"map_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type AdminKickPayload struct {
	PlayerID int64  `json:"player_id"`
	Reason   string `json:"reason"`
}

type AdminBanPayload struct {
	PlayerID int64  `json:"player_id"`
	Reason   string `json:"reason"`
}

type AdminTimeoutPayload struct {
	PlayerID int64 `json:"player_id"`
	Seconds  int   `json:"seconds"`
}

type AdminHealPayload struct {
	PlayerID int64 `json:"player_id"`
}

type AdminItemGrantPayload struct {
	PlayerID   int64  `json:"player_id"`
	ItemKindID string `json:"item_kind_id"`
	Quantity   int    `json:"quantity"`
}

// Response data payloads (server -> client, correlated).

type InventoryMoveResult struct {
	Inventory game.Inventory `json:"inventory"`
}

type InventorySortResult struct {
	Inventory    game.Inventory `json:"inventory"`
	ItemsMoved   int            `json:"items_moved"`
	StacksMerged int            `json:"stacks_merged"`
}

type EquipResult struct {
	Inventory game.Inventory `json:"inventory"`
	Equipment game.Equipment `json:"equipment"`
}

type MoveResult struct {
	Position game.Position `json:"position"`
}

type MapChunksResult struct {
	MapID  string       `json:"map_id"`
	Chunks []game.Chunk `json:"chunks"`
}

// Query result payloads (§4.5.5), returned via RESP_DATA.

type InventoryQueryResult struct {
	Inventory game.Inventory `json:"inventory"`
}

type EquipmentQueryResult struct {
	Equipment game.Equipment `json:"equipment"`
}

type StatsQueryResult struct {
	Skills    game.Skills `json:"skills"`
	HP        int         `json:"hp"`
	MaxHP     int         `json:"max_hp"`
	CombatLvl int         `json:"combat_level"`
}

// Event payloads (server -> client, uncorrelated).

type WelcomeConfig struct {
	MoveCooldownMS      int64  `json:"move_cooldown_ms"`
	AnimationDurationMS int64  `json:"animation_duration_ms"`
	ProtocolVersion     string `json:"protocol_version"`
}

type WelcomeEvent struct {
	PlayerID   int64         `json:"player_id"`
	Username   string        `json:"username"`
	Position   game.Position `json:"position"`
	HP         int           `json:"hp"`
	MaxHP      int           `json:"max_hp"`
	Appearance map[string]string `json:"appearance"`
	MOTD       string        `json:"motd"`
	Config     WelcomeConfig `json:"config"`
}

// EntityPayload is one entry of EVENT_STATE_UPDATE's `entities` list; it
// covers players, NPCs, and ground items uniformly via Kind.
type EntityPayload struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"` // "player" | entity kind id | "ground_item"
	Position     game.Position `json:"position"`
	HP           int           `json:"hp,omitempty"`
	MaxHP        int           `json:"max_hp,omitempty"`
	State        string        `json:"state,omitempty"`
	IsAttackable bool          `json:"is_attackable"`
	Quantity     int           `json:"quantity,omitempty"`
}

type StateUpdateEvent struct {
	Entities        []EntityPayload `json:"entities"`
	RemovedEntities []string        `json:"removed_entities"`
	MapID           string          `json:"map_id"`
}

type PlayerJoinedEvent struct {
	PlayerID int64         `json:"player_id"`
	Username string        `json:"username"`
	Position game.Position `json:"position"`
}

type PlayerLeftEvent struct {
	PlayerID int64 `json:"player_id"`
}

type ChatMessageEvent struct {
	SenderName string         `json:"sender_name"`
	Channel    string         `json:"channel"`
	Message    string         `json:"message"`
	Position   *game.Position `json:"position,omitempty"`
}

type CombatActionEvent struct {
	AttackerType string `json:"attacker_type"`
	AttackerID   string `json:"attacker_id"`
	DefenderType string `json:"defender_type"`
	DefenderID   string `json:"defender_id"`
	Hit          bool   `json:"hit"`
	Damage       int    `json:"damage"`
	DefenderHP   int    `json:"defender_hp"`
	Died         bool   `json:"died"`
	Message      string `json:"message"`
}

type GroundItemAddedEvent struct {
	GroundItem game.GroundItem `json:"ground_item"`
}

type GroundItemRemovedEvent struct {
	GroundItemID int64 `json:"ground_item_id"`
}

type PlayerDiedEvent struct {
	PlayerID int64 `json:"player_id"`
}

type PlayerRespawnEvent struct {
	PlayerID int64         `json:"player_id"`
	Position game.Position `json:"position"`
	HP       int           `json:"hp"`
}
