// Package wire defines the client/server message schema (§6 "Wire
// protocol") and its JSON encoding. The spec treats the exact binary
// encoding as a drop-in choice; this keeps the teacher's JSON-RPC-over-
// WebSocket convention rather than introducing a new binary codec no
// example in the pack demonstrates.
package wire

import "encoding/json"

// ProtocolVersion is sent in every message and echoed in EVENT_WELCOME's
// config block.
const ProtocolVersion = "1"

// MessageType is the command/response/event type enum (§6).
type MessageType string

// Command types, client -> server.
const (
	CmdAuthenticate         MessageType = "CMD_AUTHENTICATE"
	CmdMove                 MessageType = "CMD_MOVE"
	CmdAttack               MessageType = "CMD_ATTACK"
	CmdToggleAutoRetaliate  MessageType = "CMD_TOGGLE_AUTO_RETALIATE"
	CmdInventoryMove        MessageType = "CMD_INVENTORY_MOVE"
	CmdInventorySort        MessageType = "CMD_INVENTORY_SORT"
	CmdItemEquip            MessageType = "CMD_ITEM_EQUIP"
	CmdItemUnequip          MessageType = "CMD_ITEM_UNEQUIP"
	CmdItemDrop             MessageType = "CMD_ITEM_DROP"
	CmdItemPickup           MessageType = "CMD_ITEM_PICKUP"
	CmdChatMessage          MessageType = "CMD_CHAT_MESSAGE"
	CmdAppearanceUpdate     MessageType = "CMD_APPEARANCE_UPDATE"
	CmdAdminTeleport        MessageType = "CMD_ADMIN_TELEPORT"
	CmdAdminKick            MessageType = "CMD_ADMIN_KICK"
	CmdAdminBan             MessageType = "CMD_ADMIN_BAN"
	CmdAdminTimeout         MessageType = "CMD_ADMIN_TIMEOUT"
	CmdAdminHeal            MessageType = "CMD_ADMIN_HEAL"
	CmdAdminItemGrant       MessageType = "CMD_ADMIN_ITEM_GRANT"
	QueryInventory          MessageType = "QUERY_INVENTORY"
	QueryEquipment          MessageType = "QUERY_EQUIPMENT"
	QueryStats              MessageType = "QUERY_STATS"
	QueryMapChunks          MessageType = "QUERY_MAP_CHUNKS"
)

// Response types, server -> client, correlated by Message.ID.
const (
	RespSuccess MessageType = "RESP_SUCCESS"
	RespData    MessageType = "RESP_DATA"
	RespError   MessageType = "RESP_ERROR"
)

// Event types, server -> client, uncorrelated.
const (
	EventWelcome           MessageType = "EVENT_WELCOME"
	EventStateUpdate       MessageType = "EVENT_STATE_UPDATE"
	EventPlayerJoined      MessageType = "EVENT_PLAYER_JOINED"
	EventPlayerLeft        MessageType = "EVENT_PLAYER_LEFT"
	EventChatMessage       MessageType = "EVENT_CHAT_MESSAGE"
	EventCombatAction      MessageType = "EVENT_COMBAT_ACTION"
	EventGroundItemAdded   MessageType = "EVENT_GROUND_ITEM_ADDED"
	EventGroundItemRemoved MessageType = "EVENT_GROUND_ITEM_REMOVED"
	EventPlayerDied        MessageType = "PLAYER_DIED"
	EventPlayerRespawn     MessageType = "PLAYER_RESPAWN"
)

// Message is the envelope every frame on the wire uses (§6): `{ id, type,
// payload, version }`. ID is the client-generated correlation id for
// commands, empty for server events.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Version string          `json:"version"`
}

// NewEvent builds an uncorrelated server -> client event message.
func NewEvent(t MessageType, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: raw, Version: ProtocolVersion}, nil
}

// NewSuccess builds a correlated RESP_SUCCESS/RESP_DATA reply.
func NewSuccess(id string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	t := RespSuccess
	if data != nil {
		t = RespData
	}
	return Message{ID: id, Type: t, Payload: raw, Version: ProtocolVersion}, nil
}

// NewError builds a correlated RESP_ERROR reply carrying the error taxonomy
// from §7.
func NewError(id string, rpcErr RPCError) (Message, error) {
	raw, err := json.Marshal(rpcErr)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: id, Type: RespError, Payload: raw, Version: ProtocolVersion}, nil
}

// Decode unmarshals a message's payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
