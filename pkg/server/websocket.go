package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"tilerealm/pkg/game"
	"tilerealm/pkg/hotstate"
	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// handshakeTimeout bounds how long a freshly upgraded connection may take
// to send its CMD_AUTHENTICATE frame before the server gives up on it.
const handshakeTimeout = 10 * time.Second

// handleWebSocket upgrades the connection, runs the CMD_AUTHENTICATE
// handshake (§4.2), and then reads frames for the lifetime of the session,
// dispatching each to its command handler.
func (s *RPCServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var conn *websocket.Conn
	upgradeErr := ExecuteWithServerCircuitBreaker(r.Context(), func(context.Context) error {
		c, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if upgradeErr != nil {
		s.logger.WithError(upgradeErr).Debug("websocket upgrade failed")
		return
	}
	s.metrics.RecordWebSocketConnection("connected")
	defer s.metrics.RecordWebSocketConnection("disconnected")
	conn.SetReadLimit(s.config.MaxRequestSize)

	sess, rt, ok := s.authenticateSession(r.Context(), conn)
	if !ok {
		conn.Close()
		return
	}
	defer s.disconnect(sess)

	s.sendWelcome(sess, rt)
	s.broadcastPlayerJoined(sess, rt)
	s.sendInitialStateUpdate(sess, rt)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.metrics.RecordWebSocketMessage("inbound", "frame")
		s.handleFrame(sess, raw)
	}
}

// authenticateSession implements the handshake: exactly one inbound
// CMD_AUTHENTICATE message, token verification, ban/timeout re-check,
// MAX_PLAYERS enforcement with admin/moderator bypass, and session
// registration. Any failure after the first frame is read closes the
// transport with a policy-violation close frame and a reason string (§4.2);
// a read error or handshake timeout returns without sending a close frame.
func (s *RPCServer) authenticateSession(ctx context.Context, conn *websocket.Conn) (*session.Session, *game.Runtime, bool) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, false
	}

	var msg wire.Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != wire.CmdAuthenticate {
		closeWithPolicyViolation(conn, "expected CMD_AUTHENTICATE as the first message")
		return nil, nil, false
	}

	var payload wire.AuthenticatePayload
	if err := msg.Decode(&payload); err != nil {
		closeWithPolicyViolation(conn, "malformed authenticate payload")
		return nil, nil, false
	}

	playerID, err := s.verifyToken(payload.Token)
	if err != nil {
		closeWithPolicyViolation(conn, "invalid or expired token")
		return nil, nil, false
	}

	player, err := s.hot.Player(ctx, playerID)
	if err != nil || player == nil {
		closeWithPolicyViolation(conn, "unknown player")
		return nil, nil, false
	}

	now := time.Now()
	if player.IsBanned {
		closeWithPolicyViolation(conn, "account is banned")
		return nil, nil, false
	}
	if player.IsTimedOut(now) {
		closeWithPolicyViolation(conn, "account is timed out")
		return nil, nil, false
	}

	privileged := player.Role == game.RoleModerator || player.Role == game.RoleAdmin
	if !privileged && s.sessions.TotalSessions() >= s.config.MaxPlayers {
		closeWithPolicyViolation(conn, "server is at capacity")
		return nil, nil, false
	}

	ttl := hotstate.TTLPolicy{Online: s.config.HotStateOnlineTTL, Offline: s.config.HotStateOfflineTTL}
	if err := s.hot.SetOnline(ctx, playerID, true, ttl); err != nil {
		closeWithPolicyViolation(conn, "failed to activate session")
		return nil, nil, false
	}
	s.tickLoop.RespawnIfDue(playerID, now)

	rt, err := s.hot.Runtime(ctx, playerID)
	if err != nil || rt == nil {
		closeWithPolicyViolation(conn, "failed to load player state")
		return nil, nil, false
	}

	sess := s.sessions.Open(playerID, player.Username, rt.Position.MapID, conn)
	s.metrics.UpdateActiveSessions(s.sessions.TotalSessions())
	return sess, rt, true
}

// closeWithPolicyViolation sends a close frame with the WebSocket
// policy-violation status and the given reason, then closes the connection.
func closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	conn.Close()
}

// sendWelcome emits EVENT_WELCOME followed by a server-channel chat message,
// per §4.2.
func (s *RPCServer) sendWelcome(sess *session.Session, rt *game.Runtime) {
	player, err := s.hot.Player(context.Background(), sess.PlayerID)
	appearance := map[string]string{}
	if err == nil && player != nil {
		appearance = player.Appearance
	}

	welcome := wire.WelcomeEvent{
		PlayerID: sess.PlayerID, Username: sess.Username,
		Position: rt.Position, HP: rt.CurrentHP, MaxHP: rt.MaxHP,
		Appearance: appearance,
		MOTD:       "Welcome to the realm.",
		Config: wire.WelcomeConfig{
			MoveCooldownMS:      s.config.MoveCooldown.Milliseconds(),
			AnimationDurationMS: s.config.AnimationDuration.Milliseconds(),
			ProtocolVersion:     wire.ProtocolVersion,
		},
	}
	s.sendEvent(sess, wire.EventWelcome, welcome)

	chat := wire.ChatMessageEvent{SenderName: "system", Channel: "system", Message: "Welcome to the realm."}
	s.sendEvent(sess, wire.EventChatMessage, chat)
}

// broadcastPlayerJoined tells the other players already on the map about
// the new arrival (§4.2).
func (s *RPCServer) broadcastPlayerJoined(sess *session.Session, rt *game.Runtime) {
	event := wire.PlayerJoinedEvent{PlayerID: sess.PlayerID, Username: sess.Username, Position: rt.Position}
	msg, err := wire.NewEvent(wire.EventPlayerJoined, event)
	if err != nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, other := range s.sessions.SessionsOnMap(rt.Position.MapID) {
		if other.PlayerID == sess.PlayerID {
			continue
		}
		other.Send(raw)
	}
}

// sendInitialStateUpdate gives the joining session a one-shot snapshot of
// everyone already visible so it can render them immediately, without
// waiting for the next tick's diff (§4.2).
func (s *RPCServer) sendInitialStateUpdate(sess *session.Session, rt *game.Runtime) {
	entities := make([]wire.EntityPayload, 0)
	for _, other := range s.sessions.SessionsOnMap(rt.Position.MapID) {
		if other.PlayerID == sess.PlayerID {
			continue
		}
		otherRT, err := s.hot.Runtime(context.Background(), other.PlayerID)
		if err != nil || otherRT == nil {
			continue
		}
		if game.ChebyshevDistance(rt.Position, otherRT.Position) > s.config.VisibilityTileRadius {
			continue
		}
		entities = append(entities, wire.EntityPayload{
			ID: "player:" + strconv.FormatInt(other.PlayerID, 10), Kind: "player", Position: otherRT.Position,
			HP: otherRT.CurrentHP, MaxHP: otherRT.MaxHP, IsAttackable: false,
		})
	}
	s.sendEvent(sess, wire.EventStateUpdate, wire.StateUpdateEvent{Entities: entities, MapID: rt.Position.MapID})
}

// disconnect implements §4.2's disconnect sequence: flush, remove from the
// registry, broadcast EVENT_PLAYER_LEFT, and release every per-player
// resource that would otherwise leak across reconnects.
func (s *RPCServer) disconnect(sess *session.Session) {
	ctx := context.Background()
	ttl := hotstate.TTLPolicy{Online: s.config.HotStateOnlineTTL, Offline: s.config.HotStateOfflineTTL}
	_ = s.hot.SetOnline(ctx, sess.PlayerID, false, ttl)
	s.hot.FlushOnce(ctx)

	mapID := sess.MapID
	s.sessions.Close(sess)
	s.rateLimiter.DropPlayer(sess.PlayerID)
	s.visibility.Remove(sess.PlayerID)
	s.locks.Release(sess.PlayerID)
	s.metrics.UpdateActiveSessions(s.sessions.TotalSessions())

	event := wire.PlayerLeftEvent{PlayerID: sess.PlayerID}
	msg, err := wire.NewEvent(wire.EventPlayerLeft, event)
	if err == nil {
		if raw, err := json.Marshal(msg); err == nil {
			s.sessions.BroadcastToMap(mapID, raw)
		}
	}
}

// sendEvent marshals and sends an uncorrelated event to one session.
func (s *RPCServer) sendEvent(sess *session.Session, t wire.MessageType, payload any) {
	msg, err := wire.NewEvent(t, payload)
	if err != nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	sess.Send(raw)
}
