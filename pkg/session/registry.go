package session

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry is the session layer's single mutex-guarded index (§4.2,
// §9 "Shared-mutable world state ... represent as explicit managers held in
// a root context"): map-id -> player-id -> *Session, plus the reverse
// player-id -> map-id lookup used when a player moves between maps.
type Registry struct {
	mu        sync.RWMutex
	byMap     map[string]map[int64]*Session
	playerMap map[int64]string
	logger    *logrus.Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byMap:     make(map[string]map[int64]*Session),
		playerMap: make(map[int64]string),
		logger:    logrus.WithField("component", "session.Registry"),
	}
}

// Open registers a freshly authenticated session and starts its write pump.
// Any previous session for the same player is closed first (§4.2 Auth
// handshake "session replacement").
func (r *Registry) Open(playerID int64, username, mapID string, conn Conn) *Session {
	r.mu.Lock()
	if old := r.lookupLocked(playerID); old != nil {
		r.removeLocked(old)
		old.Close()
	}
	sess := newSession(playerID, username, mapID, conn)
	r.insertLocked(sess)
	r.mu.Unlock()

	go sess.runWritePump()
	return sess
}

// Close tears down a session: removes it from both indices and stops its
// write pump. Idempotent.
func (r *Registry) Close(sess *Session) {
	r.mu.Lock()
	r.removeLocked(sess)
	r.mu.Unlock()
	sess.Close()
}

// MoveMap updates a session's map index when the player changes maps.
func (r *Registry) MoveMap(sess *Session, newMapID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sess)
	sess.MapID = newMapID
	r.insertLocked(sess)
}

func (r *Registry) insertLocked(sess *Session) {
	byPlayer, ok := r.byMap[sess.MapID]
	if !ok {
		byPlayer = make(map[int64]*Session)
		r.byMap[sess.MapID] = byPlayer
	}
	byPlayer[sess.PlayerID] = sess
	r.playerMap[sess.PlayerID] = sess.MapID
}

func (r *Registry) removeLocked(sess *Session) {
	if byPlayer, ok := r.byMap[sess.MapID]; ok {
		delete(byPlayer, sess.PlayerID)
		if len(byPlayer) == 0 {
			delete(r.byMap, sess.MapID)
		}
	}
	delete(r.playerMap, sess.PlayerID)
}

func (r *Registry) lookupLocked(playerID int64) *Session {
	mapID, ok := r.playerMap[playerID]
	if !ok {
		return nil
	}
	return r.byMap[mapID][playerID]
}

// Lookup returns the live session for a player, or nil if offline.
func (r *Registry) Lookup(playerID int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(playerID)
}

// SessionsOnMap returns a snapshot slice of every session currently on a
// map. The snapshot is taken under the lock, then released before any
// sends happen (§4.2 "snapshot-before-broadcast-then-release"), so a slow
// client can never hold the registry lock.
func (r *Registry) SessionsOnMap(mapID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byPlayer := r.byMap[mapID]
	out := make([]*Session, 0, len(byPlayer))
	for _, sess := range byPlayer {
		out = append(out, sess)
	}
	return out
}

// BroadcastToMap sends message to every session on a map.
func (r *Registry) BroadcastToMap(mapID string, message []byte) {
	for _, sess := range r.SessionsOnMap(mapID) {
		sess.Send(message)
	}
}

// BroadcastToPlayers sends message to a specific set of players, wherever
// they currently are.
func (r *Registry) BroadcastToPlayers(playerIDs []int64, message []byte) {
	for _, id := range playerIDs {
		if sess := r.Lookup(id); sess != nil {
			sess.Send(message)
		}
	}
}

// SendPersonal sends message to one player if online.
func (r *Registry) SendPersonal(playerID int64, message []byte) bool {
	sess := r.Lookup(playerID)
	if sess == nil {
		return false
	}
	return sess.Send(message)
}

// MapIDs returns every map id with at least one online player.
func (r *Registry) MapIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byMap))
	for mapID := range r.byMap {
		out = append(out, mapID)
	}
	return out
}

// TotalSessions returns the number of authenticated sessions currently
// online across every map, used to enforce the server's MAX_PLAYERS cap at
// login (§4.2 Auth handshake).
func (r *Registry) TotalSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.playerMap)
}

// CountOnMap returns the number of sessions currently on a single map,
// cheaper than len(SessionsOnMap) since it avoids the snapshot allocation.
func (r *Registry) CountOnMap(mapID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byMap[mapID])
}
