// Package session is the session layer from §4.2: it owns the
// map-id/player-id indices, the per-connection send queue, and the
// auth/disconnect lifecycle. Command handlers and the tick loop reach
// players only through this package, never through a raw connection.
package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SendTimeout bounds how long a blocked send queue is tolerated before the
// message is dropped, mirroring the non-blocking send pattern used
// elsewhere in this server.
const SendTimeout = 50 * time.Millisecond

// SendQueueSize is the bounded queue depth enforcing per-connection
// ordering (§9 "one task for the session send path, with a bounded queue").
const SendQueueSize = 256

// Conn is the minimal connection surface the session layer needs; satisfied
// by *websocket.Conn in production and a fake in tests.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one authenticated player's live connection state.
type Session struct {
	PlayerID   int64
	Username   string
	Conn       Conn
	MapID      string
	LastActive time.Time
	sendChan   chan []byte
	closeOnce  sync.Once
	done       chan struct{}
}

func newSession(playerID int64, username, mapID string, conn Conn) *Session {
	return &Session{
		PlayerID:   playerID,
		Username:   username,
		Conn:       conn,
		MapID:      mapID,
		LastActive: time.Now(),
		sendChan:   make(chan []byte, SendQueueSize),
		done:       make(chan struct{}),
	}
}

// Send enqueues a message for the session's write pump, without blocking
// longer than SendTimeout; a full queue drops the message and logs (§9
// "bounded queue to enforce ordering").
func (s *Session) Send(message []byte) bool {
	select {
	case s.sendChan <- message:
		return true
	case <-time.After(SendTimeout):
		logrus.WithField("player_id", s.PlayerID).Warn("session send queue full, dropping message")
		return false
	case <-s.done:
		return false
	}
}

// runWritePump drains sendChan to the underlying connection until the
// session is closed; this is the "one task per session send path" from §9.
func (s *Session) runWritePump() {
	const websocketTextMessage = 1
	for {
		select {
		case msg, ok := <-s.sendChan:
			if !ok {
				return
			}
			if err := s.Conn.WriteMessage(websocketTextMessage, msg); err != nil {
				logrus.WithError(err).WithField("player_id", s.PlayerID).Debug("write pump: connection closed")
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close stops the write pump and closes the connection. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.Conn.Close()
	})
}
