package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// sendBuffer bounds the per-session outbound queue. A slow consumer loses
// frames instead of blocking the publisher.
const sendBuffer = 32

// Session binds one websocket connection to an optional team identity.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	teamID string
	closed bool
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// TeamID returns the bound team identifier, empty if unbound.
func (s *Session) TeamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teamID
}

func (s *Session) bind(teamID string) {
	s.mu.Lock()
	s.teamID = teamID
	s.mu.Unlock()
}

// enqueue hands a frame to the write pump without blocking. Frames sent
// after closeSend are discarded.
func (s *Session) enqueue(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- frame:
	default:
	}
}

// closeSend stops the write pump once pending frames drain.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// writePump drains the send queue onto the connection. It is the only
// goroutine writing to the socket.
func (s *Session) writePump() {
	for frame := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}
