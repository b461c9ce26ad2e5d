// Connection abstractions for the relay core.
//
// The registry and broadcaster only need to deliver JSON to a peer, so they
// depend on the narrow Conn interface. The session handler additionally reads
// frames and closes with a status code, which transport adds. socket adapts a
// gorilla *websocket.Conn to both.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live client connection as seen by the registry and broadcaster.
// Implementations must tolerate concurrent WriteJSON calls.
type Conn interface {
	// WriteJSON delivers one JSON frame to the peer. A non-nil error means
	// the connection is unusable and should be pruned.
	WriteJSON(v any) error
	// Close releases the underlying transport.
	Close() error
}

// transport is the full duplex surface the session handler drives.
type transport interface {
	Conn
	// ReadMessage blocks until the next frame arrives. Any error means the
	// peer is gone (orderly or otherwise).
	ReadMessage() ([]byte, error)
	// WriteClose sends a close frame with the given status code before the
	// transport is released.
	WriteClose(code int, reason string) error
}

// socket wraps a gorilla connection with serialized, deadline-bounded writes.
// gorilla/websocket allows at most one concurrent writer, and the broadcaster
// and the session's error notices both write; the mutex serializes them. The
// write deadline bounds how long a stalled peer can hold up its own delivery —
// it never delays delivery to other peers beyond that.
type socket struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func newSocket(ws *websocket.Conn, writeTimeout time.Duration) *socket {
	return &socket{ws: ws, writeTimeout: writeTimeout}
}

func (s *socket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeTimeout > 0 {
		_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.ws.WriteJSON(v)
}

func (s *socket) WriteClose(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(s.writeTimeout)
	if s.writeTimeout <= 0 {
		deadline = time.Now().Add(time.Second)
	}
	return s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}

func (s *socket) ReadMessage() ([]byte, error) {
	_, data, err := s.ws.ReadMessage()
	return data, err
}

func (s *socket) Close() error {
	return s.ws.Close()
}
