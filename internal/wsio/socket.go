package wsio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relay/internal/constants"
)

// Timing grounded on the teacher's internal/ws/client.go constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 15 * time.Second
	pingPeriod     = 10 * time.Second
	maxMessageSize = 65536
)

// socket wraps one upgraded connection and implements session.Sink so it can
// be handed straight to the Session Registry. Reads and writes happen on
// their own goroutines (ReadPump/WritePump); Send only ever touches the
// buffered channel the write pump drains.
type socket struct {
	conn *websocket.Conn

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newSocket(conn *websocket.Conn) *socket {
	return &socket{
		conn:   conn,
		send:   make(chan []byte, constants.SessionSendBufferSize),
		closed: make(chan struct{}),
	}
}

// Send implements session.Sink: non-blocking, returns false if the buffer is
// full (a dropped frame) or the socket already closed.
func (s *socket) Send(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close implements session.Sink. Safe to call more than once and from any
// goroutine; it unblocks both pumps.
func (s *socket) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// ReadPump blocks until the connection errors or closes, dispatching each
// parsed frame to onFrame. Call in its own goroutine.
func (s *socket) ReadPump(onFrame func(raw []byte)) {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "component", "wsio", "error", err)
			}
			return
		}
		onFrame(message)
	}
}

// WritePump drains the send buffer to the connection and pings on an
// interval, grounded on the teacher's client.go WritePump. Call in its own
// goroutine.
func (s *socket) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.closed:
			return

		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
