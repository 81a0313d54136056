// Package notifications pushes live query snapshots to WebSocket clients.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"instafeed/internal/live"
	"instafeed/internal/middleware"
	"instafeed/internal/models"
	"instafeed/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames and close requests.
	maxMessageSize = 1024
)

// Frame types written to the socket.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Conn is the subset of a WebSocket connection the pump needs. Both the
// Fiber and gorilla connections satisfy it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Frame is the envelope for everything written to a live socket.
type Frame struct {
	Type  string      `json:"type"`
	Kind  string      `json:"kind"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"code,omitempty"`
}

// Client streams one subscription to one connection.
type Client struct {
	Conn Conn
	Kind string

	// UserID for this client
	UserID string

	pingPeriod time.Duration
}

// NewClient creates a Client for the given connection and query kind.
func NewClient(conn Conn, kind, userID string) *Client {
	return &Client{Conn: conn, Kind: kind, UserID: userID, pingPeriod: pingPeriod}
}

// Stream writes every snapshot from sub until the peer goes away, ctx ends or
// the subscription closes. The subscription is cancelled and the connection
// closed on return.
func Stream[T any](ctx context.Context, c *Client, sub *live.Subscription[T]) {
	defer func() {
		sub.Cancel()
		_ = c.Conn.Close()
	}()

	closed := make(chan struct{})
	go c.readPump(closed)

	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-sub.Updates():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.Conn.WriteJSON(Frame{Type: FrameSnapshot, Kind: c.Kind, Data: snapshot}); err != nil {
				middleware.Logger.DebugContext(ctx, "live socket write failed",
					slog.String("kind", c.Kind), slog.String("user_id", c.UserID), slog.String("error", err.Error()))
				return
			}
			observability.LiveFramesSent.WithLabelValues(c.Kind).Inc()

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return

		case <-ctx.Done():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// readPump drains the connection so pongs and close frames are processed,
// and closes done once the peer is gone.
func (c *Client) readPump(done chan<- struct{}) {
	defer close(done)

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				middleware.Logger.Debug("live socket read failed",
					slog.String("kind", c.Kind), slog.String("user_id", c.UserID), slog.String("error", err.Error()))
			}
			return
		}
	}
}

// Reject writes an error frame for a subscription that could not be opened
// and closes the connection.
func Reject(c *Client, err error) {
	frame := Frame{Type: FrameError, Kind: c.Kind, Error: "Internal server error", Code: models.CodeInternal}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		frame.Error = appErr.Message
		frame.Code = appErr.Code
	}

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.Conn.WriteJSON(frame)
	_ = c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, frame.Error))
	_ = c.Conn.Close()
}
