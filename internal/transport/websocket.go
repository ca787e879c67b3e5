package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// DefaultReadLimit is the maximum accepted message size. Audio frames are
// far larger than the library default of 32 KiB.
const DefaultReadLimit = 1 << 20

// Compile-time assertion that WebSocketDialer satisfies Dialer.
var _ Dialer = WebSocketDialer{}

// WebSocketDialer dials WebSocket endpoints with github.com/coder/websocket.
type WebSocketDialer struct {
	// ReadLimit caps the size of a single message. Zero selects
	// DefaultReadLimit; a negative value disables the limit.
	ReadLimit int64

	// HTTPHeader is sent with the opening handshake.
	HTTPHeader http.Header
}

// Dial implements [Dialer].
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.HTTPHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)

	return &wsConn{c: c}, nil
}

// wsConn adapts *websocket.Conn to [Conn].
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "client closing")
}
