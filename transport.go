package auditstream

import (
	"context"
	"fmt"

	"nhooyr.io/websocket"
)

// ============================================================================
// Transport
// ============================================================================

// StatusCode is a close status sent to the peer when shutting a transport
// down.
type StatusCode int

const (
	StatusNormalClosure StatusCode = 1000
	StatusGoingAway     StatusCode = 1001
)

// Transport is one live bidirectional connection. Implementations must allow
// a concurrent reader and writer; Close may race with both.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code StatusCode, reason string) error
}

// DialFunc opens a Transport to the given URL. The client calls it once per
// connection attempt.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// ----------------------------------------------------------------------------
// WebSocket implementation

type wsTransport struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (t *wsTransport) Close(code StatusCode, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
