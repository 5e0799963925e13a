package wrapperpty

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/omnara-ai/relay/internal/protocol"
)

// RelayConn is the wrapper's connection to the relay's /agent endpoint.
type RelayConn struct {
	conn *websocket.Conn
}

// Dial opens the upstream WebSocket connection to the relay, authenticating
// with apiKey and registering sessionID (spec §4.5).
func Dial(ctx context.Context, url, apiKey, sessionID string) (*RelayConn, error) {
	header := http.Header{}
	header.Set("X-Omnara-Api-Key", apiKey)

	full := fmt.Sprintf("%s?session_id=%s", url, sessionID)
	conn, _, err := websocket.Dial(ctx, full, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("wrapperpty: dial relay: %w", err)
	}
	return &RelayConn{conn: conn}, nil
}

// SendOutput forwards a chunk of PTY output to the relay.
func (r *RelayConn) SendOutput(ctx context.Context, data []byte) error {
	return r.conn.Write(ctx, websocket.MessageBinary, protocol.Pack(protocol.TypeOutput, data))
}

// SendResize informs the relay of the wrapper's current PTY size.
func (r *RelayConn) SendResize(ctx context.Context, cols, rows int) error {
	payload := protocol.ResizePayload(uint16(rows), uint16(cols))
	return r.conn.Write(ctx, websocket.MessageBinary, protocol.Pack(protocol.TypeResize, payload))
}

// SendMetadata attaches free-form agent metadata to the session.
func (r *RelayConn) SendMetadata(ctx context.Context, payload []byte) error {
	return r.conn.Write(ctx, websocket.MessageBinary, protocol.Pack(protocol.TypeMetadata, payload))
}

// Read blocks for the next message from the relay, decoding any complete
// frames it contains.
func (r *RelayConn) Read(ctx context.Context) ([]protocol.Frame, error) {
	typ, data, err := r.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, nil
	}
	frames, _ := protocol.IterFrames(data)
	return frames, nil
}

// Close closes the underlying connection.
func (r *RelayConn) Close() error {
	return r.conn.Close(websocket.StatusNormalClosure, "")
}
