package relay

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/omnara-ai/relay/internal/auth"
	"github.com/omnara-ai/relay/internal/protocol"
	"github.com/omnara-ai/relay/internal/wsproto"
)

// upstreamConn adapts a websocket connection to the Session.upstreamLink
// interface. It holds no lock of its own; each SendFrame is a direct
// conn.Write.
type upstreamConn struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

func (u *upstreamConn) SendFrame(frameType byte, payload []byte) error {
	return u.conn.Write(context.Background(), websocket.MessageBinary, protocol.Pack(frameType, payload))
}

func (u *upstreamConn) Close() error {
	return u.conn.Close(websocket.StatusNormalClosure, "")
}

// ServeUpstream handles the /agent endpoint (spec §4.5): a wrapped process
// attaches as the sole upstream for one session, streaming OUTPUT frames in
// and receiving INPUT/RESIZE frames back.
func (s *Server) ServeUpstream(w http.ResponseWriter, r *http.Request) {
	creds, err := s.authenticate(r)
	if err != nil {
		http.Error(w, auth.WireMessage(err), http.StatusUnauthorized)
		s.metrics.AuthFailures.Inc()
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOriginPatterns,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	link := &upstreamConn{conn: conn, logger: s.logger}

	sess, created := s.manager.GetOrCreate(creds.OwnerID, sessionID)
	if creds.APIKeyHash != nil {
		sess.APIKeyHash = *creds.APIKeyHash
	}
	sess.AttachUpstream(link)
	if created {
		s.metrics.SessionsCreated.Inc()
	}
	s.logger.Info("upstream attached", zap.String("owner", creds.OwnerID), zap.String("session", sessionID))

	conn.Write(ctx, websocket.MessageText, mustJSON(wsproto.ReadyMessage{Type: "ready"}))

	defer func() {
		sess.DetachUpstream(link)
		if sess.HasUpstream() {
			// A newer upstream has replaced this one; the session lives on.
			return
		}
		viewers := sess.End()
		ended := wsproto.SessionEndedMessage{Type: wsproto.TypeSessionEnded, SessionID: sess.ID}
		for _, v := range viewers {
			v.SendJSON(ended)
		}
	}()

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	for {
		typ, data, err := conn.Read(readCtx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		frames, _ := protocol.IterFrames(data)
		for _, f := range frames {
			s.handleUpstreamFrame(sess, f)
		}
	}
}

func (s *Server) handleUpstreamFrame(sess *Session, f protocol.Frame) {
	s.metrics.FramesIn.WithLabelValues(frameTypeLabel(f.Type)).Inc()
	switch f.Type {
	case protocol.TypeOutput:
		sess.AppendOutput(f.Payload)
	case protocol.TypeResize:
		rows, cols, err := protocol.UnpackResize(f.Payload)
		if err != nil {
			return
		}
		sess.UpdateSize(int(cols), int(rows))
	case protocol.TypeMetadata:
		var meta map[string]string
		if err := json.Unmarshal(f.Payload, &meta); err != nil {
			return
		}
		merged := sess.SetMetadata(meta)
		s.broadcastJSON(sess, wsproto.AgentMetadataMessage{
			Type:      wsproto.TypeAgentMetadata,
			SessionID: sess.ID,
			Metadata:  merged,
		})
	}
}

func frameTypeLabel(t byte) string {
	switch t {
	case protocol.TypeOutput:
		return "output"
	case protocol.TypeInput:
		return "input"
	case protocol.TypeResize:
		return "resize"
	case protocol.TypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
