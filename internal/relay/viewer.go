package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/omnara-ai/relay/internal/auth"
	"github.com/omnara-ai/relay/internal/protocol"
	"github.com/omnara-ai/relay/internal/wsproto"
)

// viewerConn adapts a websocket connection to the Session.viewerLink
// interface. writeMu serializes frame and JSON writes onto the same
// socket, since the underlying connection does not allow concurrent
// writers.
type viewerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (v *viewerConn) SendFrame(frameType byte, payload []byte) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return v.conn.Write(context.Background(), websocket.MessageBinary, protocol.Pack(frameType, payload))
}

func (v *viewerConn) SendJSON(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return v.conn.Write(context.Background(), websocket.MessageText, data)
}

func (v *viewerConn) Close() error {
	return v.conn.Close(websocket.StatusNormalClosure, "")
}

// broadcastJSON sends msg to every viewer currently registered on sess.
func (s *Server) broadcastJSON(sess *Session, msg any) {
	for _, v := range sess.snapshotViewers() {
		v.SendJSON(msg)
	}
}

// snapshotViewers exposes the registered viewer set for broadcast helpers
// that live outside session.go (kept here, not in session.go, since it is
// only ever used by the JSON control-channel broadcasts this file sends).
func (s *Session) snapshotViewers() []viewerLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]viewerLink, 0, len(s.viewers))
	for v := range s.viewers {
		out = append(out, v)
	}
	return out
}

// ServeViewer handles the /terminal endpoint (spec §4.6): a client
// connects, optionally joins a session by id, receives buffered history
// followed by a history_complete marker, then streams live OUTPUT frames
// and may send INPUT/resize_request control messages.
func (s *Server) ServeViewer(w http.ResponseWriter, r *http.Request) {
	creds, err := s.authenticate(r)
	if err != nil {
		http.Error(w, auth.WireMessage(err), http.StatusUnauthorized)
		s.metrics.AuthFailures.Inc()
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
	link := &viewerConn{conn: conn}
	s.metrics.ViewersConnected.Inc()
	defer s.metrics.ViewersConnected.Dec()

	var joined *Session
	defer func() {
		if joined != nil {
			joined.UnregisterViewer(link)
		}
	}()

	link.SendJSON(wsproto.SessionsMessage{
		Type:     wsproto.TypeSessions,
		Sessions: s.listSummaries(creds.OwnerID, creds.APIKeyHash),
	})

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		switch typ {
		case websocket.MessageBinary:
			frames, _ := protocol.IterFrames(data)
			for _, f := range frames {
				if joined == nil {
					continue
				}
				s.handleViewerFrame(joined, f)
			}
		case websocket.MessageText:
			var env wsproto.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			next := s.handleViewerMessage(link, joined, creds, env.Type, data)
			if next != nil {
				joined = next
			}
		}
	}
}

func (s *Server) handleViewerFrame(sess *Session, f protocol.Frame) {
	s.metrics.FramesIn.WithLabelValues(frameTypeLabel(f.Type)).Inc()
	if f.Type == protocol.TypeInput {
		sess.ForwardInput(f.Payload)
	}
}

// handleViewerMessage dispatches one JSON control message, returning the
// newly-joined session if this message was a join_session, or nil
// otherwise.
func (s *Server) handleViewerMessage(link *viewerConn, joined *Session, creds auth.Credentials, msgType string, raw []byte) *Session {
	switch msgType {
	case wsproto.TypeJoinSession:
		var msg wsproto.JoinSessionMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil
		}
		sess, ok := s.manager.Get(creds.OwnerID, msg.SessionID)
		if !ok || !viewerMayAccess(sess, creds) {
			link.SendJSON(wsproto.ErrorMessage{Error: "session not found"})
			return nil
		}
		if joined != nil {
			joined.UnregisterViewer(link)
		}
		s.greetViewer(link, sess)
		s.replayHistory(link, sess)
		sess.RegisterViewer(link)
		return sess

	case wsproto.TypeInput:
		if joined == nil {
			return nil
		}
		var msg wsproto.InputMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil
		}
		joined.ForwardInput([]byte(msg.Data))
		if msg.Cols != nil && msg.Rows != nil {
			joined.RequestResize(uint16(*msg.Rows), uint16(*msg.Cols))
		}
		return nil

	case wsproto.TypeResizeRequest:
		if joined == nil {
			return nil
		}
		var msg wsproto.ResizeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil
		}
		if msg.Cols != nil && msg.Rows != nil {
			joined.RequestResize(uint16(*msg.Rows), uint16(*msg.Cols))
		}
		return nil
	}
	return nil
}

// viewerMayAccess enforces spec §4.6's cross-key access rule: a viewer
// authenticated by API key may only join sessions created by the exact
// same key; a bearer-token viewer (no key hash) may join any of its own
// owner's sessions.
func viewerMayAccess(sess *Session, creds auth.Credentials) bool {
	if creds.APIKeyHash == nil {
		return true
	}
	return sess.APIKeyHash == *creds.APIKeyHash
}

// greetViewer sends the initial size hint and, if the agent has attached
// metadata, the agent_metadata message — both before any history replay
// (spec §4.6, SPEC_FULL §12).
func (s *Server) greetViewer(link *viewerConn, sess *Session) {
	cols, rows, _, metadata := sess.SizeAndMetadata()
	link.SendJSON(wsproto.ResizeMessage{
		Type:      wsproto.TypeResize,
		SessionID: sess.ID,
		Cols:      &cols,
		Rows:      &rows,
	})
	if len(metadata) > 0 {
		link.SendJSON(wsproto.AgentMetadataMessage{
			Type:      wsproto.TypeAgentMetadata,
			SessionID: sess.ID,
			Metadata:  metadata,
		})
	}
}

// replayHistory sends buffered scrollback to a newly-joined viewer as one
// OUTPUT frame, followed by the history_complete marker (SPEC_FULL §12).
func (s *Server) replayHistory(link *viewerConn, sess *Session) {
	if data := sess.History(); len(data) > 0 {
		link.SendFrame(protocol.TypeOutput, data)
	}
	link.SendJSON(wsproto.HistoryCompleteMessage{
		Type:      wsproto.TypeHistoryComplete,
		SessionID: sess.ID,
	})
}

func (s *Server) listSummaries(ownerID string, apiKeyHash *string) []wsproto.SessionSummary {
	sessions := s.manager.SessionsFor(ownerID)
	out := make([]wsproto.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		if apiKeyHash != nil && sess.APIKeyHash != *apiKeyHash {
			continue
		}
		sum := sess.Summary()
		out = append(out, wsproto.SessionSummary{
			ID:        sum.ID,
			Active:    sum.Active,
			StartedAt: sum.StartedAt,
			EndedAt:   sum.EndedAt,
			Cols:      sum.Cols,
			Rows:      sum.Rows,
		})
	}
	return out
}

// ServeSessionsList is the REST sibling of the "sessions" WS message
// (spec §4.6): GET /api/v1/sessions, for clients that want a snapshot
// without opening a socket.
func (s *Server) ServeSessionsList(w http.ResponseWriter, r *http.Request) {
	creds, err := s.authenticate(r)
	if err != nil {
		http.Error(w, auth.WireMessage(err), http.StatusUnauthorized)
		s.metrics.AuthFailures.Inc()
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessions": s.listSummaries(creds.OwnerID, creds.APIKeyHash),
	})
}
