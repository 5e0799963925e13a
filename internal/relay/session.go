// Package relay implements the session registry, reaper, and WebSocket
// endpoints that make up the terminal relay core (spec §4).
package relay

import (
	"sync"
	"time"

	"github.com/omnara-ai/relay/internal/protocol"
	"github.com/omnara-ai/relay/internal/wsproto"
)

// upstreamLink is the narrow interface Session needs from the agent-side
// connection, so tests can substitute a fake without standing up a real
// socket.
type upstreamLink interface {
	SendFrame(frameType byte, payload []byte) error
	Close() error
}

// viewerLink is the narrow interface Session needs from a connected viewer.
type viewerLink interface {
	SendFrame(frameType byte, payload []byte) error
	SendJSON(v any) error
	Close() error
}

// Session is one relayed terminal: at most one upstream (the wrapped
// process) and any number of viewers, plus a bounded scrollback buffer.
//
// Grounded on original_source/src/relay_server/sessions.py's Session
// dataclass (_history/_websockets/_agent_socket, append_output,
// forward_input, request_resize, update_size, end) for the operation
// semantics, and the teacher's internal/relay/sessions.go for the
// mutex-guarded registry shape.
type Session struct {
	OwnerID   string
	ID        string
	APIKeyHash string // hash of the api key that created the session, or ""

	StartedAt time.Time
	endedAt   *time.Time

	Cols int
	Rows int

	AgentType      string
	HistoryPolicy  string
	Metadata       map[string]string

	mu       sync.Mutex
	upstream upstreamLink
	viewers  map[viewerLink]struct{}
	history  *historyBuffer
}

// NewSession constructs a Session in its initial (no upstream, no viewers)
// state.
func NewSession(ownerID, id string, historyBytes int) *Session {
	return &Session{
		OwnerID:   ownerID,
		ID:        id,
		StartedAt: time.Now(),
		Cols:      80,
		Rows:      24,
		viewers:   make(map[viewerLink]struct{}),
		history:   newHistoryBuffer(historyBytes),
	}
}

// Revive resets a previously-ended session back to active, preserving its
// history, for resurrection semantics (spec §4.3: "create() on an existing
// (owner,id) preserves history, clears ended_at, detaches stale upstream").
func (s *Session) Revive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endedAt = nil
	if s.upstream != nil {
		s.upstream.Close()
		s.upstream = nil
	}
}

// IsActive reports whether the session has not yet ended.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt == nil
}

// EndedAt returns the time the session ended, or nil if still active.
func (s *Session) EndedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// AttachUpstream registers the agent-side connection for this session,
// detaching and closing any prior upstream first.
func (s *Session) AttachUpstream(link upstreamLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstream != nil {
		s.upstream.Close()
	}
	s.upstream = link
}

// DetachUpstream clears the upstream link if it is still the one given,
// avoiding a race where a newer upstream has already replaced it.
func (s *Session) DetachUpstream(link upstreamLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstream == link {
		s.upstream = nil
	}
}

// HasUpstream reports whether an agent-side connection is currently
// attached.
func (s *Session) HasUpstream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream != nil
}

// RegisterViewer adds a viewer connection to the broadcast set.
func (s *Session) RegisterViewer(link viewerLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewers[link] = struct{}{}
}

// UnregisterViewer removes a viewer connection from the broadcast set.
func (s *Session) UnregisterViewer(link viewerLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.viewers, link)
}

// ViewerCount reports the number of currently-registered viewers.
func (s *Session) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// AppendOutput records upstream output in the history buffer and
// broadcasts it to every registered viewer. Appending empty output is a
// no-op (spec §4.3), matching original_source/src/relay_server/
// sessions.py's `if not chunk: return` guard. A viewer whose send fails is
// left for its own read loop to notice and unregister; AppendOutput never
// blocks on a slow viewer beyond the viewer link's own buffering.
func (s *Session) AppendOutput(data []byte) {
	if len(data) == 0 {
		return
	}

	s.mu.Lock()
	s.history.append(data)
	viewers := s.viewersLocked()
	s.mu.Unlock()

	for _, v := range viewers {
		v.SendFrame(protocol.TypeOutput, data)
	}
}

// ForwardInput relays viewer keystrokes to the attached upstream, if any.
// Returns false if there is no upstream to forward to.
func (s *Session) ForwardInput(data []byte) bool {
	s.mu.Lock()
	up := s.upstream
	s.mu.Unlock()
	if up == nil {
		return false
	}
	return up.SendFrame(protocol.TypeInput, data) == nil
}

// RequestResize asks the attached upstream to resize its PTY, in response
// to a viewer's resize_request. Per spec §4.3/§8, a request matching the
// session's already-recorded size is a no-op: no frame is sent upstream
// and no resize event is broadcast. Otherwise the new size is recorded
// and broadcast immediately (optimistic, the same as original_source's
// request_resize/update_size chain), and a RESIZE frame is forwarded to
// the upstream so its PTY actually resizes.
func (s *Session) RequestResize(rows, cols uint16) bool {
	s.mu.Lock()
	if int(cols) == s.Cols && int(rows) == s.Rows {
		s.mu.Unlock()
		return true
	}
	s.Cols = int(cols)
	s.Rows = int(rows)
	up := s.upstream
	viewers := s.viewersLocked()
	s.mu.Unlock()

	s.broadcastResize(viewers, int(cols), int(rows))

	if up == nil {
		return false
	}
	return up.SendFrame(protocol.TypeResize, protocol.ResizePayload(rows, cols)) == nil
}

// UpdateSize records the session's current viewport dimensions, as
// reported by the upstream in a RESIZE frame, and broadcasts the change
// to viewers — mirroring original_source's update_size, which is the
// upstream-initiated counterpart to RequestResize's viewer-initiated path.
// A report matching the already-recorded size is a no-op.
func (s *Session) UpdateSize(cols, rows int) {
	s.mu.Lock()
	if cols == s.Cols && rows == s.Rows {
		s.mu.Unlock()
		return
	}
	s.Cols = cols
	s.Rows = rows
	viewers := s.viewersLocked()
	s.mu.Unlock()

	s.broadcastResize(viewers, cols, rows)
}

// viewersLocked returns a snapshot of the registered viewer set. Callers
// must hold s.mu.
func (s *Session) viewersLocked() []viewerLink {
	viewers := make([]viewerLink, 0, len(s.viewers))
	for v := range s.viewers {
		viewers = append(viewers, v)
	}
	return viewers
}

// broadcastResize sends a "resize" control message to each of viewers.
func (s *Session) broadcastResize(viewers []viewerLink, cols, rows int) {
	msg := wsproto.ResizeMessage{
		Type:      wsproto.TypeResize,
		SessionID: s.ID,
		Cols:      &cols,
		Rows:      &rows,
	}
	for _, v := range viewers {
		v.SendJSON(msg)
	}
}

// SetMetadata records agent-supplied metadata (spec SPEC_FULL §12) and
// returns a copy for broadcasting to viewers. The agent type is taken from
// whichever of the "agent"/"app" keys the upstream supplied (matching
// original_source/src/relay_server/websocket.py's metadata handling), and
// an explicit "history_policy" key is recorded verbatim so a future
// History() call can decide whether to strip clear-screen sequences.
func (s *Session) SetMetadata(metadata map[string]string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agentType := metadata["agent"]; agentType != "" {
		s.AgentType = agentType
	} else if agentType := metadata["app"]; agentType != "" {
		s.AgentType = agentType
	}
	if policy := metadata["history_policy"]; policy != "" {
		s.HistoryPolicy = policy
	}

	if s.Metadata == nil {
		s.Metadata = make(map[string]string, len(metadata))
	}
	for k, v := range metadata {
		s.Metadata[k] = v
	}
	out := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		out[k] = v
	}
	return out
}

// SizeAndMetadata returns a consistent snapshot of the session's current
// viewport size and agent metadata, for use when greeting a newly-joined
// viewer (spec §4.6, SPEC_FULL §12).
func (s *Session) SizeAndMetadata() (cols, rows int, agentType string, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out map[string]string
	if len(s.Metadata) > 0 {
		out = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out[k] = v
		}
	}
	return s.Cols, s.Rows, s.AgentType, out
}

// History returns a copy of the buffered scrollback, sanitized per
// HistoryPolicy when applicable (spec SPEC_FULL §12).
func (s *Session) History() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.history.bytes()
	if shouldSanitizeHistory(s.AgentType, s.HistoryPolicy) {
		return sanitizeHistory(data)
	}
	return data
}

// End marks the session ended, closes the upstream if attached, and
// returns the set of viewers to notify. The caller is responsible for
// notifying them; End neither closes viewer links nor removes them from
// the session, so they stay registered until their own connection
// handlers unregister them.
func (s *Session) End() []viewerLink {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.endedAt == nil {
		now := time.Now()
		s.endedAt = &now
	}
	if s.upstream != nil {
		s.upstream.Close()
		s.upstream = nil
	}

	viewers := make([]viewerLink, 0, len(s.viewers))
	for v := range s.viewers {
		viewers = append(viewers, v)
	}
	return viewers
}

// Summary returns the JSON-facing snapshot of this session's listing
// fields (spec §4.6's "sessions" message and the REST sibling endpoint).
func (s *Session) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := SessionSummary{
		ID:        s.ID,
		Active:    s.endedAt == nil,
		StartedAt: float64(s.StartedAt.Unix()),
		Cols:      s.Cols,
		Rows:      s.Rows,
	}
	if s.endedAt != nil {
		ended := float64(s.endedAt.Unix())
		summary.EndedAt = &ended
	}
	return summary
}

// SessionSummary mirrors wsproto.SessionSummary; kept local to relay so
// package relay doesn't need to import wsproto just to build a summary.
type SessionSummary struct {
	ID        string
	Active    bool
	StartedAt float64
	EndedAt   *float64
	Cols      int
	Rows      int
}
