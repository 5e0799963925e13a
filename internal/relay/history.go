package relay

import "regexp"

// historyBuffer is a bounded scrollback ring: output is appended until the
// configured byte budget is exceeded, at which point the oldest bytes are
// trimmed from the front. Trimming is unconditional — there is no
// backpressure-aware safe-cut-point logic here, since nothing downstream
// of history replay requires resuming mid-escape-sequence.
type historyBuffer struct {
	limit int
	buf   []byte
}

func newHistoryBuffer(limit int) *historyBuffer {
	if limit <= 0 {
		limit = 1
	}
	return &historyBuffer{limit: limit}
}

func (h *historyBuffer) append(data []byte) {
	h.buf = append(h.buf, data...)
	if over := len(h.buf) - h.limit; over > 0 {
		h.buf = h.buf[over:]
	}
}

func (h *historyBuffer) bytes() []byte {
	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	return out
}

// clearScreenSeq matches the CSI "erase in display" sequences (ED 0-3)
// that a replayed-too-eagerly agent can emit; stripping them from history
// replay (never from live frames) keeps a freshly-joined viewer from
// seeing its own scrollback wiped out from under it.
var clearScreenSeq = regexp.MustCompile(`\x1b\[[0-3]?J`)

// shouldSanitizeHistory reports whether history replayed for this session
// should have clear-screen sequences stripped, per SPEC_FULL §12.
func shouldSanitizeHistory(agentType, historyPolicy string) bool {
	return agentType == "codex" || historyPolicy == "strip_esc_j"
}

func sanitizeHistory(data []byte) []byte {
	return clearScreenSeq.ReplaceAll(data, nil)
}
