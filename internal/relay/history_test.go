package relay

import "testing"

func TestHistoryBufferTrimsFromFront(t *testing.T) {
	h := newHistoryBuffer(10)
	h.append([]byte("0123456789"))
	h.append([]byte("ABCDE"))

	if got := string(h.bytes()); got != "56789ABCDE" {
		t.Errorf("history = %q, want 56789ABCDE", got)
	}
}

func TestHistoryBufferBytesReturnsCopy(t *testing.T) {
	h := newHistoryBuffer(10)
	h.append([]byte("hello"))

	snap := h.bytes()
	snap[0] = 'H'

	if string(h.bytes()) != "hello" {
		t.Error("mutating the returned snapshot should not affect the buffer")
	}
}

func TestSanitizeHistoryStripsEraseDisplaySequences(t *testing.T) {
	in := []byte("a\x1b[Jb\x1b[0Jc\x1b[1Jd\x1b[2Je\x1b[3Jf")
	if got := string(sanitizeHistory(in)); got != "abcdef" {
		t.Errorf("sanitizeHistory = %q, want abcdef", got)
	}
}

func TestShouldSanitizeHistory(t *testing.T) {
	cases := []struct {
		agentType, policy string
		want              bool
	}{
		{"codex", "", true},
		{"", "strip_esc_j", true},
		{"claude", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		if got := shouldSanitizeHistory(c.agentType, c.policy); got != c.want {
			t.Errorf("shouldSanitizeHistory(%q, %q) = %v, want %v", c.agentType, c.policy, got, c.want)
		}
	}
}
