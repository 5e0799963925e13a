package relay

import "testing"

func TestManagerGetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(1024)

	sess1, created1 := m.GetOrCreate("owner-1", "sess-1")
	sess2, created2 := m.GetOrCreate("owner-1", "sess-1")

	if !created1 || created2 {
		t.Errorf("created = %v, %v, want true, false", created1, created2)
	}
	if sess1 != sess2 {
		t.Error("expected the same session instance on second GetOrCreate")
	}
}

func TestManagerGetOrCreateScopesByOwner(t *testing.T) {
	m := NewManager(1024)

	a, _ := m.GetOrCreate("owner-a", "sess-1")
	b, _ := m.GetOrCreate("owner-b", "sess-1")

	if a == b {
		t.Error("expected distinct sessions for distinct owners with the same session id")
	}
}

func TestManagerGetOrCreateRevivesEndedSession(t *testing.T) {
	m := NewManager(1024)

	sess, _ := m.GetOrCreate("owner-1", "sess-1")
	sess.AppendOutput([]byte("hello"))
	sess.End()

	revived, created := m.GetOrCreate("owner-1", "sess-1")
	if created {
		t.Error("expected revival, not creation, for an ended session")
	}
	if revived != sess {
		t.Error("expected the same session instance back")
	}
	if !revived.IsActive() {
		t.Error("expected revived session to be active")
	}
	if string(revived.History()) != "hello" {
		t.Errorf("history = %q, want hello", revived.History())
	}
}

func TestManagerSessionsForFiltersByOwner(t *testing.T) {
	m := NewManager(1024)
	m.GetOrCreate("owner-a", "sess-1")
	m.GetOrCreate("owner-a", "sess-2")
	m.GetOrCreate("owner-b", "sess-1")

	got := m.SessionsFor("owner-a")
	if len(got) != 2 {
		t.Errorf("got %d sessions, want 2", len(got))
	}
}

func TestManagerEvictRemovesSession(t *testing.T) {
	m := NewManager(1024)
	m.GetOrCreate("owner-1", "sess-1")

	m.Evict("owner-1", "sess-1")

	if _, ok := m.Get("owner-1", "sess-1"); ok {
		t.Error("expected session to be gone after Evict")
	}
	if m.Count() != 0 {
		t.Errorf("count = %d, want 0", m.Count())
	}
}
