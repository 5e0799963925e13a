package wrapperpty

import (
	"os"
	"testing"
	"time"

	"github.com/omnara-ai/relay/internal/protocol"
)

func TestReadLoopDeliversChunksAndErrorOnClose(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	out := make(chan []byte, 8)
	errCh := make(chan error, 1)
	go readLoop(r, out, errCh)

	w.Write([]byte("hello"))
	w.Close()

	select {
	case chunk := <-out:
		if string(chunk) != "hello" {
			t.Errorf("chunk = %q, want hello", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chunk")
	}

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EOF error")
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Code: 7}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestApplyRelayFrameResizeDoesNotPanicOnBadPayload(t *testing.T) {
	// UnpackResize should reject a malformed payload without applyRelayFrame
	// attempting to resize the pty.
	_, _, err := protocol.UnpackResize([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected UnpackResize to reject a 3-byte payload")
	}
	// The Process has no PTY; a resize attempt would dereference it.
	applyRelayFrame(&Process{}, protocol.Frame{Type: protocol.TypeResize, Payload: []byte{1, 2, 3}})
}
