package wrapperpty

import (
	"context"
	"io"
	"os"

	"github.com/omnara-ai/relay/internal/protocol"
)

// Options configures a Run invocation.
type Options struct {
	// LocalEcho forwards the wrapper's own stdin into the PTY and the
	// PTY's output to the wrapper's own stdout, for interactive local use
	// in addition to relaying. When false, the wrapper only relays.
	LocalEcho bool
}

// Run drives the wrapper's event loop: a single select over the PTY's
// output, the relay's inbound frames, and (if enabled) the wrapper's own
// stdin, until the child process exits or ctx is canceled.
//
// This is deliberately one central select loop rather than the fully
// independent goroutine-per-direction shape used elsewhere in this
// codebase for viewer/upstream fan-out: the wrapper has exactly one PTY
// and one relay connection, so there is no fan-out to buffer around, and
// a single loop keeps ordering between local echo and relay forwarding
// easy to reason about.
func Run(ctx context.Context, proc *Process, relay *RelayConn, opts Options) error {
	ptyOutCh := make(chan []byte, 64)
	ptyErrCh := make(chan error, 1)
	go readLoop(proc.PTY(), ptyOutCh, ptyErrCh)

	relayFramesCh := make(chan []protocol.Frame, 64)
	relayErrCh := make(chan error, 1)
	go relayReadLoop(ctx, relay, relayFramesCh, relayErrCh)

	var stdinCh chan []byte
	var stdinErrCh chan error
	if opts.LocalEcho {
		stdinCh = make(chan []byte, 64)
		stdinErrCh = make(chan error, 1)
		go readLoop(os.Stdin, stdinCh, stdinErrCh)
	}

	exitCh := make(chan int, 1)
	go func() { exitCh <- proc.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case code := <-exitCh:
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil

		case data := <-ptyOutCh:
			if opts.LocalEcho {
				os.Stdout.Write(data)
			}
			relay.SendOutput(ctx, data)

		case <-ptyErrCh:
			// PTY master closed — the child is exiting; let exitCh win.

		case frames := <-relayFramesCh:
			for _, f := range frames {
				applyRelayFrame(proc, f)
			}

		case <-relayErrCh:
			// relay connection lost; keep running the child locally.
			relayErrCh = nil

		case data := <-stdinCh:
			proc.PTY().Write(data)

		case <-stdinErrCh:
			// local stdin closed; keep relaying, nothing to echo anymore.
			stdinCh = nil
		}
	}
}

func applyRelayFrame(proc *Process, f protocol.Frame) {
	switch f.Type {
	case protocol.TypeInput:
		proc.PTY().Write(f.Payload)
	case protocol.TypeResize:
		rows, cols, err := protocol.UnpackResize(f.Payload)
		if err == nil {
			proc.Resize(int(cols), int(rows))
		}
	}
}

func readLoop(r io.Reader, out chan<- []byte, errCh chan<- error) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func relayReadLoop(ctx context.Context, relay *RelayConn, out chan<- []protocol.Frame, errCh chan<- error) {
	for {
		frames, err := relay.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if frames != nil {
			out <- frames
		}
	}
}

// ExitError reports the wrapped command's non-zero exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "wrapperpty: child process exited with non-zero status"
}
