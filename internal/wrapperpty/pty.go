// Package wrapperpty implements the agent-side half of the relay: it
// spawns an arbitrary command under a PTY, streams its output to the
// relay as OUTPUT frames, and applies INPUT/RESIZE frames the relay
// forwards back (spec §4.8's "wrapper" role).
//
// Grounded on cmd/wt/egg.go's eggSpawn for the raw-mode/SIGWINCH/terminal
// sizing mechanics, adapted from a gRPC session stream to the relay's
// framed WebSocket wire format.
package wrapperpty

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Process wraps a spawned command's PTY along with the bookkeeping needed
// to restore the local terminal on exit.
type Process struct {
	cmd  *exec.Cmd
	ptmx *os.File

	localFD    int
	localIsTTY bool
	oldState   *term.State
}

// Spawn starts command under a new PTY sized cols×rows. If the wrapper's
// own stdin is a terminal, Spawn puts it into raw mode so keystrokes pass
// through uninterpreted; Restore undoes this.
func Spawn(ctx context.Context, command string, args []string, cols, rows int) (*Process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = os.Environ()
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}

	size := &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("wrapperpty: start pty: %w", err)
	}

	p := &Process{cmd: cmd, ptmx: ptmx, localFD: int(os.Stdin.Fd())}
	if term.IsTerminal(p.localFD) {
		p.localIsTTY = true
		if oldState, err := term.MakeRaw(p.localFD); err == nil {
			p.oldState = oldState
		}
	}
	return p, nil
}

// Restore puts the wrapper's own terminal back into cooked mode, if it was
// put into raw mode at Spawn time.
func (p *Process) Restore() {
	if p.oldState != nil {
		term.Restore(p.localFD, p.oldState)
	}
}

// PTY returns the master side of the spawned process's PTY.
func (p *Process) PTY() *os.File { return p.ptmx }

// Resize applies a new size to the spawned process's PTY.
func (p *Process) Resize(cols, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Wait blocks until the spawned command exits, returning its exit code.
func (p *Process) Wait() int {
	err := p.cmd.Wait()
	p.ptmx.Close()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

// TerminalSize reports the wrapper's own controlling terminal size, or a
// conservative fallback if stdin is not a terminal (spec §4.8's default
// 80×24 when size cannot be determined).
func TerminalSize() (cols, rows int) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			return w, h
		}
	}
	return 80, 24
}

// WatchResize invokes onResize(cols, rows) whenever the wrapper's
// controlling terminal receives SIGWINCH, until ctx is canceled.
func WatchResize(ctx context.Context, onResize func(cols, rows int)) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-winch:
			cols, rows := TerminalSize()
			onResize(cols, rows)
		}
	}
}
