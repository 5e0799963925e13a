// Command omnara-wrap runs an arbitrary command under a PTY and relays it
// to an omnara-relay daemon as the session's upstream (spec §4.8).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/omnara-ai/relay/internal/wrapperpty"
)

func main() {
	var relayURL, apiKey, sessionID string
	var localEcho bool

	root := &cobra.Command{
		Use:   "omnara-wrap -- <command> [args...]",
		Short: "wrap a command's terminal and relay it to an omnara-relay daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				sessionID = uuid.New().String()
			}
			return runWrap(cmd.Context(), relayURL, apiKey, sessionID, args, localEcho)
		},
	}

	root.Flags().StringVar(&relayURL, "relay", "ws://127.0.0.1:8787/agent", "relay agent endpoint")
	root.Flags().StringVar(&apiKey, "api-key", os.Getenv("OMNARA_API_KEY"), "API key JWT to authenticate with the relay")
	root.Flags().StringVar(&sessionID, "session-id", "", "session id to attach as (random if omitted)")
	root.Flags().BoolVar(&localEcho, "local-echo", true, "also attach the wrapped command to this terminal")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "omnara-wrap:", err)
		os.Exit(1)
	}
}

func runWrap(ctx context.Context, relayURL, apiKey, sessionID string, args []string, localEcho bool) error {
	cols, rows := wrapperpty.TerminalSize()

	proc, err := wrapperpty.Spawn(ctx, args[0], args[1:], cols, rows)
	if err != nil {
		return fmt.Errorf("spawn command: %w", err)
	}
	defer proc.Restore()

	conn, err := wrapperpty.Dial(ctx, relayURL, apiKey, sessionID)
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer conn.Close()

	go wrapperpty.WatchResize(ctx, func(c, r int) {
		proc.Resize(c, r)
		conn.SendResize(ctx, c, r)
	})

	if exitErr := wrapperpty.Run(ctx, proc, conn, wrapperpty.Options{LocalEcho: localEcho}); exitErr != nil {
		var exitCode *wrapperpty.ExitError
		if ok := asExitError(exitErr, &exitCode); ok {
			os.Exit(exitCode.Code)
		}
		return exitErr
	}
	return nil
}

func asExitError(err error, target **wrapperpty.ExitError) bool {
	if ee, ok := err.(*wrapperpty.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
