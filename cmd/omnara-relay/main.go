// Command omnara-relay runs the terminal relay daemon: the WebSocket
// server that accepts one agent-side upstream per session and fans its
// output out to any number of viewers (spec §4).
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omnara-ai/relay/internal/auth"
	"github.com/omnara-ai/relay/internal/config"
	"github.com/omnara-ai/relay/internal/relay"
)

func main() {
	root := &cobra.Command{
		Use:   "omnara-relay",
		Short: "omnara terminal relay server",
		RunE:  run,
	}

	root.Flags().String("config", "", "path to an optional YAML config override file")
	root.Flags().Bool("dev", false, "use development logging (console, debug level)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	dev, _ := cmd.Flags().GetBool("dev")
	configPath, _ := cmd.Flags().GetString("config")

	logger, err := newLogger(dev)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg := config.FromEnv()
	if configPath != "" {
		if err := config.ApplyFile(&cfg, configPath); err != nil {
			return fmt.Errorf("apply config file: %w", err)
		}
	}

	pubKey, err := loadPublicKey(cfg)
	if err != nil {
		return fmt.Errorf("load relay signing key: %w", err)
	}

	verifier := auth.NewVerifier(pubKey, identityLookup)
	metrics := relay.NewMetrics(prometheus.DefaultRegisterer)
	srv := relay.NewServer(cfg, verifier, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv.StartReaper(ctx, 30*time.Second, cfg.EndedRetention)

	addr := fmt.Sprintf("%s:%d", cfg.WSHost, cfg.WSPort)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("omnara-relay listening", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadPublicKey derives the relay's API-key verification key from the
// configured signing key. The relay only ever needs the public half.
func loadPublicKey(cfg config.RelayConfig) (*ecdsa.PublicKey, error) {
	priv, err := auth.ParseECKeyFromEnv(cfg.JWTKey)
	if err != nil {
		return nil, err
	}
	return &priv.PublicKey, nil
}

// identityLookup resolves an OAuth bearer token to an owning identity via
// the upstream identity service. Wired as a stub here; operators supply a
// real implementation (an HTTP call to their auth backend) by building
// their own main that constructs auth.NewVerifier with a different
// IdentityLookup — the relay package itself stays provider-agnostic.
func identityLookup(ctx context.Context, token string) (string, error) {
	return "", fmt.Errorf("identityLookup: no identity provider configured")
}
