// Command aegis-agent runs the host-side telemetry pipeline described in the
// system specification: collectors feed a durable local spool, a local rule
// engine flags suspicious activity inline, and a forwarder ships everything
// to the central server at-least-once.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/MokshitBindal/Aegis-sub000/internal/agentcrypto"
	"github.com/MokshitBindal/Aegis-sub000/internal/collector"
	"github.com/MokshitBindal/Aegis-sub000/internal/config"
	"github.com/MokshitBindal/Aegis-sub000/internal/forwarder"
	"github.com/MokshitBindal/Aegis-sub000/internal/logging"
	"github.com/MokshitBindal/Aegis-sub000/internal/ruleengine"
	"github.com/MokshitBindal/Aegis-sub000/internal/spool"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "aegis-agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAgentConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, true)
	logger.Info().Str("version", Version).Str("agent_id", cfg.AgentID).Msg("starting aegis-agent")

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// The credential manager seals the agent's server URL into an
	// encrypted identity blob on first run and checks it on every
	// subsequent run, so a data directory copied onto a different host
	// (a different agent ID) fails loudly instead of silently forwarding
	// under the wrong identity (spec §6).
	crypto, err := agentcrypto.NewManager(cfg.DataDir, cfg.AgentID)
	if err != nil {
		return fmt.Errorf("init credential manager: %w", err)
	}
	if err := sealOrVerifyIdentity(crypto, cfg); err != nil {
		return fmt.Errorf("verify agent identity: %w", err)
	}

	sp, err := spool.Open(filepath.Join(cfg.DataDir, "spool.db"), logger)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}
	defer sp.Close()

	engine := ruleengine.New(cfg.AgentID)
	sink := &evaluatingSink{spool: sp, engine: engine, logger: logger, now: time.Now}

	fwd := forwarder.New(cfg.AgentID, cfg.ServerURL, cfg.BatchSize, cfg.FlushInterval, sp, logger)

	adapters := buildAdapters(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		adapter := a
		g.Go(func() error {
			if err := adapter.Start(gctx, sink); err != nil && gctx.Err() == nil {
				logger.Error().Err(err).Str("adapter", adapter.Name()).Msg("aegis-agent: adapter stopped")
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		return fwd.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, a := range adapters {
			_ = a.Stop(shutdownCtx)
		}
		fwd.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	logger.Info().Msg("aegis-agent stopped")
	return nil
}

func buildAdapters(cfg *config.AgentConfig, logger zerolog.Logger) []collector.Adapter {
	adapters := []collector.Adapter{
		&collector.MetricsAdapter{AgentID: cfg.AgentID, Interval: cfg.PollInterval, Logger: logger},
		&collector.ProcessAdapter{AgentID: cfg.AgentID, Interval: cfg.PollInterval, Logger: logger},
		&collector.CommandAdapter{Interval: cfg.PollInterval, IgnoreGlobs: cfg.IgnoreGlobs, Logger: logger},
	}
	hostname, _ := os.Hostname()
	for _, path := range cfg.LogPaths {
		adapters = append(adapters, &collector.LogTailAdapter{
			Host:     hostname,
			AgentID:  cfg.AgentID,
			Path:     path,
			Interval: cfg.PollInterval,
			Logger:   logger,
		})
	}
	return adapters
}

const identityFileName = "identity.enc"

// sealOrVerifyIdentity persists an encrypted copy of the agent's configured
// server URL on first run, and on every later run decrypts it and checks it
// still matches cfg.ServerURL. The blob only decrypts under the key derived
// from this host's own agent ID (agentcrypto.NewManager), so a data
// directory copied from a different agent fails to decrypt here instead of
// forwarding telemetry under the wrong identity.
func sealOrVerifyIdentity(m *agentcrypto.Manager, cfg *config.AgentConfig) error {
	path := filepath.Join(cfg.DataDir, identityFileName)

	existing, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read identity blob: %w", err)
		}
		sealed, err := m.EncryptString(cfg.ServerURL)
		if err != nil {
			return fmt.Errorf("seal identity: %w", err)
		}
		return os.WriteFile(path, []byte(sealed), 0o600)
	}

	serverURL, err := m.DecryptString(string(existing))
	if err != nil {
		return fmt.Errorf("decrypt identity blob (data dir may belong to a different agent): %w", err)
	}
	if serverURL != cfg.ServerURL {
		return fmt.Errorf("agent identity mismatch: data dir was sealed for server %q, configured for %q", serverURL, cfg.ServerURL)
	}
	return nil
}
