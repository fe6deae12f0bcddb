package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MokshitBindal/Aegis-sub000/internal/config"
	"github.com/MokshitBindal/Aegis-sub000/internal/correlator"
	"github.com/MokshitBindal/Aegis-sub000/internal/httpapi"
	"github.com/MokshitBindal/Aegis-sub000/internal/incidents"
	"github.com/MokshitBindal/Aegis-sub000/internal/logging"
	"github.com/MokshitBindal/Aegis-sub000/internal/mlinfer"
	"github.com/MokshitBindal/Aegis-sub000/internal/store"
)

// retentionCheckInterval is how often the retention loop checks whether
// it has reached the next scheduled 03:00 run (spec §5).
const retentionCheckInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion, correlation, and triage API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, false)
	logger.Info().Msg("starting aegis-server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	db := store.New(pool)

	api := httpapi.New(db, logger, []byte(cfg.JWTSecret), cfg.JWTTTL)
	if cfg.OIDCEnabled {
		if err := api.WithSSO(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL); err != nil {
			return fmt.Errorf("configure SSO: %w", err)
		}
	}

	corr := correlator.New(db, db, logger.With().Str("component", "correlator").Logger())
	agg := incidents.New(db, logger.With().Str("component", "incident-aggregator").Logger())

	var collab *mlinfer.Collaborator
	if cfg.MLArtifactPath != "" {
		artifact, err := mlinfer.LoadArtifact(cfg.MLArtifactPath)
		if err != nil {
			return fmt.Errorf("load ML artifact: %w", err)
		}
		collab = mlinfer.New(db, artifact, logger.With().Str("component", "mlinfer").Logger())
	} else {
		logger.Warn().Msg("AEGIS_ML_ARTIFACT_PATH not set, ML anomaly detection disabled")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return corr.Run(gctx)
	})

	g.Go(func() error {
		return agg.Run(gctx)
	})

	g.Go(func() error {
		return runRetentionLoop(gctx, db, logger.With().Str("component", "retention").Logger())
	})

	if collab != nil {
		g.Go(func() error {
			return collab.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		corr.Stop()
		agg.Stop()
		if collab != nil {
			collab.Stop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	logger.Info().Msg("aegis-server stopped")
	return nil
}

// runRetentionLoop prunes rows older than store.RetentionPeriod and vacuums
// the retained tables once daily at 03:00 local time (spec §3, §5). It
// checks every retentionCheckInterval rather than sleeping until the exact
// moment, so a late-starting or briefly-paused process still catches up.
func runRetentionLoop(ctx context.Context, db *store.Store, logger zerolog.Logger) error {
	ticker := time.NewTicker(retentionCheckInterval)
	defer ticker.Stop()

	next := nextRetentionRun(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			next = nextRetentionRun(now)

			rows, err := db.PruneRetention(ctx, now)
			if err != nil {
				logger.Warn().Err(err).Msg("retention: prune failed")
				continue
			}
			logger.Info().Int64("rows_removed", rows).Msg("retention: prune complete")

			if err := db.VacuumRetainedTables(ctx); err != nil {
				logger.Warn().Err(err).Msg("retention: vacuum failed")
			}
		}
	}
}

// nextRetentionRun returns the next 03:00 local time strictly after from.
func nextRetentionRun(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), 3, 0, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
