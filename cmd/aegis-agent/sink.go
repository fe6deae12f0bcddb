package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/MokshitBindal/Aegis-sub000/internal/ruleengine"
	"github.com/MokshitBindal/Aegis-sub000/internal/spool"
)

// evaluatingSink is the collector.Sink every adapter writes into: it spools
// the raw record unchanged, then runs the matching local detector (spec §2,
// C3) and spools any resulting alert onto the alerts stream so the
// forwarder ships it alongside telemetry.
type evaluatingSink struct {
	spool  *spool.Spool
	engine *ruleengine.Engine
	logger zerolog.Logger
	now    func() time.Time
}

func (s *evaluatingSink) Write(ctx context.Context, stream models.Stream, record interface{}) error {
	if err := s.spool.Write(ctx, stream, record); err != nil {
		return err
	}

	var alert *models.Alert
	now := s.now()

	switch stream {
	case models.StreamLogs:
		if rec, ok := record.(models.LogRecord); ok {
			alert = s.engine.EvaluateLog(rec, now)
		}
	case models.StreamMetrics:
		if sample, ok := record.(models.MetricSample); ok {
			alert = s.engine.EvaluateMetric(sample, now)
		}
	case models.StreamCommands:
		if ev, ok := record.(models.CommandEvent); ok {
			alert = s.engine.EvaluateCommand(ev, now)
		}
	}

	if alert == nil {
		return nil
	}
	if err := s.spool.Write(ctx, models.StreamAlerts, *alert); err != nil {
		s.logger.Warn().Err(err).Str("rule", alert.RuleName).Msg("aegis-agent: failed to spool local alert")
	}
	return nil
}
