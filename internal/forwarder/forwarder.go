// Package forwarder ships spooled telemetry and locally-generated alerts to
// the central server over HTTP, at-least-once (spec §2, §4.4, C4). A batch
// is only marked forwarded in the local spool after the server acknowledges
// it; anything in flight when the process dies is retried on the next tick.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/MokshitBindal/Aegis-sub000/internal/spool"
	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
)

const (
	requestMaxAttempts = 3
	retryBaseDelay     = 100 * time.Millisecond
	retryMaxDelay      = 5 * time.Second
	requestTimeout     = 10 * time.Second
)

// Spool is the subset of *spool.Spool the forwarder depends on.
type Spool interface {
	TakeUnforwarded(ctx context.Context, stream models.Stream, limit int) ([]spool.Row, error)
	MarkForwarded(ctx context.Context, stream models.Stream, ids []int64) error
}

// Forwarder periodically drains each spool stream and POSTs batches to the
// server's ingest endpoint.
type Forwarder struct {
	AgentID    string
	ServerURL  string
	BatchSize  int
	Interval   time.Duration
	Spool      Spool
	Logger     zerolog.Logger

	client *http.Client
	stop   chan struct{}

	// retrySleep is injectable for deterministic tests, mirroring the
	// teacher's agentupdate.retrySleepFn indirection.
	retrySleep func(ctx context.Context, d time.Duration) error
}

// New builds a Forwarder with a DNS-caching HTTP transport so repeated
// requests to the same server host don't re-resolve on every call.
func New(agentID, serverURL string, batchSize int, interval time.Duration, spool Spool, logger zerolog.Logger) *Forwarder {
	resolver := &dnscache.Resolver{}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var dialer net.Dialer
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		},
	}

	return &Forwarder{
		AgentID:    agentID,
		ServerURL:  serverURL,
		BatchSize:  batchSize,
		Interval:   interval,
		Spool:      spool,
		Logger:     logger,
		client:     &http.Client{Transport: transport, Timeout: requestTimeout},
		retrySleep: sleepWithContext,
	}
}

// Run blocks, forwarding every stream on each tick until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	f.stop = make(chan struct{})
	interval := f.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stop:
			return nil
		case <-ticker.C:
			f.forwardAll(ctx)
		}
	}
}

// Stop requests the Run loop to exit on its next iteration.
func (f *Forwarder) Stop() {
	if f.stop != nil {
		close(f.stop)
	}
}

func (f *Forwarder) forwardAll(ctx context.Context) {
	for _, stream := range models.AllStreams {
		if err := f.forwardBatch(ctx, stream); err != nil {
			f.Logger.Warn().Err(err).Str("stream", string(stream)).Msg("forwarder: batch failed")
		}
	}
}

func (f *Forwarder) forwardBatch(ctx context.Context, stream models.Stream) error {
	batchSize := f.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	rows, err := f.Spool.TakeUnforwarded(ctx, stream, batchSize)
	if err != nil {
		return fmt.Errorf("take unforwarded: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	payload := make([]json.RawMessage, len(rows))
	ids := make([]int64, len(rows))
	for i, r := range rows {
		payload[i] = r.Payload
		ids[i] = r.ID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	if err := f.postWithRetry(ctx, stream, body); err != nil {
		return err
	}

	if err := f.Spool.MarkForwarded(ctx, stream, ids); err != nil {
		return fmt.Errorf("mark forwarded: %w", err)
	}
	f.Logger.Info().Str("stream", string(stream)).Int("count", len(rows)).Msg("forwarder: batch shipped")
	return nil
}

// streamPaths maps each spool stream to the server's ingest contract (spec
// §5's endpoint table): logs keep the historical /api/ingest name, the rest
// are named after the stream.
var streamPaths = map[models.Stream]string{
	models.StreamLogs:      "/api/ingest",
	models.StreamMetrics:   "/api/metrics",
	models.StreamProcesses: "/api/processes",
	models.StreamCommands:  "/api/commands",
	models.StreamAlerts:    "/api/alerts",
}

func (f *Forwarder) postWithRetry(ctx context.Context, stream models.Stream, body []byte) error {
	path, ok := streamPaths[stream]
	if !ok {
		return fmt.Errorf("forward %s: no ingest path configured", stream)
	}
	url := f.ServerURL + path

	var lastErr error
	for attempt := 1; attempt <= requestMaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Aegis-Agent-ID", f.AgentID)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
				return nil
			}
			if !isRetryableStatus(resp.StatusCode) {
				return fmt.Errorf("server rejected batch: %s", resp.Status)
			}
			lastErr = fmt.Errorf("server returned %s", resp.Status)
		}

		if attempt == requestMaxAttempts || ctx.Err() != nil {
			break
		}
		delay := backoffDelay(attempt)
		if err := f.retrySleep(ctx, delay); err != nil {
			return fmt.Errorf("canceled while retrying: %w", err)
		}
	}
	return fmt.Errorf("forward %s after %d attempts: %w", stream, requestMaxAttempts, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return retryBaseDelay
	}
	delay := retryBaseDelay * time.Duration(1<<(attempt-1))
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
