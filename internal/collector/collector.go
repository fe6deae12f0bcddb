// Package collector implements the agent-side telemetry adapters (spec §2,
// C2): metrics, process snapshots, shell command history, and log tailing.
// Each adapter runs independently and pushes records into a Sink, mirroring
// the teacher's hostagent collector split (metrics/sensors/commands as
// separate concerns feeding a shared agent loop).
package collector

import (
	"context"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// Sink receives collected records for a stream. The agent's spool satisfies
// this by wrapping spool.Spool.Write.
type Sink interface {
	Write(ctx context.Context, stream models.Stream, record interface{}) error
}

// Adapter is one telemetry source. Start blocks until ctx is cancelled or an
// unrecoverable error occurs; Stop requests a graceful shutdown.
type Adapter interface {
	Name() string
	Start(ctx context.Context, sink Sink) error
	Stop(ctx context.Context) error
}
