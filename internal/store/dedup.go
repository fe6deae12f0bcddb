package store

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// CommandDedupHash computes the spec §3 dedup key: hash(user, timestamp,
// command). Matches the format the agent-side collector's in-memory dedup
// set uses (internal/collector.CommandAdapter.duplicate) so both sides
// agree on what a "duplicate" command looks like.
func CommandDedupHash(e models.CommandEvent) string {
	h := sha256.Sum256([]byte(e.User + "|" + e.Timestamp.String() + "|" + e.Command))
	return hex.EncodeToString(h[:])
}
