package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

// CreateInvitation persists the hash of a single-use device-registration
// token; the raw token itself is never stored (spec §3, §6).
func (s *Store) CreateInvitation(ctx context.Context, inv models.Invitation) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO invitations (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`,
		inv.ID, inv.UserID, inv.TokenHash, inv.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// FindUnexpiredInvitations returns every invitation that has not yet
// expired, for the caller to verify the submitted token's hash against
// (invitation tokens are opaque at rest — matched by bcrypt comparison,
// not by an indexed lookup).
func (s *Store) FindUnexpiredInvitations(ctx context.Context, now time.Time) ([]models.Invitation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, token_hash, expires_at FROM invitations WHERE expires_at > $1`, now)
	if err != nil {
		return nil, fmt.Errorf("find unexpired invitations: %w", err)
	}
	defer rows.Close()

	var invitations []models.Invitation
	for rows.Next() {
		var inv models.Invitation
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.TokenHash, &inv.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan invitation row: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// ConsumeInvitation deletes a single-use invitation after successful
// registration.
func (s *Store) ConsumeInvitation(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("consume invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
