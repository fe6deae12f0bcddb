package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, pass_hash, role, is_active, created_by, last_login`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PassHash, &u.Role, &u.IsActive, &u.CreatedBy, &u.LastLogin); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// CreateUser inserts a new user account (owner bootstrap, admin/device_user
// creation, or self-service signup).
func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, email, pass_hash, role, is_active, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PassHash, u.Role, u.IsActive, u.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail is used by POST /auth/login.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err == pgx.ErrNoRows {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("get user by email: %w", err)
	}
	return u, true, nil
}

// GetUserByID is used to resolve JWT claims and assignment actors.
func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, bool, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("get user by id: %w", err)
	}
	return u, true, nil
}

// OwnerExists reports whether the single owner account has already been
// bootstrapped (spec §3: "exactly one owner exists").
func (s *Store) OwnerExists(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, models.RoleOwner).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count owners: %w", err)
	}
	return count > 0, nil
}

// TouchLastLogin records a successful authentication.
func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// ListUsersByRole returns every active user with the given role.
func (s *Store) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 AND is_active = true`, role)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
