package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/writique/writique/internal/apperror"
	"github.com/writique/writique/internal/model"
	"github.com/writique/writique/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, external_id, email, first_name, last_name, avatar_url,
	role, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.AvatarURL,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByExternalID retrieves a user by their identity-provider subject id.
func (db *DB) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, fmt.Errorf("sqlite: getting user by external id %s: %w", externalID, err)
	}
	return user, nil
}

// Provision inserts the user keyed on the unique external_id index.
//
// INSERT OR IGNORE makes the race between two concurrent first logins safe:
// exactly one insert wins, the other becomes a no-op, and the loser detects
// it via RowsAffected and adopts the winner's row. Either way the caller ends
// up holding the single canonical record — the conflict is never surfaced.
func (db *DB) Provision(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO users
			(id, external_id, email, first_name, last_name, avatar_url, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.ExternalID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.AvatarURL,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: provisioning user (externalID=%s): %w", user.ExternalID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Lost the race (or re-run for an already-provisioned subject).
		// Re-fetch the winner's row and hand it back.
		existing, err := db.GetByExternalID(ctx, user.ExternalID)
		if err != nil {
			return fmt.Errorf("sqlite: re-fetching user after provisioning conflict: %w", err)
		}
		*user = *existing
	}

	return nil
}

// UpdateByExternalID applies a partial profile update. Nil fields in update
// are skipped entirely, so an absent value never clobbers an existing one.
func (db *DB) UpdateByExternalID(ctx context.Context, externalID string, update repository.UserUpdate) error {
	set := []string{}
	args := []any{}

	if update.Email != nil {
		set = append(set, "email = ?")
		args = append(args, *update.Email)
	}
	if update.FirstName != nil {
		set = append(set, "first_name = ?")
		args = append(args, *update.FirstName)
	}
	if update.LastName != nil {
		set = append(set, "last_name = ?")
		args = append(args, *update.LastName)
	}
	if update.AvatarURL != nil {
		set = append(set, "avatar_url = ?")
		args = append(args, *update.AvatarURL)
	}

	if len(set) == 0 {
		return nil // nothing to change
	}

	set = append(set, "updated_at = ?")
	args = append(args, time.Now(), externalID)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(set, ", ")+` WHERE external_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user by external id %s: %w", externalID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", externalID)
	}

	return nil
}

// DeleteByExternalID removes the user record only. Their posts keep the
// author snapshot and stay published.
func (db *DB) DeleteByExternalID(ctx context.Context, externalID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM users WHERE external_id = ?`, externalID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user by external id %s: %w", externalID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", externalID)
	}

	return nil
}

// ListUsers returns all users, newest first.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// Favorites returns the user's favorited post ids in insertion order.
func (db *DB) Favorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT post_id FROM user_favorites WHERE user_id = ? ORDER BY added_at, post_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing favorites for user %s: %w", userID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning favorite row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating favorites: %w", err)
	}

	return ids, nil
}

// AddFavorite adds postID to the user's favorite set. The composite primary
// key plus INSERT OR IGNORE makes re-adding an existing favorite a no-op.
func (db *DB) AddFavorite(ctx context.Context, userID, postID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_favorites (user_id, post_id, added_at) VALUES (?, ?, ?)`,
		userID, postID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding favorite %s for user %s: %w", postID, userID, err)
	}
	return nil
}

// RemoveFavorite removes postID from the set. Removing a non-member is a
// no-op success, not an error.
func (db *DB) RemoveFavorite(ctx context.Context, userID, postID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_favorites WHERE user_id = ? AND post_id = ?`,
		userID, postID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing favorite %s for user %s: %w", postID, userID, err)
	}
	return nil
}
