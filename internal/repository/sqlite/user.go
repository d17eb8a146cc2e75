package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user, generating its ID and timestamps.
//
// The UNIQUE index on email is the source of truth for uniqueness; a
// violation comes back as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, age, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Age,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	user.Tokens = nil
	return nil
}

// GetUserByID retrieves a user and its active token set.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, age, email, password_hash, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	)
	return db.scanUserWithTokens(ctx, row, id)
}

// GetUserByEmail looks a user up by its normalized email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, age, email, password_hash, created_at, updated_at
		 FROM users WHERE email = ?`,
		email,
	)
	return db.scanUserWithTokens(ctx, row, email)
}

func (db *DB) scanUserWithTokens(ctx context.Context, row *sql.Row, key string) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Age,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", key, err)
	}

	tokens, err := db.listTokens(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Tokens = tokens
	return &u, nil
}

func (db *DB) listTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT token FROM user_tokens WHERE user_id = ? ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tokens for user %s: %w", userID, err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("sqlite: scanning token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tokens: %w", err)
	}
	return tokens, nil
}

// UpdateUser writes the mutable profile columns. The token set and avatar
// are managed by their own methods.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, age = ?, email = ?, password_hash = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Age,
		user.Email,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return requireAffected(result, "user", user.ID)
}

// DeleteUser removes the user row. Tokens go with it through the foreign
// key; tasks do not (see DeleteTasksByOwner).
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	return requireAffected(result, "user", id)
}

// AddToken appends a session token to the user's active set.
func (db *DB) AddToken(ctx context.Context, userID, token string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_tokens (user_id, token, seq, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM user_tokens WHERE user_id = ?), ?)`,
		userID, token, userID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("token", userID)
		}
		return fmt.Errorf("sqlite: adding token for user %s: %w", userID, err)
	}
	return nil
}

// RemoveToken deletes one token. Removing an absent token is not an error.
func (db *DB) RemoveToken(ctx context.Context, userID, token string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = ? AND token = ?`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing token for user %s: %w", userID, err)
	}
	return nil
}

// ClearTokens empties the user's active set.
func (db *DB) ClearTokens(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: clearing tokens for user %s: %w", userID, err)
	}
	return nil
}

func (db *DB) SetAvatar(ctx context.Context, userID string, png []byte) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET avatar = ?, updated_at = ? WHERE id = ?`,
		png, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting avatar for user %s: %w", userID, err)
	}
	return requireAffected(result, "user", userID)
}

func (db *DB) ClearAvatar(ctx context.Context, userID string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET avatar = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clearing avatar for user %s: %w", userID, err)
	}
	return requireAffected(result, "user", userID)
}

func (db *DB) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	var avatar []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT avatar FROM users WHERE id = ?`, userID,
	).Scan(&avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlite: getting avatar for user %s: %w", userID, err)
	}
	if len(avatar) == 0 {
		return nil, apperror.NotFound("avatar", userID)
	}
	return avatar, nil
}

// requireAffected turns a zero-row write into apperror.ErrNotFound.
func requireAffected(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
