package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/pkg/errors"
)

// UserRepository handles operations on the users table.
type UserRepository struct {
	*BaseRepository
}

// NewUserRepository creates a new user repository instance.
func NewUserRepository(db *sql.DB, log *zap.Logger) *UserRepository {
	return &UserRepository{BaseRepository: NewBaseRepository(db, log.With(zap.String("repository", "users")))}
}

const userColumns = `id, name, last_name, username, avatar, biography, status, blocked`

func scanUser(row interface{ Scan(...interface{}) error }) (*chat.User, error) {
	var u chat.User
	err := row.Scan(&u.ID, &u.Name, &u.LastName, &u.Username, &u.Avatar, &u.Biography, &u.Status, pq.Array(&u.Blocked))
	if err != nil {
		return nil, one(err)
	}
	return &u, nil
}

// GetUser fetches a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*chat.User, error) {
	row := r.GetDB().QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// SetUserStatus stores the user's connection status.
func (r *UserRepository) SetUserStatus(ctx context.Context, id, status string) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return exec(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// BlockedIDs returns the ids the user has blocked.
func (r *UserRepository) BlockedIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.GetDB().QueryRowContext(ctx,
		`SELECT blocked FROM users WHERE id = $1`, userID).Scan(pq.Array(&ids))
	if err != nil {
		return nil, one(err)
	}
	return ids, nil
}

// BlockUser adds targetID to the user's block list. Adding an already-blocked
// id is a no-op; the updated list is returned either way.
func (r *UserRepository) BlockUser(ctx context.Context, userID, targetID string) ([]string, error) {
	var ids []string
	err := r.GetDB().QueryRowContext(ctx,
		`UPDATE users
		    SET blocked = CASE WHEN $2 = ANY(blocked) THEN blocked ELSE array_append(blocked, $2) END,
		        updated_at = NOW()
		  WHERE id = $1
		RETURNING blocked`, userID, targetID).Scan(pq.Array(&ids))
	if err != nil {
		return nil, one(err)
	}
	return ids, nil
}

// UnblockUser removes targetID from the user's block list.
func (r *UserRepository) UnblockUser(ctx context.Context, userID, targetID string) ([]string, error) {
	var ids []string
	err := r.GetDB().QueryRowContext(ctx,
		`UPDATE users
		    SET blocked = array_remove(blocked, $2), updated_at = NOW()
		  WHERE id = $1
		RETURNING blocked`, userID, targetID).Scan(pq.Array(&ids))
	if err != nil {
		return nil, one(err)
	}
	return ids, nil
}

// UsersByIDs fetches users in bulk. Missing ids are skipped, not errors.
func (r *UserRepository) UsersByIDs(ctx context.Context, ids []string) ([]*chat.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.GetDB().QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, exec(err)
	}
	defer rows.Close()

	users := make([]*chat.User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, exec(rows.Err())
}
