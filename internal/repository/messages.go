package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/pkg/errors"
	"github.com/hsg8-commits/ripple/pkg/json"
)

// MessageRepository handles operations on the messages table.
type MessageRepository struct {
	*BaseRepository
}

// NewMessageRepository creates a new message repository instance.
func NewMessageRepository(db *sql.DB, log *zap.Logger) *MessageRepository {
	return &MessageRepository{BaseRepository: NewBaseRepository(db, log.With(zap.String("repository", "messages")))}
}

const messageColumns = `id, room_id, sender_id, body, temp_id, seen_by, hide_for,
	reply_to, replies, pinned_at, status, attachment, is_edited, created_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*chat.Message, error) {
	var (
		m          chat.Message
		pinnedAt   sql.NullTime
		attachment []byte
	)
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Body, &m.TempID,
		pq.Array(&m.SeenBy), pq.Array(&m.HideFor), &m.ReplyTo, pq.Array(&m.Replies),
		&pinnedAt, &m.Status, &attachment, &m.IsEdited, &m.CreatedAt)
	if err != nil {
		return nil, one(err)
	}
	if pinnedAt.Valid {
		t := pinnedAt.Time
		m.PinnedAt = &t
	}
	if len(attachment) > 0 {
		var a chat.Attachment
		if err := json.Unmarshal(attachment, &a); err != nil {
			return nil, errors.Persistence(err)
		}
		m.Attachment = &a
	}
	return &m, nil
}

// CreateMessage inserts a message. The partial unique index on
// (room_id, temp_id) turns a duplicate retry into an error the pipeline
// resolves by re-reading the winner.
func (r *MessageRepository) CreateMessage(ctx context.Context, m *chat.Message) error {
	var attachment []byte
	if m.Attachment != nil {
		var err error
		attachment, err = json.Marshal(m.Attachment)
		if err != nil {
			return errors.Persistence(err)
		}
	}
	_, err := r.GetDB().ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.RoomID, m.SenderID, m.Body, m.TempID,
		pq.Array(m.SeenBy), pq.Array(m.HideFor), m.ReplyTo, pq.Array(m.Replies),
		m.PinnedAt, m.Status, attachment, m.IsEdited, m.CreatedAt)
	return exec(err)
}

// MessageByTempID finds the message a client already submitted with this
// idempotency token, if any.
func (r *MessageRepository) MessageByTempID(ctx context.Context, roomID, tempID string) (*chat.Message, error) {
	row := r.GetDB().QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE room_id = $1 AND temp_id = $2`, roomID, tempID)
	return scanMessage(row)
}

// MessageByID fetches a message by id.
func (r *MessageRepository) MessageByID(ctx context.Context, id string) (*chat.Message, error) {
	row := r.GetDB().QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// AppendReply links a reply to its target.
func (r *MessageRepository) AppendReply(ctx context.Context, targetID, replyID string) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE messages
		    SET replies = CASE WHEN $2 = ANY(replies) THEN replies ELSE array_append(replies, $2) END
		  WHERE id = $1`, targetID, replyID)
	if err != nil {
		return exec(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// MarkSeen records a read receipt. Repeat receipts from the same user are
// no-ops.
func (r *MessageRepository) MarkSeen(ctx context.Context, id, userID string, _ time.Time) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE messages
		    SET seen_by = CASE WHEN $2 = ANY(seen_by) THEN seen_by ELSE array_append(seen_by, $2) END
		  WHERE id = $1`, id, userID)
	if err != nil {
		return exec(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// SetBody replaces the text and marks the message edited.
func (r *MessageRepository) SetBody(ctx context.Context, id, body string) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE messages SET body = $2, is_edited = TRUE WHERE id = $1`, id, body)
	if err != nil {
		return exec(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// HideFor hides the message from one user without touching anyone else's
// view.
func (r *MessageRepository) HideFor(ctx context.Context, id, userID string) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE messages
		    SET hide_for = CASE WHEN $2 = ANY(hide_for) THEN hide_for ELSE array_append(hide_for, $2) END
		  WHERE id = $1`, id, userID)
	if err != nil {
		return exec(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// DeleteMessage removes the row for everyone.
func (r *MessageRepository) DeleteMessage(ctx context.Context, id string) error {
	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return exec(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// SetPinned sets or clears the pin timestamp.
func (r *MessageRepository) SetPinned(ctx context.Context, id string, pinnedAt *time.Time) error {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE messages SET pinned_at = $2 WHERE id = $1`, id, pinnedAt)
	if err != nil {
		return exec(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// LastMessages returns the room's newest n messages in chronological order.
func (r *MessageRepository) LastMessages(ctx context.Context, roomID string, n int) ([]*chat.Message, error) {
	rows, err := r.GetDB().QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		  WHERE room_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`, roomID, n)
	if err != nil {
		return nil, exec(err)
	}
	defer rows.Close()

	out := make([]*chat.Message, 0, n)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, exec(err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LatestVisible returns the room's newest message the viewer has not hidden.
func (r *MessageRepository) LatestVisible(ctx context.Context, roomID, viewerID string) (*chat.Message, error) {
	row := r.GetDB().QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		  WHERE room_id = $1 AND NOT ($2 = ANY(hide_for))
		  ORDER BY created_at DESC
		  LIMIT 1`, roomID, viewerID)
	return scanMessage(row)
}
