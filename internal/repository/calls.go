package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
)

// CallRepository handles operations on the calls table. Transitions use
// guarded updates so a leg already in a terminal status never moves again, no
// matter how events race.
type CallRepository struct {
	*BaseRepository
}

// NewCallRepository creates a new call repository instance.
func NewCallRepository(db *sql.DB, log *zap.Logger) *CallRepository {
	return &CallRepository{BaseRepository: NewBaseRepository(db, log.With(zap.String("repository", "calls")))}
}

const callColumns = `id, caller_id, receiver_id, room_id, media, direction, status,
	start_time, end_time, duration`

func scanCall(row interface{ Scan(...interface{}) error }) (*chat.CallRecord, error) {
	var (
		c       chat.CallRecord
		endTime sql.NullTime
	)
	err := row.Scan(&c.ID, &c.CallerID, &c.ReceiverID, &c.RoomID, &c.Media, &c.Direction,
		&c.Status, &c.StartTime, &endTime, &c.Duration)
	if err != nil {
		return nil, one(err)
	}
	if endTime.Valid {
		t := endTime.Time
		c.EndTime = &t
	}
	return &c, nil
}

func statusStrings(in []chat.CallStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// CreateCall inserts a leg.
func (r *CallRepository) CreateCall(ctx context.Context, c *chat.CallRecord) error {
	_, err := r.GetDB().ExecContext(ctx,
		`INSERT INTO calls (`+callColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.CallerID, c.ReceiverID, c.RoomID, c.Media, c.Direction,
		string(c.Status), c.StartTime, c.EndTime, c.Duration)
	return exec(err)
}

// CallByID fetches a leg by id.
func (r *CallRepository) CallByID(ctx context.Context, id string) (*chat.CallRecord, error) {
	row := r.GetDB().QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	return scanCall(row)
}

// Advance moves a leg to a new status unless it is already terminal. Returns
// false when the guard rejected the transition.
func (r *CallRepository) Advance(ctx context.Context, id string, to chat.CallStatus, endTime *time.Time, duration int) (bool, error) {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE calls
		    SET status = $2,
		        end_time = COALESCE($3, end_time),
		        duration = GREATEST(duration, $4)
		  WHERE id = $1
		    AND status = ANY($5)`,
		id, string(to), endTime, duration, pq.Array(statusStrings([]chat.CallStatus{chat.CallInitiated, chat.CallRinging, chat.CallAccepted})))
	if err != nil {
		return false, exec(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, exec(err)
	}
	return n > 0, nil
}

// LatestCallerLeg finds the caller's newest leg in the room among the given
// statuses. Legs have no shared call id; this is how the two sides of one
// call are paired.
func (r *CallRepository) LatestCallerLeg(ctx context.Context, roomID, callerID string, in []chat.CallStatus) (*chat.CallRecord, error) {
	row := r.GetDB().QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls
		  WHERE room_id = $1 AND caller_id = $2 AND direction = $3 AND status = ANY($4)
		  ORDER BY start_time DESC
		  LIMIT 1`, roomID, callerID, chat.DirectionOutgoing, pq.Array(statusStrings(in)))
	return scanCall(row)
}

// CloseRoomLegs moves every leg of the room in one of the given statuses to a
// terminal one, returning how many moved.
func (r *CallRepository) CloseRoomLegs(ctx context.Context, roomID string, from []chat.CallStatus, to chat.CallStatus, endTime time.Time, duration int) (int, error) {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE calls
		    SET status = $2, end_time = $3, duration = GREATEST(duration, $4)
		  WHERE room_id = $1 AND status = ANY($5)`,
		roomID, string(to), endTime, duration, pq.Array(statusStrings(from)))
	if err != nil {
		return 0, exec(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, exec(err)
	}
	return int(n), nil
}

// CallsForUser returns the user's legs, newest first. Each user sees only
// their own side of a call.
func (r *CallRepository) CallsForUser(ctx context.Context, userID string, limit, offset int) ([]*chat.CallRecord, error) {
	rows, err := r.GetDB().QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls
		  WHERE (direction = $2 AND caller_id = $1) OR (direction = $3 AND receiver_id = $1)
		  ORDER BY start_time DESC
		  LIMIT $4 OFFSET $5`,
		userID, chat.DirectionOutgoing, chat.DirectionIncoming, limit, offset)
	if err != nil {
		return nil, exec(err)
	}
	return collectCalls(rows)
}

// CallsForRoom returns the room's legs, newest first.
func (r *CallRepository) CallsForRoom(ctx context.Context, roomID string, limit int) ([]*chat.CallRecord, error) {
	rows, err := r.GetDB().QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls
		  WHERE room_id = $1
		  ORDER BY start_time DESC
		  LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, exec(err)
	}
	return collectCalls(rows)
}

// FailStale terminates legs stuck in a non-terminal status since before the
// cutoff.
func (r *CallRepository) FailStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.GetDB().ExecContext(ctx,
		`UPDATE calls
		    SET status = $1, end_time = NOW()
		  WHERE status = ANY($2) AND start_time < $3`,
		string(chat.CallFailed),
		pq.Array(statusStrings([]chat.CallStatus{chat.CallInitiated, chat.CallRinging, chat.CallAccepted})),
		olderThan)
	if err != nil {
		return 0, exec(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, exec(err)
	}
	return int(n), nil
}

func collectCalls(rows *sql.Rows) ([]*chat.CallRecord, error) {
	defer rows.Close()
	var out []*chat.CallRecord
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, exec(rows.Err())
}
