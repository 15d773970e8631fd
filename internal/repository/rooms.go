package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
)

// RoomRepository handles operations on the rooms table.
type RoomRepository struct {
	*BaseRepository
}

// NewRoomRepository creates a new room repository instance.
func NewRoomRepository(db *sql.DB, log *zap.Logger) *RoomRepository {
	return &RoomRepository{BaseRepository: NewBaseRepository(db, log.With(zap.String("repository", "rooms")))}
}

// GetRoom fetches a room by id.
func (r *RoomRepository) GetRoom(ctx context.Context, id string) (*chat.Room, error) {
	var (
		room chat.Room
		last sql.NullString
	)
	err := r.GetDB().QueryRowContext(ctx,
		`SELECT id, name, type, participants, admins, last_message_id
		   FROM rooms WHERE id = $1`, id).
		Scan(&room.ID, &room.Name, &room.Type, pq.Array(&room.Participants), pq.Array(&room.Admins), &last)
	if err != nil {
		return nil, one(err)
	}
	room.LastMessageID = last.String
	return &room, nil
}

// AddParticipant adds the user to the room membership when not already there.
func (r *RoomRepository) AddParticipant(ctx context.Context, roomID, userID string) error {
	_, err := r.GetDB().ExecContext(ctx,
		`UPDATE rooms
		    SET participants = CASE WHEN $2 = ANY(participants) THEN participants ELSE array_append(participants, $2) END,
		        updated_at = NOW()
		  WHERE id = $1`, roomID, userID)
	return exec(err)
}

// SetLastMessage points the room at its newest message.
func (r *RoomRepository) SetLastMessage(ctx context.Context, roomID, messageID string) error {
	_, err := r.GetDB().ExecContext(ctx,
		`UPDATE rooms SET last_message_id = $2, updated_at = NOW() WHERE id = $1`, roomID, messageID)
	return exec(err)
}
