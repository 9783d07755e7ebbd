package core

import (
	"context"

	"github.com/dkeye/Call/internal/domain"
)

// PresenceStore publishes who is in which room, for listing outside the
// relay process. Writes are best effort.
type PresenceStore interface {
	Add(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	Remove(ctx context.Context, room domain.RoomID, id domain.ParticipantID) error
	List(ctx context.Context, room domain.RoomID) ([]domain.ParticipantID, error)
}
