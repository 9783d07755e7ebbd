package core

import (
	"github.com/dkeye/Call/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the relay controller.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the relay-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	Members() []domain.ParticipantID

	AddMember(ms MemberSession)
	RemoveMember(id domain.ParticipantID)
	Broadcast(from domain.ParticipantID, data Frame) PublishResult
	SendTo(target domain.ParticipantID, data Frame) (PublishResult, bool)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
