// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxRoomIDLen       = 64
	GeneratedRoomIDLen = 8
)

var (
	ErrRoomIDTooLong = errors.New("room id too long")
	ErrRoomIDEmpty   = errors.New("room id empty")
)

type RoomID string

// Room is the locally known state of the joined room.
type Room struct {
	ID     RoomID
	Self   ParticipantID
	Remote map[ParticipantID]*Participant
}

func NewRoom(id RoomID, self ParticipantID) *Room {
	return &Room{ID: id, Self: self, Remote: make(map[ParticipantID]*Participant)}
}

// ParseRoomID validates a caller-chosen room id.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(raw), nil
}

// GenerateRoomID returns a short shareable room id for callers creating a room.
func GenerateRoomID() RoomID {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return RoomID(id[:GeneratedRoomIDLen])
}
