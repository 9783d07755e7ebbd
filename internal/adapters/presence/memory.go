// Package presence stores room membership for listing outside the relay loop.
package presence

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

type Memory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ParticipantID]struct{}
}

var _ core.PresenceStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rooms: make(map[domain.RoomID]map[domain.ParticipantID]struct{})}
}

func (m *Memory) Add(_ context.Context, room domain.RoomID, id domain.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[room] == nil {
		m.rooms[room] = make(map[domain.ParticipantID]struct{})
	}
	m.rooms[room][id] = struct{}{}
	return nil
}

func (m *Memory) Remove(_ context.Context, room domain.RoomID, id domain.ParticipantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms[room], id)
	if len(m.rooms[room]) == 0 {
		delete(m.rooms, room)
	}
	return nil
}

func (m *Memory) List(_ context.Context, room domain.RoomID) ([]domain.ParticipantID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ParticipantID, 0, len(m.rooms[room]))
	for id := range m.rooms[room] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}
