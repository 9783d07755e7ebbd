package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Call/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id      domain.RoomID
	mu      sync.RWMutex
	members map[domain.ParticipantID]MemberSession
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:      id,
		members: make(map[domain.ParticipantID]MemberSession),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) AddMember(ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[ms.ID()] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("participant", string(ms.ID())).Msg("member added")
}

func (r *roomImpl) RemoveMember(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("participant", string(id)).Msg("member removed")
}

func (r *roomImpl) Broadcast(from domain.ParticipantID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, m := range r.members {
		if id == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(target domain.ParticipantID, data Frame) (PublishResult, bool) {
	r.mu.RLock()
	m, ok := r.members[target]
	r.mu.RUnlock()
	if !ok {
		return PublishResult{}, false
	}
	if err := m.Signal().TrySend(data); err != nil {
		return PublishResult{Dropped: []MemberSession{m}}, true
	}
	return PublishResult{SendTo: 1}, true
}

// Members returns participant ids in a stable order.
func (r *roomImpl) Members() []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
