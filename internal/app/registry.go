package app

import (
	"context"
	"sync"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomID  domain.RoomID
	Session core.MemberSession
	Client  string
	Cancel  context.CancelFunc
}

// Registry maps live relay connections to participants and rooms.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ParticipantID]*sessionEntry
	clients  map[string]domain.ParticipantID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ParticipantID]*sessionEntry),
		clients:  make(map[string]domain.ParticipantID),
	}
}

// Bind registers a connection. client is the browser/CLI session key; it
// returns the participant previously bound to the same client, if any.
func (r *Registry) Bind(sess core.MemberSession, client string, cancel context.CancelFunc) (domain.ParticipantID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := sess.ID()
	r.sessions[id] = &sessionEntry{Session: sess, Client: client, Cancel: cancel}
	var prev domain.ParticipantID
	var hadPrev bool
	if client != "" {
		prev, hadPrev = r.clients[client]
		r.clients[client] = id
	}
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("bound signal")
	return prev, hadPrev && prev != id
}

func (r *Registry) GetSession(id domain.ParticipantID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok && e.Client != "" && r.clients[e.Client] == id {
		delete(r.clients, e.Client)
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("unbind session")
}

func (r *Registry) RoomOf(id domain.ParticipantID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	if !ok || entry.RoomID == "" {
		return "", nil, false
	}
	return entry.RoomID, entry.Session, true
}

func (r *Registry) UpdateRoom(id domain.ParticipantID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return false
	}
	entry.RoomID = room
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Str("room", string(room)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[id]; ok {
		entry.RoomID = ""
	}
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("removed room association")
}

type regSnap struct {
	ID      domain.ParticipantID
	Session core.MemberSession
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for id, e := range r.sessions {
		if e.RoomID == room {
			out = append(out, regSnap{ID: id, Session: e.Session})
		}
	}
	return out
}

// Cancel stops the connection pumps of id.
func (r *Registry) Cancel(id domain.ParticipantID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("canceled session")
	return true
}
