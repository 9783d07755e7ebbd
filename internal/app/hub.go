package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInRoom     = errors.New("not in a room")
	ErrUnknownTarget = errors.New("target not in room")
	ErrUnknownMember = errors.New("unknown participant")
)

// Hub is the relay: room-scoped fan-out of signaling frames. It never
// looks inside signal payloads.
type Hub struct {
	Registry *Registry
	Rooms    core.RoomManager
	Policy   Policy
	Presence core.PresenceStore

	// membership changes are serialized so every pair of participants sees
	// one consistent join order
	mu sync.Mutex
}

// Connect binds a new connection. A previous participant of the same client
// is disconnected, since a reconnect always arrives with a fresh identity.
func (h *Hub) Connect(sess core.MemberSession, client string, cancel context.CancelFunc) {
	prev, ok := h.Registry.Bind(sess, client, cancel)
	if !ok {
		return
	}
	log.Info().Str("module", "app.hub").Str("participant", string(sess.ID())).
		Str("previous", string(prev)).Msg("client reconnected, evicting previous identity")
	h.Kick(prev)
}

// Join places id in room. The joiner receives its confirmation followed by
// one participant-joined per existing member; existing members are told
// about the joiner.
func (h *Hub) Join(ctx context.Context, id domain.ParticipantID, room domain.RoomID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.Registry.GetSession(id)
	if !ok {
		return ErrUnknownMember
	}
	if current, _, ok := h.Registry.RoomOf(id); ok {
		if current == room {
			h.send(sess, protocol.Joined(room, id))
			return nil
		}
		h.leaveRoom(ctx, id)
	}

	r := h.Rooms.GetOrCreate(room)
	existing := r.Members()
	r.AddMember(sess)
	h.Registry.UpdateRoom(id, room)
	if h.Presence != nil {
		if err := h.Presence.Add(ctx, room, id); err != nil {
			log.Warn().Err(err).Str("module", "app.hub").Str("room", string(room)).Msg("presence add")
		}
	}
	log.Info().Str("module", "app.hub").Str("participant", string(id)).Str("room", string(room)).
		Int("existing", len(existing)).Msg("join")

	h.send(sess, protocol.Joined(room, id))
	for _, m := range existing {
		h.send(sess, protocol.ParticipantJoined(room, m, true))
	}
	h.broadcast(r, id, protocol.ParticipantJoined(room, id, false))
	return nil
}

// Leave removes id from its room and confirms with left.
func (h *Hub) Leave(ctx context.Context, id domain.ParticipantID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.leaveRoom(ctx, id)
	if !ok {
		return
	}
	if sess, ok := h.Registry.GetSession(id); ok {
		h.send(sess, protocol.Left(room))
	}
}

// Disconnect forgets a connection that has gone away.
func (h *Hub) Disconnect(ctx context.Context, id domain.ParticipantID) {
	h.mu.Lock()
	h.leaveRoom(ctx, id)
	h.mu.Unlock()
	h.Registry.Unbind(id)
}

// Kick disconnects id and stops its connection.
func (h *Hub) Kick(id domain.ParticipantID) {
	h.Registry.Cancel(id)
	h.Disconnect(context.Background(), id)
}

// Signal stamps env with the sender's identity and room, then delivers it
// to the target or, without one, to the whole room.
func (h *Hub) Signal(from domain.ParticipantID, env protocol.Envelope) error {
	roomID, _, ok := h.Registry.RoomOf(from)
	if !ok {
		return ErrNotInRoom
	}
	r, ok := h.Rooms.Get(roomID)
	if !ok {
		return ErrNotInRoom
	}
	env.SenderID = from
	env.RoomID = roomID
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	var res core.PublishResult
	if env.TargetID != "" {
		if env.TargetID == from {
			return ErrUnknownTarget
		}
		if res, ok = r.SendTo(env.TargetID, data); !ok {
			return ErrUnknownTarget
		}
	} else {
		res = r.Broadcast(from, data)
	}
	h.applyPolicy(r, res)
	return nil
}

// EvictRoom disconnects every member of room.
func (h *Hub) EvictRoom(room domain.RoomID) {
	for _, snap := range h.Registry.MembersOfRoom(room) {
		h.Kick(snap.ID)
	}
	h.Rooms.StopRoom(room)
}

// Participants lists room members from the presence store, or from the
// in-process room when no store is configured.
func (h *Hub) Participants(ctx context.Context, room domain.RoomID) ([]domain.ParticipantID, error) {
	if h.Presence != nil {
		return h.Presence.List(ctx, room)
	}
	r, ok := h.Rooms.Get(room)
	if !ok {
		return nil, nil
	}
	return r.Members(), nil
}

func (h *Hub) leaveRoom(ctx context.Context, id domain.ParticipantID) (domain.RoomID, bool) {
	roomID, _, ok := h.Registry.RoomOf(id)
	if !ok {
		return "", false
	}
	h.Registry.RemoveRoom(id)
	if h.Presence != nil {
		if err := h.Presence.Remove(ctx, roomID, id); err != nil {
			log.Warn().Err(err).Str("module", "app.hub").Str("room", string(roomID)).Msg("presence remove")
		}
	}
	r, ok := h.Rooms.Get(roomID)
	if !ok {
		return roomID, true
	}
	r.RemoveMember(id)
	log.Info().Str("module", "app.hub").Str("participant", string(id)).Str("room", string(roomID)).Msg("leave")
	if r.MemberCount() == 0 {
		h.Rooms.StopRoom(roomID)
		return roomID, true
	}
	h.broadcast(r, id, protocol.ParticipantLeft(roomID, id))
	return roomID, true
}

func (h *Hub) broadcast(r core.RoomService, from domain.ParticipantID, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("encode")
		return
	}
	// Kicks triggered here re-enter the hub, so they run after the lock is released.
	res := r.Broadcast(from, data)
	for _, slow := range res.Dropped {
		if h.Policy != nil && h.Policy.OnBackPressure(r, slow) == KickMember {
			go h.Kick(slow.ID())
		}
	}
}

func (h *Hub) send(sess core.MemberSession, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("encode")
		return
	}
	if err := sess.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Str("participant", string(sess.ID())).Str("type", string(env.Type)).Msg("send dropped")
	}
}

func (h *Hub) applyPolicy(r core.RoomService, res core.PublishResult) {
	if h.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch h.Policy.OnBackPressure(r, slow) {
		case KickMember:
			log.Warn().Str("module", "app.hub").Str("participant", string(slow.ID())).Msg("slow consumer kicked")
			h.Kick(slow.ID())
		case MarkSlow, DropFrame, NoAction:
		}
	}
}
