// Package membership tracks the room the local participant is in and the
// remote participants the relay announces for it.
package membership

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/Call/internal/app/loop"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/rs/zerolog/log"
)

// ErrNotJoined is returned to senders until the relay confirms the join.
var ErrNotJoined = errors.New("membership: not joined")

type status int

const (
	statusIdle status = iota
	statusJoining
	statusJoined
)

type (
	JoinedHandler      func(room domain.RoomID, self domain.ParticipantID)
	ParticipantHandler func(room domain.RoomID, p domain.Participant)
)

// Membership must be driven from the session loop; channel events are
// re-posted there.
type Membership struct {
	ch   core.SignalChannel
	post loop.Poster

	status status
	target domain.RoomID
	room   *domain.Room

	onJoined            []JoinedHandler
	onParticipantJoined []ParticipantHandler
	onParticipantLeft   []ParticipantHandler
	onError             []func(error)

	unsubscribe []func()
}

func New(ch core.SignalChannel, post loop.Poster) *Membership {
	m := &Membership{ch: ch, post: post}
	m.subscribe(protocol.TypeJoined, m.handleJoined)
	m.subscribe(protocol.TypeLeft, m.handleLeft)
	m.subscribe(protocol.TypeParticipantJoined, m.handleParticipantJoined)
	m.subscribe(protocol.TypeParticipantLeft, m.handleParticipantLeft)
	m.subscribe(protocol.TypeConnected, m.handleConnected)
	m.subscribe(protocol.TypeDisconnected, m.handleDisconnected)
	m.subscribe(protocol.TypeError, m.handleError)
	return m
}

func (m *Membership) subscribe(t protocol.Type, h func(protocol.Envelope)) {
	unsub := m.ch.Subscribe(t, func(env protocol.Envelope) {
		m.post(func() { h(env) })
	})
	m.unsubscribe = append(m.unsubscribe, unsub)
}

// Close detaches from the channel. It does not leave the room.
func (m *Membership) Close() {
	for _, u := range m.unsubscribe {
		u()
	}
	m.unsubscribe = nil
}

func (m *Membership) OnJoined(h JoinedHandler) { m.onJoined = append(m.onJoined, h) }
func (m *Membership) OnParticipantJoined(h ParticipantHandler) {
	m.onParticipantJoined = append(m.onParticipantJoined, h)
}
func (m *Membership) OnParticipantLeft(h ParticipantHandler) {
	m.onParticipantLeft = append(m.onParticipantLeft, h)
}

// OnError receives joins the relay refused. Membership is idle again when it fires.
func (m *Membership) OnError(fn func(error)) { m.onError = append(m.onError, fn) }

// Joined reports whether the relay has confirmed the current room.
func (m *Membership) Joined() bool { return m.status == statusJoined }

// Room returns the confirmed room, or nil.
func (m *Membership) Room() *domain.Room { return m.room }

// Target is the room the participant is in or trying to enter.
func (m *Membership) Target() domain.RoomID { return m.target }

func (m *Membership) Self() domain.ParticipantID {
	if m.room == nil {
		return ""
	}
	return m.room.Self
}

func (m *Membership) Participant(id domain.ParticipantID) (*domain.Participant, bool) {
	if m.room == nil {
		return nil, false
	}
	p, ok := m.room.Remote[id]
	return p, ok
}

// Join enters room, generating a fresh id when room is empty. Joining the
// current room again is a no-op; joining another room leaves the current one
// first. When the channel is down the join is kept and sent on reconnect.
func (m *Membership) Join(room domain.RoomID) (domain.RoomID, error) {
	if room == "" {
		room = domain.GenerateRoomID()
	}
	room, err := domain.ParseRoomID(string(room))
	if err != nil {
		return "", err
	}
	if m.status != statusIdle && m.target == room {
		return room, nil
	}
	if m.status != statusIdle {
		if err := m.Leave(); err != nil && !errors.Is(err, core.ErrChannelUnavailable) {
			return "", err
		}
	}
	m.target = room
	m.status = statusJoining
	log.Info().Str("module", "app.membership").Str("room", string(room)).Msg("joining")
	if err := m.ch.Send(protocol.JoinRoom(room)); err != nil {
		return room, core.WrapError("join", core.ErrChannelUnavailable, err)
	}
	return room, nil
}

// Leave exits the current room. Every known remote participant is reported
// as left before the call returns.
func (m *Membership) Leave() error {
	if m.status == statusIdle {
		return nil
	}
	room := m.target
	m.dropRemotes()
	m.status = statusIdle
	m.target = ""
	m.room = nil
	log.Info().Str("module", "app.membership").Str("room", string(room)).Msg("leaving")
	if err := m.ch.Send(protocol.LeaveRoom()); err != nil {
		return core.WrapError("leave", core.ErrChannelUnavailable, err)
	}
	return nil
}

func (m *Membership) handleJoined(env protocol.Envelope) {
	if m.status != statusJoining || env.RoomID != m.target {
		log.Debug().Str("module", "app.membership").Str("room", string(env.RoomID)).Msg("unexpected joined ignored")
		return
	}
	m.status = statusJoined
	m.room = domain.NewRoom(env.RoomID, env.ParticipantID)
	log.Info().Str("module", "app.membership").Str("room", string(env.RoomID)).
		Str("participant", string(env.ParticipantID)).Msg("joined")
	for _, h := range m.onJoined {
		h(env.RoomID, env.ParticipantID)
	}
}

func (m *Membership) handleLeft(env protocol.Envelope) {
	log.Debug().Str("module", "app.membership").Str("room", string(env.RoomID)).Msg("left confirmed")
}

func (m *Membership) handleParticipantJoined(env protocol.Envelope) {
	if m.status != statusJoined || env.RoomID != m.room.ID || env.ParticipantID == m.room.Self {
		return
	}
	if _, ok := m.room.Remote[env.ParticipantID]; ok {
		return
	}
	p := &domain.Participant{ID: env.ParticipantID, Existing: env.Existing, Stage: domain.StageAnnounced}
	m.room.Remote[p.ID] = p
	log.Info().Str("module", "app.membership").Str("room", string(m.room.ID)).
		Str("participant", string(p.ID)).Bool("existing", p.Existing).Msg("participant joined")
	for _, h := range m.onParticipantJoined {
		h(m.room.ID, *p)
	}
}

func (m *Membership) handleParticipantLeft(env protocol.Envelope) {
	if m.status != statusJoined || env.RoomID != m.room.ID {
		return
	}
	p, ok := m.room.Remote[env.ParticipantID]
	if !ok {
		return
	}
	m.removeRemote(p)
}

func (m *Membership) handleConnected(protocol.Envelope) {
	if m.status == statusIdle {
		return
	}
	// The relay forgot us together with the old connection.
	m.status = statusJoining
	log.Info().Str("module", "app.membership").Str("room", string(m.target)).Msg("rejoining after reconnect")
	if err := m.ch.Send(protocol.JoinRoom(m.target)); err != nil {
		log.Warn().Err(err).Str("module", "app.membership").Msg("rejoin")
	}
}

func (m *Membership) handleDisconnected(protocol.Envelope) {
	if m.status == statusIdle {
		return
	}
	m.dropRemotes()
	m.room = nil
	m.status = statusJoining
	log.Warn().Str("module", "app.membership").Str("room", string(m.target)).Msg("channel lost, waiting to rejoin")
}

func (m *Membership) handleError(env protocol.Envelope) {
	log.Warn().Str("module", "app.membership").Str("code", env.Code).Str("message", env.Message).Msg("relay error")
	if m.status != statusJoining {
		return
	}
	switch env.Code {
	case protocol.CodeBadRoom, protocol.CodeRateLimited:
	default:
		return
	}
	// Only a join is outstanding while joining, so the refusal is ours.
	room := m.target
	m.status = statusIdle
	m.target = ""
	err := core.NewError(fmt.Sprintf("join %s: relay refused (%s)", room, env.Code), core.ErrChannelUnavailable)
	for _, fn := range m.onError {
		fn(err)
	}
}

func (m *Membership) dropRemotes() {
	if m.room == nil {
		return
	}
	for _, id := range sortedRemotes(m.room) {
		m.removeRemote(m.room.Remote[id])
	}
}

func (m *Membership) removeRemote(p *domain.Participant) {
	delete(m.room.Remote, p.ID)
	p.Stage = domain.StageRemoved
	log.Info().Str("module", "app.membership").Str("room", string(m.room.ID)).
		Str("participant", string(p.ID)).Msg("participant left")
	for _, h := range m.onParticipantLeft {
		h(m.room.ID, *p)
	}
}

func sortedRemotes(r *domain.Room) []domain.ParticipantID {
	ids := make([]domain.ParticipantID, 0, len(r.Remote))
	for id := range r.Remote {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
