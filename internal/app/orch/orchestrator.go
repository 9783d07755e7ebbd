// Package orch wires room membership and local media to one PeerLink per
// remote participant, and routes inbound signaling to those links.
package orch

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/dkeye/Call/internal/app/loop"
	"github.com/dkeye/Call/internal/app/media"
	"github.com/dkeye/Call/internal/app/membership"
	"github.com/dkeye/Call/internal/app/peer"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MediaUpdate carries the current remote track set of one participant: the
// latest track of each kind. Removed is set once the participant's link is gone and its surface
// must be detached.
type MediaUpdate struct {
	Participant domain.ParticipantID
	Tracks      []*webrtc.TrackRemote
	Removed     bool
}

type Config struct {
	Channel    core.SignalChannel
	Membership *membership.Membership
	Media      *media.Pipeline
	Transports core.TransportFactory
	Post       loop.Poster
}

// Orchestrator owns every PeerLink of the session. All methods and
// callbacks run on the session loop.
type Orchestrator struct {
	ch         core.SignalChannel
	members    *membership.Membership
	media      *media.Pipeline
	transports core.TransportFactory
	post       loop.Poster

	links  map[domain.ParticipantID]*peer.Link
	remote map[domain.ParticipantID][]*webrtc.TrackRemote
	// retired holds senders whose link ended in the current room. It is reset
	// on every joined, and an id leaves it when the relay announces it again.
	retired map[domain.ParticipantID]struct{}

	onMedia []func(MediaUpdate)
	onError []func(error)

	unsubscribe []func()
}

func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		ch:         cfg.Channel,
		members:    cfg.Membership,
		media:      cfg.Media,
		transports: cfg.Transports,
		post:       cfg.Post,
		links:      make(map[domain.ParticipantID]*peer.Link),
		remote:     make(map[domain.ParticipantID][]*webrtc.TrackRemote),
		retired:    make(map[domain.ParticipantID]struct{}),
	}
	o.unsubscribe = append(o.unsubscribe,
		o.ch.Subscribe(protocol.TypeSignal, func(env protocol.Envelope) {
			o.post(func() { o.HandleSignal(env.Signal()) })
		}),
		o.ch.Subscribe(protocol.TypeDisconnected, func(protocol.Envelope) {
			o.post(o.closeAll)
		}),
	)
	o.members.OnJoined(o.handleJoined)
	o.members.OnParticipantJoined(o.handleParticipantJoined)
	o.members.OnParticipantLeft(o.handleParticipantLeft)
	o.media.OnTracksChanged(o.handleTracksChanged)
	return o
}

// OnMedia subscribes a presentation layer to remote track changes.
func (o *Orchestrator) OnMedia(fn func(MediaUpdate)) { o.onMedia = append(o.onMedia, fn) }

// OnError receives errors that end a link or cannot be resolved locally.
func (o *Orchestrator) OnError(fn func(error)) { o.onError = append(o.onError, fn) }

func (o *Orchestrator) Link(id domain.ParticipantID) (*peer.Link, bool) {
	l, ok := o.links[id]
	return l, ok
}

// States snapshots the state of every live link.
func (o *Orchestrator) States() map[domain.ParticipantID]peer.State {
	out := make(map[domain.ParticipantID]peer.State, len(o.links))
	for id, l := range o.links {
		out[id] = l.State()
	}
	return out
}

// Close tears down every link and detaches from the channel.
func (o *Orchestrator) Close() {
	for _, u := range o.unsubscribe {
		u()
	}
	o.unsubscribe = nil
	o.closeAll()
}

// Signal sends link-originated signaling to target in the current room.
func (o *Orchestrator) Signal(kind domain.SignalKind, target domain.ParticipantID, payload json.RawMessage) error {
	room := o.members.Room()
	if !o.members.Joined() || room == nil {
		return membership.ErrNotJoined
	}
	return o.ch.Send(protocol.NewSignal(domain.SignalMessage{
		RoomID:   room.ID,
		SenderID: room.Self,
		TargetID: target,
		Kind:     kind,
		Payload:  payload,
	}))
}

// HandleSignal routes one inbound message to the link keyed by its sender,
// creating the link when the sender is new. Messages from a sender whose
// link already ended are stale.
func (o *Orchestrator) HandleSignal(msg domain.SignalMessage) {
	room := o.members.Room()
	if !o.members.Joined() || room == nil || msg.RoomID != room.ID {
		log.Debug().Str("module", "app.orch").Str("room", string(msg.RoomID)).Msg("signal outside current room dropped")
		return
	}
	if msg.SenderID == "" || msg.SenderID == room.Self {
		return
	}
	if !msg.Broadcast() && msg.TargetID != room.Self {
		log.Debug().Str("module", "app.orch").Str("target", string(msg.TargetID)).Msg("signal for another participant dropped")
		return
	}

	l := o.logger(msg.SenderID, msg.Kind)
	if _, ok := o.retired[msg.SenderID]; ok {
		err := core.PeerError("route "+string(msg.Kind), msg.SenderID, core.ErrNegotiationStale, errors.New("link ended"))
		l.Debug().Err(err).Msg("signal from retired sender dropped")
		return
	}
	switch msg.Kind {
	case domain.SignalReady:
		link := o.ensureLink(msg.SenderID, peer.Offering)
		if link == nil {
			return
		}
		if link.State() == peer.Idle {
			o.report(link.Offer())
		}
	case domain.SignalOffer:
		desc, err := protocol.DecodeDescription(msg.Kind, msg.Payload)
		if err != nil {
			l.Warn().Err(err).Msg("bad offer payload")
			return
		}
		if link := o.ensureLink(msg.SenderID, peer.Answering); link != nil {
			o.report(link.HandleOffer(desc))
		}
	case domain.SignalAnswer:
		desc, err := protocol.DecodeDescription(msg.Kind, msg.Payload)
		if err != nil {
			l.Warn().Err(err).Msg("bad answer payload")
			return
		}
		link, ok := o.links[msg.SenderID]
		if !ok {
			l.Debug().Msg("answer without link ignored")
			return
		}
		o.report(link.HandleAnswer(desc))
	case domain.SignalCandidate:
		c, err := protocol.DecodeCandidate(msg.Payload)
		if err != nil {
			l.Warn().Err(err).Msg("bad candidate payload")
			return
		}
		if link := o.ensureLink(msg.SenderID, peer.Answering); link != nil {
			o.report(link.HandleCandidate(c))
		}
	default:
		l.Warn().Msg("unknown signal kind")
	}
}

func (o *Orchestrator) handleJoined(room domain.RoomID, self domain.ParticipantID) {
	clear(o.retired)
	log.Info().Str("module", "app.orch").Str("room", string(room)).Str("participant", string(self)).Msg("ready to negotiate")
}

func (o *Orchestrator) handleParticipantJoined(_ domain.RoomID, p domain.Participant) {
	delete(o.retired, p.ID)
	if p.Existing {
		// We are the newcomer: answer, and tell the existing side we listen.
		if o.ensureLink(p.ID, peer.Answering) == nil {
			return
		}
		if err := o.Signal(domain.SignalReady, p.ID, nil); err != nil {
			l := o.logger(p.ID, domain.SignalReady)
			l.Warn().Err(err).Msg("ready not sent")
		}
		return
	}
	// The newcomer offers nothing; we offer once it reports ready.
	o.ensureLink(p.ID, peer.Offering)
}

func (o *Orchestrator) handleParticipantLeft(_ domain.RoomID, p domain.Participant) {
	o.removeLink(p.ID)
}

func (o *Orchestrator) handleTracksChanged(tracks []webrtc.TrackLocal) {
	for _, id := range o.linkIDs() {
		if link, ok := o.links[id]; ok {
			o.report(link.SetTracks(tracks))
		}
	}
}

func (o *Orchestrator) ensureLink(id domain.ParticipantID, role peer.Role) *peer.Link {
	if link, ok := o.links[id]; ok {
		o.markLinked(id)
		return link
	}
	if _, ok := o.retired[id]; ok {
		log.Debug().Str("module", "app.orch").Str("remote", string(id)).Msg("no new link for retired participant")
		return nil
	}
	room := o.members.Room()
	if room == nil {
		return nil
	}
	transport, err := o.transports(id)
	if err != nil {
		o.emitError(core.PeerError("new transport", id, core.ErrNegotiationFailed, err))
		return nil
	}

	var link *peer.Link
	link = peer.New(peer.Config{
		Local:     room.Self,
		Remote:    id,
		Role:      role,
		Transport: transport,
		Signaler:  o,
		Tracks:    o.media.Tracks(),
		OnFailed: func(err error) {
			if o.links[id] == link {
				o.removeLink(id)
			}
			o.emitError(err)
		},
		OnTrack: func(track *webrtc.TrackRemote) {
			o.remote[id] = replaceTrack(o.remote[id], track)
			o.emitMedia(MediaUpdate{Participant: id, Tracks: slices.Clone(o.remote[id])})
		},
	})
	link.Bind(o.post)
	o.links[id] = link
	o.markLinked(id)
	log.Info().Str("module", "app.orch").Str("remote", string(id)).Str("role", role.String()).Msg("link created")
	return link
}

func (o *Orchestrator) markLinked(id domain.ParticipantID) {
	if p, ok := o.members.Participant(id); ok {
		p.Stage = domain.StageLinked
	}
}

// replaceTrack drops the previous track of the same kind. A remote sends
// at most one audio and one video track, so a new one means the old ended.
func replaceTrack(tracks []*webrtc.TrackRemote, track *webrtc.TrackRemote) []*webrtc.TrackRemote {
	kept := slices.DeleteFunc(slices.Clone(tracks), func(t *webrtc.TrackRemote) bool {
		return t == track || t.Kind() == track.Kind()
	})
	return append(kept, track)
}

func (o *Orchestrator) removeLink(id domain.ParticipantID) {
	link, ok := o.links[id]
	if !ok {
		return
	}
	o.retired[id] = struct{}{}
	delete(o.links, id)
	delete(o.remote, id)
	link.Close()
	log.Info().Str("module", "app.orch").Str("remote", string(id)).Str("state", link.State().String()).Msg("link removed")
	o.emitMedia(MediaUpdate{Participant: id, Removed: true})
}

func (o *Orchestrator) closeAll() {
	for _, id := range o.linkIDs() {
		o.removeLink(id)
	}
}

func (o *Orchestrator) linkIDs() []domain.ParticipantID {
	ids := make([]domain.ParticipantID, 0, len(o.links))
	for id := range o.links {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// report resolves a link error: stale messages are dropped silently,
// failures were already escalated through OnFailed.
func (o *Orchestrator) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNegotiationStale), errors.Is(err, core.ErrNegotiationFailed):
	case errors.Is(err, core.ErrClosed):
		log.Debug().Err(err).Str("module", "app.orch").Msg("link closed")
	default:
		o.emitError(err)
	}
}

func (o *Orchestrator) logger(remote domain.ParticipantID, kind domain.SignalKind) zerolog.Logger {
	return log.With().Str("module", "app.orch").Str("remote", string(remote)).Str("kind", string(kind)).Logger()
}

func (o *Orchestrator) emitMedia(u MediaUpdate) {
	for _, fn := range o.onMedia {
		fn(u)
	}
}

func (o *Orchestrator) emitError(err error) {
	log.Error().Err(err).Str("module", "app.orch").Msg("session error")
	for _, fn := range o.onError {
		fn(err)
	}
}
