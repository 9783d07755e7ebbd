package peer

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Call/internal/app/loop"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxICEFailures is the number of consecutive ICE failures after which the link fails.
const maxICEFailures = 2

// Signaler delivers link-originated signaling to the remote participant.
type Signaler interface {
	Signal(kind domain.SignalKind, target domain.ParticipantID, payload json.RawMessage) error
}

type Config struct {
	Local     domain.ParticipantID
	Remote    domain.ParticipantID
	Role      Role
	Transport core.PeerTransport
	Signaler  Signaler
	Tracks    []webrtc.TrackLocal

	OnStateChange func(from, to State)
	// OnFailed is called once when the link enters Failed.
	OnFailed func(err error)
	OnTrack  func(track *webrtc.TrackRemote)
}

// Link is the negotiation state machine toward one remote participant.
//
// A Link is not safe for concurrent use: every method must run on the
// session loop. Transport callbacks are re-posted there by Bind.
type Link struct {
	cfg       Config
	transport core.PeerTransport
	log       zerolog.Logger

	state      State
	negotiated bool

	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	pending    []webrtc.ICECandidateInit

	tracks      []webrtc.TrackLocal
	tracksDirty bool
	renegotiate bool
	iceRestart  bool
	iceFailures int
}

func New(cfg Config) *Link {
	l := &Link{
		cfg:       cfg,
		transport: cfg.Transport,
		tracks:    cfg.Tracks,
		log: log.With().
			Str("module", "peer.link").
			Str("local", string(cfg.Local)).
			Str("remote", string(cfg.Remote)).
			Str("role", cfg.Role.String()).
			Logger(),
	}
	if len(l.tracks) > 0 {
		if err := l.transport.SetTracks(l.tracks); err != nil {
			l.log.Warn().Err(err).Msg("attach initial tracks")
		}
	}
	return l
}

// Bind routes transport callbacks through post so they run on the session loop.
func (l *Link) Bind(post loop.Poster) {
	l.transport.OnICECandidate(func(c webrtc.ICECandidateInit) {
		post(func() { l.sendCandidate(c) })
	})
	l.transport.OnStateChange(func(s webrtc.PeerConnectionState) {
		post(func() { l.HandleConnectionState(s) })
	})
	l.transport.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		post(func() {
			if l.state.Terminal() {
				return
			}
			l.log.Info().Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
			if l.cfg.OnTrack != nil {
				l.cfg.OnTrack(track)
			}
		})
	})
}

func (l *Link) Remote() domain.ParticipantID { return l.cfg.Remote }
func (l *Link) Role() Role                   { return l.cfg.Role }
func (l *Link) State() State                 { return l.state }
func (l *Link) PendingCandidates() int       { return len(l.pending) }

func (l *Link) LocalDescription() *webrtc.SessionDescription  { return l.localDesc }
func (l *Link) RemoteDescription() *webrtc.SessionDescription { return l.remoteDesc }

// Offer starts a negotiation from Idle, or a renegotiation from Stable.
// While a negotiation is in flight the request is deferred until Stable.
func (l *Link) Offer() error {
	switch l.state {
	case Closed, Failed:
		return core.PeerError("offer", l.cfg.Remote, core.ErrClosed, nil)
	case HaveLocalOffer, HaveRemoteOffer:
		l.renegotiate = true
		return nil
	}
	return l.startOffer()
}

// HandleOffer applies a remote offer and answers it.
func (l *Link) HandleOffer(desc webrtc.SessionDescription) error {
	switch l.state {
	case Closed, Failed, HaveRemoteOffer:
		return l.stale("offer", "link "+l.state.String())
	case HaveLocalOffer:
		if l.cfg.Local.Less(l.cfg.Remote) {
			return l.stale("offer", "glare: keeping local offer")
		}
		l.log.Info().Msg("glare: yielding local offer")
		if err := l.transport.Rollback(); err != nil {
			return l.fail("rollback", err)
		}
		if l.negotiated {
			l.renegotiate = true
		}
		l.localDesc = nil
		l.setState(Idle)
	case Stable:
		if l.remoteDesc != nil && l.remoteDesc.Type == webrtc.SDPTypeOffer && l.remoteDesc.SDP == desc.SDP {
			return l.stale("offer", "duplicate")
		}
	}

	if err := l.transport.SetRemoteDescription(desc); err != nil {
		return l.fail("set remote offer", err)
	}
	if l.state.Terminal() {
		return nil
	}
	l.remoteDesc = &desc
	l.setState(HaveRemoteOffer)
	l.flushCandidates()

	if l.tracksDirty {
		l.applyTracks()
	}
	answer, err := l.transport.CreateAnswer()
	if err != nil {
		return l.fail("create answer", err)
	}
	if l.state.Terminal() {
		return nil
	}
	l.localDesc = &answer
	l.send(domain.SignalAnswer, answer)
	l.reachStable()
	return nil
}

// HandleAnswer completes a local offer. Answers in any other state are stale.
func (l *Link) HandleAnswer(desc webrtc.SessionDescription) error {
	if l.state != HaveLocalOffer {
		return l.stale("answer", "link "+l.state.String())
	}
	if err := l.transport.SetRemoteDescription(desc); err != nil {
		return l.fail("set remote answer", err)
	}
	if l.state.Terminal() {
		return nil
	}
	l.remoteDesc = &desc
	l.flushCandidates()
	l.reachStable()
	return nil
}

// HandleCandidate applies a remote candidate, or buffers it until a
// remote description exists.
func (l *Link) HandleCandidate(c webrtc.ICECandidateInit) error {
	if l.state.Terminal() {
		return l.stale("candidate", "link "+l.state.String())
	}
	if l.remoteDesc == nil {
		l.pending = append(l.pending, c)
		l.log.Debug().Int("buffered", len(l.pending)).Msg("candidate buffered")
		return nil
	}
	if err := l.transport.AddICECandidate(c); err != nil {
		l.log.Warn().Err(err).Msg("add candidate")
		return core.PeerError("add candidate", l.cfg.Remote, core.ErrNegotiationStale, err)
	}
	return nil
}

// HandleConnectionState reacts to transport connectivity. The first ICE
// failure triggers one ICE restart; a second consecutive failure fails the link.
func (l *Link) HandleConnectionState(s webrtc.PeerConnectionState) {
	if l.state.Terminal() {
		return
	}
	l.log.Info().Str("connection_state", s.String()).Msg("transport state")
	switch s {
	case webrtc.PeerConnectionStateConnected:
		l.iceFailures = 0
	case webrtc.PeerConnectionStateFailed:
		l.iceFailures++
		if l.iceFailures >= maxICEFailures {
			_ = l.fail("ice", errors.New("ice failed after restart"))
			return
		}
		l.iceRestart = true
		if l.state == Stable || l.state == Idle {
			if err := l.startOffer(); err != nil {
				l.log.Warn().Err(err).Msg("ice restart")
			}
			return
		}
		l.renegotiate = true
	}
}

// SetTracks replaces the outgoing track set. A Stable link renegotiates at
// once; a link mid-negotiation does so when it next reaches Stable.
func (l *Link) SetTracks(tracks []webrtc.TrackLocal) error {
	if l.state.Terminal() {
		return nil
	}
	l.tracks = tracks
	switch l.state {
	case Idle:
		l.applyTracks()
		return nil
	case Stable:
		l.tracksDirty = true
		return l.startOffer()
	default:
		l.tracksDirty = true
		l.renegotiate = true
		return nil
	}
}

// Close releases the link. Closed is terminal; closing a Failed link only
// releases its resources.
func (l *Link) Close() {
	if l.state == Closed {
		return
	}
	if l.state != Failed {
		l.setState(Closed)
	}
	l.release()
}

func (l *Link) startOffer() error {
	if l.tracksDirty {
		l.applyTracks()
	}
	restart := l.iceRestart
	l.iceRestart = false
	offer, err := l.transport.CreateOffer(restart)
	if err != nil {
		return l.fail("create offer", err)
	}
	if l.state.Terminal() {
		return nil
	}
	l.localDesc = &offer
	l.setState(HaveLocalOffer)
	l.send(domain.SignalOffer, offer)
	return nil
}

func (l *Link) reachStable() {
	l.negotiated = true
	l.setState(Stable)
	if !l.renegotiate {
		return
	}
	l.renegotiate = false
	if err := l.startOffer(); err != nil {
		l.log.Warn().Err(err).Msg("deferred renegotiation")
	}
}

func (l *Link) applyTracks() {
	l.tracksDirty = false
	if err := l.transport.SetTracks(l.tracks); err != nil {
		l.log.Warn().Err(err).Msg("replace tracks")
	}
}

func (l *Link) flushCandidates() {
	if len(l.pending) == 0 {
		return
	}
	pending := l.pending
	l.pending = nil
	for _, c := range pending {
		if err := l.transport.AddICECandidate(c); err != nil {
			l.log.Warn().Err(err).Msg("add buffered candidate")
		}
	}
	l.log.Debug().Int("flushed", len(pending)).Msg("buffered candidates applied")
}

func (l *Link) send(kind domain.SignalKind, desc webrtc.SessionDescription) {
	payload, err := protocol.EncodeDescription(desc)
	if err != nil {
		l.log.Error().Err(err).Str("kind", string(kind)).Msg("encode description")
		return
	}
	l.signal(kind, payload)
}

func (l *Link) sendCandidate(c webrtc.ICECandidateInit) {
	if l.state.Terminal() {
		return
	}
	payload, err := protocol.EncodeCandidate(c)
	if err != nil {
		l.log.Error().Err(err).Msg("encode candidate")
		return
	}
	l.signal(domain.SignalCandidate, payload)
}

func (l *Link) signal(kind domain.SignalKind, payload json.RawMessage) {
	if err := l.cfg.Signaler.Signal(kind, l.cfg.Remote, payload); err != nil {
		// Stale negotiation has no value after a reconnect; the session restarts it.
		l.log.Warn().Err(err).Str("kind", string(kind)).Msg("signal dropped")
	}
}

func (l *Link) setState(to State) {
	from := l.state
	if from == to {
		return
	}
	l.state = to
	l.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	if l.cfg.OnStateChange != nil {
		l.cfg.OnStateChange(from, to)
	}
}

func (l *Link) stale(op, reason string) error {
	l.log.Debug().Str("op", op).Str("reason", reason).Msg("stale message ignored")
	return core.PeerError(op, l.cfg.Remote, core.ErrNegotiationStale, errors.New(reason))
}

func (l *Link) fail(op string, cause error) error {
	err := core.PeerError(op, l.cfg.Remote, core.ErrNegotiationFailed, cause)
	if l.state.Terminal() {
		return err
	}
	l.log.Error().Err(cause).Str("op", op).Msg("negotiation failed")
	l.setState(Failed)
	l.release()
	if l.cfg.OnFailed != nil {
		l.cfg.OnFailed(err)
	}
	return err
}

func (l *Link) release() {
	l.pending = nil
	l.localDesc = nil
	l.remoteDesc = nil
	l.tracks = nil
	if l.transport == nil {
		return
	}
	if err := l.transport.Close(); err != nil {
		l.log.Warn().Err(err).Msg("close transport")
	}
	l.transport = nil
}
