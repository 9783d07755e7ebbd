package orch

import (
	"context"
	"fmt"
	"testing"

	"github.com/dkeye/Call/internal/app/media"
	"github.com/dkeye/Call/internal/app/membership"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// bus is an in-memory relay plus a single task queue shared by every client.
type bus struct {
	queue   []func()
	members map[domain.RoomID][]*fakeChannel
	signals []protocol.Envelope
}

func newBus() *bus {
	return &bus{members: make(map[domain.RoomID][]*fakeChannel)}
}

func (b *bus) post(fn func()) bool {
	b.queue = append(b.queue, fn)
	return true
}

func (b *bus) drain() {
	for len(b.queue) > 0 {
		fn := b.queue[0]
		b.queue = b.queue[1:]
		fn()
	}
}

func (b *bus) deliver(to *fakeChannel, env protocol.Envelope) {
	b.post(func() { to.emit(env) })
}

func (b *bus) handle(from *fakeChannel, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoinRoom:
		from.room = env.RoomID
		b.deliver(from, protocol.Joined(env.RoomID, from.id))
		for _, m := range b.members[env.RoomID] {
			b.deliver(from, protocol.ParticipantJoined(env.RoomID, m.id, true))
			b.deliver(m, protocol.ParticipantJoined(env.RoomID, from.id, false))
		}
		b.members[env.RoomID] = append(b.members[env.RoomID], from)
	case protocol.TypeLeaveRoom:
		b.remove(from)
	case protocol.TypeSignal:
		env.SenderID = from.id
		env.RoomID = from.room
		b.signals = append(b.signals, env)
		for _, m := range b.members[from.room] {
			if m == from || (env.TargetID != "" && env.TargetID != m.id) {
				continue
			}
			b.deliver(m, env)
		}
	}
}

func (b *bus) remove(c *fakeChannel) {
	room := c.room
	kept := b.members[room][:0]
	for _, m := range b.members[room] {
		if m != c {
			kept = append(kept, m)
		}
	}
	b.members[room] = kept
	c.room = ""
	for _, m := range kept {
		b.deliver(m, protocol.ParticipantLeft(room, c.id))
	}
}

func (b *bus) count(kind domain.SignalKind) int {
	n := 0
	for _, env := range b.signals {
		if env.Kind == kind {
			n++
		}
	}
	return n
}

type fakeChannel struct {
	bus  *bus
	id   domain.ParticipantID
	room domain.RoomID
	down bool
	subs map[protocol.Type][]func(protocol.Envelope)
}

func (c *fakeChannel) Connect(context.Context) error { return nil }
func (c *fakeChannel) Disconnect() error             { return nil }

func (c *fakeChannel) Send(env protocol.Envelope) error {
	if c.down {
		return core.ErrChannelUnavailable
	}
	c.bus.handle(c, env)
	return nil
}

func (c *fakeChannel) Subscribe(t protocol.Type, h func(protocol.Envelope)) func() {
	c.subs[t] = append(c.subs[t], h)
	return func() { delete(c.subs, t) }
}

func (c *fakeChannel) emit(env protocol.Envelope) {
	for _, h := range c.subs[env.Type] {
		h(env)
	}
}

type fakeTransport struct {
	local, remote domain.ParticipantID
	offers        int
	answers       int
	candidates    []string
	trackSets     int
	closed        bool
	remoteErr     error
	remoteDescs   []webrtc.SessionDescription
	onTrack       func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func (f *fakeTransport) CreateOffer(bool) (webrtc.SessionDescription, error) {
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("%s-offer-%d", f.local, f.offers)}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("%s-answer-%d", f.local, f.answers)}, nil
}

func (f *fakeTransport) SetRemoteDescription(d webrtc.SessionDescription) error {
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remoteDescs = append(f.remoteDescs, d)
	return nil
}

func (f *fakeTransport) Rollback() error { return nil }

func (f *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

func (f *fakeTransport) SetTracks([]webrtc.TrackLocal) error {
	f.trackSets++
	return nil
}

func (f *fakeTransport) OnICECandidate(func(webrtc.ICECandidateInit))   {}
func (f *fakeTransport) OnStateChange(func(webrtc.PeerConnectionState)) {}
func (f *fakeTransport) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	f.onTrack = fn
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

type fakeStream struct{ tracks []webrtc.TrackLocal }

func (s *fakeStream) Tracks() []webrtc.TrackLocal { return s.tracks }
func (s *fakeStream) Stop()                       {}

type fakeDevice struct{ t *testing.T }

func (d fakeDevice) Open(_ context.Context, sel domain.DeviceSelector) (core.CaptureStream, error) {
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video-"+sel.String(), "call")
	require.NoError(d.t, err)
	return &fakeStream{tracks: []webrtc.TrackLocal{tr}}, nil
}

type client struct {
	ch         *fakeChannel
	members    *membership.Membership
	media      *media.Pipeline
	orch       *Orchestrator
	transports map[domain.ParticipantID]*fakeTransport
	updates    []MediaUpdate
	errs       []error
}

func newClient(t *testing.T, b *bus, id domain.ParticipantID) *client {
	c := &client{
		ch:         &fakeChannel{bus: b, id: id, subs: make(map[protocol.Type][]func(protocol.Envelope))},
		transports: make(map[domain.ParticipantID]*fakeTransport),
	}
	c.members = membership.New(c.ch, b.post)
	c.media = media.NewPipeline(fakeDevice{t: t})
	c.orch = New(Config{
		Channel:    c.ch,
		Membership: c.members,
		Media:      c.media,
		Post:       b.post,
		Transports: func(remote domain.ParticipantID) (core.PeerTransport, error) {
			tr := &fakeTransport{local: id, remote: remote}
			c.transports[remote] = tr
			return tr, nil
		},
	})
	c.orch.OnMedia(func(u MediaUpdate) { c.updates = append(c.updates, u) })
	c.orch.OnError(func(err error) { c.errs = append(c.errs, err) })
	return c
}

func (c *client) join(t *testing.T, room domain.RoomID) {
	t.Helper()
	_, err := c.members.Join(room)
	require.NoError(t, err)
	c.ch.bus.drain()
}
