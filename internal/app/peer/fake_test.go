package peer

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/webrtc/v4"
)

type fakeTransport struct {
	offers      int
	restarts    int
	answers     int
	rollbacks   int
	remote      []webrtc.SessionDescription
	candidates  []string
	trackSets   [][]webrtc.TrackLocal
	closed      bool
	remoteErr   error
	candidateFn func(webrtc.ICECandidateInit)
	stateFn     func(webrtc.PeerConnectionState)
}

func (f *fakeTransport) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	f.offers++
	if iceRestart {
		f.restarts++
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", f.offers)}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.answers)}, nil
}

func (f *fakeTransport) SetRemoteDescription(d webrtc.SessionDescription) error {
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remote = append(f.remote, d)
	return nil
}

func (f *fakeTransport) Rollback() error {
	f.rollbacks++
	return nil
}

func (f *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

func (f *fakeTransport) SetTracks(t []webrtc.TrackLocal) error {
	f.trackSets = append(f.trackSets, t)
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit))        { f.candidateFn = fn }
func (f *fakeTransport) OnStateChange(fn func(webrtc.PeerConnectionState))      { f.stateFn = fn }
func (f *fakeTransport) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

type sent struct {
	Kind    domain.SignalKind
	Target  domain.ParticipantID
	Payload json.RawMessage
}

type fakeSignaler struct {
	sent []sent
	err  error
}

func (s *fakeSignaler) Signal(kind domain.SignalKind, target domain.ParticipantID, payload json.RawMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{kind, target, payload})
	return nil
}

func (s *fakeSignaler) kinds() []domain.SignalKind {
	out := make([]domain.SignalKind, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Kind)
	}
	return out
}

func newTestLink(local, remote domain.ParticipantID, role Role) (*Link, *fakeTransport, *fakeSignaler) {
	tr := &fakeTransport{}
	sig := &fakeSignaler{}
	l := New(Config{Local: local, Remote: remote, Role: role, Transport: tr, Signaler: sig})
	return l, tr, sig
}

func offer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func answer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
}

func cand(s string) webrtc.ICECandidateInit { return webrtc.ICECandidateInit{Candidate: s} }
