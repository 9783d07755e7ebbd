package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/webrtc/v4"
)

// description is the JSON form of an offer/answer payload.
type description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// candidate mirrors RTCIceCandidateInit.
type candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func EncodeDescription(desc webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(description{Type: desc.Type.String(), SDP: desc.SDP})
}

// DecodeDescription parses an offer/answer payload and checks it matches kind.
func DecodeDescription(kind domain.SignalKind, raw json.RawMessage) (webrtc.SessionDescription, error) {
	var d description
	if err := json.Unmarshal(raw, &d); err != nil {
		return webrtc.SessionDescription{}, err
	}
	var t webrtc.SDPType
	switch d.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	if string(kind) != d.Type {
		return webrtc.SessionDescription{}, fmt.Errorf("%s signal carries sdp.type=%q", kind, d.Type)
	}
	if d.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: sdp", ErrMissingField)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func EncodeCandidate(init webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})
}

func DecodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var c candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return webrtc.ICECandidateInit{}, err
	}
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}, nil
}
