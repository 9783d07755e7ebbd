package core

import (
	"context"

	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/webrtc/v4"
)

// PeerTransport is the platform peer-connection primitive one PeerLink drives.
type PeerTransport interface {
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback discards a pending local offer.
	Rollback() error
	AddICECandidate(webrtc.ICECandidateInit) error
	// SetTracks replaces the outgoing track set: current senders are removed, then tracks are added.
	SetTracks([]webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// TransportFactory builds a fresh transport for a remote participant.
type TransportFactory func(remote domain.ParticipantID) (PeerTransport, error)

// CaptureDevice is the platform capture API.
type CaptureDevice interface {
	// Open fails with ErrDeviceUnavailable when the device is missing or denied.
	Open(ctx context.Context, sel domain.DeviceSelector) (CaptureStream, error)
}

// CaptureStream is a live set of local tracks from one device.
type CaptureStream interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}
