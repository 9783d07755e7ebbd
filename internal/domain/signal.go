package domain

import "encoding/json"

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
	// SignalReady tells the target that the sender's signaling subscriptions are active.
	SignalReady SignalKind = "ready"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate, SignalReady:
		return true
	}
	return false
}

// SignalMessage is the unit exchanged through the relay.
// An empty TargetID means room broadcast.
type SignalMessage struct {
	RoomID   RoomID
	SenderID ParticipantID
	TargetID ParticipantID
	Kind     SignalKind
	Payload  json.RawMessage
}

func (m SignalMessage) Broadcast() bool { return m.TargetID == "" }
