package peer

// State is the negotiation lifecycle of one PeerLink.
type State int

const (
	Idle State = iota
	HaveLocalOffer
	HaveRemoteOffer
	Stable
	Closed
	// Failed is absorbing: the orchestrator tears the link down.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HaveLocalOffer:
		return "have-local-offer"
	case HaveRemoteOffer:
		return "have-remote-offer"
	case Stable:
		return "stable"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Closed || s == Failed }

// Role is the side a link takes in its first negotiation.
type Role int

const (
	Answering Role = iota
	Offering
)

func (r Role) String() string {
	if r == Offering {
		return "offering"
	}
	return "answering"
}
