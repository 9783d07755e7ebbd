package domain

type ParticipantID string

// Less is the glare tie-break order: the lower id keeps its own offer.
func (p ParticipantID) Less(other ParticipantID) bool { return p < other }

type ParticipantStage int

const (
	StageAnnounced ParticipantStage = iota
	StageLinked
	StageRemoved
)

func (s ParticipantStage) String() string {
	switch s {
	case StageAnnounced:
		return "announced"
	case StageLinked:
		return "linked"
	case StageRemoved:
		return "removed"
	}
	return "unknown"
}

// Participant is a remote room member as seen by the local side.
// Existing is true when the participant was already in the room when we joined.
type Participant struct {
	ID       ParticipantID
	Existing bool
	Stage    ParticipantStage
}
