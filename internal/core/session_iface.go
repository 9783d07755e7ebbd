package core

import "github.com/dkeye/Call/internal/domain"

// MemberSession binds a relay-side participant and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() domain.ParticipantID
	Signal() SignalConnection
}
