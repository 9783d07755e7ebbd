package core

import "github.com/dkeye/Call/internal/domain"

type memberSession struct {
	id   domain.ParticipantID
	conn SignalConnection
}

func NewMemberSession(id domain.ParticipantID, conn SignalConnection) MemberSession {
	return &memberSession{id: id, conn: conn}
}

func (m *memberSession) ID() domain.ParticipantID { return m.id }
func (m *memberSession) Signal() SignalConnection { return m.conn }
