package membership

import (
	"testing"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/core/mocks"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type harness struct {
	ch       *mocks.MockSignalChannel
	m        *Membership
	handlers map[protocol.Type]func(protocol.Envelope)
	joined   []domain.ParticipantID
	arrived  []domain.Participant
	left     []domain.ParticipantID
	errs     []error
}

func newHarness(t *testing.T) *harness {
	ctrl := gomock.NewController(t)
	h := &harness{
		ch:       mocks.NewMockSignalChannel(ctrl),
		handlers: make(map[protocol.Type]func(protocol.Envelope)),
	}
	h.ch.EXPECT().Subscribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(t protocol.Type, fn func(protocol.Envelope)) func() {
			h.handlers[t] = fn
			return func() { delete(h.handlers, t) }
		}).AnyTimes()

	h.m = New(h.ch, func(fn func()) bool { fn(); return true })
	h.m.OnJoined(func(_ domain.RoomID, self domain.ParticipantID) { h.joined = append(h.joined, self) })
	h.m.OnParticipantJoined(func(_ domain.RoomID, p domain.Participant) { h.arrived = append(h.arrived, p) })
	h.m.OnParticipantLeft(func(_ domain.RoomID, p domain.Participant) { h.left = append(h.left, p.ID) })
	h.m.OnError(func(err error) { h.errs = append(h.errs, err) })
	return h
}

func (h *harness) deliver(env protocol.Envelope) { h.handlers[env.Type](env) }

func TestMembership_JoinWaitsForConfirmation(t *testing.T) {
	h := newHarness(t)
	h.ch.EXPECT().Send(protocol.JoinRoom("r1")).Return(nil)

	room, err := h.m.Join("r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("r1"), room)
	assert.False(t, h.m.Joined())

	// Remote events before our own confirmation are not ours yet.
	h.deliver(protocol.ParticipantJoined("r1", "p2", true))
	assert.Empty(t, h.arrived)

	h.deliver(protocol.Joined("r1", "p1"))
	assert.True(t, h.m.Joined())
	assert.Equal(t, domain.ParticipantID("p1"), h.m.Self())
	assert.Equal(t, []domain.ParticipantID{"p1"}, h.joined)
}

func TestMembership_JoinSameRoomIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.ch.EXPECT().Send(protocol.JoinRoom("r1")).Return(nil).Times(1)

	_, err := h.m.Join("r1")
	require.NoError(t, err)
	_, err = h.m.Join("r1")
	require.NoError(t, err)
}

func TestMembership_JoinOtherRoomLeavesFirst(t *testing.T) {
	h := newHarness(t)
	gomock.InOrder(
		h.ch.EXPECT().Send(protocol.JoinRoom("a")).Return(nil),
		h.ch.EXPECT().Send(protocol.LeaveRoom()).Return(nil),
		h.ch.EXPECT().Send(protocol.JoinRoom("b")).Return(nil),
	)

	_, err := h.m.Join("a")
	require.NoError(t, err)
	h.deliver(protocol.Joined("a", "p1"))
	h.deliver(protocol.ParticipantJoined("a", "p2", true))

	_, err = h.m.Join("b")
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"p2"}, h.left)
	assert.Equal(t, domain.RoomID("b"), h.m.Target())
	assert.False(t, h.m.Joined())
}

func TestMembership_EmptyRoomGeneratesID(t *testing.T) {
	h := newHarness(t)
	h.ch.EXPECT().Send(gomock.Any()).Return(nil)

	room, err := h.m.Join("")
	require.NoError(t, err)
	assert.Len(t, string(room), domain.GeneratedRoomIDLen)
}

func TestMembership_ParticipantLifecycle(t *testing.T) {
	h := newHarness(t)
	h.ch.EXPECT().Send(gomock.Any()).Return(nil)
	_, _ = h.m.Join("r1")
	h.deliver(protocol.Joined("r1", "p1"))

	h.deliver(protocol.ParticipantJoined("r1", "p2", false))
	h.deliver(protocol.ParticipantJoined("r1", "p2", false))
	h.deliver(protocol.ParticipantJoined("r1", "p1", false))
	require.Len(t, h.arrived, 1)
	assert.Equal(t, domain.Participant{ID: "p2", Stage: domain.StageAnnounced}, h.arrived[0])

	h.deliver(protocol.ParticipantLeft("r1", "p2"))
	h.deliver(protocol.ParticipantLeft("r1", "p2"))
	assert.Equal(t, []domain.ParticipantID{"p2"}, h.left)
	_, ok := h.m.Participant("p2")
	assert.False(t, ok)
}

func TestMembership_ReconnectRejoins(t *testing.T) {
	h := newHarness(t)
	h.ch.EXPECT().Send(protocol.JoinRoom("r1")).Return(nil).Times(2)
	_, _ = h.m.Join("r1")
	h.deliver(protocol.Joined("r1", "p1"))
	h.deliver(protocol.ParticipantJoined("r1", "p3", true))
	h.deliver(protocol.ParticipantJoined("r1", "p2", true))

	h.deliver(protocol.Envelope{Type: protocol.TypeDisconnected})
	assert.Equal(t, []domain.ParticipantID{"p2", "p3"}, h.left)
	assert.False(t, h.m.Joined())
	assert.Nil(t, h.m.Room())

	h.deliver(protocol.Envelope{Type: protocol.TypeConnected})
	h.deliver(protocol.Joined("r1", "p9"))
	assert.Equal(t, domain.ParticipantID("p9"), h.m.Self())
	assert.Equal(t, []domain.ParticipantID{"p1", "p9"}, h.joined)
}

func TestMembership_JoinWhileChannelDownIsKept(t *testing.T) {
	h := newHarness(t)
	gomock.InOrder(
		h.ch.EXPECT().Send(protocol.JoinRoom("r1")).Return(core.ErrChannelUnavailable),
		h.ch.EXPECT().Send(protocol.JoinRoom("r1")).Return(nil),
	)

	_, err := h.m.Join("r1")
	assert.ErrorIs(t, err, core.ErrChannelUnavailable)
	assert.Equal(t, domain.RoomID("r1"), h.m.Target())

	h.deliver(protocol.Envelope{Type: protocol.TypeConnected})
	h.deliver(protocol.Joined("r1", "p1"))
	assert.True(t, h.m.Joined())
}

func TestMembership_RefusedRejoinFallsBackToIdle(t *testing.T) {
	h := newHarness(t)
	h.ch.EXPECT().Send(protocol.JoinRoom("r1")).Return(nil).Times(2)
	_, _ = h.m.Join("r1")
	h.deliver(protocol.Joined("r1", "p1"))

	h.deliver(protocol.Envelope{Type: protocol.TypeDisconnected})
	h.deliver(protocol.Envelope{Type: protocol.TypeConnected})
	h.deliver(protocol.Error(protocol.CodeRateLimited, "slow down"))

	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], core.ErrChannelUnavailable)
	assert.Contains(t, h.errs[0].Error(), protocol.CodeRateLimited)
	assert.False(t, h.m.Joined())
	assert.Empty(t, h.m.Target())

	// Idle again: a later joined for the old room is not taken as ours.
	h.deliver(protocol.Joined("r1", "p2"))
	assert.Equal(t, []domain.ParticipantID{"p1"}, h.joined)
}

func TestMembership_UnrelatedErrorKeepsJoin(t *testing.T) {
	h := newHarness(t)
	h.ch.EXPECT().Send(protocol.JoinRoom("r1")).Return(nil)
	_, _ = h.m.Join("r1")

	h.deliver(protocol.Error(protocol.CodeUnknownTarget, "no such participant"))
	assert.Empty(t, h.errs)
	assert.Equal(t, domain.RoomID("r1"), h.m.Target())

	h.deliver(protocol.Joined("r1", "p1"))
	assert.True(t, h.m.Joined())
}

func TestMembership_LeaveWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Leave())
}

func TestMembership_CloseUnsubscribes(t *testing.T) {
	h := newHarness(t)
	require.NotEmpty(t, h.handlers)
	h.m.Close()
	assert.Empty(t, h.handlers)
}
