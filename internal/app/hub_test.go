package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Call/internal/adapters/presence"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	env, err := protocol.Parse(f)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) take() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

func types(envs []protocol.Envelope) []protocol.Type {
	out := make([]protocol.Type, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

type hubFixture struct {
	hub      *Hub
	conns    map[domain.ParticipantID]*fakeConn
	canceled map[domain.ParticipantID]bool
}

func newHubFixture() *hubFixture {
	return &hubFixture{
		hub: &Hub{
			Registry: NewRegistry(),
			Rooms:    NewRoomManager(),
			Policy:   DropPolicy{},
		},
		conns:    make(map[domain.ParticipantID]*fakeConn),
		canceled: make(map[domain.ParticipantID]bool),
	}
}

func (f *hubFixture) connect(id domain.ParticipantID, client string) *fakeConn {
	c := &fakeConn{}
	f.conns[id] = c
	f.hub.Connect(core.NewMemberSession(id, c), client, func() { f.canceled[id] = true })
	return c
}

func TestHubJoinAnnouncesBothWays(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	a := f.connect("a", "")
	b := f.connect("b", "")

	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	got := a.take()
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeJoined, got[0].Type)
	assert.Equal(t, domain.ParticipantID("a"), got[0].ParticipantID)

	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	gotB := b.take()
	require.Equal(t, []protocol.Type{protocol.TypeJoined, protocol.TypeParticipantJoined}, types(gotB))
	assert.Equal(t, domain.ParticipantID("a"), gotB[1].ParticipantID)
	assert.True(t, gotB[1].Existing)

	gotA := a.take()
	require.Equal(t, []protocol.Type{protocol.TypeParticipantJoined}, types(gotA))
	assert.Equal(t, domain.ParticipantID("b"), gotA[0].ParticipantID)
	assert.False(t, gotA[0].Existing)
}

func TestHubRejoinSameRoomResendsJoined(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	a := f.connect("a", "")
	b := f.connect("b", "")
	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	a.take()
	b.take()

	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	assert.Equal(t, []protocol.Type{protocol.TypeJoined}, types(b.take()))
	assert.Empty(t, a.take())
}

func TestHubJoinOtherRoomLeavesFirst(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	a := f.connect("a", "")
	b := f.connect("b", "")
	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	a.take()
	b.take()

	require.NoError(t, f.hub.Join(ctx, "b", "room2"))
	gotA := a.take()
	require.Equal(t, []protocol.Type{protocol.TypeParticipantLeft}, types(gotA))
	assert.Equal(t, domain.ParticipantID("b"), gotA[0].ParticipantID)
	assert.Equal(t, []protocol.Type{protocol.TypeJoined}, types(b.take()))
}

func TestHubSignalStampsAndTargets(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	a := f.connect("a", "")
	b := f.connect("b", "")
	c := f.connect("c", "")
	for _, id := range []domain.ParticipantID{"a", "b", "c"} {
		require.NoError(t, f.hub.Join(ctx, id, "room1"))
	}
	a.take()
	b.take()
	c.take()

	env := protocol.NewSignal(domain.SignalMessage{
		RoomID:   "spoofed",
		SenderID: "c",
		TargetID: "b",
		Kind:     domain.SignalReady,
	})
	require.NoError(t, f.hub.Signal("a", env))
	gotB := b.take()
	require.Len(t, gotB, 1)
	assert.Equal(t, domain.ParticipantID("a"), gotB[0].SenderID)
	assert.Equal(t, domain.RoomID("room1"), gotB[0].RoomID)
	assert.Empty(t, c.take())

	env.TargetID = ""
	require.NoError(t, f.hub.Signal("a", env))
	assert.Len(t, b.take(), 1)
	assert.Len(t, c.take(), 1)
	assert.Empty(t, a.take(), "sender never receives its own broadcast")
}

func TestHubSignalErrors(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	f.connect("a", "")
	env := protocol.NewSignal(domain.SignalMessage{Kind: domain.SignalReady})

	assert.ErrorIs(t, f.hub.Signal("a", env), ErrNotInRoom)

	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	env.TargetID = "ghost"
	assert.ErrorIs(t, f.hub.Signal("a", env), ErrUnknownTarget)
	env.TargetID = "a"
	assert.ErrorIs(t, f.hub.Signal("a", env), ErrUnknownTarget)
}

func TestHubLeaveAndDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	a := f.connect("a", "")
	b := f.connect("b", "")
	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	a.take()
	b.take()

	f.hub.Leave(ctx, "b")
	assert.Equal(t, []protocol.Type{protocol.TypeLeft}, types(b.take()))
	assert.Equal(t, []protocol.Type{protocol.TypeParticipantLeft}, types(a.take()))

	f.hub.Disconnect(ctx, "a")
	_, ok := f.hub.Rooms.Get("room1")
	assert.False(t, ok, "empty room is stopped")
	_, ok = f.hub.Registry.GetSession("a")
	assert.False(t, ok)

	f.hub.Leave(ctx, "b")
	assert.Empty(t, b.take(), "leave outside a room is silent")
}

func TestHubReconnectEvictsPreviousIdentity(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	a := f.connect("a", "")
	f.connect("old", "browser-1")
	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	require.NoError(t, f.hub.Join(ctx, "old", "room1"))
	a.take()

	f.connect("new", "browser-1")
	assert.True(t, f.canceled["old"])
	gotA := a.take()
	require.Equal(t, []protocol.Type{protocol.TypeParticipantLeft}, types(gotA))
	assert.Equal(t, domain.ParticipantID("old"), gotA[0].ParticipantID)
	_, ok := f.hub.Registry.GetSession("new")
	assert.True(t, ok)
}

func TestHubParticipantsUsesPresence(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	f.connect("a", "")
	f.connect("b", "")
	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	require.NoError(t, f.hub.Join(ctx, "a", "room1"))

	ids, err := f.hub.Participants(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"a", "b"}, ids)

	f.hub.Presence = presence.NewMemory()
	require.NoError(t, f.hub.Presence.Add(ctx, "room9", "z"))
	ids, err = f.hub.Participants(ctx, "room9")
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"z"}, ids)
}

func TestHubSlowConsumerKicked(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	f.hub.Policy = SimplePolicy{}
	a := f.connect("a", "")
	b := f.connect("b", "")
	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	a.take()

	b.mu.Lock()
	b.full = true
	b.mu.Unlock()
	require.NoError(t, f.hub.Signal("a", protocol.NewSignal(domain.SignalMessage{TargetID: "b", Kind: domain.SignalReady})))
	assert.True(t, f.canceled["b"])
	_, ok := f.hub.Registry.GetSession("b")
	assert.False(t, ok)
}

func TestHubSlowConsumerKeptWhenDropping(t *testing.T) {
	ctx := context.Background()
	f := newHubFixture()
	policy, err := PolicyFor("drop")
	require.NoError(t, err)
	f.hub.Policy = policy
	a := f.connect("a", "")
	b := f.connect("b", "")
	require.NoError(t, f.hub.Join(ctx, "a", "room1"))
	require.NoError(t, f.hub.Join(ctx, "b", "room1"))
	a.take()

	b.mu.Lock()
	b.full = true
	b.mu.Unlock()
	require.NoError(t, f.hub.Signal("a", protocol.NewSignal(domain.SignalMessage{TargetID: "b", Kind: domain.SignalReady})))
	assert.False(t, f.canceled["b"])
	_, ok := f.hub.Registry.GetSession("b")
	assert.True(t, ok)
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor("")
	require.NoError(t, err)
	assert.Equal(t, KickMember, p.OnBackPressure(nil, nil))

	p, err = PolicyFor("kick")
	require.NoError(t, err)
	assert.Equal(t, SimplePolicy{}, p)

	_, err = PolicyFor("ignore")
	assert.Error(t, err)
}
