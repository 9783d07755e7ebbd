package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoomID(t *testing.T) {
	id, err := ParseRoomID("  team-sync ")
	require.NoError(t, err)
	assert.Equal(t, RoomID("team-sync"), id)

	_, err = ParseRoomID("   ")
	assert.ErrorIs(t, err, ErrRoomIDEmpty)
	_, err = ParseRoomID(strings.Repeat("x", MaxRoomIDLen+1))
	assert.ErrorIs(t, err, ErrRoomIDTooLong)
}

func TestGenerateRoomID(t *testing.T) {
	a, b := GenerateRoomID(), GenerateRoomID()
	assert.Len(t, string(a), GeneratedRoomIDLen)
	assert.NotEqual(t, a, b)
	_, err := ParseRoomID(string(a))
	assert.NoError(t, err)
}

func TestFacingToggle(t *testing.T) {
	assert.Equal(t, FacingEnvironment, FacingUser.Toggle())
	assert.Equal(t, FacingUser, FacingEnvironment.Toggle())
	assert.Equal(t, FacingEnvironment, Facing("").Toggle())
	assert.Equal(t, "user", DeviceSelector{}.String())
	assert.Equal(t, "/dev/video2", DeviceSelector{Facing: FacingUser, DeviceID: "/dev/video2"}.String())
}

func TestSignalKind(t *testing.T) {
	for _, k := range []SignalKind{SignalOffer, SignalAnswer, SignalCandidate, SignalReady} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, SignalKind("bye").Valid())
	assert.True(t, SignalMessage{}.Broadcast())
	assert.False(t, SignalMessage{TargetID: "b"}.Broadcast())
}
