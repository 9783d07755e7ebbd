package protocol

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TargetedOffer(t *testing.T) {
	raw := []byte(`{"v":1,"type":"signal","roomId":"r1","senderId":"a","targetId":"b","kind":"offer","payload":{"type":"offer","sdp":"v=0"}}`)

	env, err := Parse(raw)
	require.NoError(t, err)

	msg := env.Signal()
	assert.Equal(t, domain.RoomID("r1"), msg.RoomID)
	assert.Equal(t, domain.ParticipantID("a"), msg.SenderID)
	assert.Equal(t, domain.ParticipantID("b"), msg.TargetID)
	assert.False(t, msg.Broadcast())

	desc, err := DecodeDescription(msg.Kind, msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, desc.Type)
	assert.Equal(t, "v=0", desc.SDP)
}

func TestParse_BroadcastCandidateWithoutTarget(t *testing.T) {
	raw := []byte(`{"v":1,"type":"signal","roomId":"r1","senderId":"a","kind":"candidate",
		"payload":{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}}`)

	env, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, env.Signal().Broadcast())

	c, err := DecodeCandidate(env.Payload)
	require.NoError(t, err)
	require.NotNil(t, c.SDPMid)
	assert.Equal(t, "0", *c.SDPMid)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":       `{"v":1,"type":"ping","extra":true}`,
		"wrong version":       `{"v":2,"type":"ping"}`,
		"missing version":     `{"type":"ping"}`,
		"unknown type":        `{"v":1,"type":"offer"}`,
		"lifecycle on wire":   `{"v":1,"type":"connected"}`,
		"join without room":   `{"v":1,"type":"join-room"}`,
		"bad kind":            `{"v":1,"type":"signal","kind":"bye","payload":{}}`,
		"offer w/o payload":   `{"v":1,"type":"signal","kind":"offer"}`,
		"trailing data":       `{"v":1,"type":"ping"}{}`,
		"legacy {offer} form": `{"room":"r1","offer":{"type":"offer","sdp":"v=0"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParse_ReadyNeedsNoPayload(t *testing.T) {
	env, err := Parse([]byte(`{"v":1,"type":"signal","roomId":"r1","senderId":"b","targetId":"a","kind":"ready"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SignalReady, env.Kind)
}

func TestEncode_StampsVersion(t *testing.T) {
	b, err := Encode(Envelope{Type: TypeLeaveRoom})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.EqualValues(t, 1, m["v"])

	_, err = Parse(b)
	assert.NoError(t, err)
}

func TestDecodeDescription_KindMismatch(t *testing.T) {
	raw, err := EncodeDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	require.NoError(t, err)

	_, err = DecodeDescription(domain.SignalOffer, raw)
	assert.Error(t, err)

	desc, err := DecodeDescription(domain.SignalAnswer, raw)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, desc.Type)
}
