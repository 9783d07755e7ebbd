// Package protocol is the versioned JSON wire format spoken between call
// clients and the relay. Exactly one envelope shape exists per version.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dkeye/Call/internal/domain"
)

// Version1 is the current wire schema version.
const Version1 = 1

type Type string

const (
	TypeJoinRoom          Type = "join-room"
	TypeLeaveRoom         Type = "leave-room"
	TypePing              Type = "ping"
	TypePong              Type = "pong"
	TypeJoined            Type = "joined"
	TypeLeft              Type = "left"
	TypeParticipantJoined Type = "participant-joined"
	TypeParticipantLeft   Type = "participant-left"
	TypeSignal            Type = "signal"
	TypeError             Type = "error"

	// Local channel lifecycle events. Never on the wire.
	TypeConnected    Type = "connected"
	TypeDisconnected Type = "disconnected"
)

// Error codes sent by the relay.
const (
	CodeBadFrame      = "bad-frame"
	CodeBadRoom       = "bad-room"
	CodeRateLimited   = "rate-limited"
	CodeNotInRoom     = "not-in-room"
	CodeUnknownTarget = "unknown-target"
	CodeUnsupported   = "unsupported"
)

var (
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnknownType        = errors.New("protocol: unknown message type")
	ErrMissingField       = errors.New("protocol: missing field")
	ErrUnexpectedField    = errors.New("protocol: unexpected field")
)

// Envelope is one frame on the relay connection.
type Envelope struct {
	Version       int                  `json:"v"`
	Type          Type                 `json:"type"`
	RoomID        domain.RoomID        `json:"roomId,omitempty"`
	ParticipantID domain.ParticipantID `json:"participantId,omitempty"`
	Existing      bool                 `json:"existing,omitempty"`
	SenderID      domain.ParticipantID `json:"senderId,omitempty"`
	TargetID      domain.ParticipantID `json:"targetId,omitempty"`
	Kind          domain.SignalKind    `json:"kind,omitempty"`
	Payload       json.RawMessage      `json:"payload,omitempty"`
	Code          string               `json:"code,omitempty"`
	Message       string               `json:"message,omitempty"`
}

// Parse decodes and validates exactly one envelope.
func Parse(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("protocol: unexpected trailing data")
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func Encode(env Envelope) ([]byte, error) {
	if env.Version == 0 {
		env.Version = Version1
	}
	return json.Marshal(env)
}

func (e Envelope) Validate() error {
	if e.Version != Version1 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, e.Version)
	}
	signalFields := e.SenderID != "" || e.TargetID != "" || e.Kind != "" || len(e.Payload) > 0
	switch e.Type {
	case TypeJoinRoom:
		if e.RoomID == "" {
			return fmt.Errorf("%w: %s needs roomId", ErrMissingField, e.Type)
		}
		if signalFields || e.ParticipantID != "" {
			return fmt.Errorf("%w: %s", ErrUnexpectedField, e.Type)
		}
	case TypeLeaveRoom, TypePing, TypePong:
		if signalFields || e.ParticipantID != "" || e.RoomID != "" {
			return fmt.Errorf("%w: %s", ErrUnexpectedField, e.Type)
		}
	case TypeJoined, TypeParticipantJoined, TypeParticipantLeft:
		if e.RoomID == "" || e.ParticipantID == "" {
			return fmt.Errorf("%w: %s needs roomId and participantId", ErrMissingField, e.Type)
		}
		if signalFields {
			return fmt.Errorf("%w: %s", ErrUnexpectedField, e.Type)
		}
	case TypeLeft:
		if signalFields || e.ParticipantID != "" {
			return fmt.Errorf("%w: %s", ErrUnexpectedField, e.Type)
		}
	case TypeSignal:
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: signal kind %q", ErrUnknownType, e.Kind)
		}
		if e.Kind != domain.SignalReady && len(e.Payload) == 0 {
			return fmt.Errorf("%w: %s signal needs payload", ErrMissingField, e.Kind)
		}
		if e.ParticipantID != "" || e.Existing {
			return fmt.Errorf("%w: %s", ErrUnexpectedField, e.Type)
		}
	case TypeError:
		if e.Code == "" {
			return fmt.Errorf("%w: error needs code", ErrMissingField)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}

// Signal extracts the signaling message of a TypeSignal envelope.
func (e Envelope) Signal() domain.SignalMessage {
	return domain.SignalMessage{
		RoomID:   e.RoomID,
		SenderID: e.SenderID,
		TargetID: e.TargetID,
		Kind:     e.Kind,
		Payload:  e.Payload,
	}
}

func NewSignal(m domain.SignalMessage) Envelope {
	return Envelope{
		Version:  Version1,
		Type:     TypeSignal,
		RoomID:   m.RoomID,
		SenderID: m.SenderID,
		TargetID: m.TargetID,
		Kind:     m.Kind,
		Payload:  m.Payload,
	}
}

func JoinRoom(room domain.RoomID) Envelope {
	return Envelope{Version: Version1, Type: TypeJoinRoom, RoomID: room}
}

func LeaveRoom() Envelope { return Envelope{Version: Version1, Type: TypeLeaveRoom} }
func Ping() Envelope      { return Envelope{Version: Version1, Type: TypePing} }
func Pong() Envelope      { return Envelope{Version: Version1, Type: TypePong} }

func Joined(room domain.RoomID, self domain.ParticipantID) Envelope {
	return Envelope{Version: Version1, Type: TypeJoined, RoomID: room, ParticipantID: self}
}

func Left(room domain.RoomID) Envelope {
	return Envelope{Version: Version1, Type: TypeLeft, RoomID: room}
}

func ParticipantJoined(room domain.RoomID, id domain.ParticipantID, existing bool) Envelope {
	return Envelope{Version: Version1, Type: TypeParticipantJoined, RoomID: room, ParticipantID: id, Existing: existing}
}

func ParticipantLeft(room domain.RoomID, id domain.ParticipantID) Envelope {
	return Envelope{Version: Version1, Type: TypeParticipantLeft, RoomID: room, ParticipantID: id}
}

func Error(code, message string) Envelope {
	return Envelope{Version: Version1, Type: TypeError, Code: code, Message: message}
}
