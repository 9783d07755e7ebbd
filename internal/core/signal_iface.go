package core

//go:generate mockgen -destination=mocks/signal_channel_mock.go -package=mocks . SignalChannel
//go:generate mockgen -destination=mocks/capture_mock.go -package=mocks . CaptureDevice,CaptureStream

import (
	"context"

	"github.com/dkeye/Call/internal/protocol"
)

// Frame is a raw encoded protocol frame.
type Frame []byte

// SignalConnection abstracts the relay-side messaging transport of one client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalChannel is the client's persistent connection to the relay.
//
// Send fails with ErrChannelUnavailable while the transport is down; the
// frame is dropped, never queued. Handlers registered with Subscribe are
// called on the channel's read goroutine in relay-arrival order. Besides the
// wire types, the channel emits protocol.TypeDisconnected when the transport
// is lost and protocol.TypeConnected after every successful reconnect.
// Reconnecting does not re-join a room.
type SignalChannel interface {
	Connect(ctx context.Context) error
	Send(protocol.Envelope) error
	Subscribe(t protocol.Type, handler func(protocol.Envelope)) (unsubscribe func())
	Disconnect() error
}
