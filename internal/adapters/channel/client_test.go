package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRelay drops its first connection after one frame and holds the
// second handshake until release is closed.
type flakyRelay struct {
	conns   atomic.Int32
	release chan struct{}
	frames  [3]chan protocol.Envelope
}

func newFlakyRelay() *flakyRelay {
	r := &flakyRelay{release: make(chan struct{})}
	for i := range r.frames {
		r.frames[i] = make(chan protocol.Envelope, 8)
	}
	return r
}

func (r *flakyRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	n := int(r.conns.Add(1))
	if n == 2 {
		<-r.release
	}
	ws, err := (&websocket.Upgrader{}).Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Parse(data)
		if err != nil {
			return
		}
		if n < len(r.frames) {
			r.frames[n] <- env
		}
		switch {
		case n == 1:
			return
		case env.Type == protocol.TypePing:
			pong, _ := protocol.Encode(protocol.Pong())
			_ = ws.WriteMessage(websocket.TextMessage, pong)
		}
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestClient_ReconnectAfterLoss(t *testing.T) {
	relay := newFlakyRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()
	released := false
	defer func() {
		if !released {
			close(relay.release)
		}
	}()

	c := New(Options{
		URL:              "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectInitial: 20 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	})
	events := make(chan protocol.Type, 8)
	pongs := make(chan protocol.Envelope, 1)
	c.Subscribe(protocol.TypeDisconnected, func(env protocol.Envelope) { events <- env.Type })
	c.Subscribe(protocol.TypeConnected, func(env protocol.Envelope) { events <- env.Type })
	c.Subscribe(protocol.TypePong, func(env protocol.Envelope) { pongs <- env })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	require.NoError(t, c.Send(protocol.JoinRoom("r1")))
	assert.Equal(t, protocol.TypeJoinRoom, waitFor(t, relay.frames[1]).Type)
	assert.Equal(t, protocol.TypeDisconnected, waitFor(t, events))

	// Down: sends are dropped, not queued.
	err := c.Send(protocol.Ping())
	assert.ErrorIs(t, err, core.ErrChannelUnavailable)

	close(relay.release)
	released = true
	assert.Equal(t, protocol.TypeConnected, waitFor(t, events))

	// The client does not rejoin by itself; the first frame on the new
	// connection is ours.
	require.NoError(t, c.Send(protocol.Ping()))
	assert.Equal(t, protocol.TypePing, waitFor(t, relay.frames[2]).Type)
	assert.Equal(t, protocol.TypePong, waitFor(t, pongs).Type)
	assert.Equal(t, int32(2), relay.conns.Load())
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/none"})
	assert.ErrorIs(t, c.Send(protocol.Ping()), core.ErrChannelUnavailable)
	assert.NoError(t, c.Disconnect())
}

func TestClient_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := New(Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, core.ErrChannelUnavailable)
	assert.ErrorIs(t, c.Send(protocol.Ping()), core.ErrChannelUnavailable)
}
