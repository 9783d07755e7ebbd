// Package channel is the call client's WebSocket connection to the relay.
package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const writeWait = 5 * time.Second

type Options struct {
	URL string
	// Token is the opaque identity credential, sent as a bearer token.
	Token            string
	SendBuffer       int
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	PingPeriod       time.Duration
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = 500 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
}

// Client implements core.SignalChannel over gorilla/websocket.
type Client struct {
	opts   Options
	dialer *websocket.Dialer

	mu     sync.RWMutex
	conn   *wsConn
	cancel context.CancelFunc
	wg     conc.WaitGroup

	subsMu  sync.RWMutex
	subs    map[protocol.Type]map[int]func(protocol.Envelope)
	nextSub int
}

var _ core.SignalChannel = (*Client)(nil)

func New(opts Options) *Client {
	opts.defaults()
	jar, _ := cookiejar.New(nil)
	return &Client{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Jar:              jar,
		},
		subs: make(map[protocol.Type]map[int]func(protocol.Envelope)),
	}
}

// Connect dials the relay and keeps the connection alive until ctx is done
// or Disconnect is called. Only the first dial is reported; later losses are
// retried in the background with exponential backoff.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(runCtx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		return core.WrapError("connect", core.ErrChannelUnavailable, err)
	}
	c.setConn(conn)
	c.wg.Go(func() { c.supervise(runCtx, conn) })
	return nil
}

// Disconnect closes the connection and stops reconnecting.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	c.wg.Wait()
	return nil
}

// Send drops env with ErrChannelUnavailable while no connection is up.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return core.WrapError("send "+string(env.Type), core.ErrChannelUnavailable, nil)
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal.channel").Str("type", string(env.Type)).Msg("frame dropped")
		return core.WrapError("send "+string(env.Type), core.ErrChannelUnavailable, err)
	}
	return nil
}

func (c *Client) Subscribe(t protocol.Type, handler func(protocol.Envelope)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextSub
	c.nextSub++
	if c.subs[t] == nil {
		c.subs[t] = make(map[int]func(protocol.Envelope))
	}
	c.subs[t][id] = handler
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs[t], id)
	}
}

func (c *Client) emit(env protocol.Envelope) {
	c.subsMu.RLock()
	handlers := make([]func(protocol.Envelope), 0, len(c.subs[env.Type]))
	for id := 0; id < c.nextSub; id++ {
		if h, ok := c.subs[env.Type][id]; ok {
			handlers = append(handlers, h)
		}
	}
	c.subsMu.RUnlock()
	for _, h := range handlers {
		h(env)
	}
}

func (c *Client) setConn(conn *wsConn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) dial(ctx context.Context) (*wsConn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	log.Info().Str("module", "signal.channel").Str("url", c.opts.URL).Msg("connected")
	return newWSConn(ws, c.opts.SendBuffer), nil
}

func (c *Client) supervise(ctx context.Context, conn *wsConn) {
	for {
		c.serve(ctx, conn)
		c.setConn(nil)
		c.emit(protocol.Envelope{Type: protocol.TypeDisconnected})
		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("module", "signal.channel").Msg("connection lost, reconnecting")
		if conn = c.redial(ctx); conn == nil {
			return
		}
		c.setConn(conn)
		c.emit(protocol.Envelope{Type: protocol.TypeConnected})
	}
}

func (c *Client) redial(ctx context.Context) *wsConn {
	for attempt := 0; ; attempt++ {
		wait := backoff(c.opts.ReconnectInitial, c.opts.ReconnectMax, attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		conn, err := c.dial(ctx)
		if err == nil {
			return conn
		}
		log.Warn().Err(err).Str("module", "signal.channel").Int("attempt", attempt+1).Dur("waited", wait).Msg("reconnect failed")
	}
}

// serve pumps one connection until it fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *wsConn) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() {
		<-connCtx.Done()
		conn.Close()
	})
	wg.Go(func() {
		defer cancel()
		c.writePump(connCtx, conn)
	})
	c.readPump(conn)
	cancel()
	wg.Wait()
}
