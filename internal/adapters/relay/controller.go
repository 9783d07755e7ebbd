// Package relay is the reference relay's WebSocket endpoint. It turns client
// frames into Hub operations and never looks inside signal payloads.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type SignalWSController struct {
	Hub     *app.Hub
	Limiter *RoomRateLimiter
	opts    Options
}

func NewSignalWSController(hub *app.Hub, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{Hub: hub, Limiter: limiter, opts: opts.withDefaults()}
}

// peer is what the read side knows about its connection.
type peer struct {
	id   domain.ParticipantID
	key  string
	conn *wsConn
}

// limitKey rate-limits joins per client session so reconnecting with a fresh
// identity does not reset the window.
func limitKey(client string, id domain.ParticipantID) string {
	if client != "" {
		return client
	}
	return string(id)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves the connection until either
// side goes away. Every connection gets a fresh participant id.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.ParticipantID(uuid.NewString())
	client := c.GetString("client_token")
	logger := log.With().Str("module", "relay.signal").Str("participant", string(id)).Logger()

	// the session middleware wrote its cookie to the gin writer, which the
	// upgrader bypasses
	header := http.Header{}
	for _, v := range c.Writer.Header().Values("Set-Cookie") {
		header.Add("Set-Cookie", v)
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)
	logger.Info().Str("remote_addr", c.Request.RemoteAddr).Msg("new WS connection")

	conn := newWSConn(ws, ctl.opts.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctl.Hub.Connect(core.NewMemberSession(id, conn), client, cancel)

	var wg conc.WaitGroup
	wg.Go(func() {
		ctl.writePump(ctx, conn)
		conn.Close()
	})
	wg.Go(func() {
		ctl.readPump(ctx, &peer{id: id, key: limitKey(client, id), conn: conn})
		cancel()
	})
	wg.Wait()

	ctl.Hub.Disconnect(context.Background(), id)
	logger.Info().Msg("connection closed")
}
