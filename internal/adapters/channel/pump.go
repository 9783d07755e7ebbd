package channel

import (
	"context"
	"time"

	"github.com/dkeye/Call/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Client) writePump(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal.channel").Msg("writePump ping")
				return
			}
		case data, ok := <-conn.send:
			if !ok {
				return
			}
			if err := conn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal.channel").Msg("writePump set deadline")
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal.channel").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(conn *wsConn) {
	pongWait := c.opts.PingPeriod * 10 / 9
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal.channel").Msg("readPump closing")
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		env, err := protocol.Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal.channel").Msg("bad frame")
			continue
		}
		if env.Type == protocol.TypePing {
			_ = c.Send(protocol.Pong())
			continue
		}
		c.emit(env)
	}
}
