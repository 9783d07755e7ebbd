package relay

import (
	"context"
	"errors"

	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/domain"
	"github.com/dkeye/Call/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleFrame(ctx context.Context, p *peer, data []byte) {
	id, c := p.id, p.conn
	env, err := protocol.Parse(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "relay.signal").Str("participant", string(id)).Msg("bad frame")
		ctl.sendError(c, protocol.CodeBadFrame, err.Error())
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		ctl.handleJoin(ctx, p, env)
	case protocol.TypeLeaveRoom:
		ctl.Hub.Leave(ctx, id)
	case protocol.TypePing:
		ctl.send(c, protocol.Pong())
	case protocol.TypePong:
	case protocol.TypeSignal:
		ctl.handleSignal(id, c, env)
	default:
		ctl.sendError(c, protocol.CodeUnsupported, "not accepted from clients: "+string(env.Type))
	}
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, p *peer, env protocol.Envelope) {
	id, c := p.id, p.conn
	room, err := domain.ParseRoomID(string(env.RoomID))
	if err != nil {
		ctl.sendError(c, protocol.CodeBadRoom, err.Error())
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(p.key) {
		log.Warn().Str("module", "relay.signal").Str("participant", string(id)).Str("room", string(room)).Msg("join rate limited")
		ctl.sendError(c, protocol.CodeRateLimited, "too many joins")
		return
	}
	if err := ctl.Hub.Join(ctx, id, room); err != nil {
		log.Error().Err(err).Str("module", "relay.signal").Str("participant", string(id)).Msg("join")
	}
}

func (ctl *SignalWSController) handleSignal(id domain.ParticipantID, c *wsConn, env protocol.Envelope) {
	err := ctl.Hub.Signal(id, env)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrNotInRoom):
		ctl.sendError(c, protocol.CodeNotInRoom, err.Error())
	case errors.Is(err, app.ErrUnknownTarget):
		ctl.sendError(c, protocol.CodeUnknownTarget, err.Error())
	default:
		log.Error().Err(err).Str("module", "relay.signal").Str("participant", string(id)).Msg("signal")
	}
}

func (ctl *SignalWSController) sendError(c *wsConn, code, msg string) {
	ctl.send(c, protocol.Error(code, msg))
}

func (ctl *SignalWSController) send(c *wsConn, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "relay.signal").Msg("encode")
		return
	}
	_ = c.TrySend(data)
}
