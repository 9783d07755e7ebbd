// Package session assembles one call client: the signaling channel, room
// membership, local media and the orchestrator, all driven by one loop.
// Its methods may be called from any goroutine.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Call/internal/app/loop"
	"github.com/dkeye/Call/internal/app/media"
	"github.com/dkeye/Call/internal/app/membership"
	"github.com/dkeye/Call/internal/app/orch"
	"github.com/dkeye/Call/internal/app/peer"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Config struct {
	Channel    core.SignalChannel
	Device     core.CaptureDevice
	Transports core.TransportFactory
	// LoopBuffer bounds pending loop tasks. Defaults to 256.
	LoopBuffer int
}

type Session struct {
	ch      core.SignalChannel
	loop    *loop.Loop
	members *membership.Membership
	media   *media.Pipeline
	orch    *orch.Orchestrator

	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.LoopBuffer <= 0 {
		cfg.LoopBuffer = 256
	}
	l := loop.New(cfg.LoopBuffer)
	members := membership.New(cfg.Channel, l.Post)
	pipeline := media.NewPipeline(cfg.Device)
	return &Session{
		ch:      cfg.Channel,
		loop:    l,
		members: members,
		media:   pipeline,
		orch: orch.New(orch.Config{
			Channel:    cfg.Channel,
			Membership: members,
			Media:      pipeline,
			Transports: cfg.Transports,
			Post:       l.Post,
		}),
	}
}

// OnMedia and OnError must be registered before Start.
func (s *Session) OnMedia(fn func(orch.MediaUpdate)) { s.orch.OnMedia(fn) }
func (s *Session) OnError(fn func(error)) {
	s.orch.OnError(fn)
	s.members.OnError(fn)
}

// Start runs the loop and connects to the relay.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Go(func() { s.loop.Run(runCtx) })
	if err := s.ch.Connect(runCtx); err != nil {
		cancel()
		s.wg.Wait()
		return err
	}
	log.Info().Str("module", "app.session").Msg("connected to relay")
	return nil
}

// Join enters room, or a freshly generated one when room is empty, and
// returns its id. The join completes asynchronously once the relay confirms.
func (s *Session) Join(ctx context.Context, room domain.RoomID) (domain.RoomID, error) {
	var joined domain.RoomID
	var joinErr error
	if err := s.loop.Call(ctx, func() { joined, joinErr = s.members.Join(room) }); err != nil {
		return "", err
	}
	return joined, joinErr
}

func (s *Session) Leave(ctx context.Context) error {
	var leaveErr error
	if err := s.loop.Call(ctx, func() { leaveErr = s.members.Leave() }); err != nil {
		return err
	}
	return leaveErr
}

// Acquire opens the capture device and attaches its tracks to every link.
func (s *Session) Acquire(ctx context.Context, sel domain.DeviceSelector) error {
	return s.onLoop(ctx, func() error { return s.media.Acquire(ctx, sel) })
}

func (s *Session) SwitchDevice(ctx context.Context, sel domain.DeviceSelector) error {
	return s.onLoop(ctx, func() error { return s.media.SwitchDevice(ctx, sel) })
}

// Toggle flips between the user and environment facing devices.
func (s *Session) Toggle(ctx context.Context) (domain.DeviceSelector, error) {
	var sel domain.DeviceSelector
	err := s.onLoop(ctx, func() error {
		err := s.media.Toggle(ctx)
		sel = s.media.Selector()
		return err
	})
	return sel, err
}

// Room returns the confirmed room and self id, if joined.
func (s *Session) Room(ctx context.Context) (domain.RoomID, domain.ParticipantID, bool) {
	var room domain.RoomID
	var self domain.ParticipantID
	var ok bool
	_ = s.loop.Call(ctx, func() {
		if r := s.members.Room(); r != nil && s.members.Joined() {
			room, self, ok = r.ID, r.Self, true
		}
	})
	return room, self, ok
}

// States snapshots every live link.
func (s *Session) States(ctx context.Context) map[domain.ParticipantID]peer.State {
	var out map[domain.ParticipantID]peer.State
	_ = s.loop.Call(ctx, func() { out = s.orch.States() })
	return out
}

// Close leaves the room, releases media and disconnects.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.loop.Call(ctx, func() {
		if err := s.members.Leave(); err != nil && !errors.Is(err, core.ErrChannelUnavailable) {
			errs = append(errs, err)
		}
		s.orch.Close()
		s.members.Close()
		s.media.Release()
	}); err != nil {
		errs = append(errs, fmt.Errorf("close on loop: %w", err))
	}
	if err := s.ch.Disconnect(); err != nil {
		errs = append(errs, err)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

func (s *Session) onLoop(ctx context.Context, fn func() error) error {
	var fnErr error
	if err := s.loop.Call(ctx, func() { fnErr = fn() }); err != nil {
		return err
	}
	return fnErr
}
