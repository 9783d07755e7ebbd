// Package media owns the local capture stream shared by every peer link.
package media

import (
	"context"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TracksHandler receives the new local track set; nil means no live capture.
type TracksHandler func(tracks []webrtc.TrackLocal)

// Pipeline is the only writer of the local media state. It is driven from
// the session loop and needs no locking.
type Pipeline struct {
	device   core.CaptureDevice
	selector domain.DeviceSelector
	stream   core.CaptureStream
	handlers []TracksHandler
}

func NewPipeline(device core.CaptureDevice) *Pipeline {
	return &Pipeline{device: device, selector: domain.DeviceSelector{Facing: domain.FacingUser}}
}

func (p *Pipeline) OnTracksChanged(h TracksHandler) { p.handlers = append(p.handlers, h) }

func (p *Pipeline) Selector() domain.DeviceSelector { return p.selector }

func (p *Pipeline) Live() bool { return p.stream != nil }

func (p *Pipeline) Tracks() []webrtc.TrackLocal {
	if p.stream == nil {
		return nil
	}
	return p.stream.Tracks()
}

// Acquire opens the capture device. Acquiring while live with another
// selector switches devices. Failures are ErrDeviceUnavailable and are not
// retried.
func (p *Pipeline) Acquire(ctx context.Context, sel domain.DeviceSelector) error {
	if p.stream != nil {
		if sel == p.selector {
			return nil
		}
		return p.SwitchDevice(ctx, sel)
	}
	if err := p.open(ctx, sel); err != nil {
		return err
	}
	p.notify()
	return nil
}

// Release stops the live tracks.
func (p *Pipeline) Release() {
	if p.stream == nil {
		return
	}
	p.stop()
	p.notify()
}

// SwitchDevice stops the live tracks and captures from sel instead. Every
// listener is handed the replacement set, or nil when the new device fails.
func (p *Pipeline) SwitchDevice(ctx context.Context, sel domain.DeviceSelector) error {
	log.Info().Str("module", "media.pipeline").Str("from", p.selector.String()).Str("to", sel.String()).Msg("switch device")
	p.stop()
	err := p.open(ctx, sel)
	p.notify()
	return err
}

// Toggle flips between the user and environment facing cameras.
func (p *Pipeline) Toggle(ctx context.Context) error {
	return p.SwitchDevice(ctx, domain.DeviceSelector{Facing: p.selector.Facing.Toggle()})
}

func (p *Pipeline) open(ctx context.Context, sel domain.DeviceSelector) error {
	stream, err := p.device.Open(ctx, sel)
	if err != nil {
		log.Error().Err(err).Str("module", "media.pipeline").Str("device", sel.String()).Msg("acquire")
		return core.WrapError("acquire "+sel.String(), core.ErrDeviceUnavailable, err)
	}
	p.selector = sel
	p.stream = stream
	log.Info().Str("module", "media.pipeline").Str("device", sel.String()).Int("tracks", len(stream.Tracks())).Msg("acquired")
	return nil
}

func (p *Pipeline) stop() {
	if p.stream == nil {
		return
	}
	p.stream.Stop()
	p.stream = nil
	log.Info().Str("module", "media.pipeline").Str("device", p.selector.String()).Msg("released")
}

func (p *Pipeline) notify() {
	tracks := p.Tracks()
	for _, h := range p.handlers {
		h(tracks)
	}
}
