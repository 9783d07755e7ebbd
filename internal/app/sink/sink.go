// Package sink consumes remote tracks: it counts RTP packets per track and
// optionally hands them to a writer that records them.
package sink

import (
	"context"
	"sync"

	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Writer receives every packet of one track. ivfwriter and oggwriter satisfy it.
type Writer interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

type TrackStats struct {
	TrackID  string
	MimeType string
	Packets  uint64
	Bytes    uint64
	LastSeq  uint16
}

// Sink drains one remote track until it ends or is stopped.
type Sink struct {
	participant domain.ParticipantID
	read        func() (*rtp.Packet, error)
	writer      Writer

	mu    sync.RWMutex
	stats TrackStats

	cancel context.CancelFunc
	done   chan struct{}
}

func newSink(p domain.ParticipantID, trackID, mime string, read func() (*rtp.Packet, error), w Writer, cancel context.CancelFunc) *Sink {
	return &Sink{
		participant: p,
		read:        read,
		writer:      w,
		stats:       TrackStats{TrackID: trackID, MimeType: mime},
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// loop reads packets from the track and passes them to the writer.
func (s *Sink) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(s.done)
	defer s.closeWriter(logger)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("sink ctx done")
			return
		default:
		}
		pkt, err := s.read()
		if err != nil {
			logger.Info().Err(err).Msg("track ended")
			return
		}
		s.count(pkt)
		if s.writer == nil {
			continue
		}
		if err := s.writer.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("write RTP error, recording stopped")
			s.closeWriter(logger)
		}
	}
}

func (s *Sink) count(pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Packets++
	s.stats.Bytes += uint64(len(pkt.Payload))
	s.stats.LastSeq = pkt.SequenceNumber
}

func (s *Sink) closeWriter(logger *zerolog.Logger) {
	s.mu.Lock()
	w := s.writer
	s.writer = nil
	s.mu.Unlock()
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logger.Warn().Err(err).Msg("close writer")
	}
}

func (s *Sink) Stats() TrackStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
