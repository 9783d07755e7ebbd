package sink

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Call/internal/app/orch"
	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// WriterFactory picks the writer for a new track. A nil Writer only counts.
type WriterFactory func(p domain.ParticipantID, trackID, mimeType string) (Writer, error)

type Manager struct {
	ctx       context.Context
	newWriter WriterFactory

	mu    sync.RWMutex
	sinks map[domain.ParticipantID]map[string]*Sink
}

func NewManager(ctx context.Context, newWriter WriterFactory) *Manager {
	return &Manager{
		ctx:       ctx,
		newWriter: newWriter,
		sinks:     make(map[domain.ParticipantID]map[string]*Sink),
	}
}

// Update follows the orchestrator's view of one participant's tracks.
func (m *Manager) Update(u orch.MediaUpdate) {
	if u.Removed {
		m.Detach(u.Participant)
		return
	}
	for _, t := range u.Tracks {
		m.attach(u.Participant, t.ID(), t.Codec().MimeType, readRemote(t))
	}
}

func readRemote(t *webrtc.TrackRemote) func() (*rtp.Packet, error) {
	return func() (*rtp.Packet, error) {
		pkt, _, err := t.ReadRTP()
		return pkt, err
	}
}

// attach starts a sink for trackID unless one is already running.
func (m *Manager) attach(p domain.ParticipantID, trackID, mime string, read func() (*rtp.Packet, error)) {
	logger := log.With().
		Str("module", "app.sink").
		Str("participant", string(p)).
		Str("track", trackID).
		Str("mime", mime).
		Logger()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sinks[p][trackID]; ok {
		return
	}

	var w Writer
	if m.newWriter != nil {
		var err error
		if w, err = m.newWriter(p, trackID, mime); err != nil {
			logger.Warn().Err(err).Msg("recording disabled for track")
			w = nil
		}
	}
	ctx, cancel := context.WithCancel(m.ctx)
	s := newSink(p, trackID, mime, read, w, cancel)
	if m.sinks[p] == nil {
		m.sinks[p] = make(map[string]*Sink)
	}
	m.sinks[p][trackID] = s

	logger.Info().Bool("recording", w != nil).Msg("remote track attached")
	go s.loop(ctx, &logger)
}

// Detach stops every sink of p. The loops end once their track read returns.
func (m *Manager) Detach(p domain.ParticipantID) {
	m.mu.Lock()
	sinks := m.sinks[p]
	delete(m.sinks, p)
	m.mu.Unlock()
	for _, s := range sinks {
		s.cancel()
	}
	if len(sinks) > 0 {
		log.Info().Str("module", "app.sink").Str("participant", string(p)).Int("tracks", len(sinks)).Msg("remote tracks detached")
	}
}

// Stats snapshots every live sink, ordered by track id.
func (m *Manager) Stats() map[domain.ParticipantID][]TrackStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.ParticipantID][]TrackStats, len(m.sinks))
	for p, sinks := range m.sinks {
		stats := make([]TrackStats, 0, len(sinks))
		for _, s := range sinks {
			stats = append(stats, s.Stats())
		}
		slices.SortFunc(stats, func(a, b TrackStats) int {
			if a.TrackID < b.TrackID {
				return -1
			}
			if a.TrackID > b.TrackID {
				return 1
			}
			return 0
		})
		out[p] = stats
	}
	return out
}

func (m *Manager) Close() {
	m.mu.RLock()
	ids := make([]domain.ParticipantID, 0, len(m.sinks))
	for p := range m.sinks {
		ids = append(ids, p)
	}
	m.mu.RUnlock()
	for _, p := range ids {
		m.Detach(p)
	}
}
