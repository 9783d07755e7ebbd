package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const oggPageDuration = 20 * time.Millisecond

var errNoMedia = errors.New("file has no media frames")

type fileStream struct {
	tracks []webrtc.TrackLocal
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

func (s *fileStream) Tracks() []webrtc.TrackLocal { return s.tracks }

// Stop ends replay and waits for the pumps to exit.
func (s *fileStream) Stop() {
	s.cancel()
	s.wg.Wait()
}

// loopVideo writes IVF frames at the file's frame rate, restarting at EOF.
func loopVideo(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) {
	for ctx.Err() == nil {
		if err := playVideo(ctx, path, track); err != nil {
			log.Error().Err(err).Str("module", "capture").Str("path", path).Msg("video replay")
			return
		}
	}
}

func playVideo(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}

	frameDuration := time.Second / 30
	if header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for frames := 0; ; frames++ {
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if frames == 0 {
				return errNoMedia
			}
			return nil
		}
		if err != nil {
			return err
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// loopAudio writes Ogg pages every 20ms, restarting at EOF.
func loopAudio(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) {
	for ctx.Err() == nil {
		if err := playAudio(ctx, path, track); err != nil {
			log.Error().Err(err).Str("module", "capture").Str("path", path).Msg("audio replay")
			return
		}
	}
}

func playAudio(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for pages := 0; ; pages++ {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if pages == 0 {
				return errNoMedia
			}
			return nil
		}
		if err != nil {
			return err
		}
		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration(samples / 48000 * float64(time.Second))
		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
