// Package capture stands in for a camera and microphone by replaying IVF
// video and Ogg/Opus audio files as live local tracks.
package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog/log"
)

// Files maps device selectors to media files. DeviceID selectors are file paths.
type Files struct {
	User        string
	Environment string
	Audio       string
}

type FileDevice struct {
	files Files
}

var _ core.CaptureDevice = (*FileDevice)(nil)

func NewFileDevice(files Files) *FileDevice {
	return &FileDevice{files: files}
}

func (d *FileDevice) videoPath(sel domain.DeviceSelector) string {
	if sel.DeviceID != "" {
		return sel.DeviceID
	}
	if sel.Facing == domain.FacingEnvironment {
		return d.files.Environment
	}
	return d.files.User
}

// Open starts replaying the video file selected by sel, plus the audio file
// when one is configured.
func (d *FileDevice) Open(ctx context.Context, sel domain.DeviceSelector) (core.CaptureStream, error) {
	path := d.videoPath(sel)
	if path == "" {
		return nil, fmt.Errorf("%w: no file for %s", core.ErrDeviceUnavailable, sel)
	}
	mime, err := probeVideo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrDeviceUnavailable, path, err)
	}

	streamID := "call-" + uuid.NewString()[:8]
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video-"+sel.String(), streamID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &fileStream{cancel: cancel, tracks: []webrtc.TrackLocal{video}}
	s.wg.Go(func() { loopVideo(ctx, path, video) })

	if d.files.Audio != "" {
		if _, err := os.Stat(d.files.Audio); err != nil {
			log.Warn().Err(err).Str("module", "capture").Str("path", d.files.Audio).Msg("audio disabled")
		} else {
			audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
			if err != nil {
				cancel()
				return nil, err
			}
			s.tracks = append(s.tracks, audio)
			s.wg.Go(func() { loopAudio(ctx, d.files.Audio, audio) })
		}
	}

	log.Info().Str("module", "capture").Str("device", sel.String()).Str("path", path).Str("mime", mime).Msg("capture started")
	return s, nil
}

func probeVideo(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", err
	}
	switch header.FourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("unsupported codec %q", header.FourCC)
}
