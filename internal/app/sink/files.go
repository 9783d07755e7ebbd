package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// FileWriters records video to IVF and Opus audio to Ogg files under dir,
// named <participant>-<track>.<ext>. Other codecs are only counted.
func FileWriters(dir string) WriterFactory {
	return func(p domain.ParticipantID, trackID, mime string) (Writer, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		base := filepath.Join(dir, fmt.Sprintf("%s-%s", p, sanitize(trackID)))
		if video := videoMime(mime); video != "" {
			w, err := ivfwriter.New(base+".ivf", ivfwriter.WithCodec(video))
			if err != nil {
				return nil, err
			}
			return w, nil
		}
		if strings.EqualFold(mime, webrtc.MimeTypeOpus) {
			w, err := oggwriter.New(base+".ogg", 48000, 2)
			if err != nil {
				return nil, err
			}
			return w, nil
		}
		return nil, nil
	}
}

// videoMime returns the canonical spelling of an IVF-recordable codec.
func videoMime(mime string) string {
	for _, m := range []string{webrtc.MimeTypeVP8, webrtc.MimeTypeVP9, webrtc.MimeTypeAV1} {
		if strings.EqualFold(mime, m) {
			return m
		}
	}
	return ""
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
