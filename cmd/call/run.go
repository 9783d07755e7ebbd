package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkeye/Call/internal/adapters/capture"
	"github.com/dkeye/Call/internal/adapters/channel"
	"github.com/dkeye/Call/internal/adapters/rtc"
	"github.com/dkeye/Call/internal/app/session"
	"github.com/dkeye/Call/internal/app/sink"
	"github.com/dkeye/Call/internal/config"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runCall(cmd *cobra.Command, room domain.RoomID) error {
	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return err
	}
	config.SetupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ch := channel.New(channel.Options{
		URL:              cfg.RelayURL,
		Token:            cfg.Token,
		SendBuffer:       cfg.SendBuffer,
		ReconnectInitial: cfg.Reconnect.Initial,
		ReconnectMax:     cfg.Reconnect.Max,
	})
	device := capture.NewFileDevice(capture.Files{
		User:        cfg.Devices.User,
		Environment: cfg.Devices.Environment,
		Audio:       cfg.Devices.Audio,
	})
	s := session.New(session.Config{
		Channel:    ch,
		Device:     device,
		Transports: rtc.NewFactory(iceConfig(cfg.ICEServers)),
	})

	var writers sink.WriterFactory
	if flagRecordDir != "" {
		writers = sink.FileWriters(flagRecordDir)
	}
	sinks := sink.NewManager(ctx, writers)
	defer sinks.Close()

	s.OnMedia(sinks.Update)
	s.OnError(func(err error) {
		log.Warn().Err(err).Str("module", "cmd.call").Msg("call error")
	})

	if err := s.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := s.Close(closeCtx); err != nil {
			log.Warn().Err(err).Str("module", "cmd.call").Msg("close")
		}
	}()

	if err := s.Acquire(ctx, domain.DeviceSelector{Facing: domain.FacingUser}); err != nil {
		if !errors.Is(err, core.ErrDeviceUnavailable) {
			return err
		}
		log.Warn().Err(err).Str("module", "cmd.call").Msg("no local media, receiving only")
	}

	joined, err := s.Join(ctx, room)
	if err != nil && !errors.Is(err, core.ErrChannelUnavailable) {
		return err
	}
	fmt.Fprintf(os.Stdout, "room: %s\n", joined)

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	var tick <-chan time.Time
	if flagStatsInterval > 0 {
		ticker := time.NewTicker(flagStatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			logStats(sinks.Stats())
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			c, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if done := execute(ctx, s, sinks, c); done {
				return nil
			}
		}
	}
}

func execute(ctx context.Context, s *session.Session, sinks *sink.Manager, c command) (done bool) {
	switch c.name {
	case cmdNone:
	case cmdSwitch:
		if c.arg != "" {
			if err := s.SwitchDevice(ctx, domain.DeviceSelector{DeviceID: c.arg}); err != nil {
				fmt.Fprintln(os.Stderr, "switch:", err)
			}
			return false
		}
		sel, err := s.Toggle(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "switch:", err)
			return false
		}
		fmt.Fprintf(os.Stdout, "camera: %s\n", sel)
	case cmdStats:
		printStats(sinks.Stats())
	case cmdLeave:
		if err := s.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "cmd.call").Msg("leave")
		}
		return true
	}
	return false
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func iceConfig(servers []config.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		return rtc.DefaultWebRTCConfig()
	}
	out := webrtc.Configuration{}
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, srv)
	}
	return out
}

func logStats(stats map[domain.ParticipantID][]sink.TrackStats) {
	for p, tracks := range stats {
		for _, t := range tracks {
			log.Info().Str("module", "cmd.call").Str("participant", string(p)).Str("track", t.TrackID).
				Str("mime", t.MimeType).Uint64("packets", t.Packets).Uint64("bytes", t.Bytes).Msg("rtp")
		}
	}
}

func printStats(stats map[domain.ParticipantID][]sink.TrackStats) {
	if len(stats) == 0 {
		fmt.Fprintln(os.Stdout, "no remote tracks")
		return
	}
	for p, tracks := range stats {
		for _, t := range tracks {
			fmt.Fprintf(os.Stdout, "%s %s %s packets=%d bytes=%d\n", p, t.TrackID, t.MimeType, t.Packets, t.Bytes)
		}
	}
}
