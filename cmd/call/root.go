package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dkeye/Call/internal/domain"
	"github.com/spf13/cobra"
)

var (
	flagRecordDir     string
	flagStatsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "call",
	Short: "Peer-to-peer audio/video calls through a signaling relay",
	Long: `call joins a room on a signaling relay and sets up a direct WebRTC link to
every other participant. Local media is read from IVF (video) and Ogg/Opus
(audio) files.

While in a call, type commands on stdin:
  switch          flip between the user and environment camera
  switch <file>   switch to a specific video file
  stats           print received RTP counters
  leave           leave the room and exit`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new room and wait for others to join",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCall(cmd, "")
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join an existing room",
	Example: `  call join 3f9a1c2e
  call join team-sync --video front.ivf --audio mic.ogg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := domain.ParseRoomID(args[0])
		if err != nil {
			return err
		}
		return runCall(cmd, room)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("relay", "", "relay WebSocket URL")
	pf.String("token", "", "identity token sent to the relay")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("video", "", "IVF file used as the user-facing camera")
	pf.String("video-back", "", "IVF file used as the environment-facing camera")
	pf.String("audio", "", "Ogg/Opus file used as the microphone")
	pf.StringVar(&flagRecordDir, "record", "", "record remote tracks into this directory")
	pf.DurationVar(&flagStatsInterval, "stats-interval", 10*time.Second, "how often to log RTP counters, 0 to disable")

	rootCmd.AddCommand(createCmd, joinCmd)
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
