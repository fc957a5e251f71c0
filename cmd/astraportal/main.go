// Command astraportal runs a live voice conversation with an astrology
// guide: microphone in, synthesized speech out, captions and profile state
// on the terminal.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/astraportal/astraportal/internal/config"
	"github.com/astraportal/astraportal/internal/device"
	"github.com/astraportal/astraportal/pkg/live"
	"github.com/astraportal/astraportal/pkg/live/channel"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		model   string
		voice   string
		portal  string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "astraportal",
		Short: "Live voice astrology guide",
		Long: `astraportal opens a realtime voice session with an astrology guide.
Speak into the microphone; the guide answers aloud with captions below.

Interactive commands:
  m          toggle mute
  p          toggle pause
  /<text>    send a typed prompt as a completed turn
  q          end the session`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model = model
			}
			if voice != "" {
				cfg.Voice = voice
			}
			if portal != "" {
				cfg.Portal = portal
			}
			return runSession(cmd.Context(), cfg, verbose)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "live model resource name")
	cmd.Flags().StringVar(&voice, "voice", "", "prebuilt voice name")
	cmd.Flags().StringVar(&portal, "portal", "", "guide persona portal")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func runSession(parent context.Context, cfg config.Config, verbose bool) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := channel.Dial(ctx, channel.Config{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Voice:             cfg.Voice,
		SystemInstruction: config.SystemInstruction(cfg.Portal),
		Endpoint:          cfg.Endpoint,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	speaker, err := device.NewSpeaker()
	if err != nil {
		_ = ch.Close()
		return err
	}

	session, err := live.OpenSession(live.SessionConfig{
		Channel:       ch,
		CaptureDevice: device.NewMic(),
		PlaybackClock: speaker,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer session.End()

	fmt.Println("session open; speak, or type a command (q to quit)")
	go printCaptions(session)
	go func() {
		<-ctx.Done()
		session.End()
	}()
	go readCommands(session)

	<-session.Done()
	if snap := session.Snapshot(); snap.Err != nil {
		return snap.Err
	}
	fmt.Println("session closed")
	return nil
}

// printCaptions mirrors transcript and state changes to the terminal.
func printCaptions(session *live.Session) {
	var last live.State
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
		}
		snap := session.Snapshot()
		if snap.Transcript != last.Transcript && snap.Transcript != "" {
			fmt.Printf("\r  %s\n", snap.Transcript)
		}
		if snap.Analyzing && !last.Analyzing {
			fmt.Println("  [reading the chart...]")
		}
		if snap.Profile != nil && last.Profile == nil {
			fmt.Printf("  [profile: %s, %s / %s]\n",
				snap.Profile.Name, snap.Profile.SunSign, snap.Profile.Rashi)
		}
		last = snap
	}
}

// readCommands drives the session from stdin until quit or session end.
func readCommands(session *live.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "q":
			session.End()
			return
		case line == "m":
			if session.ToggleMute() {
				fmt.Println("  [muted]")
			} else {
				fmt.Println("  [unmuted]")
			}
		case line == "p":
			if session.TogglePause() {
				fmt.Println("  [paused]")
			} else {
				fmt.Println("  [resumed]")
			}
		case strings.HasPrefix(line, "/"):
			text := strings.TrimSpace(strings.TrimPrefix(line, "/"))
			if text == "" {
				continue
			}
			if err := session.SendSuggestedPrompt(text); err != nil {
				fmt.Println("  [prompt failed:", err, "]")
			}
		case line == "":
		default:
			fmt.Println("  [commands: m mute, p pause, /<text> prompt, q quit]")
		}
	}
}
