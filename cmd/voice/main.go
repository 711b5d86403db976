// Command voice runs the spoken assistant over recorded audio files or,
// with -text, over typed lines.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/app"
	"github.com/jonieats/assistant/internal/config"
	"github.com/jonieats/assistant/internal/logging"
	"github.com/jonieats/assistant/internal/model/profile"
	"github.com/jonieats/assistant/internal/service/voice"
)

func main() {
	profileID := flag.String("profile", profile.Voice, "assistant profile")
	audioDir := flag.String("audio-dir", "", "directory of caller utterances, one audio file per turn")
	textMode := flag.Bool("text", false, "read caller turns from stdin instead of audio")
	outDir := flag.String("out-dir", "replies", "directory for synthesized replies")
	player := flag.String("player", "", "command used to play each reply, e.g. afplay")
	voiceID := flag.String("voice", "", "TTS voice, defaults to the configured one")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logging.Setup(cfg.Log)

	if !*textMode && *audioDir == "" {
		flag.Usage()
		log.Fatal("pass -audio-dir or -text")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}

	session, err := a.Chat.CreateSession(ctx, *profileID)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	p, err := a.Chat.Profile(ctx, session.ID)
	if err != nil {
		log.Fatalf("failed to resolve profile: %v", err)
	}

	listener, speaker := ioFor(a, cfg, session.ID, *textMode, *audioDir, *outDir, *player, *voiceID)

	assistant := voice.NewAssistant(a.Chat, session.ID, p, listener, speaker)
	if err := assistant.Run(ctx); err != nil {
		log.Fatalf("voice assistant stopped: %v", err)
	}
}

func ioFor(a *app.App, cfg *config.Config, sessionID string, textMode bool, audioDir, outDir, player, voiceID string) (voice.Listener, voice.Speaker) {
	if textMode {
		return voice.NewLineListener(os.Stdin, os.Stdout), voice.NewPrintSpeaker(os.Stdout)
	}

	if a.Speech == nil {
		log.Fatal("speech is not configured; set SPEECH_* credentials or use -text")
	}

	listener, err := voice.NewSpeechListener(a.Speech, sessionID, audioDir, cfg.Speech.ASRLanguage)
	if err != nil {
		log.Fatalf("failed to open audio directory: %v", err)
	}
	speaker := voice.NewSpeechSpeaker(a.Speech, sessionID, voiceID, cfg.Speech.TTSLanguage, outDir, player, os.Stdout)
	return listener, speaker
}
