// Command speechtester exercises the speech provider directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/app"
	"github.com/jonieats/assistant/internal/config"
	"github.com/jonieats/assistant/internal/logging"
	speechmodel "github.com/jonieats/assistant/internal/model/speech"
	"github.com/jonieats/assistant/internal/service/speech"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("could not load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logging.Setup(cfg.Log)

	if !cfg.Speech.Enabled {
		log.Fatal("speech is not configured; set SPEECH_* or Ark credentials")
	}

	mode := flag.String("mode", "", "test mode: asr or tts")
	audioPath := flag.String("audio", "", "ASR input audio file")
	text := flag.String("text", "", "TTS input text")
	outputPath := flag.String("out", "", "TTS output file (derived from the format by default)")
	format := flag.String("format", "", "audio format (ASR input or TTS output)")
	language := flag.String("lang", "", "language code, defaults to the configured one")
	voice := flag.String("voice", "", "TTS voice id, defaults to the configured one")
	session := flag.String("session", "", "session id, generated when empty")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal("choose a mode with -mode=asr or -mode=tts")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	svc := speech.NewService(app.SpeechConfig(cfg.Speech))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, svc, cfg, sessionID, *audioPath, *format, *language)
	case "tts":
		runTTS(ctx, svc, cfg, sessionID, *text, *voice, *format, *language, *outputPath)
	}
}

func runASR(ctx context.Context, svc *speech.Service, cfg *config.Config, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal("asr mode needs -audio")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		log.Fatalf("open audio file: %v", err)
	}
	defer file.Close()

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "wav"
		}
	}
	if language == "" {
		language = cfg.Speech.ASRLanguage
	}

	log.WithFields(log.Fields{"session": sessionID, "format": format, "language": language}).Info("starting ASR test")

	resp, err := svc.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		log.Fatalf("ASR failed: %v", err)
	}

	log.Infof("ASR ok: text=%q confidence=%.2f duration=%dms", resp.Text, resp.Confidence, resp.Duration)
}

func runTTS(ctx context.Context, svc *speech.Service, cfg *config.Config, sessionID, text, voice, format, language, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("tts mode needs -text")
	}
	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}
	if language == "" {
		language = cfg.Speech.TTSLanguage
	}
	if format == "" {
		format = "mp3"
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}

	log.WithFields(log.Fields{"session": sessionID, "voice": voice, "format": format}).Info("starting TTS test")

	resp, err := svc.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		log.Fatalf("TTS failed: %v", err)
	}

	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		log.Fatalf("write audio file: %v", err)
	}

	log.Infof("TTS ok: wrote %s, duration=%dms", outputPath, resp.Duration)
}
