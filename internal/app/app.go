// Package app assembles the services shared by the assistant binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/config"
	"github.com/jonieats/assistant/internal/model/profile"
	speechModel "github.com/jonieats/assistant/internal/model/speech"
	"github.com/jonieats/assistant/internal/observability"
	"github.com/jonieats/assistant/internal/retrieval"
	"github.com/jonieats/assistant/internal/service/ai"
	"github.com/jonieats/assistant/internal/service/chat"
	"github.com/jonieats/assistant/internal/service/speech"
)

// ErrAIUnavailable means no chat model credentials were configured.
var ErrAIUnavailable = errors.New("ark credentials or model not configured (set ARK_API_KEY and ARK_MODEL)")

// App holds the wired services.
type App struct {
	Config   *config.Config
	Profiles profile.Store
	Index    *retrieval.Index
	AI       *ai.Service
	Chat     *chat.Service
	Metrics  *observability.Metrics
	// Speech is nil unless speech credentials are configured.
	Speech *speech.Service
}

// New builds every service from cfg. A missing or empty corpus only
// disables retrieval; missing AI credentials are fatal.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if !cfg.AI.Enabled() {
		return nil, ErrAIUnavailable
	}

	corpus, index := loadRetrieval(cfg.Retrieval)
	profiles := profile.NewMemoryStore(profile.Seed(corpus, cfg.Retrieval.TopK))

	aiSvc, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai service: %w", err)
	}
	log.WithField("model", aiSvc.Model()).Info("AI service initialized")

	metrics := observability.NewMetrics("joni")

	opts := chat.Options{
		Metrics:          metrics,
		MaxTurnChars:     cfg.Memory.MaxTurnChars,
		CapacityOverride: cfg.Memory.CapacityOverride,
		IdleTimeout:      cfg.Server.IdleTimeout,
	}
	if index != nil {
		opts.Retriever = index
	}

	a := &App{
		Config:   cfg,
		Profiles: profiles,
		Index:    index,
		AI:       aiSvc,
		Chat:     chat.NewService(aiSvc, profiles, opts),
		Metrics:  metrics,
	}

	if cfg.Speech.Enabled {
		a.Speech = speech.NewService(SpeechConfig(cfg.Speech))
		log.Info("Speech service initialized")
	} else {
		log.Info("speech credentials not configured, skipping speech features")
	}

	return a, nil
}

func loadRetrieval(cfg config.RetrievalConfig) (retrieval.Corpus, *retrieval.Index) {
	corpus, err := retrieval.LoadCorpus(cfg.CorpusPath)
	if err != nil {
		log.WithError(err).Warn("knowledge corpus unavailable, retrieval disabled")
		return retrieval.Corpus{}, nil
	}

	chunks := retrieval.SplitChunks(corpus.RestaurantKB, cfg.MinChunkLen)
	index, err := retrieval.NewIndex(chunks, retrieval.Options{})
	if err != nil {
		log.WithError(err).Warn("knowledge base section is empty, retrieval disabled")
		return corpus, nil
	}

	log.WithFields(log.Fields{"path": cfg.CorpusPath, "chunks": len(chunks)}).Info("knowledge index built")
	return corpus, index
}

// SpeechConfig maps environment settings onto the speech client config.
func SpeechConfig(cfg config.SpeechConfig) *speechModel.Config {
	return &speechModel.Config{
		AppID:       cfg.AppID,
		AccessToken: cfg.AccessToken,
		APIKey:      cfg.APIKey,
		AccessKey:   cfg.AccessKey,
		SecretKey:   cfg.SecretKey,
		Region:      cfg.Region,
		BaseURL:     cfg.BaseURL,
		ASRModel:    cfg.ASRModel,
		ASRLanguage: cfg.ASRLanguage,
		TTSVoice:    cfg.TTSVoice,
		TTSSpeed:    cfg.TTSSpeed,
		TTSVolume:   cfg.TTSVolume,
		TTSLanguage: cfg.TTSLanguage,
		Timeout:     cfg.Timeout,
	}
}
