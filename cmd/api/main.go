package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/app"
	"github.com/jonieats/assistant/internal/config"
	"github.com/jonieats/assistant/internal/handler"
	"github.com/jonieats/assistant/internal/logging"
	"github.com/jonieats/assistant/internal/service/chat"
)

const sweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warnf("failed to load .env file: %v", err)
		log.Info("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logging.Setup(cfg.Log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}

	deps := handler.Deps{
		Profiles:       a.Profiles,
		Chat:           a.Chat,
		SpeechLanguage: cfg.Speech.ASRLanguage,
		Metrics:        a.Metrics,
	}
	if a.Speech != nil {
		deps.Speech = a.Speech
	}

	go runJanitor(ctx, a.Chat)

	startServer(ctx, cfg.Server, handler.NewRouter(deps))
}

// runJanitor drops idle sessions until ctx is done.
func runJanitor(ctx context.Context, chatSvc *chat.Service) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			chatSvc.Sweep(now.UTC())
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Infof("Joni Eats assistant listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
