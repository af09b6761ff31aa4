package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-call/backend/internal/config"
	"github.com/zhouzirui/z-call/backend/internal/handler"
	"github.com/zhouzirui/z-call/backend/internal/handler/health"
	"github.com/zhouzirui/z-call/backend/internal/middleware"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/observability"
	"github.com/zhouzirui/z-call/backend/internal/service/ai"
	"github.com/zhouzirui/z-call/backend/internal/service/chat"
	"github.com/zhouzirui/z-call/backend/internal/service/relay"
	"github.com/zhouzirui/z-call/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, continuing with system environment variables only", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel}))
	slog.SetDefault(logger)

	// 仅记录凭证是否存在，不输出取值
	report := cfg.CredentialReport()
	logger.Info("credential report",
		"CLAUDE_API_KEY", report["CLAUDE_API_KEY"],
		"KURDISH_TTS_API_KEY", report["KURDISH_TTS_API_KEY"],
		"GEMINI_API_KEY", report["GEMINI_API_KEY"],
		"SESSION_SECRET", report["SESSION_SECRET"],
	)

	roster, err := character.LoadFile(cfg.Server.CharactersFile)
	if err != nil {
		logger.Error("failed to load character roster", "error", err)
		os.Exit(1)
	}
	characters := character.NewMemoryStore(roster)

	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)
	sessions := chat.NewService(cfg.Session.Capacity, cfg.Session.TTL)
	metrics.TrackSessions(cfg.Server.MetricsNamespace, sessions.Len)

	// 所有上游请求共用一个带超时的客户端
	httpClient := &http.Client{Timeout: cfg.Server.UpstreamTimeout}

	aiService, err := ai.NewService(cfg.Chat, httpClient, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize chat adapter", "error", err)
		os.Exit(1)
	}
	if !cfg.Chat.Enabled() {
		logger.Warn("CLAUDE_API_KEY not set, calls will fail until it is configured")
	}

	tts := speech.NewKurdishTTSClient(cfg.Speech.APIKey, cfg.Speech.APIURL, httpClient, metrics)
	transcriber := speech.NewGeminiTranscriber(cfg.Transcription.APIKey, cfg.Transcription.Model, cfg.Transcription.BaseURL, httpClient, metrics)
	speechService := speech.NewService(tts, transcriber, cfg.Transcription.Language)

	relayService := relay.NewService(characters, sessions, aiService, speechService, metrics, logger)

	router := handler.NewRouter(handler.Dependencies{
		Characters: characters,
		Relay:      relayService,
		Speech:     speechService,
		Sessions:   middleware.NewSessions(cfg.Session.Secret, cfg.Session.TTL, logger),
		Metrics:    metrics,
		Checks: []health.Check{
			{Name: "chat", Required: true, Ready: cfg.Chat.Enabled},
			{Name: "speech", Ready: speechService.TTSEnabled},
			{Name: "transcription", Ready: speechService.TranscriptionEnabled},
		},
		CORSOrigin: cfg.Server.CORSOrigin,
		Logger:     logger,
	})

	startServer(ctx, logger, cfg.Server, router)
}

func startServer(ctx context.Context, logger *slog.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Z Call backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
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
