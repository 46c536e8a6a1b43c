package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/voicerelay/internal/api"
	"github.com/bobarin/voicerelay/internal/config"
	"github.com/bobarin/voicerelay/internal/db"
	"github.com/bobarin/voicerelay/internal/queue"
	"github.com/bobarin/voicerelay/internal/relay"
	"github.com/bobarin/voicerelay/internal/services"
	"github.com/bobarin/voicerelay/internal/storage"
	"go.uber.org/zap"
)

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, cfgErr := config.Load()

	logger, err := newLogger(cfg != nil && cfg.Debug)
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer logger.Sync() //nolint:errcheck

	if cfgErr != nil {
		sugar.Fatalw("Failed to load config", "error", cfgErr)
	}

	sugar.Infow("Starting voice relay", "port", cfg.Port, "provider", cfg.VoiceProvider, "debug", cfg.Debug)

	// Voice provider: Convai by default, OpenAI chat + speech as the alternative
	var voice services.VoiceService
	switch cfg.VoiceProvider {
	case "openai":
		voice = services.NewOpenAIService(services.OpenAIOptions{
			APIKey:          cfg.OpenAI.APIKey,
			BaseURL:         cfg.OpenAI.BaseURL,
			ChatModel:       cfg.OpenAI.ChatModel,
			TTSModel:        cfg.OpenAI.TTSModel,
			TTSVoice:        cfg.OpenAI.TTSVoice,
			CharacterPrompt: cfg.OpenAI.CharacterPrompt,
			Timeout:         cfg.OpenAI.Timeout,
		}, sugar)
	default:
		voice = services.NewConvaiService(services.ConvaiOptions{
			APIKey:            cfg.Convai.APIKey,
			CharacterID:       cfg.Convai.CharacterID,
			BaseURL:           cfg.Convai.BaseURL,
			SessionID:         cfg.Convai.SessionID,
			Timeout:           cfg.Convai.Timeout,
			MultipartFallback: cfg.Convai.MultipartFallback,
			AudioFields:       cfg.Convai.AudioFields,
			TextFields:        cfg.Convai.TextFields,
		}, sugar)
	}

	if err := voice.CheckConfig(); err != nil {
		sugar.Warnw("Voice service credentials missing; text requests will fail until set",
			"provider", voice.Name(), "error", err)
	}

	// Optional sinks
	var recorders []relay.Recorder
	handlerOpts := api.HandlerOptions{MaxBodyBytes: cfg.MaxBodyBytes}

	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			sugar.Fatalw("Failed to connect to database", "error", err)
		}
		defer database.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = database.EnsureSchema(ctx)
		cancel()
		if err != nil {
			sugar.Fatalw("Failed to prepare database", "error", err)
		}

		recorders = append(recorders, database)
		handlerOpts.Utterances = database
		sugar.Info("Utterance log enabled (Postgres)")
	}

	if cfg.RedisURL != "" {
		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			sugar.Fatalw("Failed to connect to queue", "error", err)
		}
		defer q.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pending, err := q.GetQueueLength(ctx)
		cancel()
		if err != nil {
			sugar.Warnw("Failed to read audio-ready backlog", "error", err)
		}

		recorders = append(recorders, q)
		handlerOpts.Events = q
		sugar.Infow("Audio-ready events enabled (Redis)", "list", queue.QueueAudioReady, "pending", pending)
	}

	if cfg.SupabaseURL != "" {
		mirror := storage.NewSupabaseMirror(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, cfg.OutputFile, sugar)
		recorders = append(recorders, mirror)
		sugar.Infow("Supabase mirror enabled", "bucket", cfg.SupabaseStorageBucket)
	}

	rl, err := relay.New(relay.Config{
		PublicDir:     cfg.PublicDir,
		OutputFile:    cfg.OutputFile,
		RecordTimeout: cfg.RecordTimeout,
	}, voice, sugar, recorders...)
	if err != nil {
		sugar.Fatalw("Failed to create relay", "error", err)
	}
	sugar.Infow("Serving audio", "publicDir", cfg.PublicDir, "file", rl.Path(), "url", rl.URLPath())

	handler := api.NewHandler(rl, sugar, handlerOpts)
	router := api.NewRouter(handler, sugar, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		OutputFile:         cfg.OutputFile,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("Voice relay listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		sugar.Errorw("Server forced to shutdown", "error", err)
	}

	// Let in-flight recorders finish before the sinks close
	rl.Wait()

	sugar.Info("Server exited")
}
