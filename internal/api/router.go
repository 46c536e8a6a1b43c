package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and the audio route from env vars.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (the HUD runs from arbitrary pages).
	CorsAllowedOrigins string

	// OutputFile is the persisted file name, served at /<OutputFile>.
	OutputFile string
}

// Paths older HUD scripts and bots fetch the audio from.
var legacyOutputPaths = []string{"/output.mp3", "/output.wav", "/output"}

func NewRouter(h *Handler, logger *zap.SugaredLogger, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{pendingEventsHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Post("/updateText", h.UpdateText)
	r.Post("/discordSay", h.DiscordSay)

	for _, p := range outputPaths(cfg.OutputFile) {
		r.Get(p, h.Output)
		r.Head(p, h.Output)
	}

	r.Get("/utterances", h.ListUtterances)
	r.Get("/utterances/{id}", h.GetUtterance)
	r.Get("/events/audio-ready", h.NextAudioReady)

	return r
}

func outputPaths(outputFile string) []string {
	paths := make([]string, 0, len(legacyOutputPaths)+1)
	if outputFile != "" {
		paths = append(paths, "/"+outputFile)
	}
	for _, p := range legacyOutputPaths {
		if len(paths) > 0 && p == paths[0] {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}
