// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/embeddings"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/tts"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Structured JSON logger. Logs go to stderr: in stdio transport
	// stdout carries the MCP protocol stream.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("transport", cfg.App.Transport),
		slog.String("anki_url", cfg.Anki.URL),
		slog.String("tts_provider", cfg.TTS.Provider),
		slog.Bool("elevenlabs_enabled", cfg.TTS.ElevenLabs.APIKey != ""),
		slog.Bool("google_tts_enabled", cfg.TTS.Google.APIKey != ""),
		slog.Bool("embeddings_enabled", cfg.Embeddings.APIKey != ""),
		slog.String("log_level", cfg.App.LogLevel.String()))

	client := anki.NewClient(cfg.Anki.URL)

	// Optional capabilities stay nil when their credential is absent;
	// the corresponding tools report a configuration error per call.
	var elevenlabs, google tts.Synthesizer
	if cfg.TTS.ElevenLabs.APIKey != "" {
		elevenlabs = tts.NewElevenLabs(cfg.TTS.ElevenLabs.APIKey, cfg.TTS.ElevenLabs.VoiceID, cfg.TTS.ElevenLabs.Model)
	}
	if cfg.TTS.Google.APIKey != "" {
		google = tts.NewGoogle(cfg.TTS.Google.APIKey, cfg.TTS.Google.Language, cfg.TTS.Google.Voice)
	}
	speech := tts.NewService(elevenlabs, google, cfg.TTS.Provider)

	var embedder *embeddings.Client
	if cfg.Embeddings.APIKey != "" {
		var err error
		embedder, err = embeddings.NewClient(cfg.Embeddings.APIKey, cfg.Embeddings.Model, cfg.Embeddings.BaseURL)
		if err != nil {
			return fmt.Errorf("init embeddings: %w", err)
		}
	}

	svc := noteservice.NewService(client, media.NewHelper(client), speech, embedder)
	srv := mcpserver.New(svc)

	if cfg.App.Transport == TransportStdio {
		logger.Info("Serving MCP over stdio")
		return srv.ServeStdio()
	}
	return runSSE(ctx, cfg, srv, logger)
}

// runSSE serves the MCP server over HTTP/SSE with health endpoints and
// graceful shutdown.
func runSSE(ctx context.Context, cfg *Config, srv *mcpserver.Server, logger *slog.Logger) error {
	sse := server.NewSSEServer(srv.MCPServer(), server.WithStaticBasePath("/mcp"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token))
		r.Mount("/mcp", sse)
	})

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// authMiddleware validates a Bearer token. With enabled false all
// requests pass through.
func authMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
