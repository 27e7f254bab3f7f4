package main

import (
	"log"
	"log/slog"

	"github.com/outubeused26-commits/FloraVeda/internal/app"
	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
	claudeai "github.com/outubeused26-commits/FloraVeda/internal/botanist/claude"
	geminiai "github.com/outubeused26-commits/FloraVeda/internal/botanist/gemini"
	"github.com/outubeused26-commits/FloraVeda/internal/config"
	"github.com/outubeused26-commits/FloraVeda/internal/db"
	"github.com/outubeused26-commits/FloraVeda/internal/logging"
	"github.com/outubeused26-commits/FloraVeda/internal/photostore"
	"github.com/outubeused26-commits/FloraVeda/internal/store"
	"github.com/outubeused26-commits/FloraVeda/internal/web"
)

// aiBackend bundles the two capabilities every provider adapter implements.
type aiBackend interface {
	botanist.Analyzer
	botanist.ChatModel
}

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	backend := newBackend(cfg, logger)
	if backend == nil {
		return
	}

	photos, err := photostore.NewLocal(cfg.PhotoPath)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}

	reports := store.NewReportStore(database)
	application := app.New(backend, backend, reports, photos, logger)
	server := web.NewServer(application, reports, photos, logger)

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newBackend(cfg *config.Config, logger *slog.Logger) aiBackend {
	switch cfg.AIBackend {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			logger.Error("CLAUDE_API_KEY is required when AI_BACKEND=claude")
			return nil
		}
		logger.Info("using Claude backend", "model", cfg.ClaudeModel)
		return claudeai.New(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	default:
		if cfg.GeminiAPIKey == "" {
			logger.Error("GEMINI_API_KEY is required when AI_BACKEND=gemini")
			return nil
		}
		logger.Info("using Gemini backend", "model", cfg.GeminiModel)
		return geminiai.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
}
