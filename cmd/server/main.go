// Streamcore server - routes live transcript chunks through the insight pipeline
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meetwise/streamcore/internal/config"
	"github.com/meetwise/streamcore/internal/pipeline/evolve"
	"github.com/meetwise/streamcore/internal/pipeline/session"
	"github.com/meetwise/streamcore/internal/provider"
	"github.com/meetwise/streamcore/internal/server"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	embedder := provider.Shared(func() provider.Embedder {
		return provider.NewOpenAIEmbedder(cfg.EmbedModel)
	})
	extractor := provider.NewOpenAIExtractor(cfg.ExtractModel)

	tracker := evolve.NewTracker(embedder, evolve.Config{
		RelatedThreshold:   cfg.EvolutionRelatedThreshold,
		DuplicateThreshold: cfg.EvolutionDuplicateThreshold,
		ExpansionGrowth:    cfg.ExpansionGrowthRatio,
		ExpansionMinWords:  cfg.ExpansionMinExtraWords,
		RefinementBand:     cfg.RefinementLengthBand,
	})

	registry := session.NewRegistry(session.Deps{
		Cfg:       cfg,
		Embedder:  embedder,
		Extractor: extractor,
		Tracker:   tracker,
	})

	srv := server.New(registry)

	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("streamcore server starting", "http", cfg.HTTPAddr, "embed_model", cfg.EmbedModel, "extract_model", cfg.ExtractModel)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	srv.EndAll(shutdownCtx)
	slog.Info("shutdown complete")
}
