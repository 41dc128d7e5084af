package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/pricematch/backend/config"
	httpDelivery "github.com/pricematch/backend/internal/delivery/http"
	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/infrastructure/cache"
	"github.com/pricematch/backend/internal/infrastructure/llm"
	"github.com/pricematch/backend/internal/infrastructure/rules"
	"github.com/pricematch/backend/internal/infrastructure/storage"
	"github.com/pricematch/backend/internal/logger"
	"github.com/pricematch/backend/internal/usecase"
	"github.com/pricematch/backend/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Type).
		Str("disambiguation", cfg.Disambiguation.Provider).
		Msg("starting pricematch backend v1.0.0")

	// Infrastructure
	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return err
	}
	defer store.Close()

	resultCache, err := cache.New(ctx, cfg.Cache.Type, cfg.Cache.RedisURL)
	if err != nil {
		return err
	}
	defer resultCache.Close()

	normalizerRules, err := rules.Load(cfg.Normalizer.RulesFile)
	if err != nil {
		return err
	}
	normalizers := usecase.NewNormalizerHolder(usecase.NewNormalizer(normalizerRules))

	// Usecases
	mappings := usecase.NewMappingCache(store, cfg.Matching.RefreshInterval, log)
	manual := usecase.NewManualMappingService(store, normalizers, validation.New(), log)
	matcher := usecase.NewMatchService(usecase.MatchServiceDeps{
		Normalizers: normalizers,
		Manual:      manual,
		Snapshots:   mappings,
		Ranker: usecase.NewRanker(usecase.RankerConfig{
			TopK:              cfg.Matching.TopK,
			ConfidenceFloor:   cfg.Matching.ConfidenceFloor,
			QuantityTolerance: cfg.Matching.QueryQtyTolerance,
			TokenWeight:       cfg.Matching.TokenWeight,
			FuzzyWeight:       cfg.Matching.FuzzyWeight,
		}),
		Delegate: newDelegate(cfg, log),
		Fallback: usecase.NewFallbackSearch(store, cfg.Matching.FallbackConfidence),
		Catalog:  store,
		Cache:    resultCache,
	}, usecase.MatchServiceConfig{
		ResultCacheTTL:  cfg.Cache.ResultTTL,
		BackfillTimeout: cfg.Backfill.Timeout,
	}, log)

	handler := httpDelivery.NewHandler(httpDelivery.HandlerDeps{
		Matcher:  matcher,
		Manual:   manual,
		Mappings: mappings,
		Catalog:  store,
		Database: store,
	}, log)
	router := httpDelivery.SetupRouter(cfg, handler, log)

	// Background workers
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mappings.Run(ctx)
	}()

	if cfg.Normalizer.RulesFile != "" && cfg.Normalizer.Watch {
		watcher := rules.NewWatcher(cfg.Normalizer.RulesFile, normalizers, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("rules watcher stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	wg.Wait()
	return nil
}

// newDelegate picks the disambiguation delegate from configuration
func newDelegate(cfg *config.Config, log zerolog.Logger) domain.Disambiguator {
	if cfg.Disambiguation.Provider != "openai" {
		return usecase.NewRuleBasedSelector()
	}
	return llm.NewDelegate(llm.Config{
		APIKey:            cfg.Disambiguation.APIKey,
		BaseURL:           cfg.Disambiguation.BaseURL,
		Model:             cfg.Disambiguation.Model,
		Timeout:           cfg.Disambiguation.Timeout,
		RequestsPerSecond: cfg.Disambiguation.RequestsPerSecond,
		Burst:             cfg.Disambiguation.Burst,
	}, log)
}
