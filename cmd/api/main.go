package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"posterd/internal/adapter/repo"
	"posterd/internal/cleanup"
	"posterd/internal/http/handlers"
	"posterd/internal/http/httpapi"
	"posterd/internal/infra"
	"posterd/internal/infra/geoip"
	"posterd/internal/jobs"
	"posterd/internal/mapcache"
	"posterd/internal/middleware"
	"posterd/internal/payment"
	"posterd/internal/storage"
	"posterd/internal/themes"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	db, err := infra.NewGalleryDB(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open gallery database")
	}
	defer db.Close()
	gallery := repo.NewGalleryRepository(db, cfg.GalleryLimit)

	catalog := themes.NewCatalog(cfg.ThemesDir, logger)
	if err := catalog.Load(); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ThemesDir).Msg("failed to load theme catalog")
	}

	posters, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare poster storage")
	}

	store := jobs.NewStore(jobs.NewHub())
	runner := jobs.NewRunner(store, gallery, catalog, logger, jobs.RunnerConfig{
		Bin:       cfg.RenderBin,
		Script:    cfg.RenderScript,
		WorkDir:   cfg.RenderDir,
		OutputDir: posters.BasePath(),
		CacheDir:  cfg.CacheDir,
		Timeout:   cfg.RenderTimeout,
	})

	cache := mapcache.New(cfg.CacheDir, logger)

	janitor, err := cleanup.New(cleanup.Config{
		Schedule:  cfg.CleanupSchedule,
		Retention: cfg.CleanupAfter,
	}, store, posters, cache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure cleanup")
	}
	janitor.Start()

	var country middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip lookups disabled")
	} else if resolver != nil {
		defer resolver.Close()
		country = resolver.CountryCode
	}

	payTo := cfg.PayToAddress
	if !cfg.PaymentsEnabled() {
		payTo = ""
	}
	gate := payment.NewGate(payment.Config{
		PayTo:          payTo,
		Network:        cfg.X402Network,
		PriceUSD:       cfg.PosterPriceUSD,
		FacilitatorURL: cfg.X402Facilitator,
	}, logger)
	if gate.Enabled() {
		logger.Info().Str("network", cfg.X402Network).Msg("x402 payment required on poster creation")
	} else {
		logger.Info().Msg("payments disabled, posters are free")
	}

	app := &handlers.App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Runner:  runner,
		Themes:  catalog,
		Gallery: gallery,
		Posters: posters,
		Cache:   cache,
		Payment: gate,
		Country: country,
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	janitor.Stop()
	logger.Info().Msg("waiting for in-flight renders")
	runner.Wait()
	logger.Info().Msg("server stopped")
}
