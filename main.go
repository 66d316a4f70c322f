package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-engine/internal/access"
	"media-engine/internal/cache"
	"media-engine/internal/database"
	"media-engine/internal/handlers"
	"media-engine/internal/hls"
	"media-engine/internal/logging"
	"media-engine/internal/memory"
	"media-engine/internal/middleware"
	"media-engine/internal/probe"
	"media-engine/internal/share"
	"media-engine/internal/startup"
	"media-engine/internal/thumbnail"
	"media-engine/internal/transcoder"
	"media-engine/internal/workers"
)

func main() {
	startTime := time.Now()

	// Must run before any significant allocations.
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	if err := thumbnail.InitVips(); err != nil {
		logging.Warn("libvips unavailable, image thumbnails fall back to pure-Go decoding: %v", err)
	}
	defer thumbnail.ShutdownVips()

	ctx := context.Background()

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	store, backend := buildCache(ctx, config)
	defer store.Close()
	startup.LogCacheInit(backend)

	encodeWorkers := config.TranscodeWorkers
	if encodeWorkers <= 0 {
		encodeWorkers = workers.ForCPU(4)
	}
	startup.LogEncoderInit(encodeWorkers)

	prober := probe.NewFFprobe()
	encoder := transcoder.NewFFmpeg()

	resolver := access.NewResolver(db, config.OpenAccess)
	issuer := share.NewIssuer(db)
	planner := transcoder.NewPlanner(prober)
	coordinator := transcoder.NewCoordinator(store, encoder, config.CacheDir, encodeWorkers)
	coordinator.SetClaimTTL(config.ClaimTTL)
	preparer := hls.NewPreparer(store, encoder, prober, config.CacheDir, config.SegmentSeconds, encodeWorkers)
	// Whole-ladder jobs run several encodes back to back.
	preparer.SetClaimTTL(3 * config.ClaimTTL)
	thumbs := thumbnail.NewGenerator(config.CacheDir, prober)

	monitor := memory.NewMonitor()
	monitor.Start()
	defer monitor.Stop()

	h := handlers.New(db, store, resolver, issuer, planner, coordinator, preparer, thumbs, config)

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogSegments = config.LogSegments
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-lived range and segment responses
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(srv, coordinator, preparer)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

// buildCache selects the coordination backend. Redis makes claims visible
// fleet-wide; the in-process cache only coordinates a single instance.
func buildCache(ctx context.Context, config *startup.Config) (cache.Store, string) {
	if config.RedisAddr == "" {
		return cache.NewMemory(time.Minute), "in-memory"
	}

	store, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
	})
	if err != nil {
		logging.Fatal("Failed to connect to Redis at %s: %v", config.RedisAddr, err)
	}
	return store, "redis"
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	if config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// Media delivery
	r.HandleFunc("/media/stream/{path:.*}", h.StreamMedia).Methods("GET", "HEAD")
	r.HandleFunc("/media/info/{path:.*}", h.MediaInfo).Methods("GET")
	r.HandleFunc("/media/thumbnail/{path:.*}", h.ThumbnailMedia).Methods("GET")
	r.HandleFunc("/media/hls/{jobId}/{file:.*}", h.ServeHLS).Methods("GET")

	// Sharing
	r.HandleFunc("/files/share", h.CreateShare).Methods("POST")
	r.HandleFunc("/shared/{token}", h.GetShared).Methods("GET")
	r.HandleFunc("/shared/{token}", h.RevokeShare).Methods("DELETE")

	return r
}

func handleShutdown(srv *http.Server, coordinator *transcoder.Coordinator, preparer *hls.Preparer) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Draining transcode jobs")
	coordinator.Wait()
	preparer.Wait()
	startup.LogShutdownStepComplete("Transcode jobs drained")

	startup.LogShutdownComplete()
}
