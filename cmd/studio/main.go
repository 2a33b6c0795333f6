package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/internal/core/services"
	httphandlers "stagecast/internal/handlers/http"
	backupinfra "stagecast/internal/infrastructure/backup"
	"stagecast/internal/infrastructure/clips"
	fanoutinfra "stagecast/internal/infrastructure/fanout"
	"stagecast/internal/infrastructure/middleware"
	"stagecast/internal/infrastructure/monitoring"
	"stagecast/internal/infrastructure/provisioning"
	repositories "stagecast/internal/infrastructure/repositories"
	signalinfra "stagecast/internal/infrastructure/signal"
	webrtcinfra "stagecast/internal/infrastructure/webrtc"
	"stagecast/pkg/backup"
	"stagecast/pkg/config"
	"stagecast/pkg/logger"
	"stagecast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/stagecast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "stagecast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Repositories
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Composite pipeline: registry + mixer feed the compositor, which
	// publishes into the shared output stream.
	composite := services.NewCompositeStream(log)
	registry := services.NewRegistryService(log)
	mixer := services.NewMixerService(services.MixerConfig{
		SampleRate:        cfg.Audio.SampleRate,
		SpeakingThreshold: cfg.Audio.SpeakingThreshold,
		Smoothing:         cfg.Audio.Smoothing,
	}, composite.PublishAudio, log)
	compositor := services.NewCompositorService(services.CompositorConfig{
		Width:         cfg.Studio.CanvasWidth,
		Height:        cfg.Studio.CanvasHeight,
		FrameRate:     cfg.Studio.FrameRate,
		SocialCardTTL: cfg.Studio.SocialCardTTL,
		DefaultLayout: domain.LayoutID(cfg.Studio.DefaultLayout),
	}, registry, mixer, composite, log)

	// Quality monitoring
	quality := services.NewQualityService(cfg.WebRTC.QualitySampleInterval, log)

	// Fanout transports
	whipTransport := fanoutinfra.NewWHIPTransport(log)
	relayTransport := fanoutinfra.NewRTMPRelayTransport(cfg.Relay.Address, log)
	fanoutManager := services.NewFanoutService([]ports.DestinationTransport{
		whipTransport,
		relayTransport,
	}, log)

	// External provisioning API
	provisioningClient := provisioning.NewClient(cfg.Provisioning.BaseURL, cfg.Provisioning.APIKey, log)

	// Metrics
	collector := monitoring.NewPrometheusCollector(compositor, registry)
	fanoutManager.OnStatusChange(collector.RecordDestinationStatus)
	registry.OnRemove(collector.RecordParticipantLeft)

	// Recording. The catalog is shared between the recorder and the control
	// API, instrumented so every finished recording is counted.
	catalog := monitoring.NewInstrumentedCatalog(repoFactory.CreateRecordingCatalog(), collector)
	recorder := services.NewRecordingService(cfg.Recording.Directory, composite, catalog, log)

	// Broadcast orchestration
	broadcastCfg := services.BroadcastConfig{
		CountdownSeconds: cfg.Studio.CountdownSeconds,
		PollAttempts:     cfg.Provisioning.PollAttempts,
		PollInterval:     cfg.Provisioning.PollInterval,
	}
	if cfg.Studio.IntroClipPath != "" {
		intro, err := clips.LoadStill(cfg.Studio.IntroClipPath, cfg.Studio.CanvasWidth, cfg.Studio.CanvasHeight)
		if err != nil {
			log.Fatalw("failed to load intro clip", "path", cfg.Studio.IntroClipPath, "error", err)
		}
		broadcastCfg.IntroClip = intro
		broadcastCfg.IntroDuration = time.Duration(cfg.Studio.IntroSeconds) * time.Second
	}
	broadcast := services.NewBroadcastService(broadcastCfg, compositor, mixer, fanoutManager, provisioningClient, recorder, log)
	collector.ObserveBroadcast(broadcast)

	// WebRTC ingest
	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	ingestConfig := webrtcinfra.IngestConfig{
		ICEServers: iceServers,
		SampleRate: cfg.Audio.SampleRate,
	}
	ingestConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	ingestConfig.PortRange.Max = cfg.WebRTC.PortRange.Max
	ingest := webrtcinfra.NewIngestService(ingestConfig, registry, mixer, quality, log)

	signalServer := signalinfra.NewWebSocketServer(ingest, log)

	// Health checks
	health := monitoring.NewHealthChecker()
	health.AddCompositeCheck(composite, 15*time.Second, time.Second)
	health.AddCatalogCheck(catalog, 30*time.Second, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 30*time.Second, 2*time.Second)
	}
	if cfg.Relay.Address != "" {
		health.AddRelayCheck(cfg.Relay.Address, 30*time.Second, 2*time.Second)
	}

	// Start the media pipeline
	pipelineCtx, pipelineCancel := context.WithCancel(context.Background())
	defer pipelineCancel()

	if err := mixer.Start(pipelineCtx); err != nil {
		log.Fatalw("failed to start audio mixer", "error", err)
	}
	if err := compositor.Start(pipelineCtx); err != nil {
		log.Fatalw("failed to start compositor", "error", err)
	}
	quality.Start(pipelineCtx)
	health.StartBackgroundChecks(pipelineCtx)

	// Catalog archival
	if cfg.Backup.Enabled {
		archiveStorage, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to create backup storage", "error", err)
		}
		archiveScheduler := backupinfra.NewScheduler(
			backup.NewBackupService(archiveStorage, version),
			catalog,
			backupinfra.Config{
				Interval:      cfg.Backup.Interval,
				RetentionDays: cfg.Backup.RetentionDays,
			},
			log,
		)
		go archiveScheduler.Start(pipelineCtx)
		log.Infow("catalog archival enabled",
			"directory", cfg.Backup.Directory, "interval", cfg.Backup.Interval)
	}

	go func() {
		for report := range quality.Subscribe(64) {
			collector.RecordQualityReport(report)
		}
	}()

	// Auth
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// HTTP control API
	authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.StudioKey)
	studioHandler := httphandlers.NewStudioHandler(
		broadcast, compositor, registry, mixer,
		fanoutManager, recorder, quality, catalog,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.RequestLoggingMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler.SetupRoutes(router)
	studioHandler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	router.GET("/health", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status.Status,
			"timestamp": status.Timestamp,
			"checks":    status.Checks,
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Signaling runs on its own listener so WebSocket lifetimes are not
	// bound by the API server's write timeout.
	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", signalServer.HandleWebSocket)
	signalSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: signalMux,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting Stagecast control API on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting Stagecast signaling on %s", cfg.Signal.Address)
		if err := signalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down Stagecast...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// End a live broadcast cleanly before tearing the pipeline down.
	if err := broadcast.EndBroadcast(shutdownCtx); err == nil {
		log.Info("Live broadcast ended for shutdown")
	}
	if recorder.Active() {
		if _, err := recorder.Stop(shutdownCtx); err != nil {
			log.Errorw("Error stopping recording", "error", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}
	if err := signalSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during signaling shutdown", "error", err)
	}

	compositor.Stop()
	mixer.Stop()
	quality.Stop()
	pipelineCancel()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Stagecast stopped")
}
