package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/healthcheck"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/ingress"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/jetstream"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/media"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/usecase"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/vendorapi"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting conversation hub ingress",
		zap.String("environment", cfg.Environment),
		zap.String("organization_id", cfg.Organization.ID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	// Initialize repositories
	postgresRepo, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, cfg.Organization.ID)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Initialize JetStream client
	jsClient, err := jetstream.NewClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Publishes must land on an existing stream even when the consumer
	// binary has not started yet, so the ingress mirrors its stream setup.
	if err := setupInboundStream(jsClient, cfg); err != nil {
		logger.Log.Fatal("Failed to set up inbound stream", zap.Error(err))
	}

	platformRepo := storage.NewPlatformRepoAdapter(postgresRepo)
	gmailRepo := storage.NewGmailRepoAdapter(postgresRepo)

	mediaStore := media.NewS3Store(*cfg)
	gmailAPI := vendorapi.NewGmailClient(vendorapi.GmailClientConfig{
		BaseURL:      cfg.Vendor.GmailBaseURL,
		TokenURL:     cfg.Vendor.GoogleTokenURL,
		ClientID:     cfg.Vendor.GoogleClientID,
		ClientSecret: cfg.Vendor.GoogleClientSecret,
		PubSubTopic:  cfg.Vendor.GooglePubSubTopic,
		Timeout:      cfg.Vendor.Timeout,
	})

	gmailSync := usecase.NewGmailSyncService(
		gmailRepo,
		gmailAPI,
		jsClient,
		mediaStore,
		cfg.Organization.ID,
		cfg.Scheduler.Interval,
		cfg.Scheduler.WatchRenewal,
	)

	// Webhook server
	webhookServer := ingress.NewServer(cfg, platformRepo, jsClient, gmailSync, logger.Log)
	webhookServer.Start()

	// Health check server rides the metrics port; the webhook port stays
	// provider-facing only.
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Metrics.Port), logger.Log)
	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Metrics.Port))
	}
	healthServer.Start()

	// Background Gmail sync loop: safety-net polling plus watch renewal.
	// Pub/Sub push notifications arrive through the webhook server.
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	syncCtx := tenant.WithOrganizationID(mainCtx, cfg.Organization.ID)
	syncCtx = logger.WithLogger(syncCtx, logger.Log.With(zap.String("organization_id", cfg.Organization.ID)))
	utils.SafeGo(func() {
		gmailSync.Run(syncCtx)
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[panic] Gmail sync loop terminated",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
	})

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	// Shutdown webhook server
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping webhook ingress server")
		start := time.Now()
		if err := webhookServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping webhook ingress server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Webhook ingress server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping webhook ingress server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown health check server
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and NATS connections
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		}
		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsClient.Close()
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Conversation hub ingress shutdown complete")
}

// setupInboundStream mirrors the consumer binary's stream config so webhook
// publishes succeed regardless of start order.
func setupInboundStream(jsClient jetstream.ClientInterface, cfg *config.Config) error {
	streamSubjects := make([]string, 0, len(cfg.NATS.Inbound.SubjectList))
	for _, subject := range cfg.NATS.Inbound.SubjectList {
		streamSubjects = append(streamSubjects, subject+".*")
	}

	streamCfg := jetstream.NewStreamConfig(cfg.NATS.Inbound.Stream, streamSubjects, int(cfg.NATS.Inbound.MaxAge))
	return jsClient.SetupStream(context.Background(), streamCfg)
}
