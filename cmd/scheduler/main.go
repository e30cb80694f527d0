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
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/campaign"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/healthcheck"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/jetstream"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
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

	logger.Log.Info("Starting conversation hub campaign scheduler",
		zap.String("environment", cfg.Environment),
		zap.String("organization_id", cfg.Organization.ID),
		zap.Int64("lock_id", cfg.Scheduler.LockID),
	)

	// Initialize repositories
	postgresRepo, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, cfg.Organization.ID)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	contactRepo := storage.NewContactRepoAdapter(postgresRepo)
	platformRepo := storage.NewPlatformRepoAdapter(postgresRepo)
	conversationRepo := storage.NewConversationRepoAdapter(postgresRepo)
	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	scheduleRepo := storage.NewScheduleRepoAdapter(postgresRepo)
	leaseRepo := storage.NewLeaseRepoAdapter(postgresRepo)

	// Webchat delivery rides the realtime stream, so the scheduler carries its
	// own JetStream connection.
	jsClient, err := jetstream.NewClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// One sender per provider; the dispatcher picks by platform name.
	sender := vendorapi.NewDispatcher(map[string]vendorapi.Sender{
		model.PlatformWebchat:   vendorapi.NewWebchatSender(jsClient),
		model.PlatformWhatsApp:  vendorapi.NewWhatsAppClient(cfg.Vendor.GraphBaseURL, cfg.Vendor.Timeout),
		model.PlatformMessenger: vendorapi.NewMessengerClient(cfg.Vendor.GraphBaseURL, cfg.Vendor.Timeout),
		model.PlatformGmail: vendorapi.NewGmailClient(vendorapi.GmailClientConfig{
			BaseURL:      cfg.Vendor.GmailBaseURL,
			TokenURL:     cfg.Vendor.GoogleTokenURL,
			ClientID:     cfg.Vendor.GoogleClientID,
			ClientSecret: cfg.Vendor.GoogleClientSecret,
			PubSubTopic:  cfg.Vendor.GooglePubSubTopic,
			Timeout:      cfg.Vendor.Timeout,
		}),
	})

	fanout, err := campaign.NewFanout(
		cfg.WorkerPools.Campaign,
		contactRepo,
		platformRepo,
		conversationRepo,
		messageRepo,
		scheduleRepo,
		sender,
		logger.Log,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize campaign fan-out pool", zap.Error(err))
	}

	runner := campaign.NewRunner(cfg, scheduleRepo, leaseRepo, fanout)

	// Health check server
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), logger.Log)
	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	}
	healthServer.Start()

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	runCtx := tenant.WithOrganizationID(mainCtx, cfg.Organization.ID)
	runCtx = logger.WithLogger(runCtx, logger.Log.With(zap.String("organization_id", cfg.Organization.ID)))

	sigChan := make(chan os.Signal, 1)

	// The runner holds the advisory lock for its whole lifetime. A replica
	// that loses the race exits cleanly so the deployment can reschedule it.
	utils.SafeGo(func() {
		acquired, err := runner.Run(runCtx)
		if err != nil {
			logger.Log.Error("Campaign scheduler terminated with error", zap.Error(err))
		}
		if !acquired || err != nil {
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
			}
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[panic] Campaign scheduler terminated",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		mainCancel()
	})

	// Wait for termination signal
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Drain the fan-out pool; in-flight recipient sends finish first.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping campaign fan-out pool")
		start := time.Now()
		fanout.Stop()
		logger.Log.Info("[shutdown] Campaign fan-out pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping campaign fan-out pool",
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

	// Close NATS connection
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing NATS connection")
		jsClient.Close()
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing NATS connection",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database connection
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing database connection",
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

	logger.Log.Info("Campaign scheduler shutdown complete")
}
