package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-terminal/src/analysis"
	"market-terminal/src/config"
	"market-terminal/src/downloader"
	"market-terminal/src/gateway"
	"market-terminal/src/grpc_control"
	"market-terminal/src/helpers"
	"market-terminal/src/interfaces"
	"market-terminal/src/logger"
	"market-terminal/src/metrics"
	"market-terminal/src/models"
	"market-terminal/src/news"
	"market-terminal/src/publish"
	"market-terminal/src/server"
	"market-terminal/src/storage"
	"market-terminal/src/streaming"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// 2. Storage
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewAsyncSQLiteDB(cfg.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := helpers.RetryWithBackoff("database initialization", 3, time.Second, db.Initialize); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// 3. Core components
	appMetrics := metrics.NewMetrics()

	gw := gateway.NewWebSocketGateway(appLogger)
	registry := gateway.NewRequestRegistry(appLogger, appMetrics)
	pacer := gateway.NewPacingLimiter(cfg.Pacing, appLogger, appMetrics)
	supervisor := gateway.NewConnectionSupervisor(gw, registry, pacer, appLogger, appMetrics)

	engine := analysis.NewAnalyticsEngine(cfg.Analytics)
	streams := streaming.NewStreamRegistry(supervisor, cfg, appLogger, appMetrics)
	supervisor.SetTickSink(streams)

	dashboard := streaming.NewDashboardAggregator(streams, engine)

	dl := downloader.NewBatchOrchestrator(supervisor, cfg, appLogger, appMetrics)
	dl.SetDatabase(db)

	nm := news.NewNewsManager(supervisor, cfg, appLogger)
	nm.SetDatabase(db)

	// 4. Optional publisher
	if cfg.Publisher.Enabled {
		pub := publish.NewNATSPublisher(cfg.Publisher.URL, cfg.Publisher.SubjectPrefix, appLogger)
		if err := pub.Connect(); err != nil {
			appLogger.Warning("Publisher connect failed, continuing without: %v", err)
		} else {
			dl.SetPublisher(pub)
			streams.SetTickHook(pub.OnTick)
			defer pub.Disconnect()
		}
	}

	// 5. Background lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.StartSweeper(ctx, cfg.SweepInterval())

	// Retention cleanup, once an hour
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.CleanupOldData()
			}
		}
	}()

	// 6. Connect to the gateway
	identity := models.MIdentity{
		Host:     cfg.Gateway.Host,
		Port:     cfg.Gateway.Port,
		ClientID: cfg.Gateway.ClientID,
	}
	if err := supervisor.Connect(ctx, identity, cfg.ConnectionTimeout()); err != nil {
		appLogger.Warning("Initial gateway connect failed: %v (connect later via API)", err)
	}

	// 7. gRPC health service
	grpcService, err := grpc_control.NewGRPCService(cfg, appLogger, supervisor)
	if err != nil {
		appLogger.Critical("Failed to init gRPC service: %v", err)
	}
	go func() {
		if err := grpcService.Start(ctx); err != nil {
			appLogger.Error("gRPC service failed: %v", err)
		}
	}()

	// 8. HTTP API
	srv := server.NewAPIServer(cfg, appLogger, supervisor, dl, streams, dashboard, nm)
	srv.SetControlProbe(grpcService.IsRunning)
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 9. Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	appLogger.Info("Terminal running. Ctrl+C to stop.")
	<-quit

	appLogger.Info("Shutting down...")
	cancel()
	supervisor.Disconnect()
}
