package main

import (
	"context"
	"fmt"
	"time"

	"market-terminal/src/analysis"
	"market-terminal/src/config"
	"market-terminal/src/downloader"
	"market-terminal/src/gateway"
	"market-terminal/src/logger"
	"market-terminal/src/models"
	"market-terminal/src/news"
	"market-terminal/src/streaming"
)

// -----------------------------------------------------------------------------
// End-to-end harness against the scriptable in-process gateway. Runs the full
// request lifecycle (connect, batch download, live streams, news, disconnect)
// without a real gateway process.
// -----------------------------------------------------------------------------

func main() {
	cfg := config.Default()
	appLogger := logger.NewLogger("DEBUG", "terminal-test")

	// 1. Core wiring against the sim gateway
	sim := gateway.NewSimGateway()
	registry := gateway.NewRequestRegistry(appLogger, nil)
	pacer := gateway.NewPacingLimiter(cfg.Pacing, appLogger, nil)
	supervisor := gateway.NewConnectionSupervisor(sim, registry, pacer, appLogger, nil)

	engine := analysis.NewAnalyticsEngine(cfg.Analytics)
	streams := streaming.NewStreamRegistry(supervisor, cfg, appLogger, nil)
	supervisor.SetTickSink(streams)
	dashboard := streaming.NewDashboardAggregator(streams, engine)
	dl := downloader.NewBatchOrchestrator(supervisor, cfg, appLogger, nil)
	nm := news.NewNewsManager(supervisor, cfg, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.StartSweeper(ctx, cfg.SweepInterval())

	// 2. Connect
	identity := models.MIdentity{Host: "sim", Port: 0, ClientID: 1}
	if err := supervisor.Connect(ctx, identity, cfg.ConnectionTimeout()); err != nil {
		appLogger.Critical("Connect failed: %v", err)
	}
	appLogger.Info("Connected: %+v", supervisor.Status())

	// 3. Batch download with a scripted per-symbol failure
	sim.SetSymbolBars("AAPL", 25)
	sim.SetSymbolBars("MSFT", 40)
	sim.FailSymbol("BADSYM", "No security definition has been found")

	jobID, err := dl.Submit(ctx, []string{"AAPL", "BADSYM", "MSFT"}, models.MBatchParams{
		Duration: "1 M", BarSize: "1 day", WhatToShow: "TRADES",
	})
	if err != nil {
		appLogger.Critical("Submit failed: %v", err)
	}

	waitForJob(dl, jobID, 5*time.Second)
	status, _ := dl.Status(jobID)
	appLogger.Info("Batch %s: state=%s ok=%d failed=%d", jobID, status.State, len(status.Results), len(status.Errors))

	// 4. Live streams and analytics
	streamID, err := streams.Start(ctx, "AAPL", "STK")
	if err != nil {
		appLogger.Critical("Stream start failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		sim.EmitTick(streamID, 100.0+float64(i)*0.25, 10)
	}
	time.Sleep(200 * time.Millisecond)

	snap := dashboard.Snapshot()
	for _, s := range snap.Streams {
		fmt.Printf("stream %d %s: ticks=%d price=%.2f mas=%v band=%s\n",
			s.ID, s.Symbol, s.TickCount, s.Analytics.CurrentPrice, s.Analytics.MovingAverages, s.Analytics.VolatilityBand)
	}

	// 5. Stop and confirm post-stop ticks are dropped
	streams.Stop(ctx, streamID)
	sim.EmitTick(streamID, 999.0, 1)
	time.Sleep(100 * time.Millisecond)

	info, _ := streams.Info(streamID)
	appLogger.Info("Stream %d after stop: state=%s ticks=%d", streamID, info.State, info.TickCount)

	// 6. News
	sim.QueueNews("AAPL", []models.MNewsItem{
		{Time: "2026-08-25 14:30:00.0", ProviderCode: "BRFG", ArticleID: "a1", Headline: "Apple shares rise on strong guidance"},
		{Time: "2026-08-25 15:10:00.0", ProviderCode: "DJNL", ArticleID: "a2", Headline: "Suppliers fall after weak quarter"},
	})
	summary, err := nm.Fetch(ctx, models.MNewsQuery{Symbol: "AAPL"})
	if err != nil {
		appLogger.Error("News fetch failed: %v", err)
	} else {
		appLogger.Info("News: %d headlines from %v", summary.Count, summary.Providers)
	}

	// 7. Connection loss fails pending work and stops streams
	streamID2, _ := streams.Start(ctx, "MSFT", "STK")
	sim.DropConnection()
	time.Sleep(200 * time.Millisecond)

	info2, _ := streams.Info(streamID2)
	appLogger.Info("After drop: supervisor=%s stream %d state=%s pending=%d",
		supervisor.State(), streamID2, info2.State, registry.PendingCount())

	// 8. Reconnection is a fresh Connect call
	if err := supervisor.Connect(ctx, models.MIdentity{Host: "sim", ClientID: 1}, 2*time.Second); err != nil {
		appLogger.Critical("Reconnect failed: %v", err)
	}
	streamID3, err := streams.Start(ctx, "AAPL", "STK")
	if err != nil {
		appLogger.Critical("Stream start after reconnect failed: %v", err)
	}
	sim.EmitTick(streamID3, 101.5, 300)
	time.Sleep(100 * time.Millisecond)
	info3, _ := streams.Info(streamID3)
	appLogger.Info("After reconnect: supervisor=%s stream %d ticks=%d",
		supervisor.State(), streamID3, info3.TickCount)
	supervisor.Disconnect()

	appLogger.Info("Harness complete.")
}

// -----------------------------------------------------------------------------

func waitForJob(dl *downloader.BatchOrchestrator, jobID string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if status, ok := dl.Status(jobID); ok && status.State == models.JobComplete {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
