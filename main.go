package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"ibfeed/config"
	"ibfeed/internal/adapters/binancegateway"
	"ibfeed/internal/adapters/csvfeed"
	"ibfeed/internal/adapters/logger"
	"ibfeed/internal/adapters/sqlitestore"
	"ibfeed/internal/app"
	"ibfeed/internal/feed"
	"ibfeed/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Bar Store (sink; also the optional database seed source)
	store, err := sqlitestore.NewStore(sqlitestore.Config{
		DBPath:    cfg.DBPath,
		Symbol:    cfg.Identifier,
		Timeframe: cfg.TimeframeStr,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize bar store")
		log.Fatalf("FATAL: Failed to initialize bar store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing bar store")
		}
	}()

	// 4. Initialize Broker Gateway (Binance Adapter)
	gateway, err := binancegateway.New(binancegateway.Config{
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.SecretKey,
		UseTestnet:     cfg.IsTestnet,
		Logger:         appLogger,
		LiveInterval:   cfg.TimeframeStr,
		ReconnectDelay: cfg.ReconnectDelay,
		ReconnectMax:   cfg.ReconnectMax,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance gateway")
		log.Fatalf("FATAL: Failed to initialize Binance gateway: %v", err)
	}

	// 5. Choose the optional seed source
	var seed ports.SeedFeed
	switch {
	case cfg.SeedCSVPath != "":
		csvSeed, err := csvfeed.New(cfg.SeedCSVPath)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to load CSV seed feed")
			log.Fatalf("FATAL: Failed to load CSV seed feed: %v", err)
		}
		appLogger.Info(context.Background(), "CSV seed feed loaded", map[string]interface{}{"path": cfg.SeedCSVPath, "bars": csvSeed.Len()})
		seed = csvSeed
	case cfg.SeedFromDB:
		dbSeed, err := store.Seed()
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to load database seed feed")
			log.Fatalf("FATAL: Failed to load database seed feed: %v", err)
		}
		appLogger.Info(context.Background(), "Database seed feed loaded", map[string]interface{}{"bars": dbSeed.Len()})
		seed = dbSeed
	}

	// 6. Assemble the feed
	barFeed, err := feed.New(feed.Config{
		Identifier:      cfg.Identifier,
		TradeIdentifier: cfg.TradeIdentifier,
		Defaults: feed.Defaults{
			SecurityType: cfg.SecType,
			Exchange:     cfg.Exchange,
			Currency:     cfg.Currency,
		},
		Timeframe:                     cfg.Timeframe,
		Compression:                   cfg.Compression,
		UseAggregatedLiveBars:         cfg.UseAggregatedLiveBars,
		HistoricalOnly:                cfg.HistoricalOnly,
		WhatToShow:                    cfg.WhatToShow,
		UseRTH:                        cfg.UseRTH,
		BackfillAtStart:               cfg.BackfillAtStart,
		BackfillOnReconnect:           cfg.BackfillOnReconnect,
		AllowLateThrough:              cfg.AllowLateThrough,
		HistoricalTimezoneOffsetHours: cfg.HistTZOffsetHours,
		FromDate:                      cfg.FromDate,
		ToDate:                        cfg.ToDate,
		SessionEnd:                    cfg.SessionEnd,
		Seed:                          seed,
		Gateway:                       gateway,
		Sink:                          store,
		Logger:                        appLogger,
		OnStatus:                      app.LogStatus(appLogger),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to assemble feed")
		log.Fatalf("FATAL: Failed to assemble feed: %v", err)
	}

	// 7. Run the service
	service, err := app.NewFeedService(barFeed, appLogger, cfg.QCheck)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize feed service")
		log.Fatalf("FATAL: Failed to initialize feed service: %v", err)
	}
	if err := service.Run(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Feed service exited with error")
		log.Fatalf("FATAL: Feed service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
