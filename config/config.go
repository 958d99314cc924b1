package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ibfeed/internal/adapters/logger" // Import the logger package for LogLevel
	"ibfeed/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Instrument selection
	Identifier      string // dash-delimited instrument spec, e.g. "EUR.USD-CASH-IDEALPRO"
	TradeIdentifier string // optional alternate instrument to trade on
	SecType         domain.SecurityType
	Exchange        string
	Currency        string

	// Feed behaviour
	TimeframeStr          string
	Timeframe             domain.Timeframe
	Compression           int
	UseAggregatedLiveBars bool
	HistoricalOnly        bool
	WhatToShow            string // empty means infer (BID for CASH, TRADES otherwise)
	UseRTH                bool
	BackfillAtStart       bool
	BackfillOnReconnect   bool
	AllowLateThrough      bool
	QCheck                time.Duration // poll wait when no data is ready
	SessionEnd            string

	// HistTZOffsetHours corrects historical bar timestamps; nil derives the
	// offset from the machine's own timezone.
	HistTZOffsetHours *float64

	// Historical-only date range; nil is open-ended.
	FromDate *time.Time
	ToDate   *time.Time

	// Seed backfill
	SeedCSVPath string // optional CSV file consumed before broker data
	SeedFromDB  bool   // replay previously stored bars before broker data

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Connection Settings
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Instrument selection
	cfg.Identifier = getEnv("DATA_NAME", "")
	if cfg.Identifier == "" {
		errs = append(errs, "DATA_NAME must be set")
	}
	cfg.TradeIdentifier = getEnv("TRADE_NAME", "")
	cfg.SecType = domain.SecurityType(getEnv("SECTYPE", "STK"))
	cfg.Exchange = getEnv("EXCHANGE", "SMART")
	cfg.Currency = getEnv("CURRENCY", "")

	// Feed behaviour
	cfg.TimeframeStr = getEnv("TIMEFRAME", "1m")
	tf, compression, err := domain.ParseTimeframe(cfg.TimeframeStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEFRAME: %v", err))
	}
	cfg.Timeframe = tf
	cfg.Compression = compression

	cfg.UseAggregatedLiveBars = getEnvAsBool("USE_AGGREGATED_BARS", false)
	cfg.HistoricalOnly = getEnvAsBool("HISTORICAL_ONLY", false)
	cfg.WhatToShow = getEnv("WHAT_TO_SHOW", "")
	cfg.UseRTH = getEnvAsBool("USE_RTH", false)
	cfg.BackfillAtStart = getEnvAsBool("BACKFILL_AT_START", true)
	cfg.BackfillOnReconnect = getEnvAsBool("BACKFILL_ON_RECONNECT", true)
	cfg.AllowLateThrough = getEnvAsBool("LATE_THROUGH", false)
	cfg.SessionEnd = getEnv("SESSION_END", "")

	qcheckMillis := getEnvAsInt("QCHECK_MILLIS", 500)
	if qcheckMillis <= 0 {
		errs = append(errs, "QCHECK_MILLIS must be positive")
	}
	cfg.QCheck = time.Duration(qcheckMillis) * time.Millisecond

	if raw := os.Getenv("HIST_TZ_OFFSET_HOURS"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid HIST_TZ_OFFSET_HOURS: %v", err))
		} else {
			cfg.HistTZOffsetHours = &hours
		}
	}

	cfg.FromDate, err = getEnvAsTime("FROM_DATE")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FROM_DATE: %v", err))
	}
	cfg.ToDate, err = getEnvAsTime("TO_DATE")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TO_DATE: %v", err))
	}

	// Seed backfill
	cfg.SeedCSVPath = getEnv("SEED_CSV", "")
	cfg.SeedFromDB = getEnvAsBool("SEED_FROM_DB", false)
	if cfg.SeedCSVPath != "" && cfg.SeedFromDB {
		errs = append(errs, "SEED_CSV and SEED_FROM_DB are mutually exclusive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/bars.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 1)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	reconnectMaxSeconds := getEnvAsInt("RECONNECT_MAX_SECONDS", 120)
	if reconnectMaxSeconds < reconnectDelaySeconds {
		errs = append(errs, "RECONNECT_MAX_SECONDS must be >= RECONNECT_DELAY_SECONDS")
	}
	cfg.ReconnectMax = time.Duration(reconnectMaxSeconds) * time.Second

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsTime(key string) (*time.Time, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil, nil
	}
	// Accept a date or a full timestamp.
	if t, err := time.Parse("2006-01-02", valueStr); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, valueStr)
	if err != nil {
		return nil, fmt.Errorf("invalid time value '%s' for key %s: %w", valueStr, key, err)
	}
	return &t, nil
}
