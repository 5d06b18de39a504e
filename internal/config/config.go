// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for database, cache and backups (always absolute)
	DBPath        string
	Port          int
	LogLevel      string
	DevMode       bool
	ProviderOrder []string // Preferred data provider order, e.g. ["tushare", "akshare"]
	TushareToken  string
	MaxWorkers    int // Task pool size

	Sim    SimConfig
	Risk   RiskConfig
	Backup BackupConfig
}

// SimConfig holds simulated execution parameters.
type SimConfig struct {
	FeeRate      float64
	SlippageRate float64
}

// RiskConfig holds the environment defaults for risk rules. Values stored in
// the risk_rules table override these at check time.
type RiskConfig struct {
	MaxPositionPerSymbol     float64
	MinCashRatio             float64
	MaxOrderValue            float64
	MinOrderValue            float64
	MaxOrdersPerDay          int
	MaxOrderFrequencySeconds int
	PriceDeviationLimit      float64
	LotSize                  int
	MaxDailyTradingValue     float64
}

// BackupConfig holds backup settings. S3 upload is active only when Bucket is set.
type BackupConfig struct {
	Enabled  bool
	Dir      string
	Keep     int // backups retained locally
	S3Bucket string
	S3Prefix string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("WORKBENCH_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := getEnv("WORKBENCH_DB_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(absDataDir, "workbench.db")
	}

	cfg := &Config{
		DataDir:       absDataDir,
		DBPath:        dbPath,
		Port:          getEnvAsInt("WORKBENCH_PORT", 8000),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		ProviderOrder: splitCSV(getEnv("WORKBENCH_PROVIDER_ORDER", "tushare,akshare")),
		TushareToken:  getEnv("TUSHARE_TOKEN", ""),
		MaxWorkers:    getEnvAsInt("WORKBENCH_MAX_WORKERS", 4),
		Sim: SimConfig{
			FeeRate:      getEnvAsFloat("SIM_FEE_RATE", 0.0003),
			SlippageRate: getEnvAsFloat("SIM_SLIPPAGE_RATE", 0.0005),
		},
		Risk: RiskConfig{
			MaxPositionPerSymbol:     getEnvAsFloat("RISK_MAX_POSITION_PER_SYMBOL", 0.25),
			MinCashRatio:             getEnvAsFloat("RISK_MIN_CASH_RATIO", 0.05),
			MaxOrderValue:            getEnvAsFloat("RISK_MAX_ORDER_VALUE", 200000),
			MinOrderValue:            getEnvAsFloat("RISK_MIN_ORDER_VALUE", 1000),
			MaxOrdersPerDay:          getEnvAsInt("RISK_MAX_ORDERS_PER_DAY", 50),
			MaxOrderFrequencySeconds: getEnvAsInt("RISK_MAX_ORDER_FREQUENCY_SECONDS", 60),
			PriceDeviationLimit:      getEnvAsFloat("RISK_PRICE_DEVIATION_LIMIT", 0.03),
			LotSize:                  getEnvAsInt("RISK_LOT_SIZE", 100),
			MaxDailyTradingValue:     getEnvAsFloat("RISK_MAX_DAILY_TRADING_VALUE", 1000000),
		},
		Backup: BackupConfig{
			Enabled:  getEnvAsBool("BACKUP_ENABLED", false),
			Dir:      getEnv("BACKUP_DIR", filepath.Join(absDataDir, "backups")),
			Keep:     getEnvAsInt("BACKUP_KEEP", 7),
			S3Bucket: getEnv("BACKUP_S3_BUCKET", ""),
			S3Prefix: getEnv("BACKUP_S3_PREFIX", "workbench"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("WORKBENCH_MAX_WORKERS must be at least 1")
	}
	if len(c.ProviderOrder) == 0 {
		return fmt.Errorf("WORKBENCH_PROVIDER_ORDER must name at least one provider")
	}
	if c.Risk.LotSize < 1 {
		return fmt.Errorf("RISK_LOT_SIZE must be at least 1")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
