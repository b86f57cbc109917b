package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"racikpos/backend/internal/domain"
)

const defaultPaymentFees = "credit_card=3.5,debit_card=1.5,pix=0.99"

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	SummaryCacheTTLSeconds int
	MongoURI               string
	MongoDBName            string
	AuthSecret             string
	AccessTokenTTLMinutes  int
	LogLevel               string
	PaymentFees            map[domain.PaymentMethod]float64
	ReservePercent         float64
	DefaultMarginPercent   float64
	LowStockRatio          float64
	StockAlertCron         string
	FinanceWarmupCron      string
}

// Load reads the environment, optionally seeded from envFile (or ./.env when
// envFile is empty). A missing env file is not an error; a malformed value is.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("SUMMARY_CACHE_TTL_SECONDS", "300"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 300
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	fees, err := ParsePaymentFees(getEnv("PAYMENT_FEES", defaultPaymentFees))
	if err != nil {
		return Config{}, err
	}
	reserve, err := percentEnv("RESERVE_PERCENT", 10)
	if err != nil {
		return Config{}, err
	}
	margin, err := floatEnv("DEFAULT_MARGIN_PERCENT", 50)
	if err != nil {
		return Config{}, err
	}
	if margin < 0 {
		return Config{}, fmt.Errorf("DEFAULT_MARGIN_PERCENT must not be negative")
	}
	lowStock, err := floatEnv("LOW_STOCK_RATIO", 0.2)
	if err != nil {
		return Config{}, err
	}
	if lowStock < 0 || lowStock > 1 {
		return Config{}, fmt.Errorf("LOW_STOCK_RATIO must be within [0,1]")
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		SummaryCacheTTLSeconds: cacheTTL,
		MongoURI:               os.Getenv("MONGODB_URI"),
		MongoDBName:            getEnv("MONGODB_DB_NAME", "racikpos"),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		PaymentFees:            fees,
		ReservePercent:         reserve,
		DefaultMarginPercent:   margin,
		LowStockRatio:          lowStock,
		StockAlertCron:         getEnv("STOCK_ALERT_CRON", "0 7 * * *"),
		FinanceWarmupCron:      getEnv("FINANCE_WARMUP_CRON", "*/15 * * * *"),
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// ParsePaymentFees reads "method=percent" pairs separated by commas. Every
// method must be known and every percent within [0,100]. Cash is always 0.
func ParsePaymentFees(raw string) (map[domain.PaymentMethod]float64, error) {
	fees := map[domain.PaymentMethod]float64{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("PAYMENT_FEES: %q is not method=percent", pair)
		}
		method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(key)))
		if !method.Valid() {
			return nil, fmt.Errorf("PAYMENT_FEES: unknown payment method %q", key)
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(pct) || pct < 0 || pct > 100 {
			return nil, fmt.Errorf("PAYMENT_FEES: fee for %s must be a percent within [0,100]", method)
		}
		if _, dup := fees[method]; dup {
			return nil, fmt.Errorf("PAYMENT_FEES: %s listed twice", method)
		}
		fees[method] = pct
	}
	fees[domain.PaymentCash] = 0
	return fees, nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func floatEnv(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("%s must be a number, got %q", key, raw)
	}
	return val, nil
}

func percentEnv(key string, fallback float64) (float64, error) {
	val, err := floatEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if val < 0 || val > 100 {
		return 0, fmt.Errorf("%s must be within [0,100]", key)
	}
	return val, nil
}
