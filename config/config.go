package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"price_crew/models"
)

type Config struct {
	DatabaseURL      string
	DBPath           string
	LogPath          string
	LogMaxBytes      int64
	HTTPAddr         string
	RegionsDir       string
	ProductIDPattern string
	// PriceAlertPercent is the absolute price change, in percent, that raises
	// an alert. 0 disables alerts.
	PriceAlertPercent float64
	Dispatch          DispatchConfig
	Healthcheck       HealthcheckConfig
	Refresh           RefreshConfig
	Redis             RedisConfig
	S3                S3Config
	PubSub            PubSubConfig
	Proxy             ProxyConfig
	Regions           []models.Region
}

type DispatchConfig struct {
	WorkerTimeout  time.Duration
	SettleDelay    time.Duration
	MaxOutputBytes int
}

type HealthcheckConfig struct {
	ProductID string
	Timeout   time.Duration
	Cron      string
	Interval  time.Duration
}

type RefreshConfig struct {
	Cron       string
	Interval   time.Duration
	RatePerMin int
	Watchlist  []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type PubSubConfig struct {
	ProjectID string
	Topic     string
}

type ProxyConfig struct {
	URL       string
	UserAgent string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBPath:            getEnv("DB_PATH", "price_crew.db"),
		LogPath:           getEnv("LOG_PATH", "daemon.log"),
		LogMaxBytes:       int64(getEnvInt("LOG_MAX_BYTES", 2*1024*1024)),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		RegionsDir:        getEnv("REGIONS_DIR", "config/regions"),
		ProductIDPattern:  getEnv("PRODUCT_ID_PATTERN", `^[A-Z0-9]{10}$`),
		PriceAlertPercent: getEnvFloat("PRICE_ALERT_PERCENT", 5),
		Dispatch: DispatchConfig{
			WorkerTimeout:  getEnvDuration("WORKER_TIMEOUT", 10*time.Minute),
			SettleDelay:    getEnvDuration("SETTLE_DELAY", 15*time.Second),
			MaxOutputBytes: getEnvInt("WORKER_MAX_OUTPUT_BYTES", 4*1024*1024),
		},
		Healthcheck: HealthcheckConfig{
			ProductID: getEnv("HEALTHCHECK_PRODUCT_ID", "B08N5WRWNW"),
			Timeout:   getEnvDuration("HEALTHCHECK_TIMEOUT", 2*time.Minute),
			Cron:      os.Getenv("HEALTHCHECK_CRON"),
			Interval:  getEnvDuration("HEALTHCHECK_INTERVAL", 0),
		},
		Refresh: RefreshConfig{
			Cron:       os.Getenv("REFRESH_CRON"),
			Interval:   getEnvDuration("REFRESH_INTERVAL", 0),
			RatePerMin: getEnvInt("REFRESH_RATE_PER_MIN", 2),
			Watchlist:  splitList(os.Getenv("WATCHLIST")),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REPORT_CACHE_TTL", 24*time.Hour),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		PubSub: PubSubConfig{
			ProjectID: os.Getenv("PUBSUB_PROJECT_ID"),
			Topic:     os.Getenv("PUBSUB_TOPIC"),
		},
		Proxy: ProxyConfig{
			URL:       os.Getenv("PROXY_URL"),
			UserAgent: getEnv("USER_AGENT", defaultUserAgent),
		},
	}

	regions, err := LoadRegions(cfg.RegionsDir)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		regions = DefaultRegions()
	}
	cfg.Regions = regions

	return cfg, nil
}

// LoadRegions reads one region per .yaml file in dir, in file name order.
// A missing directory yields no regions and no error.
func LoadRegions(dir string) ([]models.Region, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var regions []models.Region
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var region models.Region
		if err := yaml.Unmarshal(data, &region); err != nil {
			return nil, err
		}
		applyPageDefaults(&region.Page)

		regions = append(regions, region)
	}

	return regions, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d >= 0 {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
