package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

const (
	TransportHTTP  = "http"
	TransportRedis = "redis"
)

// Config holds the settings shared by the agent and collector binaries.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`

	Token             string        `env:"BORINGMETRICS_TOKEN"`
	Transport         string        `env:"TRANSPORT" envDefault:"http"`
	APIURL            string        `env:"API_URL" envDefault:"https://api.getboringmetrics.com"`
	Gzip              bool          `env:"GZIP" envDefault:"false"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"5s"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"redis://localhost:6379/0"`
	RedisPrefix       string        `env:"REDIS_PREFIX" envDefault:"boringmetrics"`
	RedisMaxLen       int64         `env:"REDIS_MAX_LEN" envDefault:"0"`
	MaxRetryAttempts  int           `env:"MAX_RETRY_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryAllErrors    bool          `env:"RETRY_ALL_ERRORS" envDefault:"false"`
	LogsMaxBatchSize  int           `env:"LOGS_MAX_BATCH_SIZE" envDefault:"100"`
	LogsSendInterval  time.Duration `env:"LOGS_SEND_INTERVAL" envDefault:"5s"`
	LivesMaxBatchSize int           `env:"LIVES_MAX_BATCH_SIZE" envDefault:"20"`
	LivesDebounceTime time.Duration `env:"LIVES_DEBOUNCE_TIME" envDefault:"1s"`
	LiveFailurePolicy string        `env:"LIVE_FAILURE_POLICY" envDefault:"abort"`
	PendingBatches    int           `env:"PENDING_BATCHES" envDefault:"100"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogPath           string        `env:"LOG_PATH" envDefault:"/var/log/pods"`
	NodeName          string        `env:"NODE_NAME" envDefault:"unknown"`
	ScanInterval      time.Duration `env:"SCAN_INTERVAL" envDefault:"30s"`
	Workers           int           `env:"WORKERS" envDefault:"4"`
	FileQueueSize     int           `env:"QUEUE_SIZE" envDefault:"50"`
	FileIdleTimeout   time.Duration `env:"FILE_IDLE_TIMEOUT" envDefault:"5m"`
	MaxLinesPerSecond float64       `env:"MAX_LINES_PER_SECOND" envDefault:"1000"`
	FromStart         bool          `env:"FROM_START" envDefault:"false"`

	CollectorAddr   string `env:"COLLECTOR_ADDR" envDefault:":8080"`
	CollectorTokens string `env:"COLLECTOR_TOKENS" envDefault:""`
}

// Load reads configuration from environment variables, after loading a
// .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindFlags registers command-line overrides. Current values become the
// flag defaults, so call it after Load.
func (c *Config) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	flagSet.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	flagSet.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address for the /metrics endpoint (empty disables it)")
	flagSet.StringVar(&c.Token, "token", c.Token, "project API token")
	flagSet.StringVar(&c.Transport, "transport", c.Transport, "delivery transport: http or redis")
	flagSet.StringVar(&c.APIURL, "api-url", c.APIURL, "collection API base URL")
	flagSet.BoolVar(&c.Gzip, "gzip", c.Gzip, "gzip request bodies")
	flagSet.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis URL for the redis transport")
	flagSet.IntVar(&c.MaxRetryAttempts, "max-retries", c.MaxRetryAttempts, "retries after the first failed delivery")
	flagSet.StringVar(&c.LiveFailurePolicy, "live-failure-policy", c.LiveFailurePolicy, "abort or continue a live batch after a failed update")
	flagSet.StringVar(&c.LogPath, "log-path", c.LogPath, "root directory to scan for *.log files")
	flagSet.StringVar(&c.NodeName, "node-name", c.NodeName, "node name attached to shipped logs")
	flagSet.IntVar(&c.Workers, "workers", c.Workers, "number of file tailing workers")
	flagSet.BoolVar(&c.FromStart, "from-start", c.FromStart, "read new files from the beginning instead of the end")
	flagSet.StringVar(&c.CollectorAddr, "collector-addr", c.CollectorAddr, "listen address of the collector")
}

// EngineConfig converts the settings into a delivery engine config. The
// Retryable classifier is left for the caller, since it depends on the
// transport.
func (c *Config) EngineConfig() (telemetry.Config, error) {
	policy, err := telemetry.ParseLiveFailurePolicy(c.LiveFailurePolicy)
	if err != nil {
		return telemetry.Config{}, err
	}

	cfg := telemetry.DefaultConfig(c.Token)
	cfg.MaxRetryAttempts = c.MaxRetryAttempts
	cfg.RetryBaseDelay = c.RetryBaseDelay
	cfg.LogsMaxBatchSize = c.LogsMaxBatchSize
	cfg.LogsSendInterval = c.LogsSendInterval
	cfg.LivesMaxBatchSize = c.LivesMaxBatchSize
	cfg.LivesDebounceTime = c.LivesDebounceTime
	cfg.LiveFailurePolicy = policy
	cfg.PendingBatches = c.PendingBatches

	if err := cfg.Validate(); err != nil {
		return telemetry.Config{}, err
	}
	return cfg, nil
}

func (c *Config) ValidateTransport() error {
	switch c.Transport {
	case TransportHTTP, TransportRedis:
		return nil
	}
	return fmt.Errorf("%w: unknown transport %q", telemetry.ErrInvalidConfig, c.Transport)
}
