package config

import (
	"fmt"
	"os"
	"time"

	"GoldPull/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RefreshRPS      float64       `yaml:"refresh_rps" default:"1"`
		RefreshBurst    int           `yaml:"refresh_burst" default:"3"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	Feed struct {
		URL                    string        `yaml:"url"`
		Protocol               string        `yaml:"protocol" default:"socketio"`
		Channels               []string      `yaml:"channels"`
		InspectUnknownChannels bool          `yaml:"inspect_unknown_channels"`
		SubscribeMessages      []string      `yaml:"subscribe_messages"`
		Origin                 string        `yaml:"origin"`
		ReconnectMin           time.Duration `yaml:"reconnect_min" default:"1s"`
		ReconnectMax           time.Duration `yaml:"reconnect_max" default:"30s"`
		MaxRetries             int           `yaml:"max_retries"`
		PingInterval           time.Duration `yaml:"ping_interval" default:"25s"`
		ReadTimeout            time.Duration `yaml:"read_timeout" default:"60s"`
		MinTickInterval        time.Duration `yaml:"min_tick_interval"`
	} `yaml:"feed"`
	Engine struct {
		PersistQueue   int           `yaml:"persist_queue" default:"64"`
		PersistTimeout time.Duration `yaml:"persist_timeout" default:"10s"`
		WarmStart      bool          `yaml:"warm_start"`
	} `yaml:"engine"`
	Alarms struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval" default:"5s"`
	} `yaml:"alarms"`
	Postgres struct {
		Enabled      bool          `yaml:"enabled"`
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLife  time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		AutoMigrate  bool          `yaml:"auto_migrate"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"goldpull"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"goldpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		HistoryTTLDays   int           `yaml:"history_ttl_days" default:"30"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		SnapshotTopic string   `yaml:"snapshot_topic" default:"prices.snapshots"`
		AlarmTopic    string   `yaml:"alarm_topic" default:"alarms.triggered"`
		LogTopic      string   `yaml:"log_topic" default:"goldpull.logs"`
		RefreshTopic  string   `yaml:"refresh_topic" default:"prices.refresh"`
		RequiredAcks  int      `yaml:"required_acks" default:"1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"goldpull"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"16"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Push struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		ProjectID       string `yaml:"project_id"`
	} `yaml:"push"`
	Telegram struct {
		Enabled    bool          `yaml:"enabled"`
		BotToken   string        `yaml:"bot_token"`
		ChatID     int64         `yaml:"chat_id"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"1s"`
	} `yaml:"telegram"`
}

// Load reads a YAML configuration file on top of the tag defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the tag defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := getenv("FEED_CHANNELS"); v != "" {
		c.Feed.Channels = util.SplitList(v)
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
		c.Postgres.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := getenv("FCM_CREDENTIALS_FILE"); v != "" {
		c.Push.CredentialsFile = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.Protocol != "socketio" && c.Feed.Protocol != "json" {
		return fmt.Errorf("feed.protocol must be 'socketio' or 'json', got '%s'", c.Feed.Protocol)
	}
	if c.Feed.Protocol == "socketio" && len(c.Feed.Channels) == 0 && !c.Feed.InspectUnknownChannels {
		return fmt.Errorf("feed.channels cannot be empty unless inspect_unknown_channels is set")
	}
	if c.Feed.ReconnectMax < c.Feed.ReconnectMin {
		return fmt.Errorf("feed.reconnect_max must be >= feed.reconnect_min")
	}
	if c.Alarms.Interval <= 0 {
		return fmt.Errorf("alarms.interval must be positive")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}
	if c.ClickHouse.HistoryTTLDays <= 0 {
		return fmt.Errorf("clickhouse.history_ttl_days must be positive")
	}
	return nil
}
