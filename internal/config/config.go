package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "Europe/Rome"
	configPathEnv    = "CCNL_MONITOR_CONFIG"
	logLevelEnv      = "LOG_LEVEL"
	databaseDSNEnv   = "DATABASE_DSN"
	mlEndpointEnv    = "ML_INFERENCE_URL"
	mlAPIKeyEnv      = "ML_API_KEY"
	chatGPTAPIKeyEnv = "CHATGPT_API_KEY"
	chatGPTModelEnv  = "CHATGPT_MODEL"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	kafkaBrokersEnv  = "KAFKA_BOOTSTRAP_SERVERS"
	redisAddrEnv     = "REDIS_ADDR"
	redisPasswordEnv = "REDIS_PASSWORD"
	s3BucketEnv      = "S3_BUCKET"
	s3RegionEnv      = "S3_REGION"
	httpAddrEnv      = "HTTP_ADDR"
	concurrencyEnv   = "MONITOR_CONCURRENCY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Feeds         FeedsConfig        `yaml:"feeds"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Documents     DocumentsConfig    `yaml:"documents"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Notifications NotificationConfig `yaml:"notifications"`
	Redis         RedisConfig        `yaml:"redis"`
	HTTP          HTTPConfig         `yaml:"http"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details. Empty DSN keeps state in memory.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when monitoring cycles should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FeedsConfig lists announcement feeds and the ingestion filters.
type FeedsConfig struct {
	Sources      []SourceConfig `yaml:"sources"`
	Keywords     []string       `yaml:"keywords"`
	LookbackDays int            `yaml:"lookbackDays"`
	MaxFailures  int            `yaml:"maxFailures"`
	Timeout      time.Duration  `yaml:"timeout"`
}

// SourceConfig is one feed identified by (url, display name, source id).
type SourceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ClassifierConfig configures the optional semantic classifier backends.
type ClassifierConfig struct {
	ML      MLConfig      `yaml:"ml"`
	ChatGPT ChatGPTConfig `yaml:"chatgpt"`
}

// MLConfig describes neural-service integration parameters.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// DocumentsConfig controls supporting-document retrieval.
type DocumentsConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"maxBytes"`
	Archive  S3Config      `yaml:"archive"`
}

// S3Config selects the bucket used to archive raw documents. Empty bucket disables archiving.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// MonitoringConfig bounds concurrent item processing.
type MonitoringConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// NotificationConfig encapsulates outbound channels and audiences.
type NotificationConfig struct {
	Telegram          TelegramConfig      `yaml:"telegram"`
	Kafka             KafkaConfig         `yaml:"kafka"`
	OversightAccounts []string            `yaml:"oversightAccounts"`
	Subscribers       map[string][]string `yaml:"subscribers"`
	SectorKeywords    map[string][]string `yaml:"sectorKeywords"`
	ChannelLimits     map[string]int      `yaml:"channelLimits"`
}

// TelegramConfig wires all data required to send push messages.
type TelegramConfig struct {
	BotToken string           `yaml:"botToken"`
	Chats    map[string]int64 `yaml:"chats"`
}

// KafkaConfig configures the webhook channel producer.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig enables cross-cycle deduplication when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// HTTPConfig configures the status endpoint.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Feeds.Sources) == 0 {
		cfg.Feeds.Sources = defaultConfig().Feeds.Sources
	}
	if cfg.Monitoring.Concurrency <= 0 {
		cfg.Monitoring.Concurrency = defaultConfig().Monitoring.Concurrency
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(mlEndpointEnv); v != "" {
		c.Classifier.ML.InferenceURL = v
	}
	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.Classifier.ML.APIKey = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.Classifier.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.Classifier.ChatGPT.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Notifications.Kafka.Brokers = splitList(v)
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Redis.Password = v
	}

	if v := os.Getenv(s3BucketEnv); v != "" {
		c.Documents.Archive.Bucket = v
	}
	if v := os.Getenv(s3RegionEnv); v != "" {
		c.Documents.Archive.Region = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(concurrencyEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Monitoring.Concurrency = n
		} else {
			log.Printf("config: ignoring invalid %s=%q", concurrencyEnv, v)
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if len(override.Feeds.Sources) > 0 {
		base.Feeds.Sources = override.Feeds.Sources
	}
	if len(override.Feeds.Keywords) > 0 {
		base.Feeds.Keywords = override.Feeds.Keywords
	}
	if override.Feeds.LookbackDays > 0 {
		base.Feeds.LookbackDays = override.Feeds.LookbackDays
	}
	if override.Feeds.MaxFailures > 0 {
		base.Feeds.MaxFailures = override.Feeds.MaxFailures
	}
	if override.Feeds.Timeout > 0 {
		base.Feeds.Timeout = override.Feeds.Timeout
	}

	if override.Classifier.ML.InferenceURL != "" {
		base.Classifier.ML.InferenceURL = override.Classifier.ML.InferenceURL
	}
	if override.Classifier.ML.APIKey != "" {
		base.Classifier.ML.APIKey = override.Classifier.ML.APIKey
	}
	if override.Classifier.ChatGPT.Endpoint != "" {
		base.Classifier.ChatGPT.Endpoint = override.Classifier.ChatGPT.Endpoint
	}
	if override.Classifier.ChatGPT.Model != "" {
		base.Classifier.ChatGPT.Model = override.Classifier.ChatGPT.Model
	}
	if override.Classifier.ChatGPT.APIKey != "" {
		base.Classifier.ChatGPT.APIKey = override.Classifier.ChatGPT.APIKey
	}
	if override.Classifier.ChatGPT.SystemPrompt != "" {
		base.Classifier.ChatGPT.SystemPrompt = override.Classifier.ChatGPT.SystemPrompt
	}

	if override.Documents.Timeout > 0 {
		base.Documents.Timeout = override.Documents.Timeout
	}
	if override.Documents.MaxBytes > 0 {
		base.Documents.MaxBytes = override.Documents.MaxBytes
	}
	if override.Documents.Archive.Bucket != "" {
		base.Documents.Archive = override.Documents.Archive
	}

	if override.Monitoring.Concurrency > 0 {
		base.Monitoring.Concurrency = override.Monitoring.Concurrency
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if len(override.Notifications.Telegram.Chats) > 0 {
		base.Notifications.Telegram.Chats = override.Notifications.Telegram.Chats
	}
	if len(override.Notifications.Kafka.Brokers) > 0 {
		base.Notifications.Kafka.Brokers = override.Notifications.Kafka.Brokers
	}
	if override.Notifications.Kafka.Topic != "" {
		base.Notifications.Kafka.Topic = override.Notifications.Kafka.Topic
	}
	if len(override.Notifications.OversightAccounts) > 0 {
		base.Notifications.OversightAccounts = override.Notifications.OversightAccounts
	}
	if len(override.Notifications.Subscribers) > 0 {
		base.Notifications.Subscribers = override.Notifications.Subscribers
	}
	if len(override.Notifications.SectorKeywords) > 0 {
		base.Notifications.SectorKeywords = override.Notifications.SectorKeywords
	}
	for channel, limit := range override.Notifications.ChannelLimits {
		base.Notifications.ChannelLimits[channel] = limit
	}

	if override.Redis.Addr != "" {
		base.Redis = override.Redis
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}

	return base
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{CronExpression: "0 */2 * * *", Timezone: defaultTimezone},
		Feeds: FeedsConfig{
			Sources: []SourceConfig{
				{ID: "cnel", Name: "CNEL Archivio Contratti", URL: "https://www.cnel.it/feed/contratti"},
				{ID: "lavoro-gov", Name: "Ministero del Lavoro", URL: "https://www.lavoro.gov.it/feed/notizie"},
			},
			Keywords: []string{
				"ccnl", "contratto collettivo", "contratto nazionale", "rinnovo", "ipotesi di accordo",
				"accordo", "minimi retributivi", "retribuzione", "aumento", "sindacati", "firmato",
			},
			LookbackDays: 7,
			MaxFailures:  5,
			Timeout:      30 * time.Second,
		},
		Classifier: ClassifierConfig{
			ChatGPT: ChatGPTConfig{
				Endpoint:     "https://api.openai.com/v1/chat/completions",
				Model:        "gpt-4o-mini",
				SystemPrompt: "You classify Italian collective labour agreement announcements.",
			},
		},
		Documents: DocumentsConfig{
			Timeout:  30 * time.Second,
			MaxBytes: 20 << 20,
		},
		Monitoring: MonitoringConfig{Concurrency: 5},
		Notifications: NotificationConfig{
			Kafka:             KafkaConfig{Topic: "ccnl-notifications"},
			OversightAccounts: []string{"admin@studio.example", "compliance@studio.example"},
			Subscribers:       map[string][]string{},
			SectorKeywords: map[string][]string{
				"metalmeccanico": {"metalmeccanic", "metalmeccanici", "industria metalmeccanica"},
				"commercio":      {"commercio", "terziario", "distribuzione"},
				"edilizia":       {"edil", "costruzioni"},
				"chimico":        {"chimic", "farmaceutic"},
				"trasporti":      {"trasport", "logistica", "autotrasporto"},
				"turismo":        {"turismo", "pubblici esercizi", "alberghi"},
			},
			ChannelLimits: map[string]int{"sms": 100},
		},
		Redis: RedisConfig{TTL: 30 * 24 * time.Hour},
		HTTP:  HTTPConfig{Addr: ":8080"},
	}
}
