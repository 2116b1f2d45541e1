package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	HTTP      HTTP      `yaml:"http"`
	Chat      Chat      `yaml:"chat"`
	AI        AI        `yaml:"ai"`
	Catalog   Catalog   `yaml:"catalog"`
	Gateway   Gateway   `yaml:"gateway"`
	Processor Processor `yaml:"processor"`
	Cache     Cache     `yaml:"cache"`
	Redis     Redis     `yaml:"redis"`
	Postgres  Postgres  `yaml:"postgres"`
	Kafka     Kafka     `yaml:"kafka"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"merchbot"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type Chat struct {
	BotToken      string `yaml:"bot_token" env:"CHAT_BOT_TOKEN"`
	SigningSecret string `yaml:"signing_secret" env:"CHAT_SIGNING_SECRET"`
	BaseURL       string `yaml:"base_url" env:"CHAT_BASE_URL" env-default:"https://slack.com/api"`
}

type AI struct {
	APIKey  string `yaml:"api_key" env:"AI_API_KEY"`
	BaseURL string `yaml:"base_url" env:"AI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model   string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`
}

type Catalog struct {
	APIToken       string `yaml:"api_token" env:"CATALOG_API_TOKEN"`
	BaseURL        string `yaml:"base_url" env:"CATALOG_BASE_URL" env-default:"https://api.printify.com/v1"`
	ShopID         string `yaml:"shop_id" env:"CATALOG_SHOP_ID"`
	CallsPerMinute int    `yaml:"calls_per_minute" env:"CATALOG_CALLS_PER_MINUTE" env-default:"50"`
}

type Gateway struct {
	PerUserPerMinute    int           `yaml:"per_user_per_minute" env:"GATEWAY_PER_USER_PER_MINUTE" env-default:"10"`
	PerChannelPerMinute int           `yaml:"per_channel_per_minute" env:"GATEWAY_PER_CHANNEL_PER_MINUTE" env-default:"20"`
	GlobalPerMinute     int           `yaml:"global_per_minute" env:"GATEWAY_GLOBAL_PER_MINUTE" env-default:"100"`
	DedupTTL            time.Duration `yaml:"dedup_ttl" env:"GATEWAY_DEDUP_TTL" env-default:"1h"`
	DedupBackend        string        `yaml:"dedup_backend" env:"GATEWAY_DEDUP_BACKEND" env-default:"memory"`
	BreakerThreshold    int           `yaml:"breaker_threshold" env:"GATEWAY_BREAKER_THRESHOLD" env-default:"10"`
	BreakerCooldown     time.Duration `yaml:"breaker_cooldown" env:"GATEWAY_BREAKER_COOLDOWN" env-default:"5m"`
	PruneInterval       time.Duration `yaml:"prune_interval" env:"GATEWAY_PRUNE_INTERVAL" env-default:"1m"`
}

type Processor struct {
	Workers         int           `yaml:"workers" env:"PROCESSOR_WORKERS" env-default:"4"`
	QueueSize       int           `yaml:"queue_size" env:"PROCESSOR_QUEUE_SIZE" env-default:"256"`
	MaxRetries      int           `yaml:"max_retries" env:"PROCESSOR_MAX_RETRIES" env-default:"3"`
	BackoffBase     float64       `yaml:"backoff_base" env:"PROCESSOR_BACKOFF_BASE" env-default:"2"`
	BackoffUnit     time.Duration `yaml:"backoff_unit" env:"PROCESSOR_BACKOFF_UNIT" env-default:"1s"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout" env:"PROCESSOR_HANDLER_TIMEOUT" env-default:"30s"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"PROCESSOR_POLL_INTERVAL" env-default:"1s"`
	DeadLetterCap   int           `yaml:"dead_letter_cap" env:"PROCESSOR_DEAD_LETTER_CAP" env-default:"1000"`
	MonitorInterval time.Duration `yaml:"monitor_interval" env:"PROCESSOR_MONITOR_INTERVAL" env-default:"30s"`
}

type Cache struct {
	Backend           string        `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`
	DefaultTTL        time.Duration `yaml:"default_ttl" env:"CACHE_DEFAULT_TTL" env-default:"1h"`
	AIResponseTTL     time.Duration `yaml:"ai_response_ttl" env:"CACHE_AI_RESPONSE_TTL" env-default:"24h"`
	RecommendationTTL time.Duration `yaml:"recommendation_ttl" env:"CACHE_RECOMMENDATION_TTL" env-default:"2h"`
	LogoAnalysisTTL   time.Duration `yaml:"logo_analysis_ttl" env:"CACHE_LOGO_ANALYSIS_TTL" env-default:"168h"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Postgres struct {
	Enabled  bool   `yaml:"enabled" env:"POSTGRES_ENABLED" env-default:"false"`
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"merchbot"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"merchbot"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"merchbot"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

type Kafka struct {
	Enabled         bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers         []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	DeadLetterTopic string   `yaml:"dead_letter_topic" env:"KAFKA_DEAD_LETTER_TOPIC" env-default:"merchbot.dead-letters"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// No config file; environment variables alone are fine.
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	return cfg, nil
}
