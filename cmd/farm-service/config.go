package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"prooffarm/internal/common/cache"
	"prooffarm/internal/common/db"
	"prooffarm/internal/common/mq"
	"prooffarm/internal/common/storage"
	"prooffarm/internal/farm/collector"
	"prooffarm/internal/farm/compiler"
	"prooffarm/internal/farm/intake"
	"prooffarm/internal/farm/pool"
	"prooffarm/internal/farm/sandbox"
	"prooffarm/internal/farm/security"
	appErr "prooffarm/pkg/errors"
	"prooffarm/pkg/utils/logger"
)

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	GinMode         string        `yaml:"ginMode"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// KafkaSection is the yaml shape of the kafka connection settings.
type KafkaSection struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// ToKafkaConfig converts the yaml section to the mq package's config.
func (k KafkaSection) ToKafkaConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
	}
}

// StatusSection configures the redis job status repository.
type StatusSection struct {
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// AppConfig is the full farm service configuration.
type AppConfig struct {
	Server    ServerConfig            `yaml:"server"`
	Logger    logger.Config           `yaml:"logger"`
	Redis     cache.RedisConfig       `yaml:"redis"`
	MinIO     storage.MinIOConfig     `yaml:"minio"`
	Kafka     KafkaSection            `yaml:"kafka"`
	MySQL     db.MySQLConfig          `yaml:"mysql"`
	Security  security.SecurityConfig `yaml:"security"`
	Compiler  compiler.HTTPConfig     `yaml:"compiler"`
	Runtime   sandbox.RuntimeConfig   `yaml:"runtime"`
	Executor  sandbox.ExecutorConfig  `yaml:"executor"`
	Pool      pool.Config             `yaml:"pool"`
	Intake    intake.Config           `yaml:"intake"`
	Collector collector.Config        `yaml:"collector"`
	Status    StatusSection           `yaml:"status"`

	// QueueSize bounds the in-memory job queue shared by intake and pool.
	QueueSize int `yaml:"queueSize"`

	// ResultsTopic is where finished job events are published. Empty
	// disables publishing.
	ResultsTopic string `yaml:"resultsTopic"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			GinMode:         "release",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logger: logger.Config{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Redis:    *cache.DefaultRedisConfig(),
		MySQL:    *db.DefaultMySQLConfig(),
		Security: security.DefaultSecurityConfig(),
		Status: StatusSection{
			KeyPrefix: "farm:job",
			TTL:       24 * time.Hour,
		},
		QueueSize: 1000,
	}
}

// LoadAppConfig reads and validates the yaml config file. Sections the
// file omits keep their defaults.
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, appErr.Wrapf(err, appErr.InvalidParams, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, appErr.Wrapf(err, appErr.InvalidParams, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configs the service cannot start with.
func (c *AppConfig) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return appErr.Newf(appErr.InvalidParams, "kafka.brokers is required")
	}
	if c.Compiler.BaseURL == "" {
		return appErr.Newf(appErr.InvalidParams, "compiler.baseURL is required")
	}
	if c.Redis.Addr == "" {
		return appErr.Newf(appErr.InvalidParams, "redis.addr is required")
	}
	if c.QueueSize <= 0 {
		return appErr.Newf(appErr.InvalidParams, "queueSize must be positive")
	}
	return nil
}
