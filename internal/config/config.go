package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort      string `mapstructure:"SERVER_PORT"`
	DeviceName      string `mapstructure:"DEVICE_NAME"`
	TreadmillMAC    string `mapstructure:"TREADMILL_MAC"`
	LinkMode        string `mapstructure:"LINK_MODE"`
	BackendURL      string `mapstructure:"BACKEND_URL"`
	BackendAPIKey   string `mapstructure:"BACKEND_API_KEY"`
	UploadMode      string `mapstructure:"UPLOAD_MODE"`
	PostgresURL     string `mapstructure:"POSTGRES_URL"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	StatusJWTSecret string `mapstructure:"STATUS_JWT_SECRET"`

	MinWorkoutSpeed     float64       `mapstructure:"MIN_WORKOUT_SPEED_KMH"`
	SpeedCeiling        float64       `mapstructure:"SPEED_CEILING_KMH"`
	NoiseFloor          float64       `mapstructure:"NOISE_FLOOR_KMH"`
	StabilizationWindow time.Duration `mapstructure:"STABILIZATION_WINDOW"`
	SettleDelay         time.Duration `mapstructure:"SETTLE_DELAY"`
	Cooldown            time.Duration `mapstructure:"COOLDOWN"`
	InactivityTimeout   time.Duration `mapstructure:"INACTIVITY_TIMEOUT"`
	MinSessionDuration  time.Duration `mapstructure:"MIN_SESSION_DURATION"`
	MaxSessionDuration  time.Duration `mapstructure:"MAX_SESSION_DURATION"`
	ClockValidFrom      string        `mapstructure:"CLOCK_VALID_FROM"`
	ClockValidUntil     string        `mapstructure:"CLOCK_VALID_UNTIL"`
	BufferCapacity      int           `mapstructure:"BUFFER_CAPACITY"`

	QueueDepth         int           `mapstructure:"QUEUE_DEPTH"`
	MemoryBudget       uint64        `mapstructure:"MEMORY_BUDGET_BYTES"`
	MemoryFloor        uint64        `mapstructure:"MEMORY_FLOOR_BYTES"`
	UploadAttempts     int           `mapstructure:"UPLOAD_ATTEMPTS"`
	UploadBackoff      time.Duration `mapstructure:"UPLOAD_BACKOFF"`
	UploadTimeout      time.Duration `mapstructure:"UPLOAD_TIMEOUT"`
	WorkerIdle         time.Duration `mapstructure:"WORKER_IDLE"`
	SupervisorInterval time.Duration `mapstructure:"SUPERVISOR_INTERVAL"`
	HealthInterval     time.Duration `mapstructure:"HEALTH_INTERVAL"`
}

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("SERVER_PORT", ":8080")
	viper.SetDefault("DEVICE_NAME", "treadmill-relay")
	viper.SetDefault("TREADMILL_MAC", "")
	viper.SetDefault("LINK_MODE", "ble")
	viper.SetDefault("BACKEND_URL", "")
	viper.SetDefault("BACKEND_API_KEY", "")
	viper.SetDefault("UPLOAD_MODE", "http")
	viper.SetDefault("POSTGRES_URL", "")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("STATUS_JWT_SECRET", "")

	viper.SetDefault("MIN_WORKOUT_SPEED_KMH", 1.0)
	viper.SetDefault("SPEED_CEILING_KMH", 40.0)
	viper.SetDefault("NOISE_FLOOR_KMH", 0.1)
	viper.SetDefault("STABILIZATION_WINDOW", "3s")
	viper.SetDefault("SETTLE_DELAY", "1s")
	viper.SetDefault("COOLDOWN", "30s")
	viper.SetDefault("INACTIVITY_TIMEOUT", "30s")
	viper.SetDefault("MIN_SESSION_DURATION", "60s")
	viper.SetDefault("MAX_SESSION_DURATION", "24h")
	viper.SetDefault("CLOCK_VALID_FROM", "2024-01-01T00:00:00Z")
	viper.SetDefault("CLOCK_VALID_UNTIL", "2034-01-01T00:00:00Z")
	viper.SetDefault("BUFFER_CAPACITY", 200)

	viper.SetDefault("QUEUE_DEPTH", 3)
	viper.SetDefault("MEMORY_BUDGET_BYTES", 64<<20)
	viper.SetDefault("MEMORY_FLOOR_BYTES", 40960)
	viper.SetDefault("UPLOAD_ATTEMPTS", 3)
	viper.SetDefault("UPLOAD_BACKOFF", "2s")
	viper.SetDefault("UPLOAD_TIMEOUT", "10s")
	viper.SetDefault("WORKER_IDLE", "5s")
	viper.SetDefault("SUPERVISOR_INTERVAL", "1s")
	viper.SetDefault("HEALTH_INTERVAL", "30s")

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
