package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/muzeer/rewards/internal/store/schema"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug       bool   `mapstructure:"debug"`
	Environment string `mapstructure:"environment"`
	SentryDSN   string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// NATSConfig holds NATS JetStream configuration for ledger event fan-out
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize  int `mapstructure:"pool_size"`
	QueueSize int `mapstructure:"queue_size"`
}

// RewardsConfig seeds the lazily-created token control row. Persisted values
// win once the row exists; these only apply on first boot and as backfill
// for invalid persisted values.
type RewardsConfig struct {
	Symbol                          string `mapstructure:"symbol"`
	QualifiedSecondsPerToken        int64  `mapstructure:"qualified_seconds_per_token"`
	MaxSecondsPerEvent              int64  `mapstructure:"max_seconds_per_event"`
	MaxDailyQualifiedSeconds        int64  `mapstructure:"max_daily_qualified_seconds"`
	MinTrackEventIntervalSeconds    int64  `mapstructure:"min_track_event_interval_seconds"`
	MaxRepeatTrackEventsPerDay      int64  `mapstructure:"max_repeat_track_events_per_day"`
	DiversityPenaltyPercent         int64  `mapstructure:"diversity_penalty_percent"`
	SuspiciousEventPenaltyThreshold int64  `mapstructure:"suspicious_event_penalty_threshold"`
	SuspiciousEventHardLimit        int64  `mapstructure:"suspicious_event_hard_limit"`
	StreakMaxDays                   int64  `mapstructure:"streak_max_days"`
	StreakBonusPerDayPercent        int64  `mapstructure:"streak_bonus_per_day_percent"`
	QuestDailyListenSecondsTarget   int64  `mapstructure:"quest_daily_listen_seconds_target"`
	QuestDailyUniqueArtistsTarget   int64  `mapstructure:"quest_daily_unique_artists_target"`
	QuestDailyTokenReward           int64  `mapstructure:"quest_daily_token_reward"`
	AllowAdminMintBurn              bool   `mapstructure:"allow_admin_mint_burn"`
}

// TokenControl converts the config seed into a control row
func (c *RewardsConfig) TokenControl() schema.TokenControl {
	return schema.TokenControl{
		Symbol:                          c.Symbol,
		QualifiedSecondsPerToken:        c.QualifiedSecondsPerToken,
		MaxSecondsPerEvent:              c.MaxSecondsPerEvent,
		MaxDailyQualifiedSeconds:        c.MaxDailyQualifiedSeconds,
		MinTrackEventIntervalSeconds:    c.MinTrackEventIntervalSeconds,
		MaxRepeatTrackEventsPerDay:      c.MaxRepeatTrackEventsPerDay,
		DiversityPenaltyPercent:         c.DiversityPenaltyPercent,
		SuspiciousEventPenaltyThreshold: c.SuspiciousEventPenaltyThreshold,
		SuspiciousEventHardLimit:        c.SuspiciousEventHardLimit,
		StreakMaxDays:                   c.StreakMaxDays,
		StreakBonusPerDayPercent:        c.StreakBonusPerDayPercent,
		QuestDailyListenSecondsTarget:   c.QuestDailyListenSecondsTarget,
		QuestDailyUniqueArtistsTarget:   c.QuestDailyUniqueArtistsTarget,
		QuestDailyTokenReward:           c.QuestDailyTokenReward,
		AllowAdminMintBurn:              c.AllowAdminMintBurn,
	}
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Rewards    RewardsConfig  `mapstructure:"rewards"`
	Worker     WorkerConfig   `mapstructure:"worker"`
}

// SweeperConfig holds configuration for the reconciliation sweeper
type SweeperConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Worker     WorkerConfig   `mapstructure:"worker"`

	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "REWARDS")
	v.SetDefault("nats.publish_timeout", "2s")
	v.SetDefault("worker.pool_size", 8)
	v.SetDefault("worker.queue_size", 1024)
	setRewardsDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if config.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if config.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}

	return &config, nil
}

// LoadSweeperConfig loads configuration for the reconciliation sweeper
func LoadSweeperConfig(configFile string, envPath string) (*SweeperConfig, error) {
	v := configureViper("sweeper", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
	v.SetDefault("worker.pool_size", 10)
	v.SetDefault("worker.queue_size", 200)
	v.SetDefault("sweep_interval", "1h")
	v.SetDefault("batch_size", 200)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg SweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if cfg.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}

	return &cfg, nil
}

// setRewardsDefaults carries the launch reward economics
func setRewardsDefaults(v *viper.Viper) {
	v.SetDefault("rewards.symbol", "MUZR")
	v.SetDefault("rewards.qualified_seconds_per_token", 180)
	v.SetDefault("rewards.max_seconds_per_event", 60)
	v.SetDefault("rewards.max_daily_qualified_seconds", 7200)
	v.SetDefault("rewards.min_track_event_interval_seconds", 8)
	v.SetDefault("rewards.max_repeat_track_events_per_day", 12)
	v.SetDefault("rewards.diversity_penalty_percent", 30)
	v.SetDefault("rewards.suspicious_event_penalty_threshold", 25)
	v.SetDefault("rewards.suspicious_event_hard_limit", 50)
	v.SetDefault("rewards.streak_max_days", 7)
	v.SetDefault("rewards.streak_bonus_per_day_percent", 5)
	v.SetDefault("rewards.quest_daily_listen_seconds_target", 2700)
	v.SetDefault("rewards.quest_daily_unique_artists_target", 3)
	v.SetDefault("rewards.quest_daily_token_reward", 5)
	v.SetDefault("rewards.allow_admin_mint_burn", true)
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/api/, cmd/sweeper/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("MUZEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"environment",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.publish_timeout",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
		// Rewards
		"rewards.symbol",
		"rewards.qualified_seconds_per_token",
		"rewards.max_seconds_per_event",
		"rewards.max_daily_qualified_seconds",
		"rewards.min_track_event_interval_seconds",
		"rewards.max_repeat_track_events_per_day",
		"rewards.diversity_penalty_percent",
		"rewards.suspicious_event_penalty_threshold",
		"rewards.suspicious_event_hard_limit",
		"rewards.streak_max_days",
		"rewards.streak_bonus_per_day_percent",
		"rewards.quest_daily_listen_seconds_target",
		"rewards.quest_daily_unique_artists_target",
		"rewards.quest_daily_token_reward",
		"rewards.allow_admin_mint_burn",
		// Worker
		"worker.pool_size",
		"worker.queue_size",
		// Sweeper
		"sweep_interval",
		"batch_size",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
