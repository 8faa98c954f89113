// Package config loads engine configuration from an optional YAML file
// layered under environment variables, following the same
// getEnv/getIntEnv/getDurationEnv override pattern used throughout this
// codebase's services. Environment variables always win over the file,
// and the file always wins over the built-in default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every configuration knob enumerated for the bulk SMS
// campaign engine.
type Config struct {
	// Environment / process
	Environment string
	DataDir     string

	// Storage Engine
	DBPath             string
	DBOpenTimeout      time.Duration
	MaxConcurrentReads int
	QueueTick          time.Duration
	SizeWarnMB         int64

	// Messaging
	MaxBodyLength      int
	SMSPartLength      int
	DuplicateWindow    time.Duration
	EnqueueDedupWindow time.Duration

	// Send pipeline / retry
	MaxRetries          int
	SendSpeedDefault    time.Duration
	TransportTimeout    time.Duration
	FlushEveryNMessages int
	FlushEvery          time.Duration
	BulkBatchSize       int

	// Migrations
	MigrationTimeout time.Duration

	// Entitlement
	GracePeriodDays     int
	TrialDurationDays   int
	RenewalReminderDays []int
	ServerSyncURL       string
	ServerSyncAttempts  int
	ServerSyncBaseDelay time.Duration
	ServerSyncMaxDelay  time.Duration

	// Twilio transport (optional)
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Redis-backed event bus (optional)
	RedisURL string

	// Local control API
	APIBindAddr string
}

// fileConfig mirrors Config for YAML decoding. Every field is a pointer
// so an absent key in the file leaves the corresponding Config field at
// its built-in default instead of zeroing it out.
type fileConfig struct {
	Environment *string `yaml:"environment"`
	DataDir     *string `yaml:"data_dir"`

	DBPath             *string `yaml:"db_path"`
	DBOpenTimeout      *string `yaml:"db_open_timeout"`
	MaxConcurrentReads *int    `yaml:"max_concurrent_reads"`
	QueueTick          *string `yaml:"queue_tick"`
	SizeWarnMB         *int64  `yaml:"size_warn_mb"`

	MaxBodyLength      *int    `yaml:"max_body_length"`
	SMSPartLength      *int    `yaml:"sms_part_length"`
	DuplicateWindow    *string `yaml:"duplicate_window"`
	EnqueueDedupWindow *string `yaml:"enqueue_dedup_window"`

	MaxRetries          *int    `yaml:"max_retries"`
	SendSpeedDefault    *string `yaml:"send_speed_default"`
	TransportTimeout    *string `yaml:"transport_timeout"`
	FlushEveryNMessages *int    `yaml:"flush_every_n_messages"`
	FlushEvery          *string `yaml:"flush_every"`
	BulkBatchSize       *int    `yaml:"bulk_batch_size"`

	MigrationTimeout *string `yaml:"migration_timeout"`

	GracePeriodDays     *int    `yaml:"grace_period_days"`
	TrialDurationDays   *int    `yaml:"trial_duration_days"`
	RenewalReminderDays []int   `yaml:"renewal_reminder_days"`
	ServerSyncURL       *string `yaml:"server_sync_url"`
	ServerSyncAttempts  *int    `yaml:"server_sync_attempts"`
	ServerSyncBaseDelay *string `yaml:"server_sync_base_delay"`
	ServerSyncMaxDelay  *string `yaml:"server_sync_max_delay"`

	TwilioAccountSID *string `yaml:"twilio_account_sid"`
	TwilioAuthToken  *string `yaml:"twilio_auth_token"`
	TwilioFromNumber *string `yaml:"twilio_phone_number"`

	RedisURL *string `yaml:"redis_url"`

	APIBindAddr *string `yaml:"api_bind_addr"`
}

// Load reads configuration from, in increasing precedence: the
// built-in defaults, an optional YAML file named by ENGINE_CONFIG_FILE,
// then environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with the YAML config path supplied directly (the
// engine and migrate binaries expose this as --config). An empty path
// falls back to ENGINE_CONFIG_FILE; if that is also unset, only the
// built-in defaults and environment overrides apply.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ENGINE_CONFIG_FILE")
	}

	cfg := defaultConfig()

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Environment == "production" && cfg.DataDir == "" {
		return nil, fmt.Errorf("ENGINE_DATA_DIR is required in production")
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		DataDir:     "./data",

		DBPath:             "./data/engine.db",
		DBOpenTimeout:      5 * time.Second,
		MaxConcurrentReads: 3,
		QueueTick:          10 * time.Millisecond,
		SizeWarnMB:         100,

		MaxBodyLength:      1600,
		SMSPartLength:      160,
		DuplicateWindow:    300 * time.Second,
		EnqueueDedupWindow: 60 * time.Second,

		MaxRetries:          3,
		SendSpeedDefault:    400 * time.Millisecond,
		TransportTimeout:    10 * time.Second,
		FlushEveryNMessages: 20,
		FlushEvery:          500 * time.Millisecond,
		BulkBatchSize:       100,

		MigrationTimeout: 60 * time.Second,

		GracePeriodDays:     3,
		TrialDurationDays:   2,
		RenewalReminderDays: []int{7, 3, 1},
		ServerSyncAttempts:  3,
		ServerSyncBaseDelay: 1 * time.Second,
		ServerSyncMaxDelay:  10 * time.Second,

		APIBindAddr: "127.0.0.1:8765",
	}
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}

	applyString(&cfg.Environment, fc.Environment)
	applyString(&cfg.DataDir, fc.DataDir)

	applyString(&cfg.DBPath, fc.DBPath)
	applyDuration(&cfg.DBOpenTimeout, fc.DBOpenTimeout)
	applyInt(&cfg.MaxConcurrentReads, fc.MaxConcurrentReads)
	applyDuration(&cfg.QueueTick, fc.QueueTick)
	if fc.SizeWarnMB != nil {
		cfg.SizeWarnMB = *fc.SizeWarnMB
	}

	applyInt(&cfg.MaxBodyLength, fc.MaxBodyLength)
	applyInt(&cfg.SMSPartLength, fc.SMSPartLength)
	applyDuration(&cfg.DuplicateWindow, fc.DuplicateWindow)
	applyDuration(&cfg.EnqueueDedupWindow, fc.EnqueueDedupWindow)

	applyInt(&cfg.MaxRetries, fc.MaxRetries)
	applyDuration(&cfg.SendSpeedDefault, fc.SendSpeedDefault)
	applyDuration(&cfg.TransportTimeout, fc.TransportTimeout)
	applyInt(&cfg.FlushEveryNMessages, fc.FlushEveryNMessages)
	applyDuration(&cfg.FlushEvery, fc.FlushEvery)
	applyInt(&cfg.BulkBatchSize, fc.BulkBatchSize)

	applyDuration(&cfg.MigrationTimeout, fc.MigrationTimeout)

	applyInt(&cfg.GracePeriodDays, fc.GracePeriodDays)
	applyInt(&cfg.TrialDurationDays, fc.TrialDurationDays)
	if len(fc.RenewalReminderDays) > 0 {
		cfg.RenewalReminderDays = fc.RenewalReminderDays
	}
	applyString(&cfg.ServerSyncURL, fc.ServerSyncURL)
	applyInt(&cfg.ServerSyncAttempts, fc.ServerSyncAttempts)
	applyDuration(&cfg.ServerSyncBaseDelay, fc.ServerSyncBaseDelay)
	applyDuration(&cfg.ServerSyncMaxDelay, fc.ServerSyncMaxDelay)

	applyString(&cfg.TwilioAccountSID, fc.TwilioAccountSID)
	applyString(&cfg.TwilioAuthToken, fc.TwilioAuthToken)
	applyString(&cfg.TwilioFromNumber, fc.TwilioFromNumber)

	applyString(&cfg.RedisURL, fc.RedisURL)

	applyString(&cfg.APIBindAddr, fc.APIBindAddr)

	return nil
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, src *string) {
	if src == nil {
		return
	}
	if d, err := time.ParseDuration(*src); err == nil {
		*dst = d
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Environment = getEnv("ENGINE_ENVIRONMENT", cfg.Environment)
	cfg.DataDir = getEnv("ENGINE_DATA_DIR", cfg.DataDir)

	cfg.DBPath = getEnv("ENGINE_DB_PATH", cfg.DBPath)
	cfg.DBOpenTimeout = getDurationEnv("ENGINE_DB_OPEN_TIMEOUT", cfg.DBOpenTimeout)
	cfg.MaxConcurrentReads = getIntEnv("ENGINE_MAX_CONCURRENT_READS", cfg.MaxConcurrentReads)
	cfg.QueueTick = getDurationEnv("ENGINE_QUEUE_TICK", cfg.QueueTick)
	cfg.SizeWarnMB = int64(getIntEnv("ENGINE_SIZE_WARN_MB", int(cfg.SizeWarnMB)))

	cfg.MaxBodyLength = getIntEnv("ENGINE_MAX_BODY_LENGTH", cfg.MaxBodyLength)
	cfg.SMSPartLength = getIntEnv("ENGINE_SMS_PART_LENGTH", cfg.SMSPartLength)
	cfg.DuplicateWindow = getDurationEnv("ENGINE_DUPLICATE_WINDOW", cfg.DuplicateWindow)
	cfg.EnqueueDedupWindow = getDurationEnv("ENGINE_ENQUEUE_DEDUP_WINDOW", cfg.EnqueueDedupWindow)

	cfg.MaxRetries = getIntEnv("ENGINE_MAX_RETRIES", cfg.MaxRetries)
	cfg.SendSpeedDefault = getDurationEnv("ENGINE_SEND_SPEED", cfg.SendSpeedDefault)
	cfg.TransportTimeout = getDurationEnv("ENGINE_TRANSPORT_TIMEOUT", cfg.TransportTimeout)
	cfg.FlushEveryNMessages = getIntEnv("ENGINE_FLUSH_EVERY_N", cfg.FlushEveryNMessages)
	cfg.FlushEvery = getDurationEnv("ENGINE_FLUSH_EVERY", cfg.FlushEvery)
	cfg.BulkBatchSize = getIntEnv("ENGINE_BULK_BATCH_SIZE", cfg.BulkBatchSize)

	cfg.MigrationTimeout = getDurationEnv("ENGINE_MIGRATION_TIMEOUT", cfg.MigrationTimeout)

	cfg.GracePeriodDays = getIntEnv("ENGINE_GRACE_PERIOD_DAYS", cfg.GracePeriodDays)
	cfg.TrialDurationDays = getIntEnv("ENGINE_TRIAL_DURATION_DAYS", cfg.TrialDurationDays)
	cfg.RenewalReminderDays = getIntSliceEnv("ENGINE_RENEWAL_REMINDER_DAYS", cfg.RenewalReminderDays)
	cfg.ServerSyncURL = getEnv("ENGINE_SERVER_SYNC_URL", cfg.ServerSyncURL)
	cfg.ServerSyncAttempts = getIntEnv("ENGINE_SERVER_SYNC_ATTEMPTS", cfg.ServerSyncAttempts)
	cfg.ServerSyncBaseDelay = getDurationEnv("ENGINE_SERVER_SYNC_BASE_DELAY", cfg.ServerSyncBaseDelay)
	cfg.ServerSyncMaxDelay = getDurationEnv("ENGINE_SERVER_SYNC_MAX_DELAY", cfg.ServerSyncMaxDelay)

	cfg.TwilioAccountSID = getEnv("TWILIO_ACCOUNT_SID", cfg.TwilioAccountSID)
	cfg.TwilioAuthToken = getEnv("TWILIO_AUTH_TOKEN", cfg.TwilioAuthToken)
	cfg.TwilioFromNumber = getEnv("TWILIO_PHONE_NUMBER", cfg.TwilioFromNumber)

	cfg.RedisURL = getEnv("ENGINE_REDIS_URL", cfg.RedisURL)

	cfg.APIBindAddr = getEnv("ENGINE_API_BIND_ADDR", cfg.APIBindAddr)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntSliceEnv(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}
