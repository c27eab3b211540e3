package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	DBMaxOpenConns         int
	DBMaxIdleConns         int
	DBConnMaxLifetime      time.Duration
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DockerHost             string
	ExecutionTimeout       time.Duration
	CodeRunMemoryMB        int
	CodeRunCPUShares       int
	ExecutionURL           string
	ExecutionClientTimeout time.Duration
	PointsPerCase          int
	DraftQuietPeriod       time.Duration
	DraftTTL               time.Duration
	AnalyticsCacheTTL      time.Duration
	ProgressCacheTTL       time.Duration
	ExecRateLimitPerMinute int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// FixtureStorageEnabled reports whether Cloudinary credentials are configured.
func (c Config) FixtureStorageEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("OELP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "OELP API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("cloudinary.folder", "oelp/test-cases")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("execution.client_timeout", "30s")
	v.SetDefault("grading.points_per_case", 10)
	v.SetDefault("draft.quiet_period", "1s")
	v.SetDefault("draft.ttl", "720h")
	v.SetDefault("analytics.cache_ttl", "1m")
	v.SetDefault("progress.cache_ttl", "10m")
	v.SetDefault("rate_limit.exec_per_minute", 20)

	durations := map[string]time.Duration{}
	for _, key := range []string{"database.conn_max_lifetime", "execution.client_timeout", "draft.quiet_period", "draft.ttl", "analytics.cache_ttl", "progress.cache_ttl"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		durations[key] = parsed
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		DBMaxOpenConns:         v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:         v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime:      durations["database.conn_max_lifetime"],
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DockerHost:             v.GetString("docker_host"),
		ExecutionTimeout:       time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:        v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:       v.GetInt("code_run_cpu_shares"),
		ExecutionURL:           strings.TrimRight(v.GetString("execution.url"), "/"),
		ExecutionClientTimeout: durations["execution.client_timeout"],
		PointsPerCase:          v.GetInt("grading.points_per_case"),
		DraftQuietPeriod:       durations["draft.quiet_period"],
		DraftTTL:               durations["draft.ttl"],
		AnalyticsCacheTTL:      durations["analytics.cache_ttl"],
		ProgressCacheTTL:       durations["progress.cache_ttl"],
		ExecRateLimitPerMinute: v.GetInt("rate_limit.exec_per_minute"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ExecutionURL == "" {
		cfg.ExecutionURL = fmt.Sprintf("http://127.0.0.1%s/api/v1/exec", cfg.HTTPAddress())
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	if cfg.PointsPerCase <= 0 {
		cfg.PointsPerCase = 10
	}

	return cfg, nil
}
