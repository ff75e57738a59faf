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
	AppName             string
	AppEnv              string
	AppPort             string
	LogLevel            string
	DatabaseDriver      string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	RealtimeChannel     string
	JWTSecret           string
	FeedWriteTimeout    time.Duration
	FeedStreamKeepAlive time.Duration
	FeedRecentLimit     int
	ProfileCacheTTL     time.Duration
	SeedEnabled         bool
	SeedToken           string
	OpenAIAPIKey        string
	AIModel             string
	AssistantRateLimit  int
	AssistantRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Portal Notify API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("realtime.channel", "portal")
	v.SetDefault("feed.write_timeout", "5s")
	v.SetDefault("feed.stream_keepalive", "30s")
	v.SetDefault("feed.recent_limit", 50)
	v.SetDefault("profile.cache_ttl", "5m")
	v.SetDefault("seed.enabled", false)
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("assistant.rate_limit", 10)
	v.SetDefault("assistant.rate_window", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{"feed.write_timeout", "feed.stream_keepalive", "profile.cache_ttl", "assistant.rate_window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		LogLevel:            strings.ToLower(v.GetString("log.level")),
		DatabaseDriver:      strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		RealtimeChannel:     v.GetString("realtime.channel"),
		JWTSecret:           v.GetString("jwt.secret"),
		FeedWriteTimeout:    durations["feed.write_timeout"],
		FeedStreamKeepAlive: durations["feed.stream_keepalive"],
		FeedRecentLimit:     v.GetInt("feed.recent_limit"),
		ProfileCacheTTL:     durations["profile.cache_ttl"],
		SeedEnabled:         v.GetBool("seed.enabled"),
		SeedToken:           v.GetString("seed.token"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		AIModel:             v.GetString("ai.model"),
		AssistantRateLimit:  v.GetInt("assistant.rate_limit"),
		AssistantRateWindow: durations["assistant.rate_window"],
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.FeedRecentLimit <= 0 {
		cfg.FeedRecentLimit = 50
	}

	if cfg.AssistantRateLimit <= 0 {
		cfg.AssistantRateLimit = 10
	}

	return cfg, nil
}
