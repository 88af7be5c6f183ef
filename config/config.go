package config

import (
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds relational storage settings.
type DatabaseConfig struct {
	DSN string // "memory" or a SQLite file path
}

// RedisConfig holds settings for the optional Redis quota store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds settings for the external auth collaborator (GoTrue).
// Bearer tokens on incoming requests are verified against it; everything else
// about authentication stays on the collaborator's side.
type AuthConfig struct {
	ProjectRef string `mapstructure:"project_ref"`
	APIKey     string `mapstructure:"api_key"`
	URL        string // overrides the project-ref derived URL when set
}

// LLMConfig holds settings for the completion backend.
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"` // name of the env var holding the key
	BaseURL string `mapstructure:"base_url"`
	Model   string
}

// QuotaConfig holds the daily token limits and quota store selection.
type QuotaConfig struct {
	AnonymousDailyLimit int     `mapstructure:"anonymous_daily_limit"`
	DailyLimit          int     `mapstructure:"daily_limit"`
	WarnThreshold       float64 `mapstructure:"warn_threshold"`
	Store               string  // "database" or "redis"
}

// ChatConfig holds chat session controller settings.
type ChatConfig struct {
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	TitleMaxRunes     int           `mapstructure:"title_max_runes"`
}

// Config holds the application's configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LLM      LLMConfig `mapstructure:"llm"`
	Quota    QuotaConfig
	Chat     ChatConfig
}

// AppConfig is the global configuration instance.
var AppConfig Config

// LoadConfig loads configuration from file and environment variables.
func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../config")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.dsn", "memory")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("quota.anonymous_daily_limit", 1000)
	viper.SetDefault("quota.daily_limit", 10000)
	viper.SetDefault("quota.warn_threshold", 0.9)
	viper.SetDefault("quota.store", "database")
	viper.SetDefault("chat.rate_limit_interval", 3*time.Second)
	viper.SetDefault("chat.session_ttl", 30*time.Minute)
	viper.SetDefault("chat.history_limit", 20)
	viper.SetDefault("chat.title_max_runes", 50)
	viper.SetDefault("llm.api_key", "LLM_API_KEY")
	viper.SetDefault("llm.model", "gpt-4o-mini")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("WARN: [Config] Configuration file (config.yaml) not found. Using environment variables and defaults.")
		} else {
			log.Fatalf("FATAL: [Config] Error reading configuration file: %v", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("FATAL: [Config] Failed to unmarshal configuration into AppConfig struct: %v", err)
	}

	// Environment variable overrides
	if port := os.Getenv("SERVER_PORT"); port != "" {
		AppConfig.Server.Port = port
		log.Printf("INFO: [Config] Server port overridden by environment variable SERVER_PORT: %s", port)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		AppConfig.Redis.Addr = addr
	}
	if key := os.Getenv("SUPABASE_ANON_KEY"); key != "" {
		AppConfig.Auth.APIKey = key
	}
	if ref := os.Getenv("SUPABASE_PROJECT_REF"); ref != "" {
		AppConfig.Auth.ProjectRef = ref
	}

	// The llm.api_key field names the env var carrying the actual key.
	if envVar := AppConfig.LLM.APIKey; envVar != "" {
		if envValue := os.Getenv(envVar); envValue != "" {
			AppConfig.LLM.APIKey = envValue
			log.Printf("INFO: [Config] Loaded completion backend API key from environment variable '%s'.", envVar)
		} else {
			log.Printf("WARN: [Config] Completion backend API key env var '%s' is not set.", envVar)
		}
	}

	log.Println("INFO: [Config] Configuration loading complete.")
}
