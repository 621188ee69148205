package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Logger     Logger     `mapstructure:"logger"`
	Market     Market     `mapstructure:"market"`
	LLM        LLM        `mapstructure:"llm"`
	Intent     Intent     `mapstructure:"intent"`
	Broker     Broker     `mapstructure:"broker"`
	Twilio     Twilio     `mapstructure:"twilio"`
	ElevenLabs ElevenLabs `mapstructure:"elevenlabs"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
	// PublicURL is the externally reachable base URL Twilio calls back into.
	PublicURL string `mapstructure:"public_url"`
	// UIPort is where the read-only dashboard listens.
	UIPort int `mapstructure:"ui_port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN          string `mapstructure:"dsn"`
	SeedDemoUser bool   `mapstructure:"seed_demo_user"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Market holds the configuration for the quote provider and market summary.
type Market struct {
	SourceTimeout   time.Duration      `mapstructure:"source_timeout"`
	CacheTTL        time.Duration      `mapstructure:"cache_ttl"`
	Yahoo           Source             `mapstructure:"yahoo"`
	AlphaVantage    Source             `mapstructure:"alphavantage"`
	EmergencyPrices map[string]float64 `mapstructure:"emergency_prices"`
	NewsFeeds       []string           `mapstructure:"news_feeds"`
	NewsLimit       int                `mapstructure:"news_limit"`
	NewsTTL         time.Duration      `mapstructure:"news_ttl"`
}

// Source holds the configuration for a single market-data backend.
type Source struct {
	Enabled        bool    `mapstructure:"enabled"`
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// LLM holds the configuration for the language-model collaborator.
type LLM struct {
	Provider       string        `mapstructure:"provider"` // "gemini" or "openai"
	ApiKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// Intent holds the configuration for intent resolution.
type Intent struct {
	Mode string `mapstructure:"mode"` // "combined" or "two_stage"
}

// Broker holds the persona and trading defaults.
type Broker struct {
	Name            string  `mapstructure:"name"`
	StartingCash    float64 `mapstructure:"starting_cash"`
	DemoCash        float64 `mapstructure:"demo_cash"`
	LLMTradeReplies bool    `mapstructure:"llm_trade_replies"`
	// TurnTimeout bounds one call turn so Twilio always gets an answer.
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
}

// Twilio holds the telephony channel configuration.
type Twilio struct {
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	PhoneNumber string `mapstructure:"phone_number"`
	Voice       string `mapstructure:"voice"`
	Language    string `mapstructure:"language"`
	// SchedulePoll is how often booked calls are checked for being due.
	SchedulePoll time.Duration `mapstructure:"schedule_poll"`
}

// ElevenLabs holds the text-to-speech configuration.
type ElevenLabs struct {
	ApiKey  string        `mapstructure:"api_key"`
	VoiceID string        `mapstructure:"voice_id"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	ClipTTL time.Duration `mapstructure:"clip_ttl"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (config Config, err error) {
	if err = loadDotEnv(".env"); err != nil {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindLegacyEnv(v)
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func loadDotEnv(file string) error {
	if _, err := os.Stat(file); err != nil {
		return nil
	}
	return godotenv.Load(file)
}

// bindLegacyEnv keeps the variable names the broker has always been deployed with.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("server.public_url", "SERVER_PUBLIC_URL", "BACKEND_URL")
	_ = v.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("twilio.phone_number", "TWILIO_PHONE_NUMBER")
	_ = v.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	_ = v.BindEnv("elevenlabs.voice_id", "ELEVENLABS_VOICE_ID")
	_ = v.BindEnv("elevenlabs.model", "ELEVENLABS_MODEL")
	_ = v.BindEnv("market.alphavantage.api_key", "MARKET_ALPHAVANTAGE_API_KEY", "ALPHAVANTAGE_API_KEY")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.ui_port", 8081)
	v.SetDefault("server.public_url", "http://localhost:8000")

	v.SetDefault("database.dsn", "broker.db")
	v.SetDefault("database.seed_demo_user", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("market.source_timeout", 3*time.Second)
	v.SetDefault("market.cache_ttl", 30*time.Second)
	v.SetDefault("market.yahoo.enabled", true)
	v.SetDefault("market.yahoo.base_url", "https://query2.finance.yahoo.com")
	v.SetDefault("market.yahoo.rate_limit", 5) // requests per second
	v.SetDefault("market.yahoo.rate_limit_burst", 5)
	v.SetDefault("market.alphavantage.enabled", true)
	v.SetDefault("market.alphavantage.base_url", "https://www.alphavantage.co")
	v.SetDefault("market.alphavantage.api_key", "")
	v.SetDefault("market.alphavantage.rate_limit", 5.0/60) // free tier: 5 per minute
	v.SetDefault("market.alphavantage.rate_limit_burst", 1)
	v.SetDefault("market.emergency_prices", map[string]float64{
		"AAPL":  175.00,
		"MSFT":  420.00,
		"GOOGL": 170.00,
		"AMZN":  180.00,
		"TSLA":  250.00,
		"META":  500.00,
		"NVDA":  120.00,
		"NFLX":  650.00,
		"DIS":   100.00,
	})
	v.SetDefault("market.news_feeds", []string{
		"https://feeds.finance.yahoo.com/rss/2.0/headline?s=^GSPC&region=US&lang=en-US",
	})
	v.SetDefault("market.news_limit", 3)
	v.SetDefault("market.news_ttl", 10*time.Minute)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 8*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.rate_limit", 10)
	v.SetDefault("llm.rate_limit_burst", 5)

	v.SetDefault("intent.mode", "combined")

	v.SetDefault("broker.name", "Wolf")
	v.SetDefault("broker.starting_cash", 10000)
	v.SetDefault("broker.demo_cash", 25000)
	v.SetDefault("broker.llm_trade_replies", true)
	v.SetDefault("broker.turn_timeout", 9*time.Second)

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.phone_number", "")
	v.SetDefault("twilio.voice", "Polly.Matthew")
	v.SetDefault("twilio.language", "en-US")
	v.SetDefault("twilio.schedule_poll", 30*time.Second)

	v.SetDefault("elevenlabs.api_key", "")
	v.SetDefault("elevenlabs.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("elevenlabs.model", "eleven_turbo_v2")
	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("elevenlabs.clip_ttl", 10*time.Minute)
}
