// Package config loads server settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Store         StoreConfig         `yaml:"store"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Auth          AuthConfig          `yaml:"auth"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Photos        PhotosConfig        `yaml:"photos"`
	Geocode       GeocodeConfig       `yaml:"geocode"`
	Reports       ReportsConfig       `yaml:"reports"`
	Transcription TranscriptionConfig `yaml:"transcription"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

type StoreConfig struct {
	Engine string `yaml:"engine"` // memory | sqlite | postgres
	DSN    string `yaml:"dsn"`
}

type GeminiConfig struct {
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseURL"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwtSecret"`
	TokenTTL    time.Duration `yaml:"tokenTTL"`
	MaxFailures int           `yaml:"maxFailures"`
	Lockout     time.Duration `yaml:"lockout"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	AlertChatID int64  `yaml:"alertChatID"`
}

// PhotosConfig selects S3 storage when Bucket is set; photos are kept
// inline as data URIs otherwise.
type PhotosConfig struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"publicBaseURL"`
	Prefix        string `yaml:"prefix"`
}

type GeocodeConfig struct {
	BaseURL   string `yaml:"baseURL"`
	UserAgent string `yaml:"userAgent"`
}

type ReportsConfig struct {
	FontPaths []string `yaml:"fontPaths"`
}

type TranscriptionConfig struct {
	Engine     string `yaml:"engine"` // gemini | whisper
	WhisperURL string `yaml:"whisperURL"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Engine: "sqlite",
			DSN:    "suraksha.db",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.0-flash",
			Timeout:     60 * time.Second,
			Temperature: 0.2,
		},
		Auth: AuthConfig{
			TokenTTL:    7 * 24 * time.Hour,
			MaxFailures: 5,
			Lockout:     15 * time.Minute,
		},
		Photos: PhotosConfig{Prefix: "photos"},
		Transcription: TranscriptionConfig{
			Engine:     "gemini",
			WhisperURL: "http://whisper:8000/transcribe",
		},
	}
}

// Load reads path (if not empty) over the defaults, then applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.Store.DSN, "SURAKSHA_STORE_DSN", "DATABASE_URL")
	if v, _ := lookup("DATABASE_URL"); v != "" {
		if e, _ := lookup("SURAKSHA_STORE_ENGINE"); e == "" {
			c.Store.Engine = "postgres"
		}
	}
	str(&c.Store.Engine, "SURAKSHA_STORE_ENGINE")
	str(&c.Log.Level, "SURAKSHA_LOG_LEVEL")
	str(&c.Log.Format, "SURAKSHA_LOG_FORMAT")
	str(&c.Gemini.APIKey, "GEMINI_API_KEY")
	str(&c.Gemini.Model, "SURAKSHA_GEMINI_MODEL")
	str(&c.Auth.JWTSecret, "SURAKSHA_JWT_SECRET")
	str(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	str(&c.Photos.Bucket, "SURAKSHA_S3_BUCKET")
	str(&c.Photos.Region, "SURAKSHA_S3_REGION", "AWS_REGION")
	str(&c.Photos.Endpoint, "SURAKSHA_S3_ENDPOINT")
	str(&c.Photos.PublicBaseURL, "SURAKSHA_S3_PUBLIC_URL")
	str(&c.Geocode.BaseURL, "SURAKSHA_GEOCODE_URL")
	str(&c.Transcription.Engine, "SURAKSHA_TRANSCRIPTION_ENGINE")
	str(&c.Transcription.WhisperURL, "SURAKSHA_WHISPER_URL")

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DOCTOR_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("DOCTOR_CHAT_ID: %w", err)
		}
		c.Telegram.AlertChatID = id
	}
	if v, ok := lookup("SURAKSHA_FONT_PATHS"); ok && v != "" {
		c.Reports.FontPaths = splitList(v, ":")
	}
	if v, ok := lookup("SURAKSHA_CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = splitList(v, ",")
	}
	return nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	switch c.Store.Engine {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s engine", c.Store.Engine))
		}
	default:
		errs = append(errs, fmt.Errorf("store.engine %q must be memory, sqlite or postgres", c.Store.Engine))
	}
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("gemini.apiKey (GEMINI_API_KEY) is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwtSecret (SURAKSHA_JWT_SECRET) must be at least 16 characters"))
	}
	switch c.Transcription.Engine {
	case "gemini":
	case "whisper":
		if c.Transcription.WhisperURL == "" {
			errs = append(errs, errors.New("transcription.whisperURL is required for the whisper engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("transcription.engine %q must be gemini or whisper", c.Transcription.Engine))
	}
	if c.Telegram.Token != "" && c.Telegram.AlertChatID == 0 {
		errs = append(errs, errors.New("telegram.alertChatID (DOCTOR_CHAT_ID) is required when a bot token is set"))
	}
	return errors.Join(errs...)
}
