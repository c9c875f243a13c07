// Package config loads go-drowse settings from .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/teslashibe/go-drowse/pkg/drowsiness"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Error describes one invalid setting.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Defaults.
const (
	DefaultPort      = "8080"
	DefaultStaticDir = "./web"
	DefaultLogLevel  = "info"
)

// Config holds every runtime setting.
type Config struct {
	Port      string `validate:"required,numeric"`
	StaticDir string
	LogLevel  string `validate:"oneof=debug info warn warning error"`

	// Detection
	EARThreshold float64       `validate:"gt=0,lt=1"`
	ConsecFrames int           `validate:"gte=1,lte=1000"`
	Cooldown     time.Duration `validate:"gte=0"`
	Phrase       string        `validate:"required"`
	Language     string        `validate:"required,bcp47_language_tag"`
	Overlay      bool          // paint the HUD onto camera frames

	// Speech. Providers are tried in order; ones without credentials are skipped.
	TTSProviders      []string `validate:"dive,oneof=google openai elevenlabs mock"`
	TTSVoice          string
	OpenAIAPIKey      string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	GoogleAPIKey      string
	GoogleCredentials string // path to a service account file

	// Episode history. Empty RedisAddress keeps episodes in memory.
	RedisAddress    string `validate:"omitempty,hostname_port"`
	RedisPassword   string
	RedisDB         int `validate:"gte=0"`
	EpisodeCapacity int `validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	d := drowsiness.DefaultConfig()
	return Config{
		Port:         DefaultPort,
		StaticDir:    DefaultStaticDir,
		LogLevel:     DefaultLogLevel,
		EARThreshold: d.EARThreshold,
		ConsecFrames: d.ConsecFrames,
		Cooldown:     d.Cooldown,
		Phrase:       d.Phrase,
		Language:     d.Language,
		TTSProviders: []string{"elevenlabs", "openai", "google"},
	}
}

// Load reads the given .env files (".env" when none are named), then the
// environment, and validates the result. Missing .env files are ignored.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("DROWSE_PORT", c.Port)
	c.StaticDir = getEnv("DROWSE_STATIC_DIR", c.StaticDir)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))

	var err error
	if c.EARThreshold, err = getEnvFloat("DROWSE_EAR_THRESHOLD", c.EARThreshold); err != nil {
		return err
	}
	if c.ConsecFrames, err = getEnvInt("DROWSE_CONSEC_FRAMES", c.ConsecFrames); err != nil {
		return err
	}
	if c.Cooldown, err = getEnvDuration("DROWSE_COOLDOWN", c.Cooldown); err != nil {
		return err
	}
	if c.Overlay, err = getEnvBool("DROWSE_OVERLAY", c.Overlay); err != nil {
		return err
	}
	c.Phrase = getEnv("DROWSE_PHRASE", c.Phrase)
	c.Language = getEnv("DROWSE_LANGUAGE", c.Language)

	if v := os.Getenv("DROWSE_TTS"); v != "" {
		c.TTSProviders = splitList(v)
	}
	c.TTSVoice = getEnv("DROWSE_TTS_VOICE", c.TTSVoice)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.ElevenLabsAPIKey = getEnv("ELEVENLABS_API_KEY", c.ElevenLabsAPIKey)
	c.ElevenLabsVoiceID = getEnv("ELEVENLABS_VOICE_ID", c.ElevenLabsVoiceID)
	c.GoogleAPIKey = getEnv("GOOGLE_API_KEY", c.GoogleAPIKey)
	c.GoogleCredentials = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentials)

	c.RedisAddress = getEnv("REDIS_ADDRESS", c.RedisAddress)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	if c.RedisDB, err = getEnvInt("REDIS_DB", c.RedisDB); err != nil {
		return err
	}
	if c.EpisodeCapacity, err = getEnvInt("DROWSE_EPISODE_CAPACITY", c.EpisodeCapacity); err != nil {
		return err
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and reports the first failure as an *Error.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &Error{Field: fe.Field(), Message: describe(fe)}
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %s check, got %v", fe.Tag(), fe.Value())
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Detection returns the detector settings.
func (c Config) Detection() drowsiness.Config {
	d := drowsiness.DefaultConfig()
	d.EARThreshold = c.EARThreshold
	d.ConsecFrames = c.ConsecFrames
	d.Cooldown = c.Cooldown
	d.Phrase = c.Phrase
	d.Language = c.Language
	return d
}

// ProviderKey returns the API key configured for a TTS provider.
func (c Config) ProviderKey(name string) string {
	switch name {
	case "openai":
		return c.OpenAIAPIKey
	case "elevenlabs":
		return c.ElevenLabsAPIKey
	case "google":
		return c.GoogleAPIKey
	}
	return ""
}

// HasCredentials reports whether a TTS provider can be built.
// Google also accepts application default credentials.
func (c Config) HasCredentials(name string) bool {
	switch name {
	case "mock":
		return true
	case "google":
		return c.GoogleAPIKey != "" || c.GoogleCredentials != ""
	}
	return c.ProviderKey(name) != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &Error{Field: key, Message: fmt.Sprintf("is not an integer: %q", v)}
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &Error{Field: key, Message: fmt.Sprintf("is not a number: %q", v)}
	}
	return f, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &Error{Field: key, Message: fmt.Sprintf("is not a boolean: %q", v)}
	}
	return b, nil
}

// getEnvDuration accepts a Go duration ("1.5s") or plain milliseconds ("1000").
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &Error{Field: key, Message: fmt.Sprintf("is not a duration: %q", v)}
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
