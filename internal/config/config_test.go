package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so the host environment does not
// leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DROWSE_PORT", "DROWSE_STATIC_DIR", "LOG_LEVEL",
		"DROWSE_EAR_THRESHOLD", "DROWSE_CONSEC_FRAMES", "DROWSE_COOLDOWN", "DROWSE_OVERLAY",
		"DROWSE_PHRASE", "DROWSE_LANGUAGE", "DROWSE_TTS", "DROWSE_TTS_VOICE",
		"OPENAI_API_KEY", "ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID",
		"GOOGLE_API_KEY", "GOOGLE_APPLICATION_CREDENTIALS",
		"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "DROWSE_EPISODE_CAPACITY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.EARThreshold != 0.25 || cfg.ConsecFrames != 20 || cfg.Cooldown != time.Second {
		t.Errorf("thresholds = %v %v %v", cfg.EARThreshold, cfg.ConsecFrames, cfg.Cooldown)
	}
	if cfg.Language != "id-ID" || cfg.Addr() != ":8080" {
		t.Errorf("language %q addr %q", cfg.Language, cfg.Addr())
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DROWSE_PORT", "9000")
	t.Setenv("DROWSE_EAR_THRESHOLD", "0.22")
	t.Setenv("DROWSE_CONSEC_FRAMES", "15")
	t.Setenv("DROWSE_COOLDOWN", "1500")
	t.Setenv("DROWSE_OVERLAY", "true")
	t.Setenv("DROWSE_TTS", " OpenAI , mock,")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.EARThreshold != 0.22 || cfg.ConsecFrames != 15 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Cooldown != 1500*time.Millisecond || !cfg.Overlay || cfg.LogLevel != "debug" {
		t.Errorf("cooldown %v overlay %v level %q", cfg.Cooldown, cfg.Overlay, cfg.LogLevel)
	}
	if len(cfg.TTSProviders) != 2 || cfg.TTSProviders[0] != "openai" || cfg.TTSProviders[1] != "mock" {
		t.Errorf("providers = %q", cfg.TTSProviders)
	}
	if !cfg.HasCredentials("openai") || cfg.HasCredentials("elevenlabs") || !cfg.HasCredentials("mock") {
		t.Error("HasCredentials mismatch")
	}

	d := cfg.Detection()
	if d.EARThreshold != 0.22 || d.ConsecFrames != 15 || d.Cooldown != 1500*time.Millisecond || d.QueueSize == 0 {
		t.Errorf("Detection() = %+v", d)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	content := "DROWSE_PHRASE=\"Bangun!\"\nDROWSE_COOLDOWN=2s\nGOOGLE_APPLICATION_CREDENTIALS=/etc/sa.json\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DROWSE_PHRASE")
		os.Unsetenv("DROWSE_COOLDOWN")
		os.Unsetenv("GOOGLE_APPLICATION_CREDENTIALS")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Phrase != "Bangun!" || cfg.Cooldown != 2*time.Second || !cfg.HasCredentials("google") {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"bad int", "DROWSE_CONSEC_FRAMES", "twenty", "DROWSE_CONSEC_FRAMES"},
		{"bad float", "DROWSE_EAR_THRESHOLD", "low", "DROWSE_EAR_THRESHOLD"},
		{"bad duration", "DROWSE_COOLDOWN", "soon", "DROWSE_COOLDOWN"},
		{"bad bool", "DROWSE_OVERLAY", "maybe", "DROWSE_OVERLAY"},
		{"threshold range", "DROWSE_EAR_THRESHOLD", "1.5", "EARThreshold"},
		{"zero frames", "DROWSE_CONSEC_FRAMES", "0", "ConsecFrames"},
		{"negative cooldown", "DROWSE_COOLDOWN", "-5", "Cooldown"},
		{"port", "DROWSE_PORT", "http", "Port"},
		{"log level", "LOG_LEVEL", "loud", "LogLevel"},
		{"provider", "DROWSE_TTS", "polly", "TTSProviders[0]"},
		{"redis address", "REDIS_ADDRESS", "localhost", "RedisAddress"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(filepath.Join(t.TempDir(), "none.env"))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load() error = %v, want ErrInvalid", err)
			}
			var cerr *Error
			if !errors.As(err, &cerr) || cerr.Field != tt.field {
				t.Errorf("error = %v, want field %s", err, tt.field)
			}
		})
	}
}
