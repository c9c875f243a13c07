package drowsiness

import "time"

// Config holds the detection thresholds and alert behavior.
// Values are fixed for the life of a Monitor.
type Config struct {
	// EAR below this counts as a closed-eye frame.
	EARThreshold float64 `validate:"gt=0,lt=1"`

	// Consecutive closed-eye frames before declaring drowsiness.
	// At 15-30 fps the default is roughly one to two seconds.
	ConsecFrames int `validate:"gte=1"`

	// Pause after a narration ends before it may repeat.
	Cooldown time.Duration `validate:"gte=0"`

	// Spoken warning and its BCP-47 language tag.
	Phrase   string `validate:"required"`
	Language string `validate:"required"`

	// Frames buffered between Submit and the controller loop.
	QueueSize int `validate:"gte=1"`
}

// Reference values.
const (
	DefaultEARThreshold = 0.25
	DefaultConsecFrames = 20
	DefaultCooldown     = 1000 * time.Millisecond
	DefaultPhrase       = "Kamu ngantuk Khalifa! Segera tidur ya"
	DefaultLanguage     = "id-ID"
)

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		EARThreshold: DefaultEARThreshold,
		ConsecFrames: DefaultConsecFrames,
		Cooldown:     DefaultCooldown,
		Phrase:       DefaultPhrase,
		Language:     DefaultLanguage,
		QueueSize:    64,
	}
}

// SensitiveConfig trips sooner, for drivers who asked for an early warning.
func SensitiveConfig() Config {
	cfg := DefaultConfig()
	cfg.EARThreshold = 0.27
	cfg.ConsecFrames = 12
	return cfg
}
