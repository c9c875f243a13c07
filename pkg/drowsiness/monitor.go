// Package drowsiness turns a stream of per-frame EAR values into an
// AWAKE/DROWSY state with a spoken alarm that repeats after a cool-down.
//
// Monitor is the pure state machine. Controller owns a Monitor and runs it
// on a single goroutine, feeding it frames and narration completions.
package drowsiness

import "time"

// State is the monitor's mutable record.
type State struct {
	Counter         int  `json:"counter"`
	Drowsy          bool `json:"drowsy"`
	AlertInProgress bool `json:"alert_in_progress"`
}

// Result describes what one Update changed.
type Result struct {
	EAR     float64
	Counter int
	Drowsy  bool

	Entered   bool   // AWAKE -> DROWSY on this frame
	Recovered bool   // DROWSY -> AWAKE on this frame
	Speak     bool   // start a narration now
	Episode   uint64 // generation the narration belongs to
}

// Monitor is the per-frame drowsiness state machine. It is not safe for
// concurrent use; Controller serializes access.
type Monitor struct {
	config  Config
	state   State
	episode uint64 // bumped on each DROWSY entry and on Reset
}

// NewMonitor creates a monitor in the AWAKE state.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{config: cfg}
}

// Update consumes one frame's EAR.
func (m *Monitor) Update(ear float64) Result {
	res := Result{EAR: ear}

	if ear < m.config.EARThreshold {
		m.state.Counter++
	} else {
		res.Recovered = m.state.Drowsy
		m.state = State{}
	}

	if m.state.Counter >= m.config.ConsecFrames {
		if !m.state.Drowsy {
			m.state.Drowsy = true
			m.episode++
			res.Entered = true
		}
		if !m.state.AlertInProgress {
			m.state.AlertInProgress = true
			res.Speak = true
		}
	}

	res.Counter = m.state.Counter
	res.Drowsy = m.state.Drowsy
	res.Episode = m.episode
	return res
}

// NarrationFinished handles the end of a narration started for episode.
// When the same episode is still drowsy it returns the cool-down after which
// Rearm should be called. Otherwise the alert is cleared at once.
func (m *Monitor) NarrationFinished(episode uint64) (rearmAfter time.Duration, rearm bool) {
	if episode != m.episode {
		return 0, false
	}
	if m.state.Drowsy {
		return m.config.Cooldown, true
	}
	m.state.AlertInProgress = false
	return 0, false
}

// Rearm allows the next frame to narrate again. Stale episodes are ignored.
func (m *Monitor) Rearm(episode uint64) {
	if episode != m.episode {
		return
	}
	m.state.AlertInProgress = false
}

// Reset returns to AWAKE and invalidates pending narration events.
func (m *Monitor) Reset() {
	m.state = State{}
	m.episode++
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	return m.state
}

// Episode returns the current generation.
func (m *Monitor) Episode() uint64 {
	return m.episode
}

// Config returns the monitor configuration.
func (m *Monitor) Config() Config {
	return m.config
}
