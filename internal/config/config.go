package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable the engines read. Product-tuned constants
// (caps, cooldowns, disclosure thresholds) live here so they can be adjusted
// per environment without touching engine logic.
type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string

	// DayBucketTZ is the IANA timezone used to derive the calendar day for
	// daily rate limits.
	DayBucketTZ string

	// ThoughtDailyCap is the max presence signals a user may send per day.
	ThoughtDailyCap int

	// RequestWindowCap is the max connection requests a user may create in
	// the trailing RequestWindow.
	RequestWindowCap int
	RequestWindow    time.Duration

	// DeclineCooldown blocks re-requesting the same person after a decline.
	DeclineCooldown time.Duration

	// RevealDelayMax clamps how long an anonymous sender can stay hidden
	// after the letter is opened.
	RevealDelayMax time.Duration

	// HintThresholds maps hint count to the elapsed fractions of the reveal
	// window at which each hint becomes visible.
	HintThresholds map[int][]float64

	// Sweep cadence and reminder lead time for the scheduler.
	SweepInterval time.Duration
	ReminderLead  time.Duration
}

// Load reads configuration from the environment with sane defaults.
// godotenv is expected to have populated the environment already.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("DAY_BUCKET_TZ", "UTC")
	v.SetDefault("THOUGHT_DAILY_CAP", 20)
	v.SetDefault("REQUEST_WINDOW_CAP", 5)
	v.SetDefault("REQUEST_WINDOW", "24h")
	v.SetDefault("DECLINE_COOLDOWN", "168h")
	v.SetDefault("REVEAL_DELAY_MAX", "72h")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("REMINDER_LEAD", "1h")

	cfg := &Config{
		Port:             v.GetString("PORT"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		CORSOrigin:       v.GetString("CORS_ORIGIN"),
		DayBucketTZ:      v.GetString("DAY_BUCKET_TZ"),
		ThoughtDailyCap:  v.GetInt("THOUGHT_DAILY_CAP"),
		RequestWindowCap: v.GetInt("REQUEST_WINDOW_CAP"),
		RequestWindow:    v.GetDuration("REQUEST_WINDOW"),
		DeclineCooldown:  v.GetDuration("DECLINE_COOLDOWN"),
		RevealDelayMax:   v.GetDuration("REVEAL_DELAY_MAX"),
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
		ReminderLead:     v.GetDuration("REMINDER_LEAD"),
		HintThresholds:   defaultHintThresholds(),
	}

	if _, err := cfg.DayBucketLocation(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set in the
// environment. Tests build on this.
func Default() *Config {
	return &Config{
		Port:             "8080",
		CORSOrigin:       "*",
		DayBucketTZ:      "UTC",
		ThoughtDailyCap:  20,
		RequestWindowCap: 5,
		RequestWindow:    24 * time.Hour,
		DeclineCooldown:  7 * 24 * time.Hour,
		RevealDelayMax:   72 * time.Hour,
		SweepInterval:    time.Minute,
		ReminderLead:     time.Hour,
		HintThresholds:   defaultHintThresholds(),
	}
}

func defaultHintThresholds() map[int][]float64 {
	return map[int][]float64{
		1: {0.50},
		2: {0.35, 0.70},
		3: {0.30, 0.50, 0.85},
	}
}

// DayBucketLocation resolves the configured day-bucket timezone.
func (c *Config) DayBucketLocation() (*time.Location, error) {
	return time.LoadLocation(c.DayBucketTZ)
}
