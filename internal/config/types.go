package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"volramp/internal/actuator"
	"volramp/internal/report"
	"volramp/internal/schedule"
	"volramp/pkg/logx"
)

const (
	DefaultPath                = "config.toml"
	DefaultRampDurationSeconds = 180
	DefaultDebugAddr           = "127.0.0.1:9273"

	OnFailureStop     = "stop"
	OnFailureContinue = "continue"
)

// ErrInvalid wraps every semantic validation failure from Validate.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	// RampDurationSeconds is the pre-ramp window. Required; nil means the key was absent.
	RampDurationSeconds *int   `json:"ramp_duration_seconds,omitempty"`
	Timezone            string `json:"timezone,omitempty"`
	OnFailure           string `json:"on_failure,omitempty"`

	// Schedule is required. A missing key decodes to nil; an explicit
	// `schedule = []` decodes to an empty non-nil slice and is legal.
	Schedule []ScheduleItem `json:"schedule"`

	Actuator ActuatorConfig `json:"actuator"`
	Logging  LoggingConfig  `json:"logging"`
	Report   ReportConfig   `json:"report"`
	Debug    DebugConfig    `json:"debug"`
}

// ScheduleItem is one raw [[schedule]] entry. Volume is structurally a byte;
// the 0..100 range is enforced when the schedule is built.
type ScheduleItem struct {
	Time   string `json:"time"`
	Volume uint8  `json:"volume"`
}

type ActuatorConfig struct {
	Command string `json:"command,omitempty"` // default: pactl
	Sink    string `json:"sink,omitempty"`    // default: @DEFAULT_SINK@
	// Timeout is a Go duration string. Empty or "0s" leaves calls unbounded.
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  *bool           `json:"console,omitempty"` // default: true
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"` // do not log
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// ReportConfig enables a periodic status line. Schedule is a robfig/cron spec
// ("@every 1h", "0 7 * * *"); empty disables the report.
type ReportConfig struct {
	Schedule string `json:"schedule,omitempty"`
}

// DebugConfig controls the optional HTTP server with /healthz, /metrics and pprof.
//
// Prefer a loopback Addr. A non-loopback Addr requires Token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"` // bearer token, do not log
}

// Default mirrors the built-in schedule: 08:00 → 54%, 09:00 → 23%, 180 s ramp.
func Default() *Config {
	ramp := DefaultRampDurationSeconds
	cfg := &Config{RampDurationSeconds: &ramp, OnFailure: OnFailureStop}
	for _, t := range schedule.Default().Targets() {
		cfg.Schedule = append(cfg.Schedule, ScheduleItem{Time: t.Time.String(), Volume: t.Level.Uint8()})
	}
	return cfg
}

func (c *Config) RampDuration() time.Duration {
	if c.RampDurationSeconds == nil {
		return DefaultRampDurationSeconds * time.Second
	}
	return time.Duration(*c.RampDurationSeconds) * time.Second
}

// Location resolves Timezone. Empty means the process-local zone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalid, name, err)
	}
	return loc, nil
}

// ContinueOnFailure reports whether a failed invocation should only skip itself.
func (c *Config) ContinueOnFailure() bool {
	return strings.EqualFold(strings.TrimSpace(c.OnFailure), OnFailureContinue)
}

// BuildSchedule turns the raw entries into a Schedule bound to the configured zone.
func (c *Config) BuildSchedule() (*schedule.Schedule, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	items := make([]schedule.Item, len(c.Schedule))
	for i, it := range c.Schedule {
		items[i] = schedule.Item{Time: it.Time, Level: int(it.Volume)}
	}
	s, err := schedule.FromItems(items, c.RampDuration())
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return s.InLocation(loc), nil
}

// Validate checks everything except schedule entries, which BuildSchedule
// reports with their index.
func (c *Config) Validate() error {
	if c.RampDurationSeconds == nil {
		return fmt.Errorf("%w: ramp_duration_seconds is required", ErrInvalid)
	}
	if c.Schedule == nil {
		return fmt.Errorf("%w: schedule is required (use schedule = [] for none)", ErrInvalid)
	}
	if *c.RampDurationSeconds < 0 {
		return fmt.Errorf("%w: ramp_duration_seconds must be >= 0", ErrInvalid)
	}
	switch strings.ToLower(strings.TrimSpace(c.OnFailure)) {
	case "", OnFailureStop, OnFailureContinue:
	default:
		return fmt.Errorf("%w: on_failure must be %q or %q, got %q", ErrInvalid, OnFailureStop, OnFailureContinue, c.OnFailure)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := parseDuration("actuator.timeout", c.Actuator.Timeout); err != nil {
		return err
	}
	if t := c.Logging.Telegram; t.Enabled && (strings.TrimSpace(t.Token) == "" || t.ChatID == 0) {
		return fmt.Errorf("%w: logging.telegram requires token and chat_id", ErrInvalid)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		return fmt.Errorf("%w: logging.file.path is required when enabled", ErrInvalid)
	}
	if err := report.Validate(c.Report.Schedule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) ActuatorConfig() actuator.Config {
	// Validate rejected malformed timeouts.
	timeout, _ := parseDuration("actuator.timeout", c.Actuator.Timeout)
	return actuator.Config{
		Command: strings.TrimSpace(c.Actuator.Command),
		Sink:    strings.TrimSpace(c.Actuator.Sink),
		Timeout: timeout,
	}
}

func (c *Config) LogConfig() logx.Config {
	console := true
	if c.Logging.Console != nil {
		console = *c.Logging.Console
	}
	return logx.Config{
		Level:   c.Logging.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Logging.Telegram.Enabled,
			ChatID:     c.Logging.Telegram.ChatID,
			ThreadID:   c.Logging.Telegram.ThreadID,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		},
	}
}

func (c *Config) DebugAddr() string {
	if a := strings.TrimSpace(c.Debug.Addr); a != "" {
		return a
	}
	return DefaultDebugAddr
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid duration %q: %v", ErrInvalid, path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s: duration must be >= 0", ErrInvalid, path)
	}
	return d, nil
}
