// Package actuator drives the system audio level through an external
// command-line tool (pactl by default).
package actuator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"volramp/internal/level"
	"volramp/pkg/logx"
)

const (
	DefaultCommand = "pactl"
	DefaultSink    = "@DEFAULT_SINK@"
)

// Actuator is the get/set capability the worker drives. Implementations
// must be safe to call from one goroutine at a time; no retries are expected.
type Actuator interface {
	GetLevel(ctx context.Context) (level.Level, error)
	SetLevel(ctx context.Context, l level.Level) error
}

type Config struct {
	Command string
	Sink    string
	// Timeout bounds each call. Zero means the call may block indefinitely.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Command) == "" {
		c.Command = DefaultCommand
	}
	if strings.TrimSpace(c.Sink) == "" {
		c.Sink = DefaultSink
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return c
}

// runner executes name with args and returns captured stdout/stderr.
type runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var out, errb bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// Pactl talks to PulseAudio/PipeWire through the pactl CLI.
type Pactl struct {
	cfg Config
	log logx.Logger
	run runner
}

func NewPactl(cfg Config, log logx.Logger) *Pactl {
	cfg = cfg.withDefaults()
	return &Pactl{
		cfg: cfg,
		log: log.With(logx.String("comp", "actuator"), logx.String("sink", cfg.Sink)),
		run: execRunner,
	}
}

func (p *Pactl) Config() Config { return p.cfg }

// CheckAvailable verifies the control binary resolves on PATH.
func (p *Pactl) CheckAvailable() (string, error) {
	path, err := exec.LookPath(p.cfg.Command)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, p.cfg.Command, err)
	}
	return path, nil
}

func (p *Pactl) GetLevel(ctx context.Context) (level.Level, error) {
	out, err := p.exec(ctx, "get-sink-volume", p.cfg.Sink)
	if err != nil {
		return level.Level{}, err
	}
	lv, err := ParseOutput(out)
	if err != nil {
		return level.Level{}, err
	}
	p.log.Debug("level read", logx.Int("level", lv.Int()))
	return lv, nil
}

func (p *Pactl) SetLevel(ctx context.Context, l level.Level) error {
	_, err := p.exec(ctx, "set-sink-volume", p.cfg.Sink, l.Percent())
	return err
}

func (p *Pactl) exec(ctx context.Context, op string, args ...string) (string, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	argv := append([]string{op}, args...)
	stdout, stderr, err := p.run(ctx, p.cfg.Command, argv...)
	if err != nil {
		ce := &CommandError{
			Op:     p.cfg.Command + " " + op,
			Status: -1,
			Stderr: strings.TrimSpace(string(stderr)),
			Err:    err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ce.Status = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			ce.Err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return "", ce
	}
	return string(stdout), nil
}

var rePercent = regexp.MustCompile(`(\d{1,3})%`)

// ParseOutput extracts the first percentage token from a get-sink-volume report, e.g.
//
//	Volume: front-left: 32768 /  50% / -18.06 dB,   front-right: 32768 /  50% / -18.06 dB
//
// A token above 100 (software over-amplification) is reported as a ParseError
// wrapping level.ErrOutOfRange.
func ParseOutput(out string) (level.Level, error) {
	m := rePercent.FindStringSubmatch(out)
	if m == nil {
		return level.Level{}, &ParseError{Output: strings.TrimSpace(out)}
	}
	lv, err := level.Parse(m[1])
	if err != nil {
		return level.Level{}, &ParseError{Output: strings.TrimSpace(out), Err: err}
	}
	return lv, nil
}
