package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	maxChatLen  = 3500
	maxFieldLen = 600
)

// chatSink is a zerolog.LevelWriter that forwards records at or above a
// minimum level to a Sender from one background goroutine. Writes never
// block: records over the rate limit or a full queue are dropped.
type chatSink struct {
	sender Sender
	queue  chan string
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	cancel   context.CancelFunc
	chatID   int64
	threadID int
	min      zerolog.Level
	limit    *rate.Limiter
}

func newChatSink(sender Sender) *chatSink {
	return &chatSink{sender: sender, queue: make(chan string, 64), done: make(chan struct{})}
}

// configure updates the destination and filters, starting the sender loop on first use.
func (c *chatSink) configure(tc TelegramConfig) {
	if tc.ChatID == 0 {
		fmt.Fprintln(os.Stderr, "logx: telegram logging enabled but chat_id is not set")
	}
	rps := max(1, tc.RatePerSec)

	c.mu.Lock()
	c.chatID, c.threadID = tc.ChatID, tc.ThreadID
	c.min = parseLevel(tc.MinLevel, zerolog.WarnLevel)
	c.limit = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()

	c.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		go c.run(ctx)
	})
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-c.done
	}
}

func (c *chatSink) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-c.queue:
			c.mu.Lock()
			chatID, threadID := c.chatID, c.threadID
			c.mu.Unlock()
			if chatID != 0 {
				_ = c.sender.SendText(ctx, chatID, threadID, text)
			}
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(lv zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	pass := lv >= c.min && c.limit != nil && c.limit.Allow()
	c.mu.Unlock()
	if !pass {
		return len(p), nil
	}
	if text := chatText(p); text != "" {
		select {
		case c.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// chatText renders one JSON record as "[LEVEL] message" followed by a
// "- key=value" line per remaining field, sorted by key.
func chatText(p []byte) string {
	var rec map[string]any
	if err := json.Unmarshal(p, &rec); err != nil {
		return clip(strings.TrimSpace(string(p)), maxChatLen)
	}

	msg, _ := rec[zerolog.MessageFieldName].(string)
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		msg = "[" + strings.ToUpper(lvl) + "] " + msg
	}
	lines := []string{msg}
	for _, k := range slices.Sorted(maps.Keys(rec)) {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		lines = append(lines, "- "+k+"="+clip(fmt.Sprint(rec[k]), maxFieldLen))
	}
	return clip(strings.Join(lines, "\n"), maxChatLen)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
