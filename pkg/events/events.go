// Package events publishes alert transitions to Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-focus/pkg/focus"
)

// DefaultPrefix is prepended to the session id to form the channel name.
const DefaultPrefix = "focus:alerts:"

// Event is published when a session's alert set changes.
type Event struct {
	Session    string      `json:"session"`
	Alerts     []string    `json:"alerts"`
	Raised     []string    `json:"raised"`
	Cleared    []string    `json:"cleared"`
	FocusScore float64     `json:"focus_score"`
	State      focus.State `json:"state"`
	AwayTimer  float64     `json:"away_timer"`
	Timestamp  float64     `json:"timestamp"`
}

// Publisher sends Events for each session whose alerts changed.
type Publisher struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	log     *slog.Logger

	mu   sync.Mutex
	last map[string][]string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix overrides the channel prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithTimeout bounds each publish call.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// NewPublisher wraps a Redis client.
func NewPublisher(client *redis.Client, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: time.Second,
		log:     slog.Default(),
		last:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the channel used for session.
func (p *Publisher) Channel(session string) string {
	return p.prefix + session
}

// Observe publishes an Event when the frame's alerts differ from the
// previous frame of the same session. It satisfies session.Observer.
func (p *Publisher) Observe(session string, res focus.Result) {
	if !res.Success {
		return
	}

	p.mu.Lock()
	prev, seen := p.last[session]
	if seen && slices.Equal(prev, res.Alerts) {
		p.mu.Unlock()
		return
	}
	p.last[session] = slices.Clone(res.Alerts)
	p.mu.Unlock()

	if !seen && len(res.Alerts) == 0 {
		return
	}

	ev := Event{
		Session:    session,
		Alerts:     nonNil(res.Alerts),
		Raised:     diff(res.Alerts, prev),
		Cleared:    diff(prev, res.Alerts),
		FocusScore: res.FocusScore,
		State:      res.State,
		AwayTimer:  res.AwayTimer,
		Timestamp:  res.Timestamp,
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn("alert publish failed", "session", session, "error", err)
	}
}

// Publish sends ev on its session channel.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(ev.Session), payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Forget drops the remembered alert set of a deleted session.
func (p *Publisher) Forget(session string) {
	p.mu.Lock()
	delete(p.last, session)
	p.mu.Unlock()
}

// diff returns the entries of a missing from b, in a's order.
func diff(a, b []string) []string {
	out := []string{}
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
