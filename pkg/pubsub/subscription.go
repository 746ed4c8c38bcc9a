package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/daviddao/twentyfivefive/pkg/clock"
)

// Handler receives each delivered message in order. Returning false stops
// the subscription; the rest of the current batch is discarded.
type Handler func(ctx context.Context, msg json.RawMessage) bool

// State is the phase a Subscription is in.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateDispatching
	StateBackingOff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDispatching:
		return "dispatching"
	case StateBackingOff:
		return "backing_off"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Stats counts what a Subscription has done so far.
type Stats struct {
	Polls      int64 `json:"polls"`
	EmptyPolls int64 `json:"empty_polls"`
	Messages   int64 `json:"messages"`
	Retries    int64 `json:"retries"`
}

// Subscription owns the cursor of one channel and drives the long poll.
//
// The loop runs on the caller's goroutine and blocks for the life of the
// subscription. Each successful poll replaces the cursor with the one the
// server returned before any message is handed to the handler, so a
// handler that stops or panics never rewinds progress the server already
// acknowledged. Failed polls keep the cursor and retry after the policy's
// delay; redelivery after a failure is accepted (at-least-once).
//
// A Subscription is not safe for concurrent use.
type Subscription struct {
	client   *Client
	channel  string
	handler  Handler
	presence bool
	cursor   string
	state    State
	retry    RetryPolicy
	clock    clock.Clock
	logger   *slog.Logger
	stats    Stats
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithCursor starts the subscription at cursor instead of "0".
func WithCursor(cursor string) Option {
	return func(s *Subscription) { s.cursor = cursor }
}

// WithPresence subscribes to the presence channel of the given channel.
func WithPresence() Option {
	return func(s *Subscription) { s.presence = true }
}

// WithRetryPolicy replaces the default fixed one-second retry.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Subscription) { s.retry = p }
}

// WithClock sets the clock used for retry delays.
func WithClock(c clock.Clock) Option {
	return func(s *Subscription) { s.clock = c }
}

// WithLogger sets the logger for retries and state changes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscription) { s.logger = l }
}

// NewSubscription prepares a subscription of channel. Nothing is sent
// until Run.
func NewSubscription(client *Client, channel string, handler Handler, opts ...Option) *Subscription {
	s := &Subscription{
		client:  client,
		channel: channel,
		handler: handler,
		cursor:  "0",
		state:   StateIdle,
		clock:   clock.Real(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cursor == "" {
		s.cursor = "0"
	}
	return s
}

// Cursor returns the position the next poll will start from.
func (s *Subscription) Cursor() string { return s.cursor }

// State returns the current phase.
func (s *Subscription) State() State { return s.state }

// Stats returns a snapshot of the counters.
func (s *Subscription) Stats() Stats { return s.stats }

// Run polls until the handler returns false (nil error) or ctx is done
// (ctx.Err(), also when the handler gave up because of the cancellation).
// Transport and decode failures are logged and retried; with the default
// policy they never end the loop. A missing channel, client,
// or handler is reported as a *ValidationError before any request.
func (s *Subscription) Run(ctx context.Context) error {
	op := "subscribe"
	if s.presence {
		op = "presence"
	}
	switch {
	case s.client == nil:
		return &ValidationError{Op: op, Field: "client"}
	case s.channel == "":
		return &ValidationError{Op: op, Field: "channel"}
	case s.handler == nil:
		return &ValidationError{Op: op, Field: "handler"}
	}

	retry := s.retry.newBackOff()
	attempt := 0
	s.setState(StatePolling)
	for {
		if err := ctx.Err(); err != nil {
			s.setState(StateStopped)
			return err
		}

		messages, next, err := s.poll(ctx)
		s.stats.Polls++
		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateStopped)
				return ctx.Err()
			}
			if !IsRetryable(err) {
				s.setState(StateStopped)
				return err
			}
			attempt++
			delay := retry.NextBackOff()
			if delay == backoff.Stop {
				s.logger.Error("subscription giving up",
					"channel", s.channel,
					"cursor", s.cursor,
					"attempts", attempt,
					"error", err,
				)
				s.setState(StateStopped)
				return err
			}
			s.stats.Retries++
			s.logger.Warn("subscription poll failed, retrying",
				"channel", s.channel,
				"cursor", s.cursor,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			if closer, ok := s.client.gw.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			s.setState(StateBackingOff)
			select {
			case <-ctx.Done():
				s.setState(StateStopped)
				return ctx.Err()
			case <-s.clock.After(delay):
			}
			s.setState(StatePolling)
			continue
		}

		retry.Reset()
		attempt = 0
		s.cursor = next
		if len(messages) == 0 {
			s.stats.EmptyPolls++
			continue
		}

		s.setState(StateDispatching)
		for _, msg := range messages {
			s.stats.Messages++
			if !s.handler(ctx, msg) {
				s.setState(StateStopped)
				return ctx.Err()
			}
		}
		s.setState(StatePolling)
	}
}

func (s *Subscription) poll(ctx context.Context) ([]json.RawMessage, string, error) {
	if s.presence {
		return s.client.PresenceOnce(ctx, s.channel, s.cursor)
	}
	return s.client.SubscribeOnce(ctx, s.channel, s.cursor)
}

func (s *Subscription) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("subscription state",
		"channel", s.channel,
		"from", s.state.String(),
		"to", next.String(),
		"cursor", s.cursor,
	)
	s.state = next
}
