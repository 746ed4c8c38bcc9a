// Package alert turns a delivered timer event into a blocking,
// user-confirmable alert.
//
// Handle is a pubsub.Handler. For a rest event it first asks what was
// accomplished during the interval that just ended and appends the answer
// to the accomplishment log. It then re-prints a status line every tick
// and sends a desktop notification every NotifyEvery ticks until the user
// acknowledges (ctrl+c in the CLI). Only then does the subscription move
// on to the next message or poll.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/daviddao/twentyfivefive/pkg/clock"
	"github.com/daviddao/twentyfivefive/pkg/model"
	"github.com/daviddao/twentyfivefive/pkg/notify"
)

const (
	DefaultTick        = 500 * time.Millisecond
	DefaultNotifyEvery = 10
	NotificationTitle  = "Work Timer"
)

// NotePrompter acquires the accomplishment note from the user.
type NotePrompter interface {
	PromptNote(ctx context.Context) (string, error)
}

// NotePrompterFunc adapts a function to NotePrompter.
type NotePrompterFunc func(ctx context.Context) (string, error)

func (f NotePrompterFunc) PromptNote(ctx context.Context) (string, error) { return f(ctx) }

// Recorder appends accomplishments. *store.Store satisfies it.
type Recorder interface {
	InsertAccomplishment(a *model.Accomplishment) (int64, error)
}

// Config wires an Acknowledger. Zero fields get defaults; a nil Notes or
// Store disables accomplishment capture.
type Config struct {
	Out         io.Writer
	Notes       NotePrompter
	Store       Recorder
	Notifier    notify.Notifier
	Acks        <-chan struct{} // one value per user acknowledgement
	Clock       clock.Clock
	Tick        time.Duration
	NotifyEvery int
	Bell        bool // append a terminal bell to each status line
	Logger      *slog.Logger
}

// Acknowledger handles timer events one at a time. It is driven by the
// subscription goroutine and is not safe for concurrent use.
type Acknowledger struct {
	out         io.Writer
	notes       NotePrompter
	store       Recorder
	notifier    notify.Notifier
	acks        <-chan struct{}
	clock       clock.Clock
	tick        time.Duration
	notifyEvery int
	bell        bool
	logger      *slog.Logger
}

// New returns an Acknowledger for cfg.
func New(cfg Config) *Acknowledger {
	a := &Acknowledger{
		out:         cfg.Out,
		notes:       cfg.Notes,
		store:       cfg.Store,
		notifier:    cfg.Notifier,
		acks:        cfg.Acks,
		clock:       cfg.Clock,
		tick:        cfg.Tick,
		notifyEvery: cfg.NotifyEvery,
		bell:        cfg.Bell,
		logger:      cfg.Logger,
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.notifier == nil {
		a.notifier = notify.Discard{}
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}
	if a.tick <= 0 {
		a.tick = DefaultTick
	}
	if a.notifyEvery <= 0 {
		a.notifyEvery = DefaultNotifyEvery
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Handle processes one delivered message. It returns true to keep the
// subscription going and false only when ctx is cancelled during the
// alert. Messages that are not valid timer events are logged and skipped.
func (a *Acknowledger) Handle(ctx context.Context, msg json.RawMessage) bool {
	var ev model.TimerEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		a.logger.Warn("skipping message that is not a timer event", "message", string(msg), "error", err)
		return true
	}
	if err := ev.Validate(); err != nil {
		a.logger.Warn("skipping timer event", "message", string(msg), "error", err)
		return true
	}
	fmt.Fprintln(a.out, string(msg))

	if ev.IsRest() {
		a.captureAccomplishment(ctx)
	}
	return a.alert(ctx, ev)
}

func (a *Acknowledger) captureAccomplishment(ctx context.Context) {
	if a.notes == nil || a.store == nil {
		return
	}
	note, err := a.notes.PromptNote(ctx)
	if err != nil {
		a.logger.Warn("could not read accomplishment note", "error", err)
		return
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	rec := model.NewAccomplishment(note, a.clock.Now())
	id, err := a.store.InsertAccomplishment(rec)
	if err != nil {
		a.logger.Error("could not record accomplishment", "error", err)
		return
	}
	a.logger.Debug("recorded accomplishment", "id", id, "date", rec.Date)
	fmt.Fprintln(a.out, "Awesome! Good job!")
}

// alert blocks until an acknowledgement arrives (true) or ctx ends (false).
func (a *Acknowledger) alert(ctx context.Context, ev model.TimerEvent) bool {
	a.drainAcks()

	minutes := ev.MinutesString()
	status := fmt.Sprintf("%s for %s minutes, ctrl+c to confirm.", ev.Action, minutes)
	if a.bell {
		status += " \a"
	}
	for i := 0; ; i++ {
		fmt.Fprintln(a.out, status)
		// A pending acknowledgement wins over an already-elapsed tick.
		select {
		case <-ctx.Done():
			return false
		case <-a.acks:
			a.confirm(ev, minutes)
			return true
		default:
		}
		select {
		case <-ctx.Done():
			return false
		case <-a.acks:
			a.confirm(ev, minutes)
			return true
		case <-a.clock.After(a.tick):
		}
		if i%a.notifyEvery == 0 {
			msg := fmt.Sprintf("Time to %s for %s minutes!", ev.Action, minutes)
			if err := a.notifier.Notify(ctx, NotificationTitle, ev.Action, msg); err != nil {
				a.logger.Warn("notification failed", "error", err)
			}
		}
	}
}

func (a *Acknowledger) confirm(ev model.TimerEvent, minutes string) {
	fmt.Fprintf(a.out, "\n\n%sing for %s minutes\n\n", ev.Action, minutes)
}

// drainAcks discards acknowledgements that arrived while no alert was
// showing, so they cannot confirm an alert the user has not seen.
func (a *Acknowledger) drainAcks() {
	for {
		select {
		case _, ok := <-a.acks:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
