// Package model defines the core domain types for twentyfivefive.
//
// A remote timer publishes one TimerEvent each time an interval starts.
// Events come in two families:
//
//   - rest: the previous work interval just finished. The listener asks
//     what was accomplished and appends the answer to the log before it
//     starts nagging the user to take the break.
//   - work: anything else ("work", "sprint", ...). The listener only nags.
//
// Accomplishments are the only persisted state. They are append-only and
// reported per calendar day.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ActionRest is the single rest-family action label. Comparison is
// case-insensitive.
const ActionRest = "rest"

// DefaultIntervalLength is the length of one work interval. Reports use it
// to reconstruct when the interval behind an accomplishment started.
const DefaultIntervalLength = 25 * time.Minute

// DateLayout is the calendar date format used for storage and the CLI.
const DateLayout = "2006-01-02"

// ErrInvalidEvent is returned by TimerEvent.Validate.
var ErrInvalidEvent = errors.New("invalid timer event")

// TimerEvent is the payload published by the remote timer.
type TimerEvent struct {
	Action string  `json:"action"`
	Length float64 `json:"length"` // seconds
}

// IsRest reports whether the event belongs to the rest family.
func (e TimerEvent) IsRest() bool {
	return strings.EqualFold(strings.TrimSpace(e.Action), ActionRest)
}

// Validate checks that the event carries an action and a non-negative length.
func (e TimerEvent) Validate() error {
	if strings.TrimSpace(e.Action) == "" {
		return fmt.Errorf("%w: missing action", ErrInvalidEvent)
	}
	if e.Length < 0 || math.IsNaN(e.Length) || math.IsInf(e.Length, 0) {
		return fmt.Errorf("%w: length %v", ErrInvalidEvent, e.Length)
	}
	return nil
}

// Minutes returns the length in minutes rounded to two decimals.
func (e TimerEvent) Minutes() float64 {
	return math.Round(e.Length/60*100) / 100
}

// MinutesString formats Minutes without trailing zeros ("25", "8.33").
func (e TimerEvent) MinutesString() string {
	return strconv.FormatFloat(e.Minutes(), 'f', -1, 64)
}

// Accomplishment is one entry in the append-only accomplishment log.
type Accomplishment struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"` // YYYY-MM-DD, local calendar day of Timestamp
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// NewAccomplishment builds a record for note taken at now. The date is the
// local calendar day of now.
func NewAccomplishment(note string, now time.Time) *Accomplishment {
	return &Accomplishment{
		Date:      now.Format(DateLayout),
		Timestamp: now,
		Note:      note,
	}
}

// Block returns the interval an accomplishment closes: it ends at the
// record's timestamp and starts one interval length earlier.
func (a Accomplishment) Block(interval time.Duration) (start, end time.Time) {
	end = a.Timestamp
	return end.Add(-interval), end
}
