// Package report renders a day's accomplishment log.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/daviddao/twentyfivefive/pkg/model"
)

// TimeLayout formats block boundaries ("08:35AM").
const TimeLayout = "03:04PM"

// Block is one reconstructed work interval.
type Block struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Note  string    `json:"note"`
}

// Blocks reconstructs the interval behind each record, ordered by end time.
// A non-positive interval falls back to model.DefaultIntervalLength.
func Blocks(records []model.Accomplishment, interval time.Duration) []Block {
	if interval <= 0 {
		interval = model.DefaultIntervalLength
	}
	sorted := make([]model.Accomplishment, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	blocks := make([]Block, 0, len(sorted))
	for _, r := range sorted {
		start, end := r.Block(interval)
		blocks = append(blocks, Block{Start: start, End: end, Note: r.Note})
	}
	return blocks
}

// Render writes the report for day to w.
func Render(w io.Writer, day time.Time, records []model.Accomplishment, interval time.Duration) error {
	header := "Accomplishments for " + day.Format(time.ANSIC)
	if _, err := fmt.Fprintf(w, "%s\n%s\n", header, strings.Repeat("=", len(header))); err != nil {
		return err
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no accomplishments")
		return err
	}
	for _, b := range Blocks(records, interval) {
		if _, err := fmt.Fprintf(w, "[%s - %s] %s\n", b.Start.Format(TimeLayout), b.End.Format(TimeLayout), b.Note); err != nil {
			return err
		}
	}
	return nil
}
