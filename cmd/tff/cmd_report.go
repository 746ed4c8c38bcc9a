package main

import (
	"fmt"
	"os"
	"time"

	"github.com/daviddao/twentyfivefive/pkg/model"
	"github.com/daviddao/twentyfivefive/pkg/report"
)

func (a *app) cmdReport(args []string) int {
	flags, g := newFlagSet("report")
	date := flags.StringP("date", "d", "", "day to report, YYYY-MM-DD (default today)")
	list := flags.Bool("list", false, "list the days that have accomplishments")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	if err := a.load(g); err != nil {
		return fail("report", err)
	}
	day, err := parseDay(*date, time.Now())
	if err != nil {
		return fail("report", err)
	}
	if err := a.openStore(); err != nil {
		return fail("report", err)
	}

	if *list {
		dates, err := a.store.ListDates(0)
		if err != nil {
			return fail("report", err)
		}
		if g.jsonOut {
			printJSON(map[string]interface{}{"dates": dates, "count": len(dates)})
			return 0
		}
		if len(dates) == 0 {
			fmt.Println("no accomplishments")
		}
		for _, d := range dates {
			fmt.Println(d)
		}
		return 0
	}

	records, err := a.store.ListAccomplishmentsOn(day.Format(model.DateLayout))
	if err != nil {
		return fail("report", err)
	}
	if g.jsonOut {
		blocks := report.Blocks(records, a.cfg.IntervalLength)
		printJSON(map[string]interface{}{
			"date":   day.Format(model.DateLayout),
			"blocks": blocks,
			"count":  len(blocks),
		})
		return 0
	}

	fmt.Println()
	if err := report.Render(os.Stdout, day, records, a.cfg.IntervalLength); err != nil {
		return fail("report", err)
	}
	fmt.Println()
	return 0
}

// parseDay parses a YYYY-MM-DD flag value as local midnight. An empty value
// means the day of now.
func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}
	day, err := time.ParseInLocation(model.DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return day, nil
}
