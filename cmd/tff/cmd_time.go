package main

import (
	"context"
	"fmt"
	"time"
)

func (a *app) cmdTime(args []string) int {
	flags, g := newFlagSet("time")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	if err := a.load(g); err != nil {
		return fail("time", err)
	}
	client, err := a.pubsubClient()
	if err != nil {
		return fail("time", err)
	}

	token, err := client.Time(context.Background())
	if err != nil {
		return fail("time", err)
	}
	at := timeTokenToTime(token)
	if g.jsonOut {
		printJSON(map[string]interface{}{"timetoken": token, "time": at})
		return 0
	}
	fmt.Printf("%d (%s)\n", token, at.Format(time.RFC3339))
	return 0
}

// timeTokenToTime converts a time token (100ns units since the epoch).
func timeTokenToTime(token int64) time.Time {
	return time.Unix(0, token*100)
}
