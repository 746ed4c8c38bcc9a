package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/daviddao/twentyfivefive/pkg/pubsub"
)

func (a *app) cmdHereNow(args []string) int {
	flags, g := newFlagSet("here-now")
	channel := flags.String("channel", "", "channel (overrides config)")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	client, code := a.channelClient("here-now", g, *channel)
	if client == nil {
		return code
	}

	occ, err := client.HereNow(context.Background(), a.cfg.Channel)
	if err != nil {
		return fail("here-now", err)
	}
	if g.jsonOut {
		printJSON(occ)
		return 0
	}
	fmt.Printf("%s: %d listening\n", a.cfg.Channel, occ.Occupancy)
	if len(occ.UUIDs) > 0 {
		fmt.Println("  " + strings.Join(occ.UUIDs, "\n  "))
	}
	return 0
}

// cmdPresence streams join/leave events for the channel until interrupted.
func (a *app) cmdPresence(args []string) int {
	flags, g := newFlagSet("presence")
	channel := flags.String("channel", "", "channel (overrides config)")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	client, code := a.channelClient("presence", g, *channel)
	if client == nil {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "watching presence on %s (ctrl-c to stop)\n", a.cfg.Channel)
	sub := pubsub.NewSubscription(client, a.cfg.Channel, printPresence(g.jsonOut),
		pubsub.WithPresence(),
		pubsub.WithRetryPolicy(a.cfg.RetryPolicy()),
		pubsub.WithLogger(a.logger),
	)
	if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
		return fail("presence", err)
	}
	fmt.Fprintln(os.Stderr, "\nstopped")
	return 0
}

// presenceEvent is one message on a presence channel.
type presenceEvent struct {
	Action    string `json:"action"`
	UUID      string `json:"uuid"`
	Occupancy int    `json:"occupancy"`
	Timestamp int64  `json:"timestamp"`
}

func printPresence(jsonOut bool) pubsub.Handler {
	return func(_ context.Context, msg json.RawMessage) bool {
		if jsonOut {
			fmt.Println(string(msg))
			return true
		}
		fmt.Println(formatPresence(msg))
		return true
	}
}

func formatPresence(msg json.RawMessage) string {
	var ev presenceEvent
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Action == "" {
		return string(msg)
	}
	return fmt.Sprintf("%s %s (occupancy %d)", ev.UUID, ev.Action, ev.Occupancy)
}
