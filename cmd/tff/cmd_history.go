package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/daviddao/twentyfivefive/pkg/pubsub"
)

func (a *app) cmdHistory(args []string) int {
	flags, g := newFlagSet("history")
	channel := flags.String("channel", "", "channel (overrides config)")
	limit := flags.Int("limit", 10, "max messages to return")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	client, code := a.channelClient("history", g, *channel)
	if client == nil {
		return code
	}

	msgs, err := client.History(context.Background(), a.cfg.Channel, *limit)
	if err != nil {
		return fail("history", err)
	}
	printMessages(msgs, g.jsonOut)
	return 0
}

func (a *app) cmdDetailedHistory(args []string) int {
	flags, g := newFlagSet("detailed-history")
	channel := flags.String("channel", "", "channel (overrides config)")
	count := flags.Int("count", 100, "max messages to return")
	reverse := flags.Bool("reverse", false, "traverse from the oldest message")
	start := flags.String("start", "", "time token to start from (exclusive)")
	end := flags.String("end", "", "time token to end at (inclusive)")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	client, code := a.channelClient("detailed-history", g, *channel)
	if client == nil {
		return code
	}

	opts := pubsub.HistoryOptions{Count: *count, Start: *start, End: *end}
	if flags.Changed("reverse") {
		opts.Reverse = reverse
	}
	msgs, err := client.DetailedHistory(context.Background(), a.cfg.Channel, opts)
	if err != nil {
		return fail("detailed-history", err)
	}
	printMessages(msgs, g.jsonOut)
	return 0
}

// channelClient loads config, applies a --channel override and returns the
// client. On failure the client is nil and code is the exit code.
func (a *app) channelClient(cmd string, g *globalFlags, channel string) (*pubsub.Client, int) {
	if err := a.load(g); err != nil {
		return nil, fail(cmd, err)
	}
	if channel != "" {
		a.cfg.Channel = channel
	}
	client, err := a.pubsubClient()
	if err != nil {
		return nil, fail(cmd, err)
	}
	return client, 0
}

func printMessages(msgs []json.RawMessage, jsonOut bool) {
	if jsonOut {
		if msgs == nil {
			msgs = []json.RawMessage{}
		}
		printJSON(map[string]interface{}{"messages": msgs, "count": len(msgs)})
		return
	}
	if len(msgs) == 0 {
		fmt.Println("no messages")
		return
	}
	printRaw(msgs)
}
