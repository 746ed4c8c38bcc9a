package main

import (
	"context"
	"fmt"

	"github.com/daviddao/twentyfivefive/pkg/model"
)

func (a *app) cmdPublish(args []string) int {
	flags, g := newFlagSet("publish")
	channel := flags.String("channel", "", "channel to publish on (overrides config)")
	action := flags.String("action", "", "timer action, e.g. work or rest (required)")
	length := flags.Float64("length", model.DefaultIntervalLength.Seconds(), "interval length in seconds")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	if err := a.load(g); err != nil {
		return fail("publish", err)
	}
	if *channel != "" {
		a.cfg.Channel = *channel
	}
	ev := model.TimerEvent{Action: *action, Length: *length}
	if err := ev.Validate(); err != nil {
		return fail("publish", err)
	}
	client, err := a.pubsubClient()
	if err != nil {
		return fail("publish", err)
	}

	res, err := client.Publish(context.Background(), a.cfg.Channel, ev)
	if err != nil {
		return fail("publish", err)
	}
	if g.jsonOut {
		printJSON(map[string]interface{}{"ok": res.OK(), "result": res})
	} else {
		fmt.Printf("%s %s: %s (timetoken %s)\n", ev.Action, a.cfg.Channel, res.Message, res.TimeToken)
	}
	if !res.OK() {
		return 1
	}
	return 0
}
