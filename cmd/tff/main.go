// Command tff is the twentyfivefive CLI: it listens for work/rest timer
// events on a pub/sub channel, nags until each interval is acknowledged,
// and keeps a daily log of what got done.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	cmd, args := "listen", []string(nil)
	if len(os.Args) >= 2 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("tff", version)
		return
	}

	a := newApp()
	defer a.Close()

	switch cmd {
	case "listen":
		os.Exit(a.cmdListen(args))
	case "report":
		os.Exit(a.cmdReport(args))

	// Channel tools
	case "publish", "pub":
		os.Exit(a.cmdPublish(args))
	case "history":
		os.Exit(a.cmdHistory(args))
	case "detailed-history":
		os.Exit(a.cmdDetailedHistory(args))
	case "here-now":
		os.Exit(a.cmdHereNow(args))
	case "presence":
		os.Exit(a.cmdPresence(args))
	case "time":
		os.Exit(a.cmdTime(args))

	default:
		fmt.Fprintf(os.Stderr, "tff: unknown command %q\n", cmd)
		fmt.Fprintln(os.Stderr, "Run 'tff --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`tff: twentyfivefive work/rest timer listener

Receives timer events from a pub/sub channel, alerts until you confirm
with ctrl+c, and records what you accomplished after each work interval.

Usage:
  tff [command] [flags]

Commands:
  listen [--channel C] [--presence]   Listen for timer events (default)
  report [-d YYYY-MM-DD] [--list]     Print the accomplishments of a day

Channel tools:
  publish --action A --length SECS    Publish a timer event (acts as the timer)
  history [--limit N]                 Recent messages on the channel
  detailed-history [--count N]        Messages by time token range
           [--reverse] [--start T] [--end T]
  here-now                            Current channel occupancy
  presence                            Stream join/leave events
  time                                Server time token

Aliases:
  pub = publish

Global flags:
  --config PATH   YAML config (default ~/.config/twentyfivefive/config.yaml)
  --verbose       Debug logging on stderr
  --json          Machine-readable output (read commands)

Environment:
  TFF_CONFIG          Config file path
  TFF_PUBLISH_KEY     Publish key
  TFF_SUBSCRIBE_KEY   Subscribe key
  TFF_SIGNING_KEY     Signing key (enables publish signatures)
  TFF_CHANNEL         Channel name
  TFF_DB              SQLite path or postgres:// DSN (default .twentyfivefive/accomplishments.db)
  TFF_ORIGIN          Pub/sub origin host
  TFF_CLIENT_ID       Presence identifier (random when unset)
  TFF_TLS             Use https (true/false)
  TFF_LOG_LEVEL       debug, info, warn or error

While listening, ctrl+c confirms the current alert and ctrl+\ quits.

Exit codes:
  0  success
  1  error
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
