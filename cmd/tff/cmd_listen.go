package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/daviddao/twentyfivefive/pkg/alert"
	"github.com/daviddao/twentyfivefive/pkg/notify"
	"github.com/daviddao/twentyfivefive/pkg/pubsub"
)

const notePrompt = "\nWhat did you accomplish on your last sprint?\n>>> "

func (a *app) cmdListen(args []string) int {
	flags, g := newFlagSet("listen")
	channel := flags.String("channel", "", "channel to listen on (overrides config)")
	presence := flags.Bool("presence", false, "print channel occupancy before listening")
	if code, ok := parseFlags(flags, args); !ok {
		return code
	}
	if err := a.load(g); err != nil {
		return fail("listen", err)
	}
	if *channel != "" {
		a.cfg.Channel = *channel
	}
	client, err := a.pubsubClient()
	if err != nil {
		return fail("listen", err)
	}
	if err := a.openStore(); err != nil {
		return fail("listen", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ctrl+c acknowledges the current alert; SIGTERM and ctrl+\ quit.
	acks := make(chan struct{}, 1)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sig)
	go routeSignals(ctx, sig, acks, cancel)

	if *presence {
		occ, err := client.HereNow(ctx, a.cfg.Channel)
		if err != nil {
			a.logger.Warn("here-now failed", "channel", a.cfg.Channel, "error", err)
		} else {
			fmt.Printf("%d listening on %s\n", occ.Occupancy, a.cfg.Channel)
		}
	}

	notes := newLinePrompter(os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
	if err := a.listen(ctx, client, acks, notes, notify.NewDesktop(a.logger)); err != nil && ctx.Err() == nil {
		return fail("listen", err)
	}
	fmt.Fprintln(os.Stderr, "\nstopped")
	return 0
}

// listen runs the alert loop on the configured channel until ctx is done or
// the subscription fails for good. acks carries user acknowledgements.
func (a *app) listen(ctx context.Context, client *pubsub.Client, acks <-chan struct{}, notes alert.NotePrompter, notifier notify.Notifier) error {
	acker := alert.New(alert.Config{
		Out:         os.Stdout,
		Notes:       notes,
		Store:       a.store,
		Notifier:    notifier,
		Acks:        acks,
		Tick:        a.cfg.Alert.Tick,
		NotifyEvery: a.cfg.Alert.NotifyEvery,
		Bell:        a.cfg.Alert.Bell && term.IsTerminal(int(os.Stdout.Fd())),
		Logger:      a.logger,
	})

	sub := pubsub.NewSubscription(client, a.cfg.Channel, acker.Handle,
		pubsub.WithRetryPolicy(a.cfg.RetryPolicy()),
		pubsub.WithLogger(a.logger),
	)

	fmt.Println("Listening...")
	fmt.Println()
	err := sub.Run(ctx)
	stats := sub.Stats()
	a.logger.Debug("subscription ended", "state", sub.State(), "cursor", sub.Cursor(),
		"polls", stats.Polls, "messages", stats.Messages, "retries", stats.Retries)
	return err
}

// routeSignals turns SIGINT into an alert acknowledgement and any other
// signal into shutdown. Acknowledgements never block: one pending is enough.
func routeSignals(ctx context.Context, sig <-chan os.Signal, acks chan<- struct{}, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			if s != os.Interrupt {
				cancel()
				return
			}
			select {
			case acks <- struct{}{}:
			default:
			}
		}
	}
}

// linePrompter reads the accomplishment note as one line of input. A single
// goroutine owns the reader for the life of the prompter, so a prompt
// abandoned on cancellation leaves the next line to the next prompt.
type linePrompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool

	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

func newLinePrompter(in io.Reader, out io.Writer, interactive bool) *linePrompter {
	return &linePrompter{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
		lines:       make(chan lineResult),
	}
}

// readLines feeds p.lines until the first read error, then closes it.
func (p *linePrompter) readLines() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		p.lines <- lineResult{line, err}
		if err != nil {
			return
		}
	}
}

func (p *linePrompter) PromptNote(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.interactive {
		fmt.Fprint(p.out, notePrompt)
	}
	p.once.Do(func() { go p.readLines() })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		if r.err == io.EOF && r.line != "" {
			return r.line, nil
		}
		return r.line, r.err
	}
}
