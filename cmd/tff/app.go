package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/daviddao/twentyfivefive/pkg/config"
	"github.com/daviddao/twentyfivefive/pkg/pubsub"
	"github.com/daviddao/twentyfivefive/pkg/store"
)

// app holds shared state for all CLI subcommands. Configuration, the log
// and the pub/sub client are set up on demand so that commands only pay
// for what they use.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.StoreInterface
	client *pubsub.Client
}

func newApp() *app {
	return &app{logger: slog.Default()}
}

// Close releases the database connection, if one was opened.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
	jsonOut    bool
}

func newFlagSet(name string) (*pflag.FlagSet, *globalFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	g := &globalFlags{}
	fs.StringVar(&g.configPath, "config", "", "config file (default $TFF_CONFIG or ~/"+config.UserConfigFile+")")
	fs.BoolVar(&g.verbose, "verbose", false, "debug logging on stderr")
	fs.BoolVar(&g.jsonOut, "json", false, "JSON output")
	return fs, g
}

// parseFlags parses args and reports the exit code to use when parsing
// ends the command early.
func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 1, false
	}
	return 0, true
}

// load reads the configuration and installs the logger.
func (a *app) load(g *globalFlags) error {
	a.logger = newLogger(envOr("TFF_LOG_LEVEL", "info"), g.verbose)
	slog.SetDefault(a.logger)

	path, optional := g.configPath, false
	if path == "" {
		path = os.Getenv("TFF_CONFIG")
	}
	if path == "" {
		path, optional = config.UserConfigPath(), true
	}
	cfg, err := config.Load(path, optional, os.Getenv)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug("loaded config", "path", path, "channel", cfg.Channel, "db", redactDSN(cfg.DB))
	return nil
}

func newLogger(level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openStore opens the accomplishment log. Creates the default directory
// when the default path is in use.
func (a *app) openStore() error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.DB
	if !store.IsPostgresDSN(dsn) {
		if dsn == config.DefaultDB {
			if err := os.MkdirAll(config.DefaultDir, 0755); err != nil {
				return fmt.Errorf("cannot create %s: %w", config.DefaultDir, err)
			}
		} else if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("cannot create %s: %w", dir, err)
			}
		}
	}
	s, err := store.New(dsn)
	if err != nil {
		return fmt.Errorf("cannot open database %q: %w", redactDSN(dsn), err)
	}
	a.store = s
	return nil
}

// pubsubClient validates the channel settings and builds the client.
func (a *app) pubsubClient() (*pubsub.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	gw := pubsub.NewHTTPGateway(nil, a.cfg.RequestTimeout)
	c, err := pubsub.NewClient(a.cfg.Pubsub(), gw)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// redactDSN hides the password of a postgres DSN for logging.
func redactDSN(dsn string) string {
	if !store.IsPostgresDSN(dsn) {
		return dsn
	}
	scheme, rest, _ := strings.Cut(dsn, "://")
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return dsn
	}
	user, _, _ := strings.Cut(rest[:at], ":")
	return scheme + "://" + user + ":***@" + rest[at+1:]
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// printRaw writes one delivered message per line.
func printRaw(msgs []json.RawMessage) {
	for _, m := range msgs {
		fmt.Println(string(m))
	}
}

func fail(cmd string, err error) int {
	fmt.Fprintf(os.Stderr, "tff: %s: %v\n", cmd, err)
	return 1
}
