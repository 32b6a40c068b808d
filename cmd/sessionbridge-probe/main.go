// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessionbridge/cmd/internal/cli"
	"github.com/bureau-foundation/sessionbridge/connection"
	"github.com/bureau-foundation/sessionbridge/lib/config"
	"github.com/bureau-foundation/sessionbridge/lib/secret"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
	"github.com/bureau-foundation/sessionbridge/messaging"
)

const commandName = "sessionbridge-probe"

// errRejected marks a --once probe the homeserver did not accept.
var errRejected = errors.New("session is not active")

func main() {
	err := run(os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, errRejected):
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandName, err)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

type options struct {
	configPath string
	homeserver string
	tokenFile  string
	once       bool
	verbose    bool
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "--version" {
		cli.PrintVersion(os.Stdout, commandName)
		return nil
	}

	var opts options
	flagSet := pflag.NewFlagSet(commandName, pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default: $SESSIONBRIDGE_CONFIG)")
	flagSet.StringVar(&opts.homeserver, "homeserver", "", "override the configured homeserver URL")
	flagSet.StringVar(&opts.tokenFile, "token-file", "", `override the configured token file ("-" reads stdin)`)
	flagSet.BoolVar(&opts.once, "once", false, "validate the token once and exit")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flagSet.Usage = func() { printUsage(flagSet) }
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := cli.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.homeserver != "" {
		cfg.Homeserver = opts.homeserver
	}
	if opts.tokenFile != "" {
		cfg.Paths.TokenFile = opts.tokenFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Paths.TokenFile == "" {
		return fmt.Errorf("no token file configured (set paths.token_file or --token-file)")
	}

	level, err := cli.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := cli.NewLogger(level).With("command", commandName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	active := session.IsActive(ctx)
	if opts.once {
		if !active {
			return errRejected
		}
		fmt.Fprintf(os.Stdout, "%s\n", session.UserID())
		return nil
	}
	if active {
		logger.Info("token accepted", "user_id", session.UserID().String(), "device_id", session.DeviceID())
	} else {
		logger.Warn("token not accepted yet; monitoring")
	}
	return monitor(ctx, cfg, session, os.Stdout, logger)
}

// connect checks the homeserver and wraps the configured token in a
// session.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*messaging.Session, error) {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver,
		HTTPClient:    &http.Client{Timeout: cfg.Connection.RequestTimeout},
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	versionsContext, cancel := context.WithTimeout(ctx, cfg.Connection.RequestTimeout)
	versions, err := client.ServerVersions(versionsContext)
	cancel()
	if err != nil {
		// An unreachable homeserver is what the monitor is for.
		logger.Warn("homeserver not answering", "homeserver", cfg.Homeserver, "error", err)
	} else {
		logger.Info("homeserver reachable", "homeserver", cfg.Homeserver, "versions", versions.Versions)
	}

	token, err := secret.ReadToken(cfg.Paths.TokenFile, os.Stdin)
	if err != nil {
		return nil, err
	}
	return messaging.NewSession(messaging.SessionConfig{
		Client:       client,
		Token:        token,
		ProbeTimeout: cfg.Connection.RequestTimeout,
		Logger:       logger,
	})
}

// stateLine is one line of monitor output.
type stateLine struct {
	State         string `json:"state"`
	Attempt       uint32 `json:"attempt,omitempty"`
	NextRetrySecs uint32 `json:"next_retry_secs,omitempty"`
}

// printer writes each connectivity change as a JSON line.
type printer struct {
	encoder *json.Encoder
	logger  *slog.Logger
}

func (observer *printer) OnConnectionChange(state connection.State) {
	line := stateLine{
		State:         state.Kind.String(),
		Attempt:       state.Attempt,
		NextRetrySecs: state.NextRetrySecs,
	}
	if err := observer.encoder.Encode(line); err != nil {
		observer.logger.Warn("writing state failed", "error", err)
	}
}

// monitor prints connectivity changes until ctx ends. SIGHUP reloads
// the token file.
func monitor(ctx context.Context, cfg *config.Config, session *messaging.Session, output io.Writer, logger *slog.Logger) error {
	registry := subscription.New(logger)
	defer registry.Shutdown()

	watcher := connection.NewMonitor(connection.MonitorConfig{
		Session:       session,
		ProbeInterval: cfg.Connection.ProbeInterval,
		Logger:        logger,
	})
	observer := &printer{encoder: json.NewEncoder(output), logger: logger}
	if registry.Register("connection", watcher.Task(observer)) == 0 {
		return fmt.Errorf("starting connection monitor failed")
	}

	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)
	defer signal.Stop(hangups)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-hangups:
			if cfg.Paths.TokenFile == "-" {
				logger.Warn("token came from stdin; nothing to reload")
				continue
			}
			token, err := secret.ReadToken(cfg.Paths.TokenFile, nil)
			if err != nil {
				logger.Error("reloading token failed", "path", cfg.Paths.TokenFile, "error", err)
				continue
			}
			if err := session.ReplaceToken(token); err != nil {
				logger.Error("replacing token failed", "error", err)
			}
		}
	}
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `%s - probe a homeserver session

USAGE
    %s [flags]

FLAGS
%s
Configuration comes from --config or $SESSIONBRIDGE_CONFIG, with
SESSIONBRIDGE_* environment overrides.
`, commandName, commandName, flagSet.FlagUsages())
}
