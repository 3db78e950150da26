// simwire runs a sample simulation relay and client over the simwire
// framing protocol.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Zereker/simwire/config"
)

// Version is set by ldflags.
var Version = "snapshot"

var (
	longctx  context.Context
	shutdown context.CancelFunc

	appConfig *config.Config
	logger    = slog.Default()
	logCloser io.Closer
)

var app = &cli.App{
	Name:    "simwire",
	Usage:   "length-prefixed message framing for simulation traffic",
	Version: Version,

	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"f"}, Usage: "path to a YAML config file"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "max-frame", Usage: "largest accepted frame, e.g. 256KiB"},
	},

	Before: setup,
	After:  teardown,
	Commands: []*cli.Command{
		serveCmd,
		sendCmd,
	},
}

func setup(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("max-frame") {
		if err := cfg.MaxFrameSize.Set(c.String("max-frame")); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	appConfig = cfg

	logger, logCloser = newLogger(cfg.Log)

	longctx, shutdown = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-longctx.Done()
		logger.Debug("shutting down")
	}()
	return nil
}

func teardown(*cli.Context) error {
	if shutdown != nil {
		shutdown()
	}
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}
