package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/Zereker/simwire"
	"github.com/Zereker/simwire/config"
	"github.com/Zereker/simwire/message"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run a relay that re-sends every message to all connected peers",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "tcp address to listen on"},
		&cli.StringFlag{Name: "metrics", Usage: "address serving /metrics, empty disables it"},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: 5 * time.Second, Usage: "how long open connections keep running after a signal"},
	},
	Action: func(c *cli.Context) error {
		cfg := appConfig
		if c.IsSet("listen") {
			cfg.Listen = c.String("listen")
		}
		if c.IsSet("metrics") {
			cfg.Metrics = c.String("metrics")
		}
		return serve(longctx, cfg, c.Duration("shutdown-timeout"))
	},
}

// relay broadcasts each decoded message to every open connection, the
// sender included.
type relay struct {
	server *simwire.Server
	logger *slog.Logger
}

func (r *relay) OnOpen(conn *simwire.Conn) {
	r.logger.Info("peer joined", "conn_id", conn.ID(), "addr", conn.Addr(), "peers", len(r.server.Conns()))
}

func (r *relay) OnMessage(conn *simwire.Conn, m message.Message) error {
	r.logger.Debug("relay", "conn_id", conn.ID(), "message", m)
	if err := r.server.Broadcast(m, 0); err != nil {
		// Slow peers miss the update; the sender stays connected.
		r.logger.Warn("broadcast incomplete", "conn_id", conn.ID(), "error", err)
	}
	return nil
}

func (r *relay) OnClose(conn *simwire.Conn, err error) {
	r.logger.Info("peer left", "conn_id", conn.ID(), "error", err)
}

func serve(ctx context.Context, cfg *config.Config, shutdownTimeout time.Duration) error {
	addr, err := net.ResolveTCPAddr("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", cfg.Listen)
	}

	connOpts := connOptions(cfg, newRegistry())

	if cfg.Metrics != "" {
		reg := prometheus.NewRegistry()
		metrics, err := simwire.NewMetrics(reg, "simwire")
		if err != nil {
			return err
		}
		connOpts = append(connOpts, simwire.MetricsOption(metrics))

		stop := serveMetrics(cfg.Metrics, reg)
		defer stop()
	}

	server, err := simwire.New(addr,
		simwire.ServerLoggerOption(logger),
		simwire.ServerShutdownTimeoutOption(shutdownTimeout),
		simwire.ServerConnOptions(connOpts...),
	)
	if err != nil {
		return err
	}
	defer server.Close()

	logger.Info("relay configured",
		"max_frame", humanize.IBytes(uint64(cfg.MaxFrameSize)),
		"read_buffer", humanize.IBytes(uint64(cfg.ReadBufferSize)),
		"heartbeat", cfg.Heartbeat.Duration(),
	)

	err = server.Serve(ctx, &relay{server: server, logger: logger})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// serveMetrics exposes reg over HTTP until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// connOptions translates cfg into per-connection options.
func connOptions(cfg *config.Config, registry *message.Registry) []simwire.Option {
	opts := []simwire.Option{
		simwire.RegistryOption(registry),
		simwire.LoggerOption(logger),
		simwire.BufferSizeOption(cfg.SendBuffer),
		simwire.MaxFrameSizeOption(int(cfg.MaxFrameSize)),
		simwire.ReadBufferSizeOption(int(cfg.ReadBufferSize)),
		simwire.HeartbeatOption(cfg.Heartbeat.Duration()),
		simwire.OnErrorOption(func(err error) simwire.ErrorAction {
			logger.Warn("connection error", "error", err)
			return simwire.Disconnect
		}),
	}
	if cfg.ReadRate > 0 {
		opts = append(opts, simwire.ReadRateOption(int64(cfg.ReadRate)))
	}
	return opts
}
