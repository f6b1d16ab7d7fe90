// Command vescnode runs a VESC CAN node in front of a simulated motor.
//
// It answers PING, POLL_ROTOR_POS, SET_CURRENT_REL and the short-buffer
// FW_VERSION and GET_VALUES_SELECTIVE queries on SocketCAN, an SLCAN serial
// adapter or an in-process loopback bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notnil/vescnode/canbus"
	"github.com/notnil/vescnode/internal/config"
	"github.com/notnil/vescnode/internal/logging"
	"github.com/notnil/vescnode/internal/metrics"
	"github.com/notnil/vescnode/internal/motor"
	"github.com/notnil/vescnode/vesc"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML/TOML/JSON)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vescnode:", err)
		os.Exit(1)
	}

	logger, closer := logging.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("vescnode failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := metrics.NewRegistry()
	nm := metrics.NewNodeMetrics(reg)
	if cfg.Metrics.Enable {
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	fw, err := vesc.ParseFirmware(cfg.Node.Firmware)
	if err != nil {
		return err
	}

	dial, err := dialerFor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Transport.LogFrames {
		dial = canbus.LoggedDialer(dial, logger, slog.LevelDebug, canbus.LogAll, nil)
	}
	q := canbus.NewQueue(dial,
		canbus.WithDepth(cfg.Transport.QueueDepth),
		canbus.WithDropHook(func(canbus.Frame) { nm.QueueOverflow.Inc() }),
	)
	defer q.Close()

	sim := motor.NewSim(motor.DefaultParams(cfg.Motor.CurrentLimit))
	node := vesc.New(q, sim, cfg.Node.Address, cfg.Node.Bitrate,
		vesc.WithLogger(logger),
		vesc.WithMetrics(nm),
		vesc.WithFirmware(fw),
	)
	node.SetRemoteEnable(cfg.Node.RemoteEnable)
	if err := node.Open(); err != nil {
		return err
	}

	logger.Info("vescnode running",
		"transport", cfg.Transport.Kind,
		"address", cfg.Node.Address,
		"remote_enable", cfg.Node.RemoteEnable,
		"period", cfg.Node.ControlPeriod,
	)
	controlLoop(ctx, cfg, node, sim, nm)
	logger.Info("vescnode stopped", "queue_dropped", q.Dropped())
	return nil
}

// controlLoop steps the motor and runs one node cycle per period until ctx
// is done.
func controlLoop(ctx context.Context, cfg *config.Config, node *vesc.Node, sim *motor.Sim, nm *metrics.NodeMetrics) {
	period := cfg.Node.ControlPeriod
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			sim.Disable()
			return
		case <-t.C:
		}
		sim.Step(period)
		node.SetBusVoltage(cfg.Motor.BusVoltage)
		node.Run()
		nm.SetMotorEnabled(sim.Enabled())
	}
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}
