package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notnil/vescnode/canbus"
	"github.com/notnil/vescnode/internal/config"
	"github.com/notnil/vescnode/slcan"
	"github.com/notnil/vescnode/vesc"
)

// dialerFor selects the CAN interface named by cfg.Transport.Kind.
func dialerFor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (canbus.Dialer, error) {
	tc := cfg.Transport
	switch tc.Kind {
	case config.TransportSocketCAN:
		return socketCANDialer(tc)
	case config.TransportSLCAN:
		sc := slcan.DefaultConfig(tc.SerialDevice)
		sc.Baud = tc.SerialBaud
		return slcan.Dialer(sc), nil
	case config.TransportLoopback:
		bus := canbus.NewLoopbackBus()
		go func() {
			<-ctx.Done()
			bus.Close()
		}()
		go runPeer(ctx, bus.Open(), cfg.Node.Address, logger)
		return bus.Dialer(), nil
	default:
		return nil, fmt.Errorf("transport %q: unknown kind", tc.Kind)
	}
}

// peerAddress is the controller id used by the loopback peer.
const peerAddress = 0x01

// runPeer plays a remote controller on the loopback bus: it polls the
// node's voltage and fault state fast enough to keep the watchdog fed,
// pings it every second and logs the answers.
func runPeer(ctx context.Context, ep canbus.Bus, node uint8, logger *slog.Logger) {
	defer ep.Close()
	logger = logger.With("peer", peerAddress)

	go func() {
		for {
			f, err := ep.Receive(ctx)
			if err != nil {
				return
			}
			_, cmd := vesc.SplitID(f.ID)
			switch cmd {
			case vesc.CmdPong:
				logger.Info("pong", "from", f.ID&0xFF)
			case vesc.CmdProcessShortBuffer:
				msg, err := vesc.ParseShortBuffer(f)
				if err != nil {
					continue
				}
				if v, err := vesc.ParseSelectiveValue(msg); err == nil {
					logger.Debug("selective value", "from", v.Source, "mask", v.Mask, "value", v.Value)
				}
			}
		}
	}()

	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()
	ping := time.NewTicker(time.Second)
	defer ping.Stop()
	for {
		var f canbus.Frame
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			f = vesc.ValuesSelectiveRequest(node, peerAddress, vesc.ValueVoltageIn|vesc.ValueFault)
		case <-ping.C:
			f = vesc.PingFrame(node)
		}
		if err := ep.Send(ctx, f); err != nil {
			if ctx.Err() == nil {
				logger.Warn("peer send failed", "error", err)
			}
			return
		}
	}
}
