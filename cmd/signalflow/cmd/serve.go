package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/signalflow"
)

var (
	heartbeatInterval time.Duration
	bridgeHeartbeat   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a cortex with metrics and introspection until interrupted",
	Long: `Load configuration from SIGNALFLOW_* environment variables (and optional
dotenv files), start a cortex, and serve its metrics and introspection endpoints
until SIGINT or SIGTERM.

With --heartbeat a "heartbeat" circuit emits a tick on a conduit channel at the
given interval. With --bridge every tick is also published through the
configured transport and read back by an inlet.

Examples:
  SIGNALFLOW_INTROSPECTION_ENABLED=true signalflow serve
  signalflow serve --env .env.local --heartbeat 1s --bridge
  SIGNALFLOW_TRANSPORT=io SIGNALFLOW_TRANSPORT_FILE=ticks.jsonl signalflow serve --heartbeat 1s --bridge`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := signalflow.FromEnv(envFiles...)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := signalflow.NewLoggerFromConfig(os.Stdout, conf)

		cx, err := signalflow.TryNewCortex(conf, logger, signalflow.CortexDependencies{
			Hooks: signalflow.LoggingHooks(logger),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if heartbeatInterval > 0 {
			if err := startHeartbeat(ctx, cx, logger, heartbeatInterval, bridgeHeartbeat); err != nil {
				_ = cx.Close()
				return err
			}
		}

		logger.Info("Cortex started", signalflow.LogFields{"config": conf.String()})
		if err := cx.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("Cortex stopped", nil)
		return nil
	},
}

func startHeartbeat(ctx context.Context, cx *signalflow.Cortex, logger signalflow.ServiceLogger, every time.Duration, bridged bool) error {
	c, err := cx.Circuit(signalflow.MustParseName("heartbeat"))
	if err != nil {
		return err
	}
	cd, err := signalflow.NewConduit(c, signalflow.MustParseName("ticks"), signalflow.PipeComposer[time.Time]())
	if err != nil {
		return err
	}
	tick, err := cd.Percept(signalflow.MustParseName("tick"))
	if err != nil {
		return err
	}

	if bridged {
		if err := bridgeTicks(ctx, cx, c, cd, logger); err != nil {
			return err
		}
	}

	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				tick.Emit(now)
			}
		}
	}()
	return nil
}

func bridgeTicks(ctx context.Context, cx *signalflow.Cortex, c *signalflow.Circuit, cd *signalflow.Conduit[*signalflow.Pipe[time.Time], time.Time], logger signalflow.ServiceLogger) error {
	tr, err := cx.Transport(ctx)
	if err != nil {
		return err
	}
	const prefix = "heartbeat."

	outlet, err := signalflow.NewOutlet[time.Time](c, signalflow.MustParseName("publisher"), tr.Publisher, signalflow.JSONCodec[time.Time]{},
		signalflow.BridgeLogger(logger), signalflow.BridgeTopicPrefix(prefix), signalflow.BridgeCapabilities(cx.TransportCapabilities()))
	if err != nil {
		return err
	}
	if _, err := signalflow.Attach(cd, outlet); err != nil {
		return err
	}

	echo, err := signalflow.NewPipe(c, signalflow.MustParseName("echo"), func(at time.Time) {
		logger.Debug("Heartbeat echoed", signalflow.LogFields{"at": at, "lag": time.Since(at).String()})
	})
	if err != nil {
		return err
	}
	inlet, err := signalflow.NewInlet[time.Time](tr.Subscriber, signalflow.BridgeTopic(prefix, signalflow.MustParseName("tick")), signalflow.JSONCodec[time.Time]{}, echo,
		signalflow.BridgeLogger(logger))
	if err != nil {
		return err
	}
	go func() {
		if err := inlet.Run(ctx); err != nil {
			logger.Error("Inlet stopped", err, signalflow.LogFields{"topic": inlet.Topic()})
		}
	}()
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().DurationVar(&heartbeatInterval, "heartbeat", 0, "Emit a heartbeat tick at this interval (0 disables)")
	serveCmd.Flags().BoolVar(&bridgeHeartbeat, "bridge", false, "Publish heartbeat ticks through the configured transport and read them back")
}
