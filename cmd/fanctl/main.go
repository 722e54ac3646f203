// Command fanctl runs the cooling-fan regulator: one control cycle per
// period, commands from the line channel, telemetry back on it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Agrid-Dev/fanctl/cmd/app"
	"github.com/Agrid-Dev/fanctl/internal/control"
	"github.com/Agrid-Dev/fanctl/internal/hw/sim"
	"github.com/Agrid-Dev/fanctl/internal/linechan"
	"github.com/Agrid-Dev/fanctl/internal/logging"
	"github.com/Agrid-Dev/fanctl/internal/ports"
	"github.com/Agrid-Dev/fanctl/internal/telemetry"
)

func main() {
	var (
		configPath  string
		printConfig bool
	)
	flag.StringVar(&configPath, "config", "fanctl.yaml", "path to config file (.yaml/.yml/.json)")
	flag.BoolVar(&printConfig, "print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if printConfig {
		if err := cfg.Dump(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fanctl exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg app.Config, logger *slog.Logger) error {
	hw, closeHW, err := openHardware(cfg, logger.With("component", "hardware"))
	if err != nil {
		return err
	}
	defer func() {
		if err := closeHW.Close(); err != nil {
			logger.Warn("hardware close failed", "err", err)
		}
	}()

	ch, err := linechan.Open(cfg.Channel, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer ch.Close()

	pid, err := control.NewPIDController(control.PIDParams{
		OutMin:    control.FanMin,
		OutMax:    control.FanMax,
		Direction: control.DirectionReverse,
	})
	if err != nil {
		return err
	}
	loopCfg, err := cfg.LoopConfig()
	if err != nil {
		return err
	}

	emitter := telemetry.NewEmitter(ch, logger.With("component", "telemetry"))
	ch.OnOverflow(func(n int) {
		emitter.Error(fmt.Sprintf("Command line too long, %d bytes discarded", n))
	})
	loop, err := control.NewLoop(control.NewState(cfg.Settings()), hw, pid, emitter, loopCfg,
		control.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lines := make(chan string, 16)
	go func() {
		if err := ch.ReadLines(ctx, lines); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("command channel failed", "err", err)
		}
	}()

	logger.Info("fanctl starting",
		"device_id", cfg.DeviceID,
		"hardware", cfg.Hardware.Kind,
		"channel", cfg.Channel.Kind,
		"period", cfg.Loop.Period)
	err = loop.Run(ctx, lines)
	logger.Info("fanctl stopped", "dropped_lines", emitter.Dropped())
	return err
}

func openHardware(cfg app.Config, logger *slog.Logger) (ports.Hardware, io.Closer, error) {
	switch cfg.Hardware.Kind {
	case app.HardwareSim:
		plant, err := sim.NewPlant(cfg.PlantParams(), nil, logger)
		if err != nil {
			return ports.Hardware{}, nil, err
		}
		return plant.Hardware(), closerFunc(func() error { return nil }), nil
	case app.HardwareGPIO:
		return openGPIO(cfg, logger)
	default:
		return ports.Hardware{}, nil, fmt.Errorf("unknown hardware kind %q", cfg.Hardware.Kind)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
