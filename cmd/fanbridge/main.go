// Command fanbridge relays the controller's serial line channel to MQTT:
// every line read is published, every command received is written back.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Agrid-Dev/fanctl/cmd/app"
	"github.com/Agrid-Dev/fanctl/internal/bridge"
	"github.com/Agrid-Dev/fanctl/internal/linechan"
	"github.com/Agrid-Dev/fanctl/internal/logging"
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
		logger.Error("fanbridge exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg app.Config, logger *slog.Logger) error {
	port, err := linechan.OpenSerial(cfg.Bridge.Serial)
	if err != nil {
		return err
	}
	defer port.Close()
	port.OnOverflow(func(n int) {
		logger.Warn("oversized line discarded", "bytes", n)
	})

	relay, err := bridge.NewMQTTRelay(port, cfg.MQTTConfig(), logger.With("component", "mqtt"))
	if err != nil {
		return err
	}
	store := bridge.NewStore(nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan string, 16)

	g.Go(func() error { return port.ReadLines(ctx, lines) })
	g.Go(func() error { return bridge.Forward(ctx, lines, store, relay) })
	g.Go(func() error { return relay.Run(ctx) })
	if cfg.Bridge.HTTP.Enabled {
		srv := bridge.NewServer(store, port, cfg.Bridge.HTTP.Addr, cfg.DeviceID)
		g.Go(func() error { return srv.Run(ctx) })
		logger.Info("http listening", "addr", cfg.Bridge.HTTP.Addr)
	}
	if cfg.Bridge.Modbus.Enabled {
		mb, err := bridge.NewModbusServer(store, port, cfg.ModbusConfig(), logger.With("component", "modbus"))
		if err != nil {
			return err
		}
		g.Go(func() error { return mb.Run(ctx) })
		logger.Info("modbus listening", "addr", cfg.Bridge.Modbus.Addr)
	}

	logger.Info("fanbridge starting",
		"serial", cfg.Bridge.Serial.Address,
		"broker", cfg.Bridge.MQTT.BrokerURL)
	return g.Wait()
}
