//go:build linux

package main

import (
	"io"
	"log/slog"

	"github.com/Agrid-Dev/fanctl/cmd/app"
	"github.com/Agrid-Dev/fanctl/internal/hw/gpio"
	"github.com/Agrid-Dev/fanctl/internal/ports"
)

func openGPIO(cfg app.Config, logger *slog.Logger) (ports.Hardware, io.Closer, error) {
	dev, err := gpio.Open(cfg.Hardware.GPIO, logger)
	if err != nil {
		return ports.Hardware{}, nil, err
	}
	return dev.Hardware(), dev, nil
}
