//go:build !linux

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/Agrid-Dev/fanctl/cmd/app"
	"github.com/Agrid-Dev/fanctl/internal/ports"
)

func openGPIO(app.Config, *slog.Logger) (ports.Hardware, io.Closer, error) {
	return ports.Hardware{}, nil, errors.New("gpio hardware is only available on linux")
}
