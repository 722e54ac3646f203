package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIOClimate reads a DHT11 bound to the Linux dht11 IIO driver. Both
// channels are reported in milli-units.
type IIOClimate struct {
	dir string
}

func NewIIOClimate(dir string) (*IIOClimate, error) {
	if dir == "" {
		return nil, ErrMissingIIODevice
	}
	return &IIOClimate{dir: dir}, nil
}

func (c *IIOClimate) ReadClimate() (float64, float64, error) {
	temp, err := readMilli(filepath.Join(c.dir, "in_temp_input"))
	if err != nil {
		return 0, 0, err
	}
	hum, err := readMilli(filepath.Join(c.dir, "in_humidityrelative_input"))
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

func readMilli(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return float64(v) / 1000, nil
}
