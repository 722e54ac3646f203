//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warthog618/gpiod"

	"github.com/Agrid-Dev/fanctl/internal/ports"
)

// Device implements every hardware port on a GPIO character device.
type Device struct {
	cfg  Config
	log  *slog.Logger
	chip *gpiod.Chip

	relay   *gpiod.Line
	leds    map[ports.Indicator]*gpiod.Line
	buzzer  *gpiod.Line
	trigger *gpiod.Line
	echo    *gpiod.Line
	encA    *gpiod.Line
	encB    *gpiod.Line

	climate *IIOClimate
	fan     *PWMFan

	quadMu sync.Mutex
	quad   *Quadrature
	levelA bool
	levelB bool

	rangeMu sync.Mutex
	edges   chan gpiod.LineEvent
}

func Open(cfg Config, log *slog.Logger) (*Device, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	chip, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer("fanctl"))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Chip, err)
	}
	d := &Device{
		cfg:   cfg,
		log:   log,
		chip:  chip,
		leds:  map[ports.Indicator]*gpiod.Line{},
		edges: make(chan gpiod.LineEvent, 4),
	}
	if err := d.setup(); err != nil {
		_ = d.Close()
		return nil, err
	}
	log.Info("gpio hardware ready", "chip", cfg.Chip, "iio", cfg.IIODevice, "pwm", cfg.PWMChip)
	return d, nil
}

func (d *Device) setup() error {
	var err error
	output := func(offset int) (*gpiod.Line, error) {
		l, err := d.chip.RequestLine(offset, gpiod.AsOutput(0))
		if err != nil {
			return nil, fmt.Errorf("request output line %d: %w", offset, err)
		}
		return l, nil
	}

	if d.relay, err = output(d.cfg.Relay); err != nil {
		return err
	}
	for ind, offset := range map[ports.Indicator]int{
		ports.IndicatorManual:   d.cfg.LEDManual,
		ports.IndicatorSetpoint: d.cfg.LEDSetpoint,
		ports.IndicatorFailure:  d.cfg.LEDFailure,
	} {
		l, err := output(offset)
		if err != nil {
			return err
		}
		d.leds[ind] = l
	}
	if d.buzzer, err = output(d.cfg.Buzzer); err != nil {
		return err
	}
	if d.trigger, err = output(d.cfg.Trigger); err != nil {
		return err
	}

	d.echo, err = d.chip.RequestLine(d.cfg.Echo, gpiod.AsInput, gpiod.WithBothEdges,
		gpiod.WithEventHandler(d.onEcho))
	if err != nil {
		return fmt.Errorf("request echo line %d: %w", d.cfg.Echo, err)
	}

	if err := d.setupEncoder(); err != nil {
		return err
	}

	if d.climate, err = NewIIOClimate(d.cfg.IIODevice); err != nil {
		return err
	}
	if d.fan, err = OpenPWMFan(d.cfg.PWMChip, d.cfg.PWMChannel, d.cfg.PWMPeriod); err != nil {
		return err
	}
	return nil
}

func (d *Device) setupEncoder() error {
	var err error
	d.quadMu.Lock()
	defer d.quadMu.Unlock()

	d.encA, err = d.chip.RequestLine(d.cfg.EncoderA, gpiod.AsInput, gpiod.WithPullUp,
		gpiod.WithBothEdges, gpiod.WithEventHandler(d.onEncoder))
	if err != nil {
		return fmt.Errorf("request encoder line %d: %w", d.cfg.EncoderA, err)
	}
	d.encB, err = d.chip.RequestLine(d.cfg.EncoderB, gpiod.AsInput, gpiod.WithPullUp,
		gpiod.WithBothEdges, gpiod.WithEventHandler(d.onEncoder))
	if err != nil {
		return fmt.Errorf("request encoder line %d: %w", d.cfg.EncoderB, err)
	}

	a, err := d.encA.Value()
	if err != nil {
		return err
	}
	b, err := d.encB.Value()
	if err != nil {
		return err
	}
	d.levelA, d.levelB = a == 1, b == 1
	d.quad = NewQuadrature(d.levelA, d.levelB)
	return nil
}

func (d *Device) Hardware() ports.Hardware {
	return ports.Hardware{Climate: d, Distance: d, Encoder: d, Outputs: d}
}

func (d *Device) ReadClimate() (float64, float64, error) {
	return d.climate.ReadClimate()
}

// ReadDistance fires one trigger pulse and times the echo. A missing echo
// returns ErrNoEcho, which the control loop reads as an object at 0 cm.
func (d *Device) ReadDistance() (float64, error) {
	d.rangeMu.Lock()
	defer d.rangeMu.Unlock()

	for len(d.edges) > 0 {
		<-d.edges
	}
	if err := d.pulseTrigger(); err != nil {
		return 0, err
	}

	timeout := time.NewTimer(d.cfg.EchoTimeout)
	defer timeout.Stop()

	var rise time.Duration
	risen := false
	for {
		select {
		case evt := <-d.edges:
			switch {
			case evt.Type == gpiod.LineEventRisingEdge:
				rise, risen = evt.Timestamp, true
			case risen:
				return EchoDistance(evt.Timestamp - rise), nil
			}
		case <-timeout.C:
			return 0, ErrNoEcho
		}
	}
}

func (d *Device) pulseTrigger() error {
	if err := d.trigger.SetValue(0); err != nil {
		return err
	}
	time.Sleep(2 * time.Microsecond)
	if err := d.trigger.SetValue(1); err != nil {
		return err
	}
	time.Sleep(10 * time.Microsecond)
	return d.trigger.SetValue(0)
}

func (d *Device) onEcho(evt gpiod.LineEvent) {
	select {
	case d.edges <- evt:
	default:
	}
}

func (d *Device) onEncoder(evt gpiod.LineEvent) {
	d.quadMu.Lock()
	defer d.quadMu.Unlock()
	level := evt.Type == gpiod.LineEventRisingEdge
	if evt.Offset == d.cfg.EncoderA {
		d.levelA = level
	} else {
		d.levelB = level
	}
	if d.quad != nil {
		d.quad.Update(d.levelA, d.levelB)
	}
}

func (d *Device) Position() int64 {
	d.quadMu.Lock()
	defer d.quadMu.Unlock()
	if d.quad == nil {
		return 0
	}
	return d.quad.Position()
}

func (d *Device) SetRelay(on bool) error {
	return d.relay.SetValue(level(on))
}

func (d *Device) SetFan(magnitude uint8) error {
	return d.fan.SetFan(magnitude)
}

func (d *Device) SetIndicator(ind ports.Indicator, on bool) error {
	l, ok := d.leds[ind]
	if !ok {
		return fmt.Errorf("gpio: no line for indicator %s", ind)
	}
	return l.SetValue(level(on))
}

func (d *Device) SetBuzzer(on bool) error {
	return d.buzzer.SetValue(level(on))
}

// Close releases every line, stops the fan and closes the chip.
func (d *Device) Close() error {
	var errs []error
	if d.fan != nil {
		errs = append(errs, d.fan.SetFan(0), d.fan.Close())
	}
	lines := []*gpiod.Line{d.relay, d.buzzer, d.trigger, d.echo, d.encA, d.encB}
	for _, l := range d.leds {
		lines = append(lines, l)
	}
	for _, l := range lines {
		if l != nil {
			errs = append(errs, l.Close())
		}
	}
	if d.chip != nil {
		errs = append(errs, d.chip.Close())
	}
	return errors.Join(errs...)
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
