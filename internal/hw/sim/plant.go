// Package sim is a software stand-in for the fan controller's hardware: a
// thermal plant heated by a constant load and cooled by the fan, plus
// settable distance and encoder readings.
package sim

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Agrid-Dev/fanctl/internal/ports"
)

type PlantParams struct {
	InitialTemperature float64
	Humidity           float64
	Thermal            Thermal

	Distance float64
	Encoder  int64
}

func (params *PlantParams) Validate() error {
	return params.Thermal.Validate()
}

// Plant implements every hardware port.
type Plant struct {
	mu     sync.Mutex
	params PlantParams
	now    func() time.Time
	log    *slog.Logger

	temperature float64
	lastStep    time.Time

	distance float64
	encoder  int64

	relay      bool
	fan        uint8
	buzzer     bool
	indicators map[ports.Indicator]bool
}

func NewPlant(params PlantParams, now func() time.Time, log *slog.Logger) (*Plant, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Plant{
		params:      params,
		now:         now,
		log:         log,
		temperature: params.InitialTemperature,
		distance:    params.Distance,
		encoder:     params.Encoder,
		indicators:  map[ports.Indicator]bool{},
	}, nil
}

func (p *Plant) Hardware() ports.Hardware {
	return ports.Hardware{Climate: p, Distance: p, Encoder: p, Outputs: p}
}

// ReadClimate integrates the plant up to now and returns the temperature.
func (p *Plant) ReadClimate() (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step(p.now())
	return p.temperature, p.params.Humidity, nil
}

func (p *Plant) step(now time.Time) {
	if p.lastStep.IsZero() {
		p.lastStep = now
		return
	}
	dt := now.Sub(p.lastStep)
	if dt <= 0 {
		return
	}
	p.lastStep = now

	p.temperature += p.params.Thermal.Rate(p.temperature, p.fan) * dt.Seconds()
}

func (p *Plant) ReadDistance() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.distance, nil
}

func (p *Plant) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder
}

func (p *Plant) SetDistance(d float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.distance = d
}

// Turn moves the encoder by delta counts.
func (p *Plant) Turn(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.encoder += delta
}

func (p *Plant) SetTemperature(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.temperature = t
}

func (p *Plant) SetRelay(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.relay != on {
		p.log.Debug("relay", "on", on)
	}
	p.relay = on
	return nil
}

func (p *Plant) SetFan(duty uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Cooling up to now happened at the previous duty.
	p.step(p.now())
	p.fan = duty
	return nil
}

func (p *Plant) SetIndicator(ind ports.Indicator, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indicators[ind] = on
	return nil
}

func (p *Plant) SetBuzzer(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buzzer = on
	return nil
}

// Outputs is a copy of the actuation surfaces as last written.
type Outputs struct {
	Relay      bool
	Fan        uint8
	Buzzer     bool
	Indicators map[ports.Indicator]bool
}

func (p *Plant) Outputs() Outputs {
	p.mu.Lock()
	defer p.mu.Unlock()
	ind := make(map[ports.Indicator]bool, len(p.indicators))
	for k, v := range p.indicators {
		ind[k] = v
	}
	return Outputs{Relay: p.relay, Fan: p.fan, Buzzer: p.buzzer, Indicators: ind}
}
