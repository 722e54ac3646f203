package testutil

import (
	"sync"

	"github.com/Agrid-Dev/fanctl/internal/ports"
)

// FakeOutputs is a recording ports.OutputDriver.
// Put ONLY what multiple test packages need here.
type FakeOutputs struct {
	mu sync.Mutex

	Relay      bool
	Fan        uint8
	Buzzer     bool
	Indicators map[ports.Indicator]bool

	RelayWrites  []bool
	BuzzerWrites []bool
	FanWrites    []uint8

	Err error
}

func NewFakeOutputs() *FakeOutputs {
	return &FakeOutputs{Indicators: map[ports.Indicator]bool{}}
}

func (f *FakeOutputs) SetRelay(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Relay = on
	f.RelayWrites = append(f.RelayWrites, on)
	return f.Err
}

func (f *FakeOutputs) SetFan(duty uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fan = duty
	f.FanWrites = append(f.FanWrites, duty)
	return f.Err
}

func (f *FakeOutputs) SetIndicator(ind ports.Indicator, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Indicators[ind] = on
	return f.Err
}

func (f *FakeOutputs) SetBuzzer(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Buzzer = on
	f.BuzzerWrites = append(f.BuzzerWrites, on)
	return f.Err
}

func (f *FakeOutputs) Indicator(ind ports.Indicator) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Indicators[ind]
}

// BuzzerPulses counts off->on transitions of the buzzer line.
func (f *FakeOutputs) BuzzerPulses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, prev := 0, false
	for _, on := range f.BuzzerWrites {
		if on && !prev {
			n++
		}
		prev = on
	}
	return n
}

// FakeSensors implements the acquisition ports with settable readings.
type FakeSensors struct {
	mu sync.Mutex

	Temperature float64
	Humidity    float64
	ClimateErr  error

	Distance    float64
	DistanceErr error

	Pos int64
}

func (f *FakeSensors) ReadClimate() (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Temperature, f.Humidity, f.ClimateErr
}

func (f *FakeSensors) ReadDistance() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Distance, f.DistanceErr
}

func (f *FakeSensors) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pos
}

func (f *FakeSensors) Set(fn func(*FakeSensors)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// Hardware wires the fake sensors and outputs into a ports.Hardware.
func Hardware(s *FakeSensors, o *FakeOutputs) ports.Hardware {
	return ports.Hardware{Climate: s, Distance: s, Encoder: s, Outputs: o}
}
