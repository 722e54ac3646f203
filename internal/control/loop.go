package control

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Agrid-Dev/fanctl/internal/ports"
	"github.com/Agrid-Dev/fanctl/internal/telemetry"
)

type LoopConfig struct {
	Period  time.Duration
	Encoder EncoderDomain
	Alarm   AlarmConfig
}

type LoopOption func(*Loop)

// WithClock replaces the monotonic clock, for tests and simulations.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) { l.now = now }
}

func WithLogger(log *slog.Logger) LoopOption {
	return func(l *Loop) { l.log = log }
}

// Loop drives one control cycle per period and the alarm pulse sequence in
// between, both on the goroutine that calls Run.
type Loop struct {
	state    *State
	hw       ports.Hardware
	sink     ports.TelemetrySink
	arbiter  *Arbiter
	alarm    *Annunciator
	commands *Processor

	period    time.Duration
	now       func() time.Time
	log       *slog.Logger
	lastCycle time.Time

	outMu sync.Mutex
}

func NewLoop(state *State, hw ports.Hardware, ctrl LoopController, sink ports.TelemetrySink, cfg LoopConfig, opts ...LoopOption) (*Loop, error) {
	if cfg.Period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if hw.Climate == nil || hw.Distance == nil || hw.Encoder == nil || hw.Outputs == nil {
		return nil, ErrIncompleteHardware
	}
	if sink == nil {
		return nil, ErrMissingSink
	}

	l := &Loop{
		state:  state,
		hw:     hw,
		sink:   sink,
		period: cfg.Period,
		now:    time.Now,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}

	var err error
	if l.arbiter, err = NewArbiter(ctrl, cfg.Encoder, cfg.Alarm.Policy, l.log.With("component", "arbiter")); err != nil {
		return nil, err
	}
	if l.alarm, err = NewAnnunciator(cfg.Alarm, l.log.With("component", "alarm")); err != nil {
		return nil, err
	}
	l.commands = NewProcessor(state, sink, l.log.With("component", "commands"))
	l.commands.OnManualChange(func(bool) { l.refreshIndicators() })
	return l, nil
}

// Cycle runs acquisition, arbitration, actuation, the alarm pass and telemetry.
func (l *Loop) Cycle() {
	now := l.now()
	dt := l.period
	if !l.lastCycle.IsZero() {
		dt = now.Sub(l.lastCycle)
	}
	l.lastCycle = now

	temp, hum, fault := l.readClimate()
	dist := l.readDistance()
	pos := l.hw.Encoder.Position()

	var dec Decision
	l.state.Update(func(s *Snapshot) {
		s.Temperature = temp
		s.Humidity = hum
		s.Distance = dist
		s.EncoderPosition = pos
		s.SensorFault = fault
		dec = l.arbiter.Decide(s, dt)
	})
	l.actuate(dec)

	var (
		res  AlarmResult
		snap Snapshot
	)
	l.state.Update(func(s *Snapshot) {
		res = l.alarm.Evaluate(s)
		snap = *s
	})
	if res.Failure {
		l.forceRelayOff()
	}

	l.alarm.Request(dec.BeepPulses, snap.AlarmMode, now)
	l.alarm.Request(res.BeepPulses, snap.AlarmMode, now)
	l.applyIndicators(snap, l.alarm.Level())

	l.sink.Record(telemetry.Record{
		Temperature:     snap.Temperature,
		Humidity:        snap.Humidity,
		Distance:        snap.Distance,
		Manual:          snap.ManualMode,
		FanOutput:       snap.FanOutput,
		EncoderPosition: snap.EncoderPosition,
	})
}

// HandleCommand processes one inbound command line.
func (l *Loop) HandleCommand(line string) {
	l.commands.Process(line)
}

// AdvanceAlarm moves the pulse sequence forward and refreshes the indicators.
func (l *Loop) AdvanceAlarm() {
	lvl := l.alarm.Advance(l.now())
	l.applyIndicators(l.state.Get(), lvl)
}

// NextAlarmDeadline reports when AdvanceAlarm must next be called.
func (l *Loop) NextAlarmDeadline() (time.Time, bool) {
	return l.alarm.NextDeadline()
}

// Run blocks until ctx is cancelled. A closed lines channel stops command
// intake but not the loop.
func (l *Loop) Run(ctx context.Context, lines <-chan string) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	pulse := time.NewTimer(time.Hour)
	pulse.Stop()
	defer pulse.Stop()

	l.log.Info("control loop started", "period", l.period)
	l.Cycle()
	l.schedulePulse(pulse)

	for {
		select {
		case <-ctx.Done():
			l.safeStop()
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				l.log.Info("command channel closed")
				lines = nil
				continue
			}
			l.HandleCommand(line)

		case <-ticker.C:
			l.Cycle()
			l.schedulePulse(pulse)

		case <-pulse.C:
			l.AdvanceAlarm()
			l.schedulePulse(pulse)
		}
	}
}

func (l *Loop) schedulePulse(t *time.Timer) {
	deadline, ok := l.alarm.NextDeadline()
	if !ok {
		t.Stop()
		return
	}
	t.Reset(max(deadline.Sub(l.now()), 0))
}

func (l *Loop) readClimate() (temp, hum float64, fault bool) {
	temp, hum, err := l.hw.Climate.ReadClimate()
	if err != nil {
		l.log.Warn("climate read failed", "err", fmt.Errorf("%w: %v", ErrSensorFault, err))
		return math.NaN(), math.NaN(), true
	}
	if math.IsNaN(temp) {
		l.log.Warn("climate read failed", "err", ErrSensorFault)
		return temp, hum, true
	}
	return temp, hum, false
}

// readDistance treats a failed read as an object at zero distance.
func (l *Loop) readDistance() float64 {
	d, err := l.hw.Distance.ReadDistance()
	if err != nil {
		l.log.Warn("distance read failed", "err", err)
		return 0
	}
	return d
}

func (l *Loop) actuate(d Decision) {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	l.writeOutput("fan", l.hw.Outputs.SetFan(d.Duty()))
	l.writeOutput("relay", l.hw.Outputs.SetRelay(d.Relay))
}

func (l *Loop) forceRelayOff() {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	l.writeOutput("relay", l.hw.Outputs.SetRelay(false))
}

func (l *Loop) refreshIndicators() {
	l.applyIndicators(l.state.Get(), l.alarm.Level())
}

// applyIndicators writes the logical indicator levels, with the manual and
// failure LEDs following the pulse phase while a sequence is playing.
func (l *Loop) applyIndicators(s Snapshot, lvl PulseLevel) {
	l.outMu.Lock()
	defer l.outMu.Unlock()

	manual, failure := s.Indicators.Manual, s.Indicators.Failure
	if lvl.Active {
		manual, failure = lvl.Lit, lvl.Lit
	}
	out := l.hw.Outputs
	l.writeOutput("led_manual", out.SetIndicator(ports.IndicatorManual, manual))
	l.writeOutput("led_failure", out.SetIndicator(ports.IndicatorFailure, failure))
	l.writeOutput("led_setpoint", out.SetIndicator(ports.IndicatorSetpoint, s.Indicators.Setpoint))
	l.writeOutput("buzzer", out.SetBuzzer(lvl.Buzzer))
}

func (l *Loop) safeStop() {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	l.writeOutput("relay", l.hw.Outputs.SetRelay(false))
	l.writeOutput("buzzer", l.hw.Outputs.SetBuzzer(false))
	l.state.Update(func(s *Snapshot) { s.RelayEngaged = false })
	l.log.Info("control loop stopped")
}

func (l *Loop) writeOutput(name string, err error) {
	if err != nil {
		l.log.Warn("output write failed", "output", name, "err", err)
	}
}
