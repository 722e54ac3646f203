package control

import (
	"log/slog"
	"math"
	"time"
)

// AlarmBeepPulses is the pulse count requested by an out-of-band temperature.
const AlarmBeepPulses = 3

type AlarmConfig struct {
	On         time.Duration
	Off        time.Duration
	MaxPending int // upper bound on queued pulses, requests beyond it are dropped; 0 is unbounded
	Policy     FaultPolicy
}

// MinPendingPulses is the smallest pulse cap that still fits one full burst.
const MinPendingPulses = max(AlarmBeepPulses, SafetyBeepPulses)

func (cfg *AlarmConfig) Validate() error {
	if cfg.On <= 0 || cfg.Off <= 0 {
		return ErrInvalidPulseTiming
	}
	if cfg.MaxPending < 0 || (cfg.MaxPending > 0 && cfg.MaxPending < MinPendingPulses) {
		return ErrInvalidPendingCap
	}
	if !cfg.Policy.Valid() {
		return ErrInvalidFaultPolicy
	}
	return nil
}

// AlarmResult is the outcome of one alarm pass.
type AlarmResult struct {
	Failure         bool
	SetpointReached bool
	RelayForcedOff  bool
	BeepPulses      int
}

// Annunciator evaluates the temperature band after actuation and owns the
// pulse sequence used for beeps.
type Annunciator struct {
	cfg     AlarmConfig
	seq     *Sequencer
	log     *slog.Logger
	failing bool
}

func NewAnnunciator(cfg AlarmConfig, log *slog.Logger) (*Annunciator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Annunciator{cfg: cfg, seq: NewSequencer(cfg.On, cfg.Off, cfg.MaxPending), log: log}, nil
}

// Evaluate runs the out-of-band and setpoint-reached checks against s. It may
// force the relay off and clear RelayEngaged.
func (a *Annunciator) Evaluate(s *Snapshot) AlarmResult {
	hi := s.Setpoint + s.Tolerance
	lo := s.Setpoint - s.Tolerance

	var res AlarmResult
	res.Failure = s.Temperature > hi || (s.SensorFault && a.cfg.Policy == FaultPolicyFailsafe)
	if res.Failure {
		res.RelayForcedOff = s.RelayEngaged
		res.BeepPulses = AlarmBeepPulses
		s.RelayEngaged = false
	}
	res.SetpointReached = s.Temperature >= lo && s.Temperature <= hi

	s.Indicators.Failure = res.Failure
	s.Indicators.Setpoint = res.SetpointReached

	if res.Failure != a.failing {
		if res.Failure {
			a.log.Warn("temperature out of band", "temperature", s.Temperature,
				"limit", hi, "sensor_fault", s.SensorFault)
		} else {
			a.log.Info("temperature back in band", "temperature", s.Temperature)
		}
		a.failing = res.Failure
	}
	return res
}

// Request queues a beep. With alarm mode on the full count is played audibly;
// otherwise a single silent blink is played whatever the count.
func (a *Annunciator) Request(pulses int, alarmMode bool, now time.Time) {
	if pulses <= 0 {
		return
	}
	if !alarmMode {
		pulses = 1
	}
	if !a.seq.Request(pulses, alarmMode, now) {
		a.log.Debug("beep request dropped", "pulses", pulses, "pending", a.seq.Pending())
	}
}

func (a *Annunciator) Advance(now time.Time) PulseLevel {
	return a.seq.Advance(now)
}

func (a *Annunciator) Level() PulseLevel {
	return a.seq.Level()
}

func (a *Annunciator) NextDeadline() (time.Time, bool) {
	return a.seq.NextDeadline()
}

// PulseLevel is the instantaneous output of the pulse sequencer.
type PulseLevel struct {
	Active bool // a sequence owns the blink LEDs
	Lit    bool // blink LEDs on
	Buzzer bool
}

type burst struct {
	pulses  int
	audible bool
}

// Sequencer plays queued pulse bursts as a timed state machine. It never
// sleeps: callers invoke Advance at or after NextDeadline.
type Sequencer struct {
	on, off    time.Duration
	maxPending int

	queue     []burst
	active    bool
	audible   bool
	phaseOn   bool
	remaining int
	deadline  time.Time
}

func NewSequencer(on, off time.Duration, maxPending int) *Sequencer {
	if maxPending <= 0 {
		maxPending = math.MaxInt
	}
	return &Sequencer{on: on, off: off, maxPending: maxPending}
}

// Request queues a burst and starts it if idle. It reports false when the
// burst would exceed the pending limit.
func (q *Sequencer) Request(pulses int, audible bool, now time.Time) bool {
	if pulses <= 0 {
		return true
	}
	if q.Pending()+pulses > q.maxPending {
		return false
	}
	q.queue = append(q.queue, burst{pulses: pulses, audible: audible})
	if !q.active {
		q.startNext(now)
	}
	return true
}

// Advance performs at most one phase transition if the deadline has passed.
// The next deadline is anchored on now so no phase is skipped when late.
func (q *Sequencer) Advance(now time.Time) PulseLevel {
	if !q.active || now.Before(q.deadline) {
		return q.Level()
	}
	if q.phaseOn {
		q.phaseOn = false
		q.deadline = now.Add(q.off)
		return q.Level()
	}
	q.remaining--
	if q.remaining > 0 {
		q.phaseOn = true
		q.deadline = now.Add(q.on)
		return q.Level()
	}
	q.active = false
	q.startNext(now)
	return q.Level()
}

func (q *Sequencer) Level() PulseLevel {
	lit := q.active && q.phaseOn
	return PulseLevel{Active: q.active, Lit: lit, Buzzer: lit && q.audible}
}

func (q *Sequencer) NextDeadline() (time.Time, bool) {
	return q.deadline, q.active
}

// Pending counts pulses not yet completed, including the one playing.
func (q *Sequencer) Pending() int {
	n := 0
	if q.active {
		n = q.remaining
	}
	for _, b := range q.queue {
		n += b.pulses
	}
	return n
}

func (q *Sequencer) startNext(now time.Time) {
	if len(q.queue) == 0 {
		return
	}
	b := q.queue[0]
	q.queue = q.queue[1:]
	q.active = true
	q.audible = b.audible
	q.phaseOn = true
	q.remaining = b.pulses
	q.deadline = now.Add(q.on)
}
