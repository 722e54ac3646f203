package control

import (
	"log/slog"
	"math"
	"time"
)

const (
	FanMin = 0.0
	FanMax = 255.0

	// SafetyBeepPulses is the pulse count requested while an object is inside the trip distance.
	SafetyBeepPulses = 3
)

// EncoderDomain is the encoder count range mapped linearly onto the fan range.
type EncoderDomain struct {
	Min int64
	Max int64
}

func (d EncoderDomain) Validate() error {
	if d.Min >= d.Max {
		return ErrInvalidEncoderRange
	}
	return nil
}

// Decision is the actuation request for one cycle.
type Decision struct {
	Mode       Mode
	Fan        float64
	Relay      bool
	BeepPulses int
}

// Duty is the fan magnitude as written to the drive.
func (d Decision) Duty() uint8 {
	return uint8(clampFan(d.Fan))
}

// Arbiter selects exactly one actuation path per cycle: safety, manual or automatic.
type Arbiter struct {
	ctrl   LoopController
	domain EncoderDomain
	policy FaultPolicy
	log    *slog.Logger
	last   Mode
}

func NewArbiter(ctrl LoopController, domain EncoderDomain, policy FaultPolicy, log *slog.Logger) (*Arbiter, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	if !policy.Valid() {
		return nil, ErrInvalidFaultPolicy
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Arbiter{ctrl: ctrl, domain: domain, policy: policy, log: log}, nil
}

// Decide consumes the readings already stored in s, records the actuation in s
// (mode, fan output, relay flag, manual indicator) and returns it.
func (a *Arbiter) Decide(s *Snapshot, dt time.Duration) Decision {
	var d Decision

	switch {
	case s.Distance < s.DistanceThreshold:
		d = Decision{Mode: ModeSafety, Fan: FanMax, Relay: false, BeepPulses: SafetyBeepPulses}

	case s.ManualMode:
		d = Decision{Mode: ModeManual, Fan: a.manualFan(s.EncoderPosition), Relay: true}
		s.Indicators.Manual = true

	default:
		d = Decision{Mode: ModeAutomatic, Fan: a.automaticFan(s, dt), Relay: s.RelayEngaged}
		s.Indicators.Manual = false
	}

	d.Fan = clampFan(d.Fan)
	s.Mode = d.Mode
	s.FanOutput = d.Fan
	s.RelayEngaged = d.Relay

	if d.Mode != a.last {
		a.log.Info("control mode changed", "from", a.last.String(), "to", d.Mode.String(),
			"distance", s.Distance, "threshold", s.DistanceThreshold)
		a.last = d.Mode
	}
	return d
}

func (a *Arbiter) automaticFan(s *Snapshot, dt time.Duration) float64 {
	if s.SensorFault && a.policy == FaultPolicyFailsafe {
		return FanMax
	}
	return a.ctrl.Compute(s.Temperature, s.Setpoint, s.Gains, dt)
}

// manualFan maps the encoder count with integer arithmetic; counts outside
// the domain saturate after mapping.
func (a *Arbiter) manualFan(pos int64) float64 {
	span := a.domain.Max - a.domain.Min
	mapped := (pos - a.domain.Min) * int64(FanMax-FanMin) / span
	return clampFan(float64(mapped) + FanMin)
}

// clampFan bounds v to the fan range. NaN maps to FanMin.
func clampFan(v float64) float64 {
	if math.IsNaN(v) {
		return FanMin
	}
	return math.Max(FanMin, math.Min(FanMax, v))
}
