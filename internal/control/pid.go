package control

import (
	"math"
	"time"
)

// LoopController is the closed-loop numeric controller. Gains are passed on
// every call so runtime retuning takes effect on the next computation.
type LoopController interface {
	Compute(pv, sp float64, g Gains, dt time.Duration) float64
}

// Direction of the controller action.
type Direction int

const (
	// DirectionDirect: output rises when the process variable falls below the setpoint.
	DirectionDirect Direction = iota
	// DirectionReverse: output rises with the process variable (cooling actuators).
	DirectionReverse
)

type PIDParams struct {
	OutMin    float64
	OutMax    float64
	Direction Direction
}

func (params *PIDParams) Validate() error {
	if params.OutMin >= params.OutMax {
		return ErrInvalidOutputLimits
	}
	return nil
}

// PIDController integrates error over time with the integral sum clamped to
// the output limits, and differentiates on the measurement.
type PIDController struct {
	params      PIDParams
	integral    float64
	lastInput   float64
	initialized bool
}

func NewPIDController(params PIDParams) (*PIDController, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &PIDController{params: params}, nil
}

func (pid *PIDController) Compute(pv, sp float64, g Gains, dt time.Duration) float64 {
	if dt <= 0 {
		dt = time.Second
	}
	kp, ki, kd := g.Kp, g.Ki, g.Kd
	if pid.params.Direction == DirectionReverse {
		kp, ki, kd = -kp, -ki, -kd
	}
	last := pid.lastInput
	if !pid.initialized {
		last = pv
	}

	err := sp - pv
	integral := pid.clamp(pid.integral + ki*err*dt.Seconds())
	dInput := (pv - last) / dt.Seconds()
	output := pid.clamp(kp*err + integral - kd*dInput)

	// A NaN measurement must not poison the accumulated state.
	if math.IsNaN(output) || math.IsNaN(integral) {
		return math.NaN()
	}
	pid.integral = integral
	pid.lastInput = pv
	pid.initialized = true
	return output
}

// Reset drops the accumulated integral and derivative history.
func (pid *PIDController) Reset() {
	pid.integral = 0
	pid.lastInput = 0
	pid.initialized = false
}

func (pid *PIDController) clamp(v float64) float64 {
	if v > pid.params.OutMax {
		return pid.params.OutMax
	}
	if v < pid.params.OutMin {
		return pid.params.OutMin
	}
	return v
}
