package control

import "fmt"

// Mode is the actuation path selected for a cycle.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeSafety
	ModeManual
	ModeAutomatic
)

func (m Mode) Valid() bool {
	return m == ModeSafety || m == ModeManual || m == ModeAutomatic
}

func (m Mode) String() string {
	switch m {
	case ModeSafety:
		return "safety"
	case ModeManual:
		return "manual"
	case ModeAutomatic:
		return "automatic"
	default:
		return "unknown"
	}
}

// FaultPolicy selects what the loop does with an unusable temperature reading.
type FaultPolicy int

const (
	FaultPolicyUnknown FaultPolicy = iota
	// FaultPolicyFailsafe drives the fan at full speed, opens the relay and
	// raises the failure indicator while the reading is unusable.
	FaultPolicyFailsafe
	// FaultPolicyPropagate hands the reading to the controller unchanged.
	FaultPolicyPropagate
)

func (p FaultPolicy) Valid() bool {
	return p == FaultPolicyFailsafe || p == FaultPolicyPropagate
}

func (p FaultPolicy) String() string {
	switch p {
	case FaultPolicyFailsafe:
		return "failsafe"
	case FaultPolicyPropagate:
		return "propagate"
	default:
		return "unknown"
	}
}

func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch s {
	case "failsafe":
		return FaultPolicyFailsafe, nil
	case "propagate":
		return FaultPolicyPropagate, nil
	default:
		return FaultPolicyUnknown, fmt.Errorf("%w: %q", ErrInvalidFaultPolicy, s)
	}
}

// Gains are the closed-loop controller tunings.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

func (g Gains) String() string {
	return fmt.Sprintf("%.2f,%.2f,%.2f", g.Kp, g.Ki, g.Kd)
}
