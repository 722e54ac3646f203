package control

import "errors"

var (
	ErrNoSeparator         = errors.New("command has no '=' separator")
	ErrUnknownKey          = errors.New("unknown command key")
	ErrInvalidNumber       = errors.New("invalid numeric value")
	ErrInvalidFlag         = errors.New("invalid flag value, expected 0 or 1")
	ErrInvalidPIDFormat    = errors.New("invalid PID parameters format, expected 'Kp,Ki,Kd'")
	ErrSensorFault         = errors.New("temperature sensor fault")
	ErrInvalidOutputLimits = errors.New("controller output minimum must be lower than maximum")
	ErrInvalidEncoderRange = errors.New("encoder domain minimum must be lower than maximum")
	ErrInvalidPeriod       = errors.New("loop period must be positive")
	ErrInvalidPulseTiming  = errors.New("alarm pulse phases must be positive")
	ErrInvalidFaultPolicy  = errors.New("invalid fault policy")
	ErrInvalidPendingCap   = errors.New("alarm pulse cap must hold at least one full burst")
	ErrIncompleteHardware  = errors.New("hardware adapters missing")
	ErrMissingSink         = errors.New("telemetry sink missing")
)
