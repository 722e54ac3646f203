package ports

// Climate is the temperature/humidity acquisition port. A sensor that cannot
// produce a reading returns an error or NaN values; the caller decides policy.
type Climate interface {
	ReadClimate() (temperature, humidity float64, err error)
}

// DistanceSensor returns the distance to the nearest object in centimetres.
// A missing echo is reported as 0, not as an error.
type DistanceSensor interface {
	ReadDistance() (float64, error)
}

// Encoder exposes the rotary position count. The count is owned by the
// adapter and is never reset by the controller.
type Encoder interface {
	Position() int64
}

// Indicator identifies one of the digital indicator outputs.
type Indicator int

const (
	IndicatorManual Indicator = iota
	IndicatorSetpoint
	IndicatorFailure
)

func (i Indicator) String() string {
	switch i {
	case IndicatorManual:
		return "manual"
	case IndicatorSetpoint:
		return "setpoint"
	case IndicatorFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// OutputDriver applies actuation. None of the surfaces are read back.
type OutputDriver interface {
	SetRelay(on bool) error
	SetFan(duty uint8) error
	SetIndicator(ind Indicator, on bool) error
	SetBuzzer(on bool) error
}

// Hardware bundles every adapter the control loop needs.
type Hardware struct {
	Climate  Climate
	Distance DistanceSensor
	Encoder  Encoder
	Outputs  OutputDriver
}
