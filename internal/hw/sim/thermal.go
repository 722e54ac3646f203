package sim

import "errors"

var (
	ErrNegativeConductance = errors.New("sim: wall conductance must be greater or equal to zero")
	ErrNegativeCoolingRate = errors.New("sim: fan cooling rate must be greater or equal to zero")
)

// Thermal is the enclosure heat balance. Rates are in °C per second.
type Thermal struct {
	HeatLoad    float64 // added by the monitored equipment
	CoolingRate float64 // removed at full fan duty
	Ambient     float64 // air outside the enclosure
	Conductance float64 // wall exchange per °C of difference, 0 for a sealed box
}

func (th Thermal) Validate() error {
	if th.CoolingRate < 0 {
		return ErrNegativeCoolingRate
	}
	if th.Conductance < 0 {
		return ErrNegativeConductance
	}
	return nil
}

// Rate is dT/dt at temperature t with the fan at duty.
func (th Thermal) Rate(t float64, duty uint8) float64 {
	cooling := th.CoolingRate * float64(duty) / 255
	return th.HeatLoad - cooling + th.Conductance*(th.Ambient-t)
}
