package control

import "sync"

// Settings are the runtime-tunable parameters. Hysteresis and FanMinSpeed are
// stored and reported but not consumed by the control path.
type Settings struct {
	Setpoint          float64
	Tolerance         float64
	Hysteresis        float64
	FanMinSpeed       int
	DistanceThreshold float64
	Gains             Gains
	ManualMode        bool
	AlarmMode         bool
}

// Indicators holds the logical level of each indicator as last decided by the
// arbiter, the alarm pass or a MANUAL command. Pulse sequences overlay these.
type Indicators struct {
	Manual   bool
	Setpoint bool
	Failure  bool
}

// Snapshot is the full control state: settings, the latest readings and the
// last actuation. Readings are overwritten every cycle.
type Snapshot struct {
	Settings

	Temperature     float64
	Humidity        float64
	Distance        float64
	EncoderPosition int64
	SensorFault     bool

	Mode         Mode
	RelayEngaged bool
	FanOutput    float64
	Indicators   Indicators
}

// State is the single process-wide control state record.
type State struct {
	mu sync.RWMutex
	s  Snapshot
}

func NewState(initial Settings) *State {
	return &State{s: Snapshot{Settings: initial}}
}

func (st *State) Get() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Update runs fn with exclusive access to the state.
func (st *State) Update(fn func(s *Snapshot)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
}
