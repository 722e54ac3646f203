package control

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Agrid-Dev/fanctl/internal/ports"
)

// Key is a recognised command keyword.
type Key string

const (
	KeySetpoint    Key = "SETPOINT"
	KeyTolerance   Key = "TOLERANCE"
	KeyHysteresis  Key = "HYSTERESIS"
	KeyFanMinSpeed Key = "FAN_MIN_SPEED"
	KeyDistance    Key = "DISTANCE"
	KeyPID         Key = "PID"
	KeyAlarm       Key = "ALARM"
	KeyManual      Key = "MANUAL"
)

// Command is one parsed KEY=VALUE line. Only the field matching Key is set.
type Command struct {
	Key   Key
	Float float64
	Int   int
	Flag  bool
	Gains Gains
}

// ParseCommand splits on the first '=' and decodes the value for the key.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return Command{}, ErrNoSeparator
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	cmd := Command{Key: Key(key)}
	var err error
	switch cmd.Key {
	case KeySetpoint, KeyTolerance, KeyHysteresis:
		cmd.Float, err = parseFloat(key, value)
	case KeyFanMinSpeed, KeyDistance:
		cmd.Int, err = parseInt(key, value)
	case KeyPID:
		cmd.Gains, err = parseGains(value)
	case KeyAlarm, KeyManual:
		cmd.Flag, err = parseFlag(key, value)
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func parseFloat(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q", key, ErrInvalidNumber, v)
	}
	return f, nil
}

func parseInt(key, v string) (int, error) {
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q", key, ErrInvalidNumber, v)
	}
	return i, nil
}

func parseFlag(key, v string) (bool, error) {
	switch v {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%s: %w: %q", key, ErrInvalidFlag, v)
	}
}

// parseGains requires exactly three comma-separated numbers.
func parseGains(v string) (Gains, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return Gains{}, fmt.Errorf("%w: got %q", ErrInvalidPIDFormat, v)
	}
	var vals [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Gains{}, fmt.Errorf("%w: got %q", ErrInvalidPIDFormat, v)
		}
		vals[i] = f
	}
	return Gains{Kp: vals[0], Ki: vals[1], Kd: vals[2]}, nil
}

// Processor applies runtime configuration commands to the control state.
// Malformed input is reported on the sink, never returned.
type Processor struct {
	state    *State
	sink     ports.TelemetrySink
	log      *slog.Logger
	onManual func(on bool)
}

func NewProcessor(state *State, sink ports.TelemetrySink, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Processor{state: state, sink: sink, log: log}
}

// OnManualChange registers the hook that drives the manual indicator.
func (p *Processor) OnManualChange(fn func(on bool)) {
	p.onManual = fn
}

func (p *Processor) Process(line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		if errors.Is(err, ErrNoSeparator) || errors.Is(err, ErrUnknownKey) {
			p.log.Debug("command ignored", "line", line, "reason", err)
			return
		}
		p.log.Warn("command rejected", "line", line, "err", err)
		p.sink.Error(err.Error())
		return
	}
	p.Apply(cmd)
}

// Apply mutates the state for an already parsed command and emits the
// acknowledgement, if the key has one.
func (p *Processor) Apply(cmd Command) {
	var (
		ack           string
		manualChanged bool
		manual        bool
	)

	p.state.Update(func(s *Snapshot) {
		switch cmd.Key {
		case KeySetpoint:
			s.Setpoint = cmd.Float
		case KeyTolerance:
			s.Tolerance = cmd.Float
		case KeyHysteresis:
			s.Hysteresis = cmd.Float
		case KeyFanMinSpeed:
			s.FanMinSpeed = cmd.Int
		case KeyDistance:
			s.DistanceThreshold = float64(cmd.Int)
		case KeyPID:
			s.Gains = cmd.Gains
			ack = "PID Parameters Updated: " + cmd.Gains.String()
		case KeyAlarm:
			if s.AlarmMode != cmd.Flag {
				s.AlarmMode = cmd.Flag
				ack = "Alarm mode set to: " + flagString(cmd.Flag)
			}
		case KeyManual:
			if s.ManualMode != cmd.Flag {
				s.ManualMode = cmd.Flag
				s.Indicators.Manual = cmd.Flag
				manualChanged, manual = true, cmd.Flag
				ack = "Manual mode set to: " + flagString(cmd.Flag)
			}
		}
	})

	p.log.Debug("command applied", "key", string(cmd.Key))
	if manualChanged && p.onManual != nil {
		p.onManual(manual)
	}
	if ack != "" {
		p.sink.Status(ack)
	}
}

func flagString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
