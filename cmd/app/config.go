package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Agrid-Dev/fanctl/internal/bridge"
	"github.com/Agrid-Dev/fanctl/internal/control"
	"github.com/Agrid-Dev/fanctl/internal/hw/gpio"
	"github.com/Agrid-Dev/fanctl/internal/hw/sim"
	"github.com/Agrid-Dev/fanctl/internal/linechan"
	"github.com/Agrid-Dev/fanctl/internal/logging"
)

// EnvPrefix marks the environment variables that override the config file.
const EnvPrefix = "FANCTL_"

const (
	HardwareSim  = "sim"
	HardwareGPIO = "gpio"
)

type Config struct {
	DeviceID string `koanf:"device_id" yaml:"device_id" json:"device_id"`

	Log      logging.Config  `koanf:"log" yaml:"log" json:"log"`
	Loop     LoopConfig      `koanf:"loop" yaml:"loop" json:"loop"`
	Control  ControlConfig   `koanf:"control" yaml:"control" json:"control"`
	Encoder  EncoderConfig   `koanf:"encoder" yaml:"encoder" json:"encoder"`
	Alarm    AlarmConfig     `koanf:"alarm" yaml:"alarm" json:"alarm"`
	Channel  linechan.Config `koanf:"channel" yaml:"channel" json:"channel"`
	Hardware HardwareConfig  `koanf:"hardware" yaml:"hardware" json:"hardware"`
	Bridge   BridgeConfig    `koanf:"bridge" yaml:"bridge" json:"bridge"`
}

type LoopConfig struct {
	Period time.Duration `koanf:"period" yaml:"period" json:"period"`
}

// ControlConfig seeds the runtime settings. Every field can later be changed
// by a command line.
type ControlConfig struct {
	Setpoint          float64 `koanf:"setpoint" yaml:"setpoint" json:"setpoint"`
	Tolerance         float64 `koanf:"tolerance" yaml:"tolerance" json:"tolerance"`
	Hysteresis        float64 `koanf:"hysteresis" yaml:"hysteresis" json:"hysteresis"`
	FanMinSpeed       int     `koanf:"fan_min_speed" yaml:"fan_min_speed" json:"fan_min_speed"`
	DistanceThreshold float64 `koanf:"distance_threshold" yaml:"distance_threshold" json:"distance_threshold"`
	Kp                float64 `koanf:"kp" yaml:"kp" json:"kp"`
	Ki                float64 `koanf:"ki" yaml:"ki" json:"ki"`
	Kd                float64 `koanf:"kd" yaml:"kd" json:"kd"`
	AlarmMode         bool    `koanf:"alarm_mode" yaml:"alarm_mode" json:"alarm_mode"`
	ManualMode        bool    `koanf:"manual_mode" yaml:"manual_mode" json:"manual_mode"`
	FaultPolicy       string  `koanf:"fault_policy" yaml:"fault_policy" json:"fault_policy"` // failsafe | propagate
}

type EncoderConfig struct {
	DomainMin int64 `koanf:"domain_min" yaml:"domain_min" json:"domain_min"`
	DomainMax int64 `koanf:"domain_max" yaml:"domain_max" json:"domain_max"`
}

type AlarmConfig struct {
	On         time.Duration `koanf:"on" yaml:"on" json:"on"`
	Off        time.Duration `koanf:"off" yaml:"off" json:"off"`
	MaxPending int           `koanf:"max_pending" yaml:"max_pending" json:"max_pending"`
}

type HardwareConfig struct {
	Kind string      `koanf:"kind" yaml:"kind" json:"kind"` // sim | gpio
	Sim  SimConfig   `koanf:"sim" yaml:"sim" json:"sim"`
	GPIO gpio.Config `koanf:"gpio" yaml:"gpio" json:"gpio"`
}

type SimConfig struct {
	InitialTemperature float64 `koanf:"initial_temperature" yaml:"initial_temperature" json:"initial_temperature"`
	Humidity           float64 `koanf:"humidity" yaml:"humidity" json:"humidity"`
	HeatLoad           float64 `koanf:"heat_load" yaml:"heat_load" json:"heat_load"`
	CoolingRate        float64 `koanf:"cooling_rate" yaml:"cooling_rate" json:"cooling_rate"`
	AmbientTemperature float64 `koanf:"ambient_temperature" yaml:"ambient_temperature" json:"ambient_temperature"`
	WallConductance    float64 `koanf:"wall_conductance" yaml:"wall_conductance" json:"wall_conductance"`
	Distance           float64 `koanf:"distance" yaml:"distance" json:"distance"`
}

type BridgeConfig struct {
	Serial linechan.SerialConfig `koanf:"serial" yaml:"serial" json:"serial"`
	MQTT   MQTTConfig            `koanf:"mqtt" yaml:"mqtt" json:"mqtt"`
	HTTP   HTTPConfig            `koanf:"http" yaml:"http" json:"http"`
	Modbus ModbusConfig          `koanf:"modbus" yaml:"modbus" json:"modbus"`
}

type MQTTConfig struct {
	BrokerURL      string `koanf:"broker_url" yaml:"broker_url" json:"broker_url"`
	ClientID       string `koanf:"client_id" yaml:"client_id" json:"client_id"`
	TelemetryTopic string `koanf:"telemetry_topic" yaml:"telemetry_topic" json:"telemetry_topic"`
	StatusTopic    string `koanf:"status_topic" yaml:"status_topic" json:"status_topic"`
	CommandTopic   string `koanf:"command_topic" yaml:"command_topic" json:"command_topic"`
	QoS            byte   `koanf:"qos" yaml:"qos" json:"qos"`
	Username       string `koanf:"username" yaml:"username" json:"username"`
	Password       string `koanf:"password" yaml:"password" json:"password"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr" json:"addr"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr" json:"addr"`
	UnitID  uint8  `koanf:"unit_id" yaml:"unit_id" json:"unit_id"`
}

// Default matches the stock firmware: setpoint 25 °C ± 2, Kp 25, Ki 0.2,
// safety below 15 cm, 9600 baud.
func Default() Config {
	return Config{
		DeviceID: "default",
		Log:      logging.Config{Level: "info", Format: "text"},
		Loop:     LoopConfig{Period: time.Second},
		Control: ControlConfig{
			Setpoint:          25,
			Tolerance:         2,
			FanMinSpeed:       50,
			DistanceThreshold: 15,
			Kp:                25,
			Ki:                0.2,
			FaultPolicy:       control.FaultPolicyFailsafe.String(),
		},
		Encoder: EncoderConfig{DomainMin: 0, DomainMax: 100},
		Alarm:   AlarmConfig{On: 100 * time.Millisecond, Off: 100 * time.Millisecond, MaxPending: 6},
		Channel: linechan.Config{
			Kind: linechan.KindStdio,
			Serial: linechan.SerialConfig{
				Address:  "/dev/ttyACM0",
				BaudRate: 9600,
				Timeout:  time.Second,
			},
		},
		Hardware: HardwareConfig{
			Kind: HardwareSim,
			Sim: SimConfig{
				InitialTemperature: 30,
				Humidity:           45,
				HeatLoad:           0.05,
				CoolingRate:        0.2,
				AmbientTemperature: 20,
				WallConductance:    0.001,
				Distance:           100,
			},
			GPIO: gpio.DefaultConfig(),
		},
		Bridge: BridgeConfig{
			Serial: linechan.SerialConfig{
				Address:  "/dev/ttyACM0",
				BaudRate: 9600,
				Timeout:  time.Second,
			},
			MQTT: MQTTConfig{
				BrokerURL:      "tcp://localhost:1883",
				TelemetryTopic: "sensor/data",
				CommandTopic:   "command/topic",
			},
			HTTP:   HTTPConfig{Enabled: false, Addr: ":8080"},
			Modbus: ModbusConfig{Enabled: false, Addr: "127.0.0.1:1502", UnitID: 1},
		},
	}
}

// LoadConfig layers defaults, the optional file at path and FANCTL_*
// environment variables. A missing file falls back to defaults.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return Config{}, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}

var (
	// sections are the top-level keys that FANCTL_<SECTION>_<FIELD> maps into.
	sections = map[string]bool{
		"log": true, "loop": true, "control": true, "encoder": true, "alarm": true,
		"channel": true, "hardware": true, "bridge": true,
	}
	// subsections are the second-level groups per section.
	subsections = map[string]map[string]bool{
		"channel":  {"serial": true},
		"hardware": {"sim": true, "gpio": true},
		"bridge":   {"serial": true, "mqtt": true, "http": true, "modbus": true},
	}
)

// envKeyTransform maps an environment key without prefix onto a koanf path:
// CONTROL_FAN_MIN_SPEED -> control.fan_min_speed,
// BRIDGE_MQTT_BROKER_URL -> bridge.mqtt.broker_url. Keys outside a known
// section are kept as they are (DEVICE_ID -> device_id).
func envKeyTransform(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || !sections[section] {
		return key
	}
	if subs, nested := subsections[section]; nested {
		if sub, field, ok := strings.Cut(rest, "_"); ok && subs[sub] {
			return section + "." + sub + "." + field
		}
	}
	return section + "." + rest
}

var (
	ErrInvalidChannelKind  = errors.New("config: channel.kind must be stdio or serial")
	ErrInvalidHardwareKind = errors.New("config: hardware.kind must be sim or gpio")
	ErrMissingSerialPort   = errors.New("config: serial address is required")
	ErrInvalidQoS          = errors.New("config: bridge.mqtt.qos must be 0 or 1")
	ErrMissingModbusAddr   = errors.New("config: bridge.modbus.addr is required when enabled")
	ErrInvalidUnitID       = errors.New("config: bridge.modbus.unit_id must be 1..247")
	ErrInvalidMaxPending   = fmt.Errorf("config: alarm.max_pending must be at least %d", control.MinPendingPulses)
)

// Validate checks startup-only configuration. Runtime command values are
// never range-checked.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Loop.Period <= 0 {
		return fmt.Errorf("config: %w", control.ErrInvalidPeriod)
	}
	if _, err := control.ParseFaultPolicy(c.Control.FaultPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.encoderDomain().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Alarm.On <= 0 || c.Alarm.Off <= 0 {
		return fmt.Errorf("config: %w", control.ErrInvalidPulseTiming)
	}
	if c.Alarm.MaxPending < control.MinPendingPulses {
		return ErrInvalidMaxPending
	}

	switch c.Channel.Kind {
	case linechan.KindStdio:
	case linechan.KindSerial:
		if c.Channel.Serial.Address == "" {
			return ErrMissingSerialPort
		}
	default:
		return ErrInvalidChannelKind
	}

	switch c.Hardware.Kind {
	case HardwareSim, HardwareGPIO:
	default:
		return ErrInvalidHardwareKind
	}

	if c.Bridge.MQTT.QoS > 1 {
		return ErrInvalidQoS
	}
	if m := c.Bridge.Modbus; m.Enabled {
		if m.Addr == "" {
			return ErrMissingModbusAddr
		}
		if m.UnitID < 1 || m.UnitID > 247 {
			return ErrInvalidUnitID
		}
	}
	return nil
}

func (c Config) encoderDomain() control.EncoderDomain {
	return control.EncoderDomain{Min: c.Encoder.DomainMin, Max: c.Encoder.DomainMax}
}

// Settings is the initial control state.
func (c Config) Settings() control.Settings {
	cc := c.Control
	return control.Settings{
		Setpoint:          cc.Setpoint,
		Tolerance:         cc.Tolerance,
		Hysteresis:        cc.Hysteresis,
		FanMinSpeed:       cc.FanMinSpeed,
		DistanceThreshold: cc.DistanceThreshold,
		Gains:             control.Gains{Kp: cc.Kp, Ki: cc.Ki, Kd: cc.Kd},
		ManualMode:        cc.ManualMode,
		AlarmMode:         cc.AlarmMode,
	}
}

func (c Config) LoopConfig() (control.LoopConfig, error) {
	policy, err := control.ParseFaultPolicy(c.Control.FaultPolicy)
	if err != nil {
		return control.LoopConfig{}, err
	}
	return control.LoopConfig{
		Period:  c.Loop.Period,
		Encoder: c.encoderDomain(),
		Alarm: control.AlarmConfig{
			On:         c.Alarm.On,
			Off:        c.Alarm.Off,
			MaxPending: c.Alarm.MaxPending,
			Policy:     policy,
		},
	}, nil
}

func (c Config) PlantParams() sim.PlantParams {
	s := c.Hardware.Sim
	return sim.PlantParams{
		InitialTemperature: s.InitialTemperature,
		Humidity:           s.Humidity,
		Thermal: sim.Thermal{
			HeatLoad:    s.HeatLoad,
			CoolingRate: s.CoolingRate,
			Ambient:     s.AmbientTemperature,
			Conductance: s.WallConductance,
		},
		Distance: s.Distance,
		Encoder:  c.Encoder.DomainMin,
	}
}

func (c Config) MQTTConfig() bridge.MQTTConfig {
	m := c.Bridge.MQTT
	return bridge.MQTTConfig{
		DeviceID:       c.DeviceID,
		BrokerURL:      m.BrokerURL,
		ClientID:       m.ClientID,
		TelemetryTopic: m.TelemetryTopic,
		StatusTopic:    m.StatusTopic,
		CommandTopic:   m.CommandTopic,
		QoS:            m.QoS,
		Username:       m.Username,
		Password:       m.Password,
	}
}

func (c Config) ModbusConfig() bridge.ModbusConfig {
	return bridge.ModbusConfig{Addr: c.Bridge.Modbus.Addr, UnitID: c.Bridge.Modbus.UnitID}
}

// Dump writes the effective configuration as YAML with secrets masked.
func (c Config) Dump(w io.Writer) error {
	if c.Bridge.MQTT.Password != "" {
		c.Bridge.MQTT.Password = "********"
	}
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("dump config: %w", err)
	}
	return enc.Close()
}
