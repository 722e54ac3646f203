package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Agrid-Dev/fanctl/internal/ports"
	"github.com/Agrid-Dev/fanctl/internal/telemetry"
)

type MQTTConfig struct {
	DeviceID string

	BrokerURL string
	ClientID  string

	TelemetryTopic string
	StatusTopic    string // defaults to TelemetryTopic
	CommandTopic   string

	QoS byte

	Username string
	Password string
}

// MQTTRelay publishes controller lines and writes inbound commands to the
// controller's line channel.
type MQTTRelay struct {
	cfg   MQTTConfig
	lines ports.LineWriter
	log   *slog.Logger

	client mqtt.Client
}

func NewMQTTRelay(lines ports.LineWriter, cfg MQTTConfig, log *slog.Logger) (*MQTTRelay, error) {
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "fanbridge-" + cfg.DeviceID
	}
	if cfg.TelemetryTopic == "" {
		cfg.TelemetryTopic = "sensor/data"
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = cfg.TelemetryTopic
	}
	if cfg.CommandTopic == "" {
		cfg.CommandTopic = "command/topic"
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	r := &MQTTRelay{cfg: cfg, lines: lines, log: log}
	r.client = mqtt.NewClient(r.clientOptions())
	return r, nil
}

func (r *MQTTRelay) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(r.cfg.BrokerURL).
		SetClientID(r.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if r.cfg.Username != "" {
		opts.SetUsername(r.cfg.Username)
		opts.SetPassword(r.cfg.Password)
	}

	// Resubscribe on every (re)connect.
	opts.OnConnect = func(cl mqtt.Client) {
		token := cl.Subscribe(r.cfg.CommandTopic, r.cfg.QoS, r.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			r.log.Error("mqtt subscribe failed", "topic", r.cfg.CommandTopic, "err", err)
			return
		}
		r.log.Info("mqtt connected", "broker", r.cfg.BrokerURL, "command_topic", r.cfg.CommandTopic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		r.log.Warn("mqtt connection lost", "err", err)
	}
	return opts
}

// Run connects and blocks until ctx is cancelled.
func (r *MQTTRelay) Run(ctx context.Context) error {
	tok := r.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	<-ctx.Done()
	r.client.Disconnect(250)
	return ctx.Err()
}

// Observe publishes records on the telemetry topic and tagged lines on the
// status topic.
func (r *MQTTRelay) Observe(line string) {
	topic := r.cfg.TelemetryTopic
	if kind, _ := telemetry.Classify(line); kind != telemetry.KindRecord {
		topic = r.cfg.StatusTopic
	}
	if !r.client.IsConnected() {
		r.log.Debug("mqtt not connected, line dropped", "topic", topic)
		return
	}
	r.client.Publish(topic, r.cfg.QoS, false, line)
}

func (r *MQTTRelay) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if msg.Topic() != r.cfg.CommandTopic {
		return
	}
	cmd, err := CheckCommand(string(msg.Payload()))
	if err != nil {
		r.log.Warn("mqtt command rejected", "err", err)
		return
	}
	if err := r.lines.WriteLine(cmd); err != nil {
		r.log.Error("forward command failed", "command", cmd, "err", err)
		return
	}
	r.log.Debug("command forwarded", "command", cmd)
}
