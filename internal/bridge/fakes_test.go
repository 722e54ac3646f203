package bridge

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeToken struct {
	err error
}

func (t fakeToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func (t fakeToken) Wait() bool                       { return true }
func (t fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t fakeToken) Error() error                     { return t.err }

type publishCall struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

type fakeClient struct {
	disconnected bool
	connectErr   error
	publishes    []publishCall
}

func (c *fakeClient) IsConnected() bool      { return !c.disconnected }
func (c *fakeClient) IsConnectionOpen() bool { return !c.disconnected }
func (c *fakeClient) Connect() mqtt.Token    { return fakeToken{err: c.connectErr} }
func (c *fakeClient) Disconnect(_ uint)      { c.disconnected = true }
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var s string
	switch v := payload.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	}
	c.publishes = append(c.publishes, publishCall{topic: topic, qos: qos, retain: retained, payload: s})
	return fakeToken{}
}
func (c *fakeClient) Subscribe(_ string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) Unsubscribe(_ ...string) mqtt.Token       { return fakeToken{} }
func (c *fakeClient) AddRoute(_ string, _ mqtt.MessageHandler) {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader  { return mqtt.ClientOptionsReader{} }

// lineRecorder is a ports.LineWriter.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (l *lineRecorder) WriteLine(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.lines = append(l.lines, s)
	return nil
}

func (l *lineRecorder) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

var errSerialGone = errors.New("serial port gone")
