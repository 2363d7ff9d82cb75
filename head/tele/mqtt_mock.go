package tele

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

// MqttMock is in-process mqtt.Client. Published messages go to Pub.
type MqttMock struct {
	Opt *mqtt.ClientOptions
	Pub chan MockMsg

	mu   sync.Mutex
	subs []MockSub
}
type MockSub struct {
	Pattern string
	Qos     byte
	Handler mqtt.MessageHandler
}

var _ mqtt.Client = &MqttMock{}

func NewMqttMock() *MqttMock {
	return &MqttMock{
		Pub:  make(chan MockMsg, 32),
		subs: make([]MockSub, 0, 16),
	}
}

func (self *MqttMock) MockNew(opt *mqtt.ClientOptions) mqtt.Client {
	self.Opt = opt
	return self
}

func (self *MqttMock) findSub(topic string) (MockSub, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	for _, sub := range self.subs {
		// exact match is enough for tests
		if topic == sub.Pattern {
			return sub, true
		}
	}
	return MockSub{}, false
}

// TestPublish delivers message to subscriber, waiting for subscription to appear.
func (self *MqttMock) TestPublish(t testing.TB, topic string, payload []byte) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		sub, ok := self.findSub(topic)
		if ok {
			msg := MockMsg{T: topic, P: payload}
			if sub.Qos > 0 {
				msg.acked = make(chan struct{})
			}
			sub.Handler(self, msg)
			if sub.Qos > 0 {
				select {
				case <-msg.acked:
				default:
					t.Errorf("message='%x' handled without Ack()", payload)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("not subscribed for topic=%s", topic)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestReceive returns next message published to topic, skipping others.
func (self *MqttMock) TestReceive(t testing.TB, topic string, timeout time.Duration) MockMsg {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-self.Pub:
			if msg.T == topic {
				return msg
			}
		case <-deadline:
			t.Fatalf("timeout waiting publish topic=%s", topic)
			return MockMsg{}
		}
	}
}

func (self *MqttMock) Disconnect(uint)        {}
func (self *MqttMock) IsConnected() bool      { return true }
func (self *MqttMock) IsConnectionOpen() bool { return true }

func (self *MqttMock) Connect() mqtt.Token { return mockToken{nil} }

func (self *MqttMock) Publish(topic string, qos byte, retain bool, payload interface{}) mqtt.Token {
	b, ok := payload.([]byte)
	if !ok {
		return mockToken{errors.NotSupportedf("mock publish payload type %T", payload)}
	}
	msg := MockMsg{T: topic, P: append([]byte(nil), b...), retained: retain}
	select {
	case self.Pub <- msg:
		return mockToken{nil}
	default:
		return mockToken{errors.Timeoutf("mock publish buffer full")}
	}
}

func (self *MqttMock) Subscribe(pattern string, qos byte, handler mqtt.MessageHandler) mqtt.Token {
	self.mu.Lock()
	self.subs = append(self.subs, MockSub{pattern, qos, handler})
	self.mu.Unlock()
	return mockToken{nil}
}

func (self *MqttMock) AddRoute(string, mqtt.MessageHandler) { panic("not implemented") }

func (self *MqttMock) OptionsReader() mqtt.ClientOptionsReader {
	panic("not implemented")
}

func (self *MqttMock) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (self *MqttMock) Unsubscribe(...string) mqtt.Token { panic("not implemented") }

type mockToken struct{ error }

func (tok mockToken) Error() error { return tok.error }
func (tok mockToken) Wait() bool   { return !errors.IsTimeout(tok.error) }
func (tok mockToken) WaitTimeout(time.Duration) bool {
	return !errors.IsTimeout(tok.error)
}

type MockMsg struct {
	T        string
	P        []byte
	retained bool
	acked    chan struct{}
}

func (msg MockMsg) Ack() {
	if msg.acked != nil {
		close(msg.acked)
	}
}

func (msg MockMsg) Duplicate() bool   { return false }
func (msg MockMsg) MessageID() uint16 { return 0 }
func (msg MockMsg) Payload() []byte   { return msg.P }
func (msg MockMsg) Qos() byte         { return 0 }
func (msg MockMsg) Retained() bool    { return msg.retained }
func (msg MockMsg) Topic() string     { return msg.T }
