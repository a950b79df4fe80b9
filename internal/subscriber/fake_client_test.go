package subscriber_test

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

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

// fakeClient stands in for the broker connection. Tests drive the option callbacks directly.
type fakeClient struct {
	mu           sync.Mutex
	opts         *mqtt.ClientOptions
	connected    bool
	handler      mqtt.MessageHandler
	topics       []string
	subscribeErr error
	disconnects  int

	// afterSubscribe runs once the subscription is recorded, before the token is returned.
	afterSubscribe func()
}

func newFakeClient() (*fakeClient, func(*mqtt.ClientOptions) mqtt.Client) {
	f := &fakeClient{}
	return f, func(o *mqtt.ClientOptions) mqtt.Client {
		f.opts = o
		return f
	}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Connect() mqtt.Token { return doneToken{} }

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) Publish(string, byte, bool, interface{}) mqtt.Token { return doneToken{} }

func (f *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.mu.Unlock()
		return doneToken{err: err}
	}
	f.topics = append(f.topics, topic)
	f.handler = cb
	hook := f.afterSubscribe
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return doneToken{}
}

func (f *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{err: errors.New("not supported")}
}

func (f *fakeClient) Unsubscribe(...string) mqtt.Token { return doneToken{} }

func (f *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// connect simulates a successful connection attempt followed by OnConnect.
func (f *fakeClient) connect() {
	if f.opts.OnConnectAttempt != nil && len(f.opts.Servers) > 0 {
		f.opts.OnConnectAttempt(f.opts.Servers[0], nil)
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.opts.OnConnect(f)
}

func (f *fakeClient) dropConnection(cause error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.opts.OnConnectionLost(f, cause)
}

func (f *fakeClient) reconnecting() {
	f.opts.OnReconnecting(f, f.opts)
}

func (f *fakeClient) deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(f, fakeMessage{topic: topic, payload: payload})
}
