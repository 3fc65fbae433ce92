package devicemqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is an already-completed mqtt.Token.
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

// pendingToken never completes.
type pendingToken struct{}

func (pendingToken) Wait() bool                     { return false }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Error() error                   { return nil }
func (pendingToken) Done() <-chan struct{}          { return make(chan struct{}) }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client

	mu         sync.Mutex
	connected  bool
	connectErr error
	hang       bool
	published  []published
	handlers   map[string]mqtt.MessageHandler
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Connect() mqtt.Token {
	if f.hang {
		return pendingToken{}
	}
	f.mu.Lock()
	f.connected = f.connectErr == nil
	f.mu.Unlock()
	return doneToken{err: f.connectErr}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	f.mu.Lock()
	f.published = append(f.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	f.mu.Unlock()
	return doneToken{}
}

func (f *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	if f.handlers == nil {
		f.handlers = map[string]mqtt.MessageHandler{}
	}
	f.handlers[topic] = cb
	f.mu.Unlock()
	return doneToken{}
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func newTestPublisher(t *testing.T, fc *fakeClient, opts ...Option) *Publisher {
	t.Helper()
	p, err := NewPublisher("tcp://localhost:1883", "device-token", append([]Option{WithClient(fc)}, opts...)...)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	return p
}

func TestNewPublisher_Validation(t *testing.T) {
	if _, err := NewPublisher("", "token"); !errors.Is(err, ErrEmptyBroker) {
		t.Errorf("empty broker: err = %v, want ErrEmptyBroker", err)
	}
	if _, err := NewPublisher("tcp://localhost:1883", ""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("empty token: err = %v, want ErrEmptyToken", err)
	}
}

func TestNewPublisher_UsesTokenAsUsername(t *testing.T) {
	p, err := NewPublisher("tcp://localhost:1883", "A1_TEST_TOKEN")
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if p.opts.Username != "A1_TEST_TOKEN" {
		t.Errorf("Username = %q, want access token", p.opts.Username)
	}
	if len(p.opts.Servers) != 1 || p.opts.Servers[0].Host != "localhost:1883" {
		t.Errorf("Servers = %v", p.opts.Servers)
	}
}

func TestTelemetryPayload(t *testing.T) {
	tests := []struct {
		name string
		ts   any
		want string
	}{
		{"flat without timestamp", nil, `{"temperature":21.5}`},
		{"wrapped with millis", int64(1700000000000), `{"ts":1700000000000,"values":{"temperature":21.5}}`},
		{"wrapped with time", time.UnixMilli(1700000000123), `{"ts":1700000000123,"values":{"temperature":21.5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TelemetryPayload(map[string]any{"temperature": 21.5}, tt.ts)
			if err != nil {
				t.Fatalf("TelemetryPayload: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("payload = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPublishTelemetry(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc)
	ctx := context.Background()

	if err := p.PublishTelemetry(ctx, map[string]any{"x": 1}, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("before connect: err = %v, want ErrNotConnected", err)
	}

	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := p.PublishTelemetry(ctx, map[string]any{"x": 1}, int64(42)); err != nil {
		t.Fatalf("PublishTelemetry: %v", err)
	}
	if err := p.PublishTelemetry(ctx, nil, nil); err != nil {
		t.Fatalf("empty publish should be a no-op, got %v", err)
	}

	if len(fc.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.published))
	}
	msg := fc.published[0]
	if msg.topic != TelemetryTopic {
		t.Errorf("topic = %q, want %q", msg.topic, TelemetryTopic)
	}
	if msg.qos != 1 {
		t.Errorf("qos = %d, want 1", msg.qos)
	}
	if string(msg.payload) != `{"ts":42,"values":{"x":1}}` {
		t.Errorf("payload = %s", msg.payload)
	}
}

func TestPublishAttributes(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc, WithQoS(0))
	ctx := context.Background()
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := p.PublishAttributes(ctx, map[string]any{"firmware": "1.2.0"}); err != nil {
		t.Fatalf("PublishAttributes: %v", err)
	}
	if len(fc.published) != 1 || fc.published[0].topic != AttributesTopic || fc.published[0].qos != 0 {
		t.Fatalf("published = %+v", fc.published)
	}
	var got map[string]any
	if err := json.Unmarshal(fc.published[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["firmware"] != "1.2.0" {
		t.Errorf("firmware = %v", got["firmware"])
	}
}

func TestSubscribeAttributes(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc)

	var updates []map[string]any
	if err := p.SubscribeAttributes(context.Background(), func(u map[string]any) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("SubscribeAttributes: %v", err)
	}

	handler := fc.handlers[AttributesTopic]
	if handler == nil {
		t.Fatal("no handler registered")
	}
	handler(fc, fakeMessage{topic: AttributesTopic, payload: []byte(`{"interval":30}`)})
	handler(fc, fakeMessage{topic: AttributesTopic, payload: []byte(`not json`)})

	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0]["interval"] != float64(30) {
		t.Errorf("interval = %v", updates[0]["interval"])
	}
}

func TestConnect_Errors(t *testing.T) {
	t.Run("broker refuses", func(t *testing.T) {
		fc := &fakeClient{connectErr: errors.New("not authorized")}
		p := newTestPublisher(t, fc)
		if err := p.Connect(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		fc := &fakeClient{hang: true}
		p := newTestPublisher(t, fc, WithConnectTimeout(10*time.Millisecond))
		err := p.Connect(context.Background())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want deadline exceeded", err)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		fc := &fakeClient{hang: true}
		p := newTestPublisher(t, fc)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := p.Connect(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Close()
	if p.IsConnected() {
		t.Error("still connected after Close")
	}
}
