// Package devicemqtt publishes device telemetry and client attributes over
// the ThingsBoard device MQTT API, authenticating with a device access
// token.
package devicemqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tj-smith47/thingsboard-go"
)

// Device API topics.
const (
	TelemetryTopic  = "v1/devices/me/telemetry"
	AttributesTopic = "v1/devices/me/attributes"
)

// Sentinel errors returned by NewPublisher, Dial and the publish methods.
var (
	ErrEmptyBroker  = errors.New("devicemqtt: broker cannot be empty")
	ErrEmptyToken   = errors.New("devicemqtt: access token cannot be empty")
	ErrNotConnected = errors.New("devicemqtt: not connected")
)

// Publisher is a connection to the broker on behalf of one device.
type Publisher struct {
	client  mqtt.Client
	opts    *mqtt.ClientOptions
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithQoS sets the publish quality of service (default 1).
func WithQoS(qos byte) Option {
	return func(p *Publisher) {
		p.qos = qos
	}
}

// WithClientID sets the MQTT client id. The default is chosen by the broker.
func WithClientID(id string) Option {
	return func(p *Publisher) {
		p.opts.SetClientID(id)
	}
}

// WithConnectTimeout bounds the initial connect (default 10s).
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.timeout = d
		p.opts.SetConnectTimeout(d)
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger == nil {
			logger = zap.NewNop()
		}
		p.logger = logger
	}
}

// WithClient supplies a ready-made paho client instead of building one.
func WithClient(client mqtt.Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// NewPublisher prepares a publisher for the device whose access token is
// accessToken. broker is a URL such as tcp://demo.thingsboard.io:1883.
// Call Connect before publishing.
func NewPublisher(broker, accessToken string, opts ...Option) (*Publisher, error) {
	if broker == "" {
		return nil, ErrEmptyBroker
	}
	if accessToken == "" {
		return nil, ErrEmptyToken
	}

	p := &Publisher{
		opts:    mqtt.NewClientOptions(),
		qos:     1,
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
	}
	p.opts.AddBroker(broker)
	p.opts.SetUsername(accessToken)
	p.opts.SetCleanSession(true)
	p.opts.SetAutoReconnect(true)
	p.opts.SetConnectTimeout(p.timeout)
	p.opts.SetMaxReconnectInterval(time.Minute)

	for _, opt := range opts {
		opt(p)
	}

	p.opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("mqtt_connected", zap.String("broker", broker))
	})
	p.opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("mqtt_connection_lost", zap.String("broker", broker), zap.Error(err))
	})

	if p.client == nil {
		p.client = mqtt.NewClient(p.opts)
	}
	return p, nil
}

// Dial creates a publisher and connects it.
func Dial(ctx context.Context, broker, accessToken string, opts ...Option) (*Publisher, error) {
	p, err := NewPublisher(broker, accessToken, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Connect opens the connection to the broker.
func (p *Publisher) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect(), p.timeout); err != nil {
		return fmt.Errorf("devicemqtt: connect: %w", err)
	}
	return nil
}

// IsConnected reports whether the connection is up.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

// TelemetryPayload encodes values the way the device API expects: wrapped
// with "ts" when ts is set, flat otherwise.
func TelemetryPayload(values map[string]any, ts any) ([]byte, error) {
	body, err := thingsboard.NewTelemetryRecord(values, ts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(body)
}

// PublishTelemetry sends values as one telemetry record. ts may be nil, a
// time or epoch milliseconds. Publishing nothing is a no-op.
func (p *Publisher) PublishTelemetry(ctx context.Context, values map[string]any, ts any) error {
	if len(values) == 0 {
		return nil
	}
	payload, err := TelemetryPayload(values, ts)
	if err != nil {
		return err
	}
	return p.publish(ctx, TelemetryTopic, payload)
}

// PublishAttributes reports client-side attributes.
func (p *Publisher) PublishAttributes(ctx context.Context, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("devicemqtt: encode attributes: %w", err)
	}
	return p.publish(ctx, AttributesTopic, payload)
}

// SubscribeAttributes calls handler with every shared attribute update the
// server pushes to the device.
func (p *Publisher) SubscribeAttributes(ctx context.Context, handler func(map[string]any)) error {
	token := p.client.Subscribe(AttributesTopic, p.qos, func(_ mqtt.Client, msg mqtt.Message) {
		var update map[string]any
		if err := json.Unmarshal(msg.Payload(), &update); err != nil {
			p.logger.Warn("mqtt_bad_attribute_update", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		handler(update)
	})
	if err := wait(ctx, token, 0); err != nil {
		return fmt.Errorf("devicemqtt: subscribe %s: %w", AttributesTopic, err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	if err := wait(ctx, p.client.Publish(topic, p.qos, false, payload), 0); err != nil {
		return fmt.Errorf("devicemqtt: publish %s: %w", topic, err)
	}
	p.logger.Debug("mqtt_publish", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// Close disconnects, allowing in-flight messages a moment to finish.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// wait blocks until token completes, ctx ends or timeout (if positive) passes.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return context.DeadlineExceeded
	}
}
