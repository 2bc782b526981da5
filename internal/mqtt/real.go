package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 100

// Options configure a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	BufferSize     int
	ConnectTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	logger *zap.SugaredLogger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. An
// unreachable broker is not an error: the client keeps retrying and
// messages are buffered until it connects.
func NewRealPublisher(opts Options, logger *zap.SugaredLogger) (*RealPublisher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.ClientID == "" {
		opts.ClientID = "pwm-recorder"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	p := &RealPublisher{
		logger: logger,
		buf:    newRingBuffer(opts.BufferSize, logger),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		logger.Warnf("mqtt: broker %s not reachable yet, buffering until connected", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	if len(msgs) == 0 {
		p.logger.Infof("mqtt: connected")
		return
	}
	p.logger.Infof("mqtt: connected, replaying %d buffered message(s)", len(msgs))
	// Handlers must not block on tokens.
	go func() {
		for _, m := range msgs {
			if err := p.send(m); err != nil {
				p.logger.Warnf("mqtt: replay to %s failed: %v", m.topic, err)
			}
		}
	}()
}

// Publish sends a session event to the MQTT broker.
func (p *RealPublisher) Publish(event SessionEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: session outcomes should survive a flaky link.
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(m)
		return nil
	}
	if err := p.send(m); err != nil {
		p.enqueue(m)
		return err
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(m bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.push(m)
	p.logger.Debugf("mqtt: offline, buffered message for %s (%d queued)", m.topic, p.buf.len())
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the client currently has a connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second grace
	return nil
}
