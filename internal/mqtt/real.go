package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-blinker/internal/events"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int

	// OnConnectionChange, if set, is called on every connect and disconnect.
	OnConnectionChange func(connected bool)

	Logger *log.Entry
}

// RealPublisher publishes to an MQTT broker. Messages published while the
// connection is down are kept in a bounded backlog and replayed on
// reconnect; a publish that fails on an open connection is returned to the
// caller and not kept. The broker publishes a retained OFFLINE will on the system
// topic if the daemon disappears.
type RealPublisher struct {
	client  paho.Client
	topics  Topics
	backlog *backlog
	log     *log.Entry
	onConn  func(bool)
	now     func() time.Time
}

// NewRealPublisher creates a publisher and starts connecting. A broker that
// is unreachable at startup is not an error; the client keeps retrying.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: no broker configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	p := &RealPublisher{
		topics:  opts.Topics,
		backlog: newBacklog(opts.BufferSize),
		log:     logger,
		onConn:  opts.OnConnectionChange,
		now:     time.Now,
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: SystemOffline})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(opts.Topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.WithField("broker", opts.Broker).Warn("mqtt broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.log.Info("mqtt connected")
	if p.onConn != nil {
		p.onConn(true)
	}
	queued := p.backlog.drain()
	if len(queued) > 0 {
		p.log.WithField("count", len(queued)).Info("replaying buffered mqtt messages")
	}
	for _, m := range queued {
		// Runs on paho's connect goroutine; publish without waiting.
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: SystemReconnected, Retained: true}); err == nil {
		p.client.Publish(p.topics.System, 1, true, payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.log.WithError(err).Warn("mqtt connection lost")
	if p.onConn != nil {
		p.onConn(false)
	}
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	return p.backlog.len()
}

// Publish sends a coordinator event at QoS 0.
func (p *RealPublisher) Publish(event events.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(message{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(message{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(m message) error {
	if !p.client.IsConnectionOpen() {
		if p.backlog.push(m) {
			p.log.WithField("dropped_total", p.backlog.droppedTotal()).Warn("mqtt backlog full, dropped oldest message")
		}
		return nil
	}
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing one second for in-flight
// messages.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
