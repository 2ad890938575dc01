package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultBufferSize is how many messages are held while the broker is
// unreachable.
const DefaultBufferSize = 100

// Options configure a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Prefix     string
	Username   string
	Password   string
	BufferSize int
	Thresholds logic.Thresholds

	// OnCommand receives commands from the command topic. It is called
	// from the paho dispatch goroutine and must not block.
	OnCommand func(logic.Command)

	// OnConnectionChange is told when the connection goes up or down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker and subscribes to the
// command topic. Messages published while disconnected are buffered and
// replayed in order after reconnection.
type RealPublisher struct {
	client paho.Client
	topics Topics
	opts   Options

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // at least one successful connection
}

func newPublisher(opts Options) *RealPublisher {
	if opts.ClientID == "" {
		opts.ClientID = "garage-door"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &RealPublisher{
		topics: NewTopics(opts.Prefix),
		opts:   opts,
		buf:    newRingBuffer(opts.BufferSize),
	}
}

// NewRealPublisher creates a publisher connected to the given broker. If
// the broker does not answer within the connect timeout the publisher is
// still returned; it buffers until the background retry succeeds.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	p := newPublisher(opts)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(p.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Topics returns the topics in use.
func (p *RealPublisher) Topics() Topics {
	return p.topics
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	pending := p.buf.drain()
	p.mu.Unlock()

	log.Printf("mqtt: connected, subscribing to %s", p.topics.Command)
	if p.opts.OnCommand != nil {
		// QoS 1 so a command sent while the link flaps is not lost.
		c.Subscribe(p.topics.Command, 1, p.handleCommand)
	}
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}

	// Paho handlers must not wait on tokens.
	go func() {
		if len(pending) > 0 {
			log.Printf("mqtt: replaying %d buffered messages", len(pending))
		}
		for _, m := range pending {
			c.Publish(m.topic, m.qos, m.retained, m.payload)
		}
		if reconnect {
			payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
			c.Publish(p.topics.System, 1, false, payload)
		}
	}()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}

func (p *RealPublisher) handleCommand(_ paho.Client, msg paho.Message) {
	if msg.Retained() {
		// A stale retained command would re-run on every reconnect.
		log.Printf("mqtt: ignoring retained command %q", msg.Payload())
		return
	}
	cmd, ok := ParseCommand(msg.Payload())
	if !ok {
		log.Printf("mqtt: unknown command %q", msg.Payload())
		return
	}
	log.Printf("mqtt: command %s", cmd)
	p.opts.OnCommand(cmd)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Publish sends a door event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event, p.opts.Thresholds)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(p.topics.Events, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// IsConnected reports whether the broker link is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for reconnection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
