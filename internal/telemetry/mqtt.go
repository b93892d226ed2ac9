package telemetry

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/blackknights-robotics/motioncore/internal/monitoring"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
)

// MQTTConfig describes the broker connection for off-robot telemetry.
type MQTTConfig struct {
	Broker   string
	Port     int
	UseTLS   bool
	Username string
	Password string
	// Topic is prefixed to every key, e.g. "robot/telemetry".
	Topic string
	// ClientID defaults to motioncore-<unix time>.
	ClientID string
}

// mqttClient is the subset of mqtt.Client used for publishing.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher sends each value as a QoS 0 message on <topic>/<key>.
// Publishing never waits for the broker; values are dropped while the client
// is disconnected.
type MQTTPublisher struct {
	client mqttClient
	topic  string
	log    *monitoring.Logger

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// DialMQTT connects to the broker and returns a publisher.
func DialMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	log := monitoring.Tagged("mqtt")

	opts := mqtt.NewClientOptions()
	protocol := "tcp"
	if cfg.UseTLS {
		protocol = "tls"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", protocol, cfg.Broker, cfg.Port)
	opts.AddBroker(brokerURL)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("motioncore-%d", time.Now().Unix())
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) { log.Infof("connected to %s", brokerURL) }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warnf("connection lost: %v (will auto-reconnect)", err)
	}

	client := mqtt.NewClient(opts)
	log.Infof("connecting to %s as %s", brokerURL, clientID)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}
	return newMQTTPublisher(client, cfg.Topic), nil
}

func newMQTTPublisher(client mqttClient, topic string) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		log:    monitoring.Tagged("mqtt"),
	}
}

// Topic returns the full topic for key.
func (p *MQTTPublisher) Topic(key string) string {
	if p.topic == "" {
		return key
	}
	return p.topic + "/" + key
}

// Dropped returns how many values were discarded while disconnected or
// closed.
func (p *MQTTPublisher) Dropped() uint64 { return p.dropped.Load() }

func (p *MQTTPublisher) Publish(key string, v float64) {
	p.send(key, strconv.FormatFloat(v, 'g', -1, 64))
}

func (p *MQTTPublisher) PublishArray(key string, v []float64) {
	p.send(key, nettable.EncodeValue(v))
}

func (p *MQTTPublisher) send(key, payload string) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || !p.client.IsConnected() {
		p.dropped.Add(1)
		return
	}
	p.client.Publish(p.Topic(key), 0, false, payload)
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	p.client.Disconnect(250)
	p.log.Infof("disconnected, %d values dropped", p.dropped.Load())
	return nil
}
