package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/logging"
	"go.uber.org/zap"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	// DefaultAvailabilityInterval is how often unit availability is re-evaluated.
	DefaultAvailabilityInterval = 10 * time.Second
)

// Config holds the broker connection and topic layout.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
	Retain          bool
	QoS             byte
	ConnectTimeout  time.Duration
}

// NameFunc returns the Home Assistant device name for a serial.
type NameFunc func(serial uint32) string

// OnlineFunc reports whether a unit is currently online.
type OnlineFunc func(serial uint32, now time.Time) bool

// Option configures a Publisher
type Option func(*Publisher)

// WithClient replaces the paho client built from Config.
func WithClient(c mqtt.Client) Option {
	return func(p *Publisher) {
		p.client = c
	}
}

// WithNames sets the device naming function.
func WithNames(fn NameFunc) Option {
	return func(p *Publisher) {
		if fn != nil {
			p.names = fn
		}
	}
}

// Publisher mirrors device snapshots to an MQTT broker in Home Assistant's
// discovery layout.
type Publisher struct {
	config Config
	client mqtt.Client
	names  NameFunc

	mu        sync.Mutex
	announced map[uint32]bool
	online    map[uint32]bool
}

// New builds a publisher. Connect must be called before events flow.
func New(config Config, opts ...Option) *Publisher {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	p := &Publisher{
		config:    config,
		names:     func(serial uint32) string { return fmt.Sprintf("Aseko %d", serial) },
		announced: make(map[uint32]bool),
		online:    make(map[uint32]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = mqtt.NewClient(p.clientOptions())
	}
	return p
}

func (p *Publisher) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetWill(BridgeAvailabilityTopic(p.config.TopicPrefix), PayloadOffline, 1, true)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn("MQTT connection lost", zap.String("broker", p.config.Broker), zap.Error(err))
	})
	return opts
}

// onConnect runs on every (re)connect. Discovery is re-sent with the next
// snapshot of each unit since the broker may have lost retained messages.
func (p *Publisher) onConnect(mqtt.Client) {
	logging.Info("Connected to MQTT broker", zap.String("broker", p.config.Broker))
	p.mu.Lock()
	clear(p.announced)
	p.mu.Unlock()
	p.publish(BridgeAvailabilityTopic(p.config.TopicPrefix), []byte(PayloadOnline), true)
}

// Connect starts the client. A broker that is down is not fatal: paho keeps
// retrying in the background.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			logging.Warn("Could not connect to MQTT broker, retrying in background",
				zap.String("broker", p.config.Broker), zap.Error(err))
		}
		return nil
	case <-time.After(p.config.ConnectTimeout):
		logging.Warn("MQTT connect still pending, retrying in background",
			zap.String("broker", p.config.Broker))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle publishes one aggregator event. It is safe to pass to
// devices.Registry.Subscribe.
func (p *Publisher) Handle(ev devices.Event) {
	state := ev.Device.State
	if state == nil {
		return
	}
	serial := state.SerialNumber

	p.mu.Lock()
	announce := !p.announced[serial] || ev.Type == devices.EventNewDevice
	p.announced[serial] = true
	wasOnline := p.online[serial]
	p.online[serial] = true
	p.mu.Unlock()

	if announce {
		if err := p.Announce(ev.Device); err != nil {
			logging.Error("Failed to publish discovery configs", zap.Uint32("serial", serial), zap.Error(err))
		}
	}
	if !wasOnline || announce {
		p.publish(AvailabilityTopic(p.config.TopicPrefix, serial), []byte(PayloadOnline), true)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		logging.Error("Failed to marshal state", zap.Uint32("serial", serial), zap.Error(err))
		return
	}
	p.publish(StateTopic(p.config.TopicPrefix, serial), payload, p.config.Retain)
}

// Announce publishes the retained discovery configs for a unit.
func (p *Publisher) Announce(d devices.Device) error {
	configs := DiscoveryConfigs(p.config.TopicPrefix, p.config.DiscoveryPrefix, d.State, p.names(d.Serial))
	var errs []error
	for _, c := range configs {
		payload, err := json.Marshal(c.Payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Topic, err))
			continue
		}
		p.publish(c.Topic, payload, true)
	}
	logging.Info("Published Home Assistant discovery",
		zap.Uint32("serial", d.Serial),
		zap.Int("entities", len(configs)),
	)
	return errors.Join(errs...)
}

// CheckAvailability publishes "offline" for units that went quiet and
// "online" for those that came back.
func (p *Publisher) CheckAvailability(online OnlineFunc, now time.Time) {
	type change struct {
		serial uint32
		online bool
	}
	var changes []change

	p.mu.Lock()
	for serial, was := range p.online {
		if is := online(serial, now); is != was {
			p.online[serial] = is
			changes = append(changes, change{serial, is})
		}
	}
	p.mu.Unlock()

	for _, c := range changes {
		payload := PayloadOffline
		if c.online {
			payload = PayloadOnline
		}
		logging.Info("Unit availability changed", zap.Uint32("serial", c.serial), zap.String("availability", payload))
		p.publish(AvailabilityTopic(p.config.TopicPrefix, c.serial), []byte(payload), true)
	}
}

// RunAvailability calls CheckAvailability every interval until ctx ends.
func (p *Publisher) RunAvailability(ctx context.Context, online OnlineFunc, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAvailabilityInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.CheckAvailability(online, now)
		}
	}
}

// Close marks every unit and the bridge offline and disconnects.
func (p *Publisher) Close() {
	p.mu.Lock()
	serials := make([]uint32, 0, len(p.online))
	for serial := range p.online {
		serials = append(serials, serial)
	}
	p.mu.Unlock()

	if p.client.IsConnected() {
		for _, serial := range serials {
			p.publishWait(AvailabilityTopic(p.config.TopicPrefix, serial), []byte(PayloadOffline), true)
		}
		p.publishWait(BridgeAvailabilityTopic(p.config.TopicPrefix), []byte(PayloadOffline), true)
	}
	p.client.Disconnect(250)
	logging.Info("MQTT publisher stopped")
}

// publish sends without blocking the caller; failures are logged when the
// token completes.
func (p *Publisher) publish(topic string, payload []byte, retain bool) {
	token := p.client.Publish(topic, p.config.QoS, retain, payload)
	go func() {
		if !token.WaitTimeout(30*time.Second) {
			logging.Warn("MQTT publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			logging.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		logging.Debug("MQTT published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	}()
}

func (p *Publisher) publishWait(topic string, payload []byte, retain bool) {
	token := p.client.Publish(topic, p.config.QoS, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		logging.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(token.Error()))
	}
}
