package publish

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/protocol"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	retain  bool
	payload []byte
}

// fakeClient records publishes. Unused mqtt.Client methods panic through
// the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	messages     []message
	connected    bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, retain: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Connect() mqtt.Token {
	c.connected = true
	return doneToken{}
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.topic
	}
	return out
}

func (c *fakeClient) last(topic string) (message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].topic == topic {
			return c.messages[i], true
		}
	}
	return message{}, false
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

func testState() *protocol.DeviceState {
	ph, redox, temp := 7.2, 650, 26.5
	on := true
	return &protocol.DeviceState{
		SerialNumber:     110200612,
		Type:             protocol.DeviceTypeNet,
		Timestamp:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		PH:               &ph,
		Redox:            &redox,
		WaterTemperature: &temp,
		ChlorPumpRunning: &on,
		PumpRunning:      true,
	}
}

func testConfig() Config {
	return Config{TopicPrefix: "aseko", DiscoveryPrefix: "homeassistant", Retain: true}
}

func TestTopics(t *testing.T) {
	if got := StateTopic("aseko", 42); got != "aseko/42/state" {
		t.Errorf("StateTopic() = %q", got)
	}
	if got := AvailabilityTopic("pool", 42); got != "pool/42/availability" {
		t.Errorf("AvailabilityTopic() = %q", got)
	}
	if got := BridgeAvailabilityTopic("aseko"); got != "aseko/bridge/availability" {
		t.Errorf("BridgeAvailabilityTopic() = %q", got)
	}
}

func TestDiscoveryConfigs(t *testing.T) {
	configs := DiscoveryConfigs("aseko", "homeassistant", testState(), "Backyard")

	byKey := make(map[string]DiscoveryConfig)
	for _, c := range configs {
		parts := strings.Split(c.Topic, "/")
		if len(parts) != 5 || parts[0] != "homeassistant" || parts[2] != "aseko_110200612" || parts[4] != "config" {
			t.Errorf("unexpected discovery topic %q", c.Topic)
			continue
		}
		byKey[parts[1]+"/"+parts[3]] = c
	}

	want := []string{
		"sensor/ph", "sensor/redox", "sensor/water_temperature",
		"binary_sensor/water_flow_to_probes", "binary_sensor/pump_running", "binary_sensor/chlor_pump_running",
	}
	if len(byKey) != len(want) {
		t.Errorf("got %d entities, want %d: %v", len(byKey), len(want), configs)
	}
	for _, k := range want {
		if _, ok := byKey[k]; !ok {
			t.Errorf("missing entity %s", k)
		}
	}
	for _, absent := range []string{"sensor/cl_free", "sensor/salinity", "binary_sensor/electrolyzer_active"} {
		if _, ok := byKey[absent]; ok {
			t.Errorf("entity %s published for a value the unit does not report", absent)
		}
	}

	ph := byKey["sensor/ph"].Payload
	if ph.StateTopic != "aseko/110200612/state" || ph.AvailabilityTopic != "aseko/110200612/availability" {
		t.Errorf("ph topics = %q, %q", ph.StateTopic, ph.AvailabilityTopic)
	}
	if ph.ValueTemplate != "{{ value_json.ph }}" || ph.UniqueID != "aseko_110200612_ph" {
		t.Errorf("ph payload = %+v", ph)
	}
	if ph.Device.Name != "Backyard" || ph.Device.Model != "ASIN AQUA NET" || ph.Device.Manufacturer != Manufacturer {
		t.Errorf("device block = %+v", ph.Device)
	}

	pump := byKey["binary_sensor/pump_running"].Payload
	if pump.ValueTemplate != "{{ 'ON' if value_json.pump_running else 'OFF' }}" || pump.PayloadOn != "ON" {
		t.Errorf("pump payload = %+v", pump)
	}

	if DiscoveryConfigs("aseko", "homeassistant", nil, "x") != nil {
		t.Error("DiscoveryConfigs(nil) should be empty")
	}
}

func TestPublisherHandle(t *testing.T) {
	client := &fakeClient{}
	p := New(testConfig(), WithClient(client), WithNames(func(uint32) string { return "Pool" }))

	state := testState()
	p.Handle(devices.Event{Type: devices.EventNewDevice, Device: devices.Device{Serial: state.SerialNumber, State: state}})

	topics := client.topics()
	wantConfigs := len(DiscoveryConfigs("aseko", "homeassistant", state, "Pool"))
	if len(topics) != wantConfigs+2 {
		t.Fatalf("published %d messages, want %d: %v", len(topics), wantConfigs+2, topics)
	}
	if topics[len(topics)-1] != "aseko/110200612/state" {
		t.Errorf("last topic = %q, want state", topics[len(topics)-1])
	}

	avail, ok := client.last("aseko/110200612/availability")
	if !ok || string(avail.payload) != PayloadOnline || !avail.retain {
		t.Errorf("availability = %+v", avail)
	}

	msg, _ := client.last("aseko/110200612/state")
	var decoded map[string]any
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if decoded["ph"] != 7.2 || decoded["device_type"] != "NET" {
		t.Errorf("state payload = %s", msg.payload)
	}

	// Later updates publish only the state.
	client.reset()
	p.Handle(devices.Event{Type: devices.EventUpdate, Device: devices.Device{Serial: state.SerialNumber, State: state}})
	if got := client.topics(); len(got) != 1 || got[0] != "aseko/110200612/state" {
		t.Errorf("update published %v", got)
	}

	// A reconnect re-announces.
	p.onConnect(client)
	client.reset()
	p.Handle(devices.Event{Type: devices.EventUpdate, Device: devices.Device{Serial: state.SerialNumber, State: state}})
	if got := client.topics(); len(got) != wantConfigs+2 {
		t.Errorf("after reconnect published %d messages, want %d", len(got), wantConfigs+2)
	}
}

func TestPublisherAvailability(t *testing.T) {
	client := &fakeClient{}
	p := New(testConfig(), WithClient(client))
	state := testState()
	p.Handle(devices.Event{Type: devices.EventNewDevice, Device: devices.Device{Serial: state.SerialNumber, State: state}})
	client.reset()

	online := false
	check := func(uint32, time.Time) bool { return online }

	p.CheckAvailability(check, time.Now())
	msg, ok := client.last("aseko/110200612/availability")
	if !ok || string(msg.payload) != PayloadOffline {
		t.Fatalf("availability after going quiet = %+v", msg)
	}

	client.reset()
	p.CheckAvailability(check, time.Now())
	if len(client.topics()) != 0 {
		t.Errorf("unchanged availability republished: %v", client.topics())
	}

	online = true
	p.CheckAvailability(check, time.Now())
	if msg, _ := client.last("aseko/110200612/availability"); string(msg.payload) != PayloadOnline {
		t.Errorf("availability after coming back = %q", msg.payload)
	}
}

func TestPublisherClose(t *testing.T) {
	client := &fakeClient{connected: true}
	p := New(testConfig(), WithClient(client))
	state := testState()
	p.Handle(devices.Event{Type: devices.EventNewDevice, Device: devices.Device{Serial: state.SerialNumber, State: state}})
	client.reset()

	p.Close()

	if msg, _ := client.last("aseko/110200612/availability"); string(msg.payload) != PayloadOffline {
		t.Errorf("unit availability on close = %q", msg.payload)
	}
	if msg, _ := client.last("aseko/bridge/availability"); string(msg.payload) != PayloadOffline {
		t.Errorf("bridge availability on close = %q", msg.payload)
	}
	if !client.disconnected {
		t.Error("client not disconnected")
	}
}
