package publish

import (
	"fmt"

	"github.com/muurk/aseko-local/internal/protocol"
)

// Manufacturer is reported in every Home Assistant device block.
const Manufacturer = "ASEKO"

const (
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
)

// DeviceInfo is the Home Assistant device registry block.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SerialNumber string   `json:"serial_number"`
}

// DiscoveryPayload is a retained Home Assistant MQTT discovery config.
type DiscoveryPayload struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	ObjectID          string     `json:"object_id"`
	StateTopic        string     `json:"state_topic"`
	ValueTemplate     string     `json:"value_template"`
	AvailabilityTopic string     `json:"availability_topic"`
	DeviceClass       string     `json:"device_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	PayloadOn         string     `json:"payload_on,omitempty"`
	PayloadOff        string     `json:"payload_off,omitempty"`
	Device            DeviceInfo `json:"device"`
}

// DiscoveryConfig pairs a payload with the topic it is published on.
type DiscoveryConfig struct {
	Topic   string
	Payload DiscoveryPayload
}

type entity struct {
	component   string
	key         string // JSON field in the state payload
	name        string
	deviceClass string
	unit        string
	stateClass  string
	category    string
	icon        string
	present     func(*protocol.DeviceState) bool
}

const (
	measurement = "measurement"
	diagnostic  = "diagnostic"
)

func always(*protocol.DeviceState) bool { return true }

var entities = []entity{
	{component: ComponentSensor, key: "ph", name: "pH", deviceClass: "ph", stateClass: measurement,
		present: func(s *protocol.DeviceState) bool { return s.PH != nil }},
	{component: ComponentSensor, key: "redox", name: "Redox", deviceClass: "voltage", unit: "mV", stateClass: measurement,
		present: func(s *protocol.DeviceState) bool { return s.Redox != nil }},
	{component: ComponentSensor, key: "cl_free", name: "Free chlorine", unit: "mg/L", stateClass: measurement, icon: "mdi:flask",
		present: func(s *protocol.DeviceState) bool { return s.ClFree != nil }},
	{component: ComponentSensor, key: "cl_free_mv", name: "Free chlorine probe", deviceClass: "voltage", unit: "mV", stateClass: measurement, category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.ClFreeMV != nil }},
	{component: ComponentSensor, key: "salinity", name: "Salinity", unit: "g/L", stateClass: measurement, icon: "mdi:shaker",
		present: func(s *protocol.DeviceState) bool { return s.Salinity != nil }},
	{component: ComponentSensor, key: "electrolyzer_power", name: "Electrolyzer power", unit: "g/h", stateClass: measurement, icon: "mdi:lightning-bolt",
		present: func(s *protocol.DeviceState) bool { return s.ElectrolyzerPower != nil }},
	{component: ComponentSensor, key: "water_temperature", name: "Water temperature", deviceClass: "temperature", unit: "°C", stateClass: measurement,
		present: func(s *protocol.DeviceState) bool { return s.WaterTemperature != nil }},
	{component: ComponentSensor, key: "air_temperature", name: "Air temperature", deviceClass: "temperature", unit: "°C", stateClass: measurement,
		present: func(s *protocol.DeviceState) bool { return s.AirTemperature != nil }},

	{component: ComponentSensor, key: "required_ph", name: "Required pH", deviceClass: "ph", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.RequiredPH != nil }},
	{component: ComponentSensor, key: "required_redox", name: "Required redox", deviceClass: "voltage", unit: "mV", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.RequiredRedox != nil }},
	{component: ComponentSensor, key: "required_cl_free", name: "Required free chlorine", unit: "mg/L", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.RequiredClFree != nil }},
	{component: ComponentSensor, key: "required_water_temperature", name: "Required water temperature", deviceClass: "temperature", unit: "°C", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.RequiredWaterTemperature != nil }},
	{component: ComponentSensor, key: "pool_volume", name: "Pool volume", deviceClass: "volume", unit: "m³", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.PoolVolume != nil }},

	{component: ComponentSensor, key: "flowrate_chlor", name: "Chlorine pump flow rate", unit: "mL/min", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.FlowrateChlor != nil }},
	{component: ComponentSensor, key: "flowrate_ph_minus", name: "pH- pump flow rate", unit: "mL/min", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.FlowratePHMinus != nil }},
	{component: ComponentSensor, key: "flowrate_ph_plus", name: "pH+ pump flow rate", unit: "mL/min", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.FlowratePHPlus != nil }},
	{component: ComponentSensor, key: "flowrate_algicide", name: "Algicide pump flow rate", unit: "mL/min", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.FlowrateAlgicide != nil }},
	{component: ComponentSensor, key: "flowrate_floc", name: "Flocculant pump flow rate", unit: "mL/min", category: diagnostic,
		present: func(s *protocol.DeviceState) bool { return s.FlowrateFloc != nil }},

	{component: ComponentBinarySensor, key: "water_flow_to_probes", name: "Water flow", deviceClass: "running", present: always},
	{component: ComponentBinarySensor, key: "pump_running", name: "Filtration pump", deviceClass: "running", present: always},
	{component: ComponentBinarySensor, key: "electrolyzer_active", name: "Electrolyzer", deviceClass: "running",
		present: func(s *protocol.DeviceState) bool { return s.ElectrolyzerActive != nil }},
	{component: ComponentBinarySensor, key: "chlor_pump_running", name: "Chlorine pump", deviceClass: "running",
		present: func(s *protocol.DeviceState) bool { return s.ChlorPumpRunning != nil }},
	{component: ComponentBinarySensor, key: "ph_minus_pump_running", name: "pH- pump", deviceClass: "running",
		present: func(s *protocol.DeviceState) bool { return s.PHMinusPumpRunning != nil }},
	{component: ComponentBinarySensor, key: "ph_plus_pump_running", name: "pH+ pump", deviceClass: "running",
		present: func(s *protocol.DeviceState) bool { return s.PHPlusPumpRunning != nil }},
	{component: ComponentBinarySensor, key: "algicide_pump_running", name: "Algicide pump", deviceClass: "running",
		present: func(s *protocol.DeviceState) bool { return s.AlgicidePumpRunning != nil }},
	{component: ComponentBinarySensor, key: "floc_pump_running", name: "Flocculant pump", deviceClass: "running",
		present: func(s *protocol.DeviceState) bool { return s.FlocPumpRunning != nil }},
}

// StateTopic is where the full snapshot JSON for serial is published.
func StateTopic(prefix string, serial uint32) string {
	return fmt.Sprintf("%s/%d/state", prefix, serial)
}

// AvailabilityTopic carries "online"/"offline" for one unit.
func AvailabilityTopic(prefix string, serial uint32) string {
	return fmt.Sprintf("%s/%d/availability", prefix, serial)
}

// BridgeAvailabilityTopic carries the bridge's own last will.
func BridgeAvailabilityTopic(prefix string) string {
	return prefix + "/bridge/availability"
}

func nodeID(serial uint32) string {
	return fmt.Sprintf("aseko_%d", serial)
}

// DiscoveryConfigs returns one config per entity the unit reports. Values
// the unit does not transmit get no entity. name is the device name shown
// in Home Assistant.
func DiscoveryConfigs(prefix, discoveryPrefix string, state *protocol.DeviceState, name string) []DiscoveryConfig {
	if state == nil {
		return nil
	}
	node := nodeID(state.SerialNumber)
	device := DeviceInfo{
		Identifiers:  []string{node},
		Name:         name,
		Model:        state.Type.Model(),
		Manufacturer: Manufacturer,
		SerialNumber: fmt.Sprintf("%d", state.SerialNumber),
	}
	stateTopic := StateTopic(prefix, state.SerialNumber)
	availability := AvailabilityTopic(prefix, state.SerialNumber)

	var out []DiscoveryConfig
	for _, e := range entities {
		if !e.present(state) {
			continue
		}
		p := DiscoveryPayload{
			Name:              e.name,
			UniqueID:          node + "_" + e.key,
			ObjectID:          node + "_" + e.key,
			StateTopic:        stateTopic,
			ValueTemplate:     "{{ value_json." + e.key + " }}",
			AvailabilityTopic: availability,
			DeviceClass:       e.deviceClass,
			UnitOfMeasurement: e.unit,
			StateClass:        e.stateClass,
			EntityCategory:    e.category,
			Icon:              e.icon,
			Device:            device,
		}
		if e.component == ComponentBinarySensor {
			p.ValueTemplate = "{{ 'ON' if value_json." + e.key + " else 'OFF' }}"
			p.PayloadOn = "ON"
			p.PayloadOff = "OFF"
		}
		out = append(out, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, e.component, node, e.key),
			Payload: p,
		})
	}
	return out
}
