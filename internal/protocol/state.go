package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OnlineWindow is how recent a device timestamp must be for the device to
// count as online.
const OnlineWindow = 20 * time.Second

// DeviceType is the controller variant inferred from the unit info byte.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeHome
	DeviceTypeNet
	DeviceTypeProfi
	DeviceTypeSalt
)

// AllDeviceTypes lists every concrete device type.
var AllDeviceTypes = []DeviceType{DeviceTypeHome, DeviceTypeNet, DeviceTypeProfi, DeviceTypeSalt}

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeHome:
		return "HOME"
	case DeviceTypeNet:
		return "NET"
	case DeviceTypeProfi:
		return "PROFI"
	case DeviceTypeSalt:
		return "SALT"
	default:
		return "UNKNOWN"
	}
}

// Model returns the product name of the device type.
func (t DeviceType) Model() string {
	switch t {
	case DeviceTypeHome:
		return "ASIN AQUA Home"
	case DeviceTypeNet:
		return "ASIN AQUA NET"
	case DeviceTypeProfi:
		return "ASIN AQUA Profi"
	case DeviceTypeSalt:
		return "ASIN AQUA Salt"
	default:
		return "ASIN AQUA"
	}
}

// MarshalText implements encoding.TextMarshaler
func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *DeviceType) UnmarshalText(text []byte) error {
	parsed, err := ParseDeviceType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDeviceType parses the String form of a device type.
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HOME":
		return DeviceTypeHome, nil
	case "NET":
		return DeviceTypeNet, nil
	case "PROFI":
		return DeviceTypeProfi, nil
	case "SALT":
		return DeviceTypeSalt, nil
	case "UNKNOWN", "":
		return DeviceTypeUnknown, nil
	default:
		return DeviceTypeUnknown, fmt.Errorf("unknown device type %q", s)
	}
}

// Probe is a sensor or dosing feature installed on a unit.
type Probe uint8

const (
	ProbePH Probe = 1 << iota
	ProbeRedox
	ProbeCLF
	ProbeSanosil
	ProbeDose
)

var probeNames = []struct {
	probe Probe
	name  string
}{
	{ProbePH, "ph"},
	{ProbeRedox, "redox"},
	{ProbeCLF, "clf"},
	{ProbeSanosil, "sanosil"},
	{ProbeDose, "dose"},
}

func (p Probe) String() string {
	for _, pn := range probeNames {
		if pn.probe == p {
			return pn.name
		}
	}
	return fmt.Sprintf("probe(0x%02x)", uint8(p))
}

// ProbeSet is the set of probes a unit reports.
type ProbeSet uint8

// Has reports whether p is in the set.
func (s ProbeSet) Has(p Probe) bool {
	return uint8(s)&uint8(p) != 0
}

// With returns the set with p added.
func (s ProbeSet) With(p Probe) ProbeSet {
	return ProbeSet(uint8(s) | uint8(p))
}

// List returns the probes in a stable order.
func (s ProbeSet) List() []Probe {
	probes := make([]Probe, 0, len(probeNames))
	for _, pn := range probeNames {
		if s.Has(pn.probe) {
			probes = append(probes, pn.probe)
		}
	}
	return probes
}

func (s ProbeSet) String() string {
	names := make([]string, 0, len(probeNames))
	for _, p := range s.List() {
		names = append(names, p.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// MarshalJSON encodes the set as a list of probe names.
func (s ProbeSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(probeNames))
	for _, p := range s.List() {
		names = append(names, p.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of probe names.
func (s *ProbeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set ProbeSet
	for _, name := range names {
		found := false
		for _, pn := range probeNames {
			if pn.name == name {
				set = set.With(pn.probe)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown probe %q", name)
		}
	}
	*s = set
	return nil
}

// Direction is the polarity state of a salt electrolyzer.
type Direction int

const (
	DirectionWaiting Direction = iota
	DirectionRight
	DirectionLeft
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "waiting"
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*d = DirectionLeft
	case "right":
		*d = DirectionRight
	case "waiting":
		*d = DirectionWaiting
	default:
		return fmt.Errorf("unknown electrolyzer direction %q", text)
	}
	return nil
}

// TimeOfDay is an hour/minute pair from the device schedule.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	var h, m int
	if _, err := fmt.Sscanf(string(text), "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("invalid time of day %q: %w", text, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("invalid time of day %q", text)
	}
	t.Hour, t.Minute = h, m
	return nil
}

// DeviceState is the decoded snapshot of one frame. Pointer fields are nil
// when the value was not transmitted or does not apply to the unit.
type DeviceState struct {
	SerialNumber         uint32     `json:"serial_number"`
	Type                 DeviceType `json:"device_type"`
	Configuration        ProbeSet   `json:"configuration"`
	Timestamp            time.Time  `json:"timestamp"`
	TimestampSubstituted bool       `json:"timestamp_substituted,omitempty"`

	PH                    *float64   `json:"ph"`
	Redox                 *int       `json:"redox"`
	ClFree                *float64   `json:"cl_free"`
	ClFreeMV              *int       `json:"cl_free_mv"`
	Salinity              *float64   `json:"salinity"`
	ElectrolyzerPower     *int       `json:"electrolyzer_power"`
	ElectrolyzerActive    *bool      `json:"electrolyzer_active"`
	ElectrolyzerDirection *Direction `json:"electrolyzer_direction"`
	WaterTemperature      *float64   `json:"water_temperature"`
	AirTemperature        *float64   `json:"air_temperature"`
	WaterFlowToProbes     bool       `json:"water_flow_to_probes"`
	PumpRunning           bool       `json:"pump_running"`

	RequiredPH               *float64   `json:"required_ph"`
	RequiredRedox            *int       `json:"required_redox"`
	RequiredClFree           *float64   `json:"required_cl_free"`
	RequiredAlgicide         *int       `json:"required_algicide"`
	RequiredFloc             *int       `json:"required_floc"`
	RequiredWaterTemperature *int       `json:"required_water_temperature"`
	Start1                   *TimeOfDay `json:"start1"`
	Stop1                    *TimeOfDay `json:"stop1"`
	Start2                   *TimeOfDay `json:"start2"`
	Stop2                    *TimeOfDay `json:"stop2"`
	BackwashEveryNDays       *int       `json:"backwash_every_n_days"`
	BackwashTime             *TimeOfDay `json:"backwash_time"`
	BackwashDuration         *int       `json:"backwash_duration"`
	PoolVolume               *int       `json:"pool_volume"`
	MaxFillingTime           *int       `json:"max_filling_time"`
	DelayAfterStartup        *int       `json:"delay_after_startup"`
	DelayAfterDose           *int       `json:"delay_after_dose"`

	FlowrateChlor       *int  `json:"flowrate_chlor"`
	FlowratePHMinus     *int  `json:"flowrate_ph_minus"`
	FlowratePHPlus      *int  `json:"flowrate_ph_plus"`
	FlowrateAlgicide    *int  `json:"flowrate_algicide"`
	FlowrateFloc        *int  `json:"flowrate_floc"`
	ChlorPumpRunning    *bool `json:"chlor_pump_running"`
	PHMinusPumpRunning  *bool `json:"ph_minus_pump_running"`
	PHPlusPumpRunning   *bool `json:"ph_plus_pump_running"`
	AlgicidePumpRunning *bool `json:"algicide_pump_running"`
	FlocPumpRunning     *bool `json:"floc_pump_running"`
}

// Online reports whether the device clock is within OnlineWindow of now.
func (s *DeviceState) Online(now time.Time) bool {
	if s == nil || s.Timestamp.IsZero() {
		return false
	}
	return s.Timestamp.After(now.Add(-OnlineWindow))
}

// String returns a short debug representation of the state
func (s *DeviceState) String() string {
	if s == nil {
		return "DeviceState{<nil>}"
	}
	return fmt.Sprintf("DeviceState{serial=%d, type=%s, probes=%s, ph=%s, redox=%s, cl_free=%s, water_temp=%s, time=%s}",
		s.SerialNumber, s.Type, s.Configuration,
		FormatFloat(s.PH, 2), FormatInt(s.Redox), FormatFloat(s.ClFree, 2),
		FormatFloat(s.WaterTemperature, 1), s.Timestamp.Format(time.RFC3339))
}

// FormatFloat formats an optional value, "-" when absent.
func FormatFloat(v *float64, precision int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", precision, *v)
}

// FormatInt formats an optional value, "-" when absent.
func FormatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
