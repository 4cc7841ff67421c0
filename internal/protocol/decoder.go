package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/muurk/aseko-local/internal/logging"
	"go.uber.org/zap"
)

// Decoder converts 120-byte frames into DeviceState snapshots. The zero
// value decodes in time.Local with time.Now as the fallback clock.
type Decoder struct {
	// Location is attached to decoded timestamps.
	Location *time.Location
	// Now supplies the wall clock used when the device clock is unusable.
	Now func() time.Time
}

// NewDecoder returns a decoder using the local time zone and time.Now.
func NewDecoder() *Decoder {
	return &Decoder{
		Location: time.Local,
		Now:      time.Now,
	}
}

var defaultDecoder = NewDecoder()

// Decode decodes a frame with the default decoder.
func Decode(frame []byte) (*DeviceState, error) {
	return defaultDecoder.Decode(frame)
}

// channels lists which optional data groups a device type carries.
type channels struct {
	chlor    bool // chlorine dosing pump (byte 95)
	phPlus   bool // pH+ dosing pump (byte 97)
	phMinus  bool // pH- dosing pump (byte 99)
	saltUnit bool // salinity and electrolyzer (bytes 20, 21, 29)
	clFreeMV bool // cl_free_mv word (bytes 20-21), only with CLF
}

func channelsFor(t DeviceType) channels {
	switch t {
	case DeviceTypeHome:
		return channels{chlor: true, phPlus: true, phMinus: true, clFreeMV: true}
	case DeviceTypeNet:
		return channels{chlor: true, phPlus: true, phMinus: true, clFreeMV: true}
	case DeviceTypeProfi:
		return channels{chlor: true, phMinus: true, saltUnit: true}
	case DeviceTypeSalt:
		return channels{phPlus: true, saltUnit: true}
	case DeviceTypeUnknown:
		return channels{}
	}
	return channels{}
}

// DetectDeviceType classifies the unit info byte. The order of the checks
// matters: 0x08 (PROFI) also satisfies the NET mask, and every SALT code
// does too.
func DetectDeviceType(unitInfo byte) (DeviceType, error) {
	switch {
	case unitInfo&UnitTypeReserved != 0:
		// falls through to the error below
	case unitInfo == UnitTypeProfi:
		return DeviceTypeProfi, nil
	case unitInfo&UnitTypeSalt == UnitTypeSalt:
		return DeviceTypeSalt, nil
	case unitInfo&^UnitTypeHome == 0:
		return DeviceTypeHome, nil
	case unitInfo&UnitTypeNet != 0:
		return DeviceTypeNet, nil
	}
	return DeviceTypeUnknown, &FrameError{
		Kind:    ErrKindUnknownDeviceType,
		Message: "unrecognized unit info byte 0x" + hex.EncodeToString([]byte{unitInfo}),
		Value:   int(unitInfo),
	}
}

// DetectProbes returns the installed probes encoded in the unit info byte.
// pH is always present.
func DetectProbes(unitInfo byte) ProbeSet {
	probes := ProbeSet(0).With(ProbePH)
	if unitInfo&ProbeRedoxMissing == 0 {
		probes = probes.With(ProbeRedox)
	}
	if unitInfo&ProbeCLFMissing == 0 {
		probes = probes.With(ProbeCLF)
	}
	if unitInfo&ProbeSanosilMissing == 0 {
		probes = probes.With(ProbeSanosil)
	}
	if unitInfo&ProbeDoseMissing == 0 {
		probes = probes.With(ProbeDose)
	}
	return probes
}

// ElectrolyzerDirection decodes the electrolyzer polarity from the status
// byte. The running-left mask is tested first because it contains the
// running bit.
func ElectrolyzerDirection(status byte) Direction {
	if status&StatusElectrolyzerRunningLeft == StatusElectrolyzerRunningLeft {
		return DirectionLeft
	}
	if status&StatusElectrolyzerRunning != 0 {
		return DirectionRight
	}
	return DirectionWaiting
}

// Decode decodes one frame. It fails only when the frame has the wrong
// length or the device type cannot be determined; every other anomaly
// degrades to nil fields or a substituted timestamp.
func (d *Decoder) Decode(frame []byte) (*DeviceState, error) {
	if len(frame) != FrameSize {
		return nil, newFrameError(ErrKindMalformed, len(frame), frame,
			"frame is %d bytes, want %d", len(frame), FrameSize)
	}

	unitInfo := frame[OffsetUnitInfo]
	deviceType, err := DetectDeviceType(unitInfo)
	if err != nil {
		if fe, ok := err.(*FrameError); ok {
			fe.Frame = append([]byte(nil), frame...)
		}
		return nil, err
	}

	probes := DetectProbes(unitInfo)
	status := frame[OffsetStatus]

	state := &DeviceState{
		SerialNumber:             binary.BigEndian.Uint32(frame[OffsetSerial:]),
		Type:                     deviceType,
		Configuration:            probes,
		WaterTemperature:         scaled(NormalizeWord(word(frame, OffsetWaterTemperature)), ScaleWaterTemperature),
		WaterFlowToProbes:        frame[OffsetWaterFlow] == WaterFlowToProbes,
		PumpRunning:              status&StatusPumpRunning != 0,
		RequiredWaterTemperature: NormalizeByte(frame[OffsetRequiredWaterTemperature]),
		Start1:                   timeOfDay(frame, OffsetStart1),
		Stop1:                    timeOfDay(frame, OffsetStop1),
		Start2:                   timeOfDay(frame, OffsetStart2),
		Stop2:                    timeOfDay(frame, OffsetStop2),
		BackwashEveryNDays:       NormalizeByte(frame[OffsetBackwashEveryNDays]),
		BackwashTime:             timeOfDay(frame, OffsetBackwashTime),
		BackwashDuration:         multiplied(NormalizeByte(frame[OffsetBackwashDuration]), ScaleBackwashDuration),
		PoolVolume:               NormalizeWord(word(frame, OffsetPoolVolume)),
		MaxFillingTime:           NormalizeWord(word(frame, OffsetMaxFillingTime)),
		DelayAfterStartup:        NormalizeWord(word(frame, OffsetDelayAfterStartup)),
		DelayAfterDose:           NormalizeWord(word(frame, OffsetDelayAfterDose)),
	}
	state.Timestamp, state.TimestampSubstituted = d.timestamp(state.SerialNumber, frame)

	ch := channelsFor(deviceType)

	fillPH(state, frame)
	if probes.Has(ProbeRedox) {
		fillRedox(state, frame)
	}
	if probes.Has(ProbeCLF) {
		fillCLF(state, frame, ch)
	}
	if ch.saltUnit {
		fillSaltUnit(state, frame)
	}
	fillConsumables(state, frame, ch)

	return state, nil
}

func fillPH(state *DeviceState, frame []byte) {
	state.PH = scaled(NormalizeWord(word(frame, OffsetPH)), ScalePH)
	state.RequiredPH = scaled(NormalizeByte(frame[OffsetRequiredPH]), ScaleRequiredPH)
}

// fillRedox reads redox from one of two word slots. With a CLF probe the
// first slot holds free chlorine, so redox is always in the second.
// Otherwise the first slot is used unless it carries the sentinel.
func fillRedox(state *DeviceState, frame []byte) {
	hasCLF := state.Configuration.Has(ProbeCLF)
	if hasCLF {
		state.Redox = NormalizeWord(word(frame, OffsetRedox))
	} else if v := NormalizeWord(word(frame, OffsetClFreeOrRedox)); v != nil {
		state.Redox = v
	} else {
		state.Redox = NormalizeWord(word(frame, OffsetRedox))
	}

	// Byte 53 holds the free chlorine setpoint whenever CLF is installed,
	// which is always the case for PROFI.
	if !hasCLF {
		state.RequiredRedox = multiplied(NormalizeByte(frame[OffsetRequiredRedoxOrClFree]), ScaleRequiredRedox)
	}
}

func fillCLF(state *DeviceState, frame []byte, ch channels) {
	state.ClFree = scaled(NormalizeWord(word(frame, OffsetClFreeOrRedox)), ScaleClFree)
	state.RequiredClFree = scaled(NormalizeByte(frame[OffsetRequiredRedoxOrClFree]), ScaleRequiredClFree)
	if ch.clFreeMV {
		state.ClFreeMV = NormalizeWord(word(frame, OffsetClFreeMV))
	}
}

func fillSaltUnit(state *DeviceState, frame []byte) {
	status := frame[OffsetStatus]
	running := status&StatusElectrolyzerRunning != 0

	state.Salinity = scaled(NormalizeByte(frame[OffsetSalinity]), ScaleSalinity)
	if running {
		state.ElectrolyzerPower = NormalizeByte(frame[OffsetElectrolyzerPower])
	} else {
		state.ElectrolyzerPower = intPtr(0)
	}
	state.ElectrolyzerActive = boolPtr(running)
	direction := ElectrolyzerDirection(status)
	state.ElectrolyzerDirection = &direction
}

// fillConsumables fills dosing pump flow rates and pump states. Algicide
// and flocculant share bytes 54 and 101; bit 0x80 of byte 37 selects which.
func fillConsumables(state *DeviceState, frame []byte, ch channels) {
	status := frame[OffsetStatus]

	if ch.chlor {
		state.FlowrateChlor = NormalizeByte(frame[OffsetFlowrateChlor])
		state.ChlorPumpRunning = boolPtr(status&StatusChlorPump != 0)
	}
	if ch.phPlus {
		state.FlowratePHPlus = NormalizeByte(frame[OffsetFlowratePHPlus])
		state.PHPlusPumpRunning = boolPtr(status&StatusPHPlusPump != 0)
	}
	if ch.phMinus {
		state.FlowratePHMinus = NormalizeByte(frame[OffsetFlowratePHMinus])
		state.PHMinusPumpRunning = boolPtr(status&StatusPHMinusPump != 0)
	}

	required := NormalizeByte(frame[OffsetRequiredAlgicideOrFloc])
	flowrate := NormalizeByte(frame[OffsetFlowrateAlgicideOrFloc])
	running := boolPtr(status&StatusAlgicideOrFlocPump != 0)
	if frame[OffsetAlgicideConfig]&AlgicideConfigured != 0 {
		state.RequiredAlgicide = required
		state.FlowrateAlgicide = flowrate
		state.AlgicidePumpRunning = running
	} else {
		state.RequiredFloc = required
		state.FlowrateFloc = flowrate
		state.FlocPumpRunning = running
	}
}

// timestamp decodes the device clock, falling back to the current time
// when any component is unspecified or the date does not exist.
func (d *Decoder) timestamp(serial uint32, frame []byte) (time.Time, bool) {
	raw := frame[OffsetYear : OffsetSecond+1]
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}

	if t, ok := calendarTime(raw, loc); ok {
		return t, false
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	logging.Warn("Device clock unusable, substituting current time",
		zap.Uint32("serial", serial),
		zap.String("timestamp_hex", hex.EncodeToString(raw)),
	)
	return now().In(loc), true
}

func calendarTime(raw []byte, loc *time.Location) (time.Time, bool) {
	for _, b := range raw {
		if b == UnspecifiedByte {
			return time.Time{}, false
		}
	}

	year := YearOffset + int(raw[0])
	month, day := int(raw[1]), int(raw[2])
	hour, minute, second := int(raw[3]), int(raw[4]), int(raw[5])
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject that.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func timeOfDay(frame []byte, offset int) *TimeOfDay {
	hour, minute := frame[offset], frame[offset+1]
	if hour == UnspecifiedByte {
		return nil
	}
	if hour > 23 || minute > 59 {
		logging.Debug("Ignoring invalid time of day",
			zap.Int("offset", offset),
			zap.Uint8("hour", hour),
			zap.Uint8("minute", minute),
		)
		return nil
	}
	return &TimeOfDay{Hour: int(hour), Minute: int(minute)}
}

func word(frame []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(frame[offset : offset+2])
}
