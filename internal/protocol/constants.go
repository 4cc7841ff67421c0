package protocol

// Frame layout
const (
	FrameSize  = 120 // Every device message is exactly 120 bytes
	BlockSize  = 40  // A frame is three 40-byte sub-blocks
	YearOffset = 2000
)

// Sentinel values meaning "not specified"
const (
	UnspecifiedByte = 0xFF
	UnspecifiedWord = 0xFFFF
)

// Structural markers. Each sub-block repeats the serial number and carries
// its block number at byte 5 of the block (1, 3, 2 in wire order).
const (
	MarkerOffsetBlock1 = 5
	MarkerOffsetBlock2 = 45
	MarkerOffsetBlock3 = 85

	MarkerBlock1 = 0x01
	MarkerBlock2 = 0x03
	MarkerBlock3 = 0x02

	IdentityLength = 4
)

// Byte offsets of decoded fields
const (
	OffsetSerial                   = 0   // u32
	OffsetUnitInfo                 = 4   // device-type / probe bitfield
	OffsetYear                     = 6   // +YearOffset
	OffsetMonth                    = 7
	OffsetDay                      = 8
	OffsetHour                     = 9
	OffsetMinute                   = 10
	OffsetSecond                   = 11
	OffsetPH                       = 14  // word, /100
	OffsetClFreeOrRedox            = 16  // word, cl_free /100 or redox mV
	OffsetRedox                    = 18  // word, alternate redox slot
	OffsetSalinity                 = 20  // byte, /10 (SALT, PROFI)
	OffsetClFreeMV                 = 20  // word, overlaps salinity (HOME, NET with CLF)
	OffsetElectrolyzerPower        = 21  // byte (SALT, PROFI)
	OffsetWaterTemperature         = 25  // word, /10
	OffsetWaterFlow                = 28  // 0xAA when water flows to the probes
	OffsetStatus                   = 29  // bitfield, see Status* masks
	OffsetAlgicideConfig           = 37  // AlgicideConfigured bit
	OffsetRequiredPH               = 52  // byte, /10
	OffsetRequiredRedoxOrClFree    = 53  // byte, redox *10 or cl_free /10
	OffsetRequiredAlgicideOrFloc   = 54  // byte
	OffsetRequiredWaterTemperature = 55  // byte
	OffsetStart1                   = 56  // hour, minute
	OffsetStop1                    = 58  // hour, minute
	OffsetStart2                   = 60  // hour, minute
	OffsetStop2                    = 62  // hour, minute
	OffsetBackwashEveryNDays       = 68  // byte
	OffsetBackwashTime             = 69  // hour, minute
	OffsetBackwashDuration         = 71  // byte, *10 seconds
	OffsetDelayAfterStartup        = 74  // word, seconds
	OffsetPoolVolume               = 92  // word, m3
	OffsetMaxFillingTime           = 94  // word, overlaps OffsetFlowrateChlor
	OffsetFlowrateChlor            = 95  // byte
	OffsetFlowratePHPlus           = 97  // byte
	OffsetFlowratePHMinus          = 99  // byte
	OffsetFlowrateAlgicideOrFloc   = 101 // byte, selected by AlgicideConfigured
	OffsetDelayAfterDose           = 106 // word, seconds
)

// Scale factors that are part of the wire contract
const (
	ScalePH               = 100.0
	ScaleClFree           = 100.0
	ScaleSalinity         = 10.0
	ScaleWaterTemperature = 10.0
	ScaleRequiredPH       = 10.0
	ScaleRequiredClFree   = 10.0
	ScaleRequiredRedox    = 10
	ScaleBackwashDuration = 10
)

// Probe-missing bits of the unit info byte. A cleared bit means the probe
// is installed.
const (
	ProbeRedoxMissing   = 0x01
	ProbeCLFMissing     = 0x02
	ProbeDoseMissing    = 0x04
	ProbeSanosilMissing = 0x08 // OXY Pure
)

// Device-type codes of the unit info byte. Checked in DetectDeviceType
// order: PROFI exact, then SALT, HOME and NET masks.
const (
	UnitTypeProfi    = 0x08 // exact value
	UnitTypeSalt     = 0x0C // both bits set (0x0C-0x0F)
	UnitTypeHome     = 0x03 // only these bits may be set (0x00-0x03)
	UnitTypeNet      = 0x08 // bit set (0x09-0x0B once the above are excluded)
	UnitTypeReserved = 0xF0 // never set by known firmware
)

// Status byte (OffsetStatus) bits
const (
	StatusPHMinusPump             = 0x01
	StatusPHPlusPump              = 0x02
	StatusChlorPump               = 0x04
	StatusPumpRunning             = 0x08
	StatusElectrolyzerRunning     = 0x10
	StatusAlgicideOrFlocPump      = 0x20
	StatusElectrolyzerLeft        = 0x40
	StatusElectrolyzerRunningLeft = StatusElectrolyzerRunning | StatusElectrolyzerLeft
)

// Other markers
const (
	WaterFlowToProbes  = 0xAA
	AlgicideConfigured = 0x80
)

// Plausibility bounds
const (
	MinPH         = 0.0
	MaxPH         = 14.0
	MinRequiredPH = 6.0
	MaxRequiredPH = 10.0
)

// Network defaults
const (
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 47524
	DefaultMirrorHost  = "pool.aseko.com"
	DefaultMirrorPort  = 47524
)
