package hexdump

import (
	"github.com/muurk/aseko-local/internal/protocol"
)

// Field is a named byte range of a frame.
type Field struct {
	Name    string
	Offset  int
	Size    int
	Comment string
}

// End returns the offset one past the last byte of the field.
func (f Field) End() int {
	return f.Offset + f.Size
}

// Covers reports whether index i falls inside the field.
func (f Field) Covers(i int) bool {
	return i >= f.Offset && i < f.End()
}

// Fields is the known frame map in offset order. Some ranges overlap: the
// same bytes carry different values depending on the unit type.
var Fields = []Field{
	{Name: "serial_number", Offset: protocol.OffsetSerial, Size: 4},
	{Name: "unit_info", Offset: protocol.OffsetUnitInfo, Size: 1, Comment: "device type and probe bits"},
	{Name: "block_1_marker", Offset: protocol.MarkerOffsetBlock1, Size: 1},
	{Name: "year", Offset: protocol.OffsetYear, Size: 1, Comment: "2000+year, 0xff when the clock is not set"},
	{Name: "month", Offset: protocol.OffsetMonth, Size: 1},
	{Name: "day", Offset: protocol.OffsetDay, Size: 1},
	{Name: "hour", Offset: protocol.OffsetHour, Size: 1},
	{Name: "minute", Offset: protocol.OffsetMinute, Size: 1},
	{Name: "second", Offset: protocol.OffsetSecond, Size: 1},
	{Name: "ph", Offset: protocol.OffsetPH, Size: 2},
	{Name: "cl_free_or_redox", Offset: protocol.OffsetClFreeOrRedox, Size: 2},
	{Name: "redox", Offset: protocol.OffsetRedox, Size: 2, Comment: "PROFI with CLF and redox probes"},
	{Name: "salinity", Offset: protocol.OffsetSalinity, Size: 1, Comment: "SALT and PROFI"},
	{Name: "cl_free_mv", Offset: protocol.OffsetClFreeMV, Size: 2, Comment: "HOME and NET with CLF probe"},
	{Name: "electrolyzer_power", Offset: protocol.OffsetElectrolyzerPower, Size: 1, Comment: "SALT and PROFI"},
	{Name: "water_temperature", Offset: protocol.OffsetWaterTemperature, Size: 2},
	{Name: "water_flow", Offset: protocol.OffsetWaterFlow, Size: 1, Comment: "0xaa when water flows to the probes"},
	{Name: "status", Offset: protocol.OffsetStatus, Size: 1, Comment: "pump and electrolyzer bits"},
	{Name: "algicide_config", Offset: protocol.OffsetAlgicideConfig, Size: 1},
	{Name: "block_3_serial", Offset: protocol.BlockSize, Size: protocol.IdentityLength},
	{Name: "block_3_marker", Offset: protocol.MarkerOffsetBlock2, Size: 1},
	{Name: "required_ph", Offset: protocol.OffsetRequiredPH, Size: 1},
	{Name: "required_cl_free_or_redox", Offset: protocol.OffsetRequiredRedoxOrClFree, Size: 1},
	{Name: "required_algicide_or_floc", Offset: protocol.OffsetRequiredAlgicideOrFloc, Size: 1},
	{Name: "required_water_temperature", Offset: protocol.OffsetRequiredWaterTemperature, Size: 1},
	{Name: "start_1", Offset: protocol.OffsetStart1, Size: 2, Comment: "hour, minute"},
	{Name: "stop_1", Offset: protocol.OffsetStop1, Size: 2, Comment: "hour, minute"},
	{Name: "start_2", Offset: protocol.OffsetStart2, Size: 2, Comment: "hour, minute"},
	{Name: "stop_2", Offset: protocol.OffsetStop2, Size: 2, Comment: "hour, minute"},
	{Name: "backwash_every_n_days", Offset: protocol.OffsetBackwashEveryNDays, Size: 1},
	{Name: "backwash_time", Offset: protocol.OffsetBackwashTime, Size: 2, Comment: "hour, minute"},
	{Name: "backwash_duration", Offset: protocol.OffsetBackwashDuration, Size: 1},
	{Name: "delay_after_startup", Offset: protocol.OffsetDelayAfterStartup, Size: 2},
	{Name: "block_2_serial", Offset: 2 * protocol.BlockSize, Size: protocol.IdentityLength},
	{Name: "block_2_marker", Offset: protocol.MarkerOffsetBlock3, Size: 1},
	{Name: "pool_volume", Offset: protocol.OffsetPoolVolume, Size: 2},
	{Name: "max_filling_time", Offset: protocol.OffsetMaxFillingTime, Size: 2, Comment: "shares byte 95 with flowrate_chlor"},
	{Name: "flowrate_chlor", Offset: protocol.OffsetFlowrateChlor, Size: 1},
	{Name: "flowrate_ph_plus", Offset: protocol.OffsetFlowratePHPlus, Size: 1},
	{Name: "flowrate_ph_minus", Offset: protocol.OffsetFlowratePHMinus, Size: 1},
	{Name: "flowrate_algicide_or_floc", Offset: protocol.OffsetFlowrateAlgicideOrFloc, Size: 1},
	{Name: "delay_after_dose", Offset: protocol.OffsetDelayAfterDose, Size: 2},
}

// FieldsAt returns the names of all fields covering byte i.
func FieldsAt(i int) []string {
	var names []string
	for _, f := range Fields {
		if f.Covers(i) {
			names = append(names, f.Name)
		}
	}
	return names
}
