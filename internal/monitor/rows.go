package monitor

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/protocol"
)

// Columns of the device table.
var Columns = []table.Column{
	{Title: "Serial", Width: 11},
	{Title: "Name", Width: 16},
	{Title: "Type", Width: 6},
	{Title: "pH", Width: 5},
	{Title: "Redox/Cl", Width: 9},
	{Title: "Water", Width: 7},
	{Title: "Pump", Width: 5},
	{Title: "Last seen", Width: 10},
	{Title: "Status", Width: 8},
}

// Row renders one unit. name may be empty.
func Row(d devices.Device, name string, now time.Time) table.Row {
	s := d.State
	if name == "" {
		name = "-"
	}
	return table.Row{
		fmt.Sprintf("%d", d.Serial),
		name,
		s.Type.String(),
		protocol.FormatFloat(s.PH, 2),
		sanitizer(s),
		temperature(s.WaterTemperature),
		onOff(s.PumpRunning),
		age(now.Sub(d.LastSeen)),
		status(d.Online(now)),
	}
}

// sanitizer shows redox in mV or free chlorine in mg/L, whichever the unit
// measures.
func sanitizer(s *protocol.DeviceState) string {
	switch {
	case s.Redox != nil:
		return fmt.Sprintf("%d mV", *s.Redox)
	case s.ClFree != nil:
		return fmt.Sprintf("%.2f mg/L", *s.ClFree)
	default:
		return "-"
	}
}

func temperature(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", *v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func status(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func age(d time.Duration) string {
	switch {
	case d < 0:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
