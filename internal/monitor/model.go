package monitor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/stream"
	"github.com/muurk/aseko-local/internal/ui"
)

const (
	retryDelay    = 3 * time.Second
	refreshPeriod = time.Second
	dialTimeout   = 10 * time.Second
)

// Source is a connected stream.
type Source interface {
	Next() (stream.Message, error)
	Close() error
}

// DialFunc connects to the stream endpoint.
type DialFunc func(ctx context.Context, url string) (Source, error)

// DefaultDial uses stream.Dial.
func DefaultDial(ctx context.Context, url string) (Source, error) {
	return stream.Dial(ctx, url)
}

type (
	connectedMsg    struct{ source Source }
	streamMsg       struct{ msg stream.Message }
	disconnectedMsg struct{ err error }
	retryMsg        struct{}
	tickMsg         time.Time
)

// Model is the Bubble Tea model for the live device table.
type Model struct {
	URL   string
	Names map[uint32]string

	dial    DialFunc
	now     func() time.Time
	source  Source
	devices map[uint32]devices.Device
	version string
	err     error

	connecting bool
	lastUpdate time.Time

	width   int
	height  int
	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// New creates a monitor for the stream at url. names maps serials to
// nicknames and may be nil.
func New(url string, names map[uint32]string, dial DialFunc) Model {
	if dial == nil {
		dial = DefaultDial
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.PrimaryColor)

	t := table.New(
		table.WithColumns(Columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.MutedColor).
		BorderBottom(true).
		Foreground(ui.PrimaryColor).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(ui.TextColor).
		Background(ui.PrimaryColor).
		Bold(false)
	t.SetStyles(styles)

	return Model{
		URL:        url,
		Names:      names,
		dial:       dial,
		now:        time.Now,
		devices:    make(map[uint32]devices.Device),
		connecting: true,
		table:      t,
		spinner:    s,
		help:       help.New(),
		keys:       defaultKeys(),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.connect(), m.spinner.Tick, tick())
}

func (m Model) connect() tea.Cmd {
	dial, url := m.dial, m.URL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		src, err := dial(ctx, url)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return connectedMsg{source: src}
	}
}

func listen(src Source) tea.Cmd {
	return func() tea.Msg {
		msg, err := src.Next()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return streamMsg{msg: msg}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshPeriod, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func retry() tea.Cmd {
	return tea.Tick(retryDelay, func(time.Time) tea.Msg { return retryMsg{} })
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.source != nil {
				_ = m.source.Close()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Reconnect):
			if m.source != nil {
				// The pending listen returns an error and schedules a retry.
				_ = m.source.Close()
				return m, nil
			}
			if !m.connecting {
				m.connecting = true
				return m, m.connect()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(ui.ClampWidth(msg.Width))
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil

	case connectedMsg:
		m.source = msg.source
		m.connecting = false
		m.err = nil
		return m, listen(msg.source)

	case streamMsg:
		m.apply(msg.msg)
		m.refreshRows()
		return m, listen(m.source)

	case disconnectedMsg:
		if m.source != nil {
			_ = m.source.Close()
		}
		m.source = nil
		m.connecting = false
		m.err = msg.err
		return m, retry()

	case retryMsg:
		if m.source == nil && !m.connecting {
			m.connecting = true
			return m, m.connect()
		}
		return m, nil

	case tickMsg:
		m.refreshRows()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// apply folds one stream message into the device set.
func (m *Model) apply(msg stream.Message) {
	m.lastUpdate = m.now()
	switch msg.Type {
	case stream.MessageHello:
		m.version = msg.Version
		clear(m.devices)
		for _, d := range msg.Devices {
			if d.State != nil {
				m.devices[d.Serial] = d
			}
		}
	case stream.MessageState:
		if msg.Device != nil && msg.Device.State != nil {
			m.devices[msg.Device.Serial] = *msg.Device
		}
	}
}

func (m *Model) refreshRows() {
	serials := make([]uint32, 0, len(m.devices))
	for serial := range m.devices {
		serials = append(serials, serial)
	}
	slices.Sort(serials)

	now := m.now()
	rows := make([]table.Row, 0, len(serials))
	for _, serial := range serials {
		rows = append(rows, Row(m.devices[serial], m.Names[serial], now))
	}
	m.table.SetRows(rows)
}

// Devices returns the units currently shown, sorted by serial.
func (m Model) Devices() []devices.Device {
	out := make([]devices.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b devices.Device) int {
		switch {
		case a.Serial < b.Serial:
			return -1
		case a.Serial > b.Serial:
			return 1
		}
		return 0
	})
	return out
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	title := ui.HeaderTitleStyle.Render("ASEKO LIVE MONITOR")
	b.WriteString(title + "  " + ui.HeaderCommandStyle.Render(m.URL) + "\n\n")

	switch {
	case m.connecting:
		b.WriteString("  " + m.spinner.View() + " Connecting...\n\n")
	case m.source == nil && m.err != nil:
		b.WriteString(ui.ErrorMessageStyle.Render(fmt.Sprintf("  %s Disconnected: %v (retrying)", ui.FailureMarker, m.err)) + "\n\n")
	}

	if len(m.devices) == 0 {
		if !m.connecting && m.source != nil {
			b.WriteString(ui.StatusBarStyle.Render("  Waiting for the first frame from a pool unit...") + "\n")
		}
	} else {
		b.WriteString(m.table.View() + "\n")
	}

	status := fmt.Sprintf("%d unit(s)", len(m.devices))
	if m.version != "" {
		status += " · bridge " + m.version
	}
	if !m.lastUpdate.IsZero() {
		status += " · updated " + m.lastUpdate.Format("15:04:05")
	}
	b.WriteString("\n" + ui.StatusBarStyle.Render(status) + "\n")
	b.WriteString(ui.StatusBarStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// Run starts the monitor full-screen and blocks until the user quits.
func Run(url string, names map[uint32]string) error {
	p := tea.NewProgram(New(url, names, nil), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
