package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/version"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type announced by the bridge
	ServiceType = "_aseko-bridge._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultStreamPath is the WebSocket path when the TXT record has none
	DefaultStreamPath = "/ws"
)

// Scanner handles mDNS bridge discovery
type Scanner struct {
	// Timeout is the maximum time to wait for bridge discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for bridges until the timeout and returns all of them.
func (s *Scanner) Scan(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		bridges []*Bridge
	)
	err := s.browse(ctx, func(b *Bridge) bool {
		mu.Lock()
		bridges = append(bridges, b)
		mu.Unlock()
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return bridges, nil
}

// WaitForBridge returns the first bridge found, or an error when none
// answers within the timeout.
func (s *Scanner) WaitForBridge(ctx context.Context) (*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Bridge, 1)
	err := s.browse(ctx, func(b *Bridge) bool {
		select {
		case found <- b:
		default:
		}
		cancel()
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case b := <-found:
		return b, nil
	case <-ctx.Done():
		// cancel() above may race with the send.
		select {
		case b := <-found:
			return b, nil
		default:
		}
		return nil, fmt.Errorf("no aseko bridge found within %s", s.Timeout)
	}
}

// browse starts a resolver and calls fn for every parsed bridge until fn
// returns false or ctx ends.
func (s *Scanner) browse(ctx context.Context, fn func(*Bridge) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		// Keep draining after fn says stop so the resolver never blocks.
		wanted := true
		for entry := range entries {
			bridge := parseServiceEntry(entry)
			if bridge == nil || !wanted {
				continue
			}
			logging.Debug("Bridge discovered", zap.String("bridge", bridge.String()))
			wanted = fn(bridge)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Bridge
// Returns nil if the entry has no usable address
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	if entry == nil || entry.Instance == "" || entry.Port == 0 {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	return &Bridge{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     parseTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string)
	for _, txt := range records {
		// TXT records are in "key=value" format
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}
	return metadata
}

// Announcement is a registered mDNS service.
type Announcement struct {
	server *zeroconf.Server
}

// TXTRecords builds the TXT data announced with the bridge.
func TXTRecords(devicePort int, streamPath string) []string {
	if streamPath == "" {
		streamPath = DefaultStreamPath
	}
	return []string{
		"version=" + version.Version,
		"ws=" + streamPath,
		"api=/api/devices",
		"device_port=" + strconv.Itoa(devicePort),
	}
}

// Announce registers the bridge's stream endpoint under ServiceType.
func Announce(instance string, port int, txt []string) (*Announcement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Announcing bridge over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Announcement{server: server}, nil
}

// Shutdown withdraws the announcement.
func (a *Announcement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}
