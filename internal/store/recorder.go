package store

import (
	"context"
	"time"

	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"go.uber.org/zap"
)

const recorderQueueSize = 64

// RecorderConfig controls sampling and retention.
type RecorderConfig struct {
	// Interval is the minimum spacing between stored readings of one unit.
	// Zero stores every snapshot.
	Interval time.Duration
	// Retention is how long readings are kept. Zero keeps everything.
	Retention time.Duration
	// PruneEvery is how often old readings are deleted.
	PruneEvery time.Duration
}

// Recorder writes aggregator events to a Store from its own goroutine so
// disk latency never reaches the device connections.
type Recorder struct {
	store  *Store
	config RecorderConfig
	queue  chan *protocol.DeviceState
	last   map[uint32]time.Time
}

// NewRecorder creates a recorder for s.
func NewRecorder(s *Store, config RecorderConfig) *Recorder {
	if config.PruneEvery <= 0 {
		config.PruneEvery = time.Hour
	}
	return &Recorder{
		store:  s,
		config: config,
		queue:  make(chan *protocol.DeviceState, recorderQueueSize),
		last:   make(map[uint32]time.Time),
	}
}

// Handle queues the event's snapshot. It never blocks; snapshots arriving
// while the queue is full are dropped.
func (r *Recorder) Handle(ev devices.Event) {
	if ev.Device.State == nil {
		return
	}
	select {
	case r.queue <- ev.Device.State:
	default:
		logging.Warn("History queue full, dropping snapshot", zap.Uint32("serial", ev.Device.Serial))
	}
}

// Run stores queued snapshots until ctx is cancelled. Snapshots still
// queued at that point are written before Run returns.
func (r *Recorder) Run(ctx context.Context) {
	// Writes are not aborted by shutdown.
	writeCtx := context.WithoutCancel(ctx)
	r.prune(writeCtx)
	ticker := time.NewTicker(r.config.PruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case state := <-r.queue:
			r.record(writeCtx, state)
		case <-ticker.C:
			r.prune(writeCtx)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case state := <-r.queue:
			r.record(ctx, state)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, state *protocol.DeviceState) {
	if prev, ok := r.last[state.SerialNumber]; ok && r.config.Interval > 0 {
		if state.Timestamp.Sub(prev) < r.config.Interval && !state.Timestamp.Before(prev) {
			return
		}
	}
	if err := r.store.Insert(ctx, state); err != nil {
		logging.Error("Failed to store reading", zap.Uint32("serial", state.SerialNumber), zap.Error(err))
		return
	}
	r.last[state.SerialNumber] = state.Timestamp
}

func (r *Recorder) prune(ctx context.Context) {
	if r.config.Retention <= 0 {
		return
	}
	n, err := r.store.Prune(ctx, r.store.now().Add(-r.config.Retention))
	if err != nil {
		logging.Error("Failed to prune history", zap.Error(err))
		return
	}
	if n > 0 {
		logging.Info("Pruned history", zap.Int64("rows", n), zap.Duration("retention", r.config.Retention))
	}
}
