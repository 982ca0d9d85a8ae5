package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/shirou/gopsutil"
	"github.com/shirou/gopsutil/process"
)

// Stats aggregates platform metrics for the health endpoint.
type Stats struct {
	LiveSessions      int     `json:"live_sessions"`
	OpenRooms         int     `json:"open_rooms"`
	MessagesPosted    uint64  `json:"messages_posted"`
	MessagesBlocked   uint64  `json:"messages_blocked"`
	EventsDelivered   uint64  `json:"events_delivered"`
	SlowConsumerKicks uint64  `json:"slow_consumer_kicks"`
	IncidentsReported uint64  `json:"incidents_reported"`
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	NumGC             uint32  `json:"num_gc"`
	NumGoroutine      int     `json:"num_goroutine"`
	CPUPercent        float64 `json:"cpu_percent"`
	RAMPercent        float32 `json:"ram_percent"`
	UpdatedAt         string  `json:"updated_at"`
}

// Gauges are pulled on every refresh tick rather than pushed, so the
// monitor never sits on a hot path.
type Gauges interface {
	LiveSessions() int
	OpenRooms() int
}

// Monitor tracks real-time telemetry for the platform. Counters are
// atomic and cheap to bump from any goroutine; a periodic tick folds them
// together with Go runtime and OS process metrics into a snapshot.
type Monitor struct {
	log      *slog.Logger
	mu       sync.RWMutex
	latest   Stats
	gauges   Gauges
	interval time.Duration

	messagesPosted    uint64
	messagesBlocked   uint64
	eventsDelivered   uint64
	slowConsumerKicks uint64
	incidentsReported uint64
}

func NewMonitor(log *slog.Logger, gauges Gauges, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{log: log, gauges: gauges, interval: interval}
}

func (m *Monitor) IncrMessagesPosted()    { atomic.AddUint64(&m.messagesPosted, 1) }
func (m *Monitor) IncrMessagesBlocked()   { atomic.AddUint64(&m.messagesBlocked, 1) }
func (m *Monitor) IncrSlowConsumerKick()  { atomic.AddUint64(&m.slowConsumerKicks, 1) }
func (m *Monitor) IncrIncidentsReported() { atomic.AddUint64(&m.incidentsReported, 1) }

func (m *Monitor) AddEventsDelivered(n uint64) {
	atomic.AddUint64(&m.eventsDelivered, n)
}

// Run refreshes the snapshot until the context is canceled. It is a
// supervised worker; a clean return means no restart.
func (m *Monitor) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.log.Warn("Process telemetry unavailable", "error", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Stopping monitor")
			return nil
		case <-ticker.C:
			m.refresh(proc)
		}
	}
}

func (m *Monitor) refresh(proc *process.Process) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := Stats{
		MessagesPosted:    atomic.LoadUint64(&m.messagesPosted),
		MessagesBlocked:   atomic.LoadUint64(&m.messagesBlocked),
		EventsDelivered:   atomic.LoadUint64(&m.eventsDelivered),
		SlowConsumerKicks: atomic.LoadUint64(&m.slowConsumerKicks),
		IncidentsReported: atomic.LoadUint64(&m.incidentsReported),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
		NumGoroutine:      runtime.NumGoroutine(),
		UpdatedAt:         time.Now().UTC().Format(time.RFC3339),
	}
	if m.gauges != nil {
		stats.LiveSessions = m.gauges.LiveSessions()
		stats.OpenRooms = m.gauges.OpenRooms()
	}
	if proc != nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if ram, err := proc.MemoryPercent(); err == nil {
			stats.RAMPercent = ram
		}
	}

	m.mu.Lock()
	m.latest = stats
	m.mu.Unlock()

	m.log.Debug("Stats refreshed",
		"sessions", stats.LiveSessions,
		"rooms", stats.OpenRooms,
		"posted", stats.MessagesPosted,
		"delivered", stats.EventsDelivered,
	)
}

func (m *Monitor) GetLatest() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
