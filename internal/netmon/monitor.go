// Package netmon tracks online/offline state for the sync subsystem.
//
// State is driven by two independent sources: passive edge-triggered
// signals pushed in by the host (SetOnline), and an active probe that
// periodically issues a lightweight reachability request. The active
// probe compensates for hosts whose passive signal reports "online"
// while the network is actually unreachable. Whichever source observes
// a disagreement with the current state flips it and notifies
// subscribers.
package netmon

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// DefaultProbeInterval is how often the active probe runs.
const DefaultProbeInterval = 30 * time.Second

// defaultProbeTimeout bounds a single reachability request.
const defaultProbeTimeout = 5 * time.Second

// Subscriber is called with the new state after every transition.
// Callbacks run on the monitor's goroutine and must not block.
type Subscriber func(online bool)

// Config holds monitor configuration.
type Config struct {
	// ProbeURL is the reachability resource the active probe requests.
	// Empty disables active probing; state then follows passive
	// signals only.
	ProbeURL string

	// ProbeInterval is how often to probe (default: 30s).
	ProbeInterval time.Duration

	// Client is the HTTP client used for probes. A default with a
	// short timeout is used when nil.
	Client *http.Client

	// Logger for monitor activity (default: stderr logger).
	Logger *log.Logger
}

// Monitor tracks connectivity and broadcasts transitions.
type Monitor struct {
	cfg Config

	mu     sync.Mutex
	online bool
	subs   []Subscriber

	wg sync.WaitGroup
}

// New creates a Monitor. The initial state is online: the first probe
// or passive signal corrects it if wrong.
func New(cfg Config) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultProbeTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	return &Monitor{cfg: cfg, online: true}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition callback. Subscribers registered
// after a transition only see later transitions.
func (m *Monitor) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline feeds a passive host signal into the monitor. A no-op when
// the reported state matches the current one.
func (m *Monitor) SetOnline(online bool) {
	m.transition(online, "signal")
}

// Start launches the active probe loop. It returns immediately; the
// loop stops when ctx is cancelled. Start is a no-op when no ProbeURL
// is configured.
func (m *Monitor) Start(ctx context.Context) {
	if m.cfg.ProbeURL == "" {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.transition(m.probe(ctx), "probe")
			}
		}
	}()
}

// ProbeOnce runs a single reachability check immediately and applies
// the result. Used by one-shot tooling that cannot wait for the probe
// interval. Returns the observed state. A monitor without a ProbeURL
// keeps its current state.
func (m *Monitor) ProbeOnce(ctx context.Context) bool {
	if m.cfg.ProbeURL == "" {
		return m.Online()
	}
	online := m.probe(ctx)
	m.transition(online, "probe")
	return online
}

// Wait blocks until the probe loop has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// probe issues one reachability request. Any response counts as
// reachable; only transport-level failures mean offline.
func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		m.cfg.Logger.Printf("probe request error: %v", err)
		return false
	}

	resp, err := m.cfg.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// transition flips state when it disagrees with observed and notifies
// subscribers outside the lock.
func (m *Monitor) transition(online bool, source string) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]Subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	state := "offline"
	if online {
		state = "online"
	}
	m.cfg.Logger.Printf("Connectivity transition (%s): now %s", source, state)

	for _, fn := range subs {
		fn(online)
	}
}
