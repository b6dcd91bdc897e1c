// Package network tracks whether the remote API is reachable.
//
// The Monitor combines two sources: native online/offline signals pushed by
// the host shell, and an active probe against the API run on a fixed
// interval. An offline signal is trusted immediately. An online signal only
// schedules a probe, and the probe decides, since captive portals and
// half-open links report "online" while nothing gets through.
package network

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	onlineGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invsync_connectivity_online",
		Help: "1 while the remote API is considered reachable.",
	})
	probeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invsync_connectivity_probes_total",
			Help: "Connectivity probes by result (ok, error, timeout).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(onlineGauge, probeTotal)
}

// Prober checks reachability of the remote API.
type Prober interface {
	Ping(ctx context.Context) error
}

// Options tune the probe loop. Zero values take the defaults.
type Options struct {
	// Interval between periodic probes. Default 30s.
	Interval time.Duration
	// Timeout for a single probe. Default 5s.
	Timeout time.Duration
	// TrustOnlineEvent flips to online on a native signal without waiting
	// for the probe.
	TrustOnlineEvent bool
}

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Second
)

type subscriber struct {
	id uint64
	fn func(online bool)
}

// Monitor holds the last known connectivity status. The zero status is
// offline until a probe succeeds.
type Monitor struct {
	prober Prober
	opts   Options

	mu     sync.Mutex
	online bool
	subs   []subscriber
	nextID uint64

	probeNow chan struct{}

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a stopped monitor.
func New(prober Prober, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	onlineGauge.Set(0)
	return &Monitor{
		prober:   prober,
		opts:     opts,
		probeNow: make(chan struct{}, 1),
	}
}

// IsOnline returns the last known status without blocking on the network.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for status transitions. fn runs on the goroutine
// that observed the transition, after the status has been updated, and in
// registration order. The returned func removes the subscription.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// HandleOffline records a native offline signal.
func (m *Monitor) HandleOffline() {
	m.set(false, "offline event")
}

// HandleOnline records a native online signal and schedules a probe.
func (m *Monitor) HandleOnline() {
	if m.opts.TrustOnlineEvent {
		m.set(true, "online event")
	}
	select {
	case m.probeNow <- struct{}{}:
	default:
	}
}

// Check probes now and returns the resulting status.
func (m *Monitor) Check(ctx context.Context) bool {
	m.probe(ctx)
	return m.IsOnline()
}

// Start launches the probe loop with an immediate first probe. Calling Start
// on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop(ctx)
}

// Destroy stops the probe loop and drops every subscriber.
func (m *Monitor) Destroy() {
	m.lifeMu.Lock()
	if m.running {
		m.cancel()
		m.running = false
	}
	m.lifeMu.Unlock()
	m.wg.Wait()

	m.mu.Lock()
	m.subs = nil
	m.mu.Unlock()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	t := time.NewTicker(m.opts.Interval)
	defer t.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.probe(ctx)
		case <-m.probeNow:
			m.probe(ctx)
		}
	}
}

// probe runs one reachability check bounded by the probe timeout. A probe
// that overruns is abandoned: its result lands in a buffered channel nobody
// reads, so the loop never waits on it.
func (m *Monitor) probe(ctx context.Context) {
	if m.prober == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.New("probe panicked")
			}
		}()
		done <- m.prober.Ping(pctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			probeTotal.WithLabelValues("error").Inc()
			log.Debug().Err(err).Msg("connectivity probe failed")
			m.set(false, "probe failed")
			return
		}
		probeTotal.WithLabelValues("ok").Inc()
		m.set(true, "probe ok")
	case <-pctx.Done():
		if ctx.Err() != nil {
			// shutting down; keep the last status
			return
		}
		probeTotal.WithLabelValues("timeout").Inc()
		m.set(false, "probe timeout")
	}
}

func (m *Monitor) set(online bool, reason string) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		onlineGauge.Set(1)
	} else {
		onlineGauge.Set(0)
	}
	log.Info().Bool("online", online).Str("reason", reason).Msg("connectivity changed")

	for _, s := range subs {
		s.fn(online)
	}
}
