package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu    sync.Mutex
	err   error
	block chan struct{}
	calls atomic.Int32
}

func (p *fakeProber) Ping(ctx context.Context) error {
	p.calls.Add(1)
	p.mu.Lock()
	err, block := p.err, p.block
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakeProber) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	got []bool
}

func (r *recorder) fn(online bool) {
	r.mu.Lock()
	r.got = append(r.got, online)
	r.mu.Unlock()
}

func (r *recorder) events() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.got...)
}

func TestMonitor_StartsOfflineAndProbeFlipsOnline(t *testing.T) {
	m := New(&fakeProber{}, Options{Interval: time.Hour})
	assert.False(t, m.IsOnline())

	rec := &recorder{}
	m.Subscribe(rec.fn)

	assert.True(t, m.Check(context.Background()))
	assert.Equal(t, []bool{true}, rec.events())

	// same status again: no notification
	m.Check(context.Background())
	assert.Equal(t, []bool{true}, rec.events())
}

func TestMonitor_OfflineEventIsImmediate(t *testing.T) {
	m := New(&fakeProber{}, Options{Interval: time.Hour})
	m.Check(context.Background())

	rec := &recorder{}
	m.Subscribe(rec.fn)
	m.HandleOffline()

	assert.False(t, m.IsOnline())
	assert.Equal(t, []bool{false}, rec.events())
}

func TestMonitor_OnlineEventWaitsForProbe(t *testing.T) {
	p := &fakeProber{err: errors.New("captive portal")}
	m := New(p, Options{Interval: time.Hour, Timeout: time.Second})

	m.HandleOnline()
	assert.False(t, m.IsOnline(), "online event alone must not flip the status")

	m.Start(context.Background())
	t.Cleanup(m.Destroy)

	require.Eventually(t, func() bool { return p.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.IsOnline())

	p.fail(nil)
	m.HandleOnline()
	require.Eventually(t, m.IsOnline, time.Second, 5*time.Millisecond)
}

func TestMonitor_TrustOnlineEvent(t *testing.T) {
	m := New(&fakeProber{}, Options{Interval: time.Hour, TrustOnlineEvent: true})
	m.HandleOnline()
	assert.True(t, m.IsOnline())
}

func TestMonitor_ProbeTimeoutFlipsOffline(t *testing.T) {
	p := &fakeProber{}
	m := New(p, Options{Interval: time.Hour, Timeout: 20 * time.Millisecond})
	require.True(t, m.Check(context.Background()))

	block := make(chan struct{})
	defer close(block)
	p.mu.Lock()
	p.block = block
	p.mu.Unlock()

	start := time.Now()
	assert.False(t, m.Check(context.Background()))
	assert.Less(t, time.Since(start), time.Second, "an overrunning probe must be abandoned")
}

func TestMonitor_UnsubscribeAndOrder(t *testing.T) {
	m := New(&fakeProber{}, Options{Interval: time.Hour})

	var mu sync.Mutex
	var order []string
	m.Subscribe(func(bool) { mu.Lock(); order = append(order, "a"); mu.Unlock() })
	unsub := m.Subscribe(func(bool) { mu.Lock(); order = append(order, "b"); mu.Unlock() })
	m.Subscribe(func(bool) { mu.Lock(); order = append(order, "c"); mu.Unlock() })

	m.Check(context.Background())
	unsub()
	unsub()
	m.HandleOffline()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "a", "c"}, order)
}

func TestMonitor_DestroyStopsLoop(t *testing.T) {
	p := &fakeProber{}
	m := New(p, Options{Interval: 5 * time.Millisecond})
	m.Start(context.Background())
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)

	m.Destroy()
	n := p.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, p.calls.Load())
}
