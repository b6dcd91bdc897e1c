// Package syncer drains the pending-operation log against the remote API.
//
// A cycle walks the pending operations in enqueue order and replays each one
// through the operation visitor. Success marks the operation completed and
// reflects the server's answer into the local store (including the swap from
// a temp id to the server id). Retryable failures back off exponentially;
// terminal failures, or running out of retries, mark the operation failed.
//
// Ordering is kept per record: once an operation is left pending, later
// operations touching any of the same records wait for a later cycle, while
// unrelated operations carry on.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/repo"
	"github.com/tbourn/go-inventory-sync/internal/retry"
)

// Connectivity is the part of the connectivity monitor the service needs.
type Connectivity interface {
	IsOnline() bool
	Check(ctx context.Context) bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Options tune the service. See New for the defaults.
type Options struct {
	// Interval between periodic cycles while online.
	Interval time.Duration
	// MaxRetries is the retry ceiling; the next retryable failure marks the
	// operation failed.
	MaxRetries int
	// Backoff schedules operation-level retries.
	Backoff retry.Policy
	// InlineRetryMax is the longest backoff waited out inside a cycle. Longer
	// delays leave the operation pending with a next-retry time. Zero
	// disables inline retries.
	InlineRetryMax time.Duration
	// CompletedRetention is how long completed operations are kept. Zero
	// keeps them.
	CompletedRetention time.Duration
	// Clock drives backoff waits and retry eligibility.
	Clock retry.Clock
}

const (
	defaultInterval   = 5 * time.Minute
	defaultMaxRetries = 5
)

// OperationError describes an operation that failed during the last cycle.
type OperationError struct {
	OperationID uint64        `json:"operation_id"`
	Kind        domain.OpKind `json:"kind"`
	Message     string        `json:"message"`
	RetryCount  int           `json:"retry_count"`
	Terminal    bool          `json:"terminal"`
}

// Status is a snapshot of the sync service.
type Status struct {
	IsSyncing  bool             `json:"is_syncing"`
	Online     bool             `json:"online"`
	Errors     []OperationError `json:"errors"`
	LastSyncAt *time.Time       `json:"last_sync_at,omitempty"`
	Pending    int64            `json:"pending"`
	Failed     int64            `json:"failed"`
}

// Service owns the status transitions of pending operations.
type Service struct {
	store  *repo.Store
	remote Remote
	net    Connectivity
	opts   Options
	clock  retry.Clock

	syncing atomic.Bool

	mu         sync.Mutex
	errs       []OperationError
	lastSyncAt *time.Time
	idle       chan struct{} // closed when the running cycle ends

	wake chan struct{}

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	unsub   func()
	loopWG  sync.WaitGroup
	cycles  sync.WaitGroup
	started bool
	stopped bool
}

// New creates a stopped service. Defaults: 5m interval, 5 retries, backoff
// 1s doubling up to 5m with 20% jitter, system clock.
func New(store *repo.Store, api Remote, net Connectivity, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = retry.Policy{Base: time.Second, Max: 5 * time.Minute, Jitter: 0.2}
	}
	if opts.Clock == nil {
		opts.Clock = retry.System
	}
	return &Service{
		store:  store,
		remote: api,
		net:    net,
		opts:   opts,
		clock:  opts.Clock,
		wake:   make(chan struct{}, 1),
	}
}

// Start subscribes to connectivity transitions and runs the periodic loop.
// A cycle starts right away when already online.
func (s *Service) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	if s.net != nil {
		s.unsub = s.net.Subscribe(func(online bool) {
			if online {
				s.kick()
			}
		})
	}

	s.loopWG.Add(1)
	go s.loop(ctx)

	if s.online() {
		s.kick()
	}
}

// Destroy stops triggering cycles and waits for a running one to finish. The
// running cycle is not interrupted.
func (s *Service) Destroy() {
	s.lifeMu.Lock()
	if s.stopped {
		s.lifeMu.Unlock()
		return
	}
	s.stopped = true
	if s.unsub != nil {
		s.unsub()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.lifeMu.Unlock()

	s.loopWG.Wait()
	s.cycles.Wait()
}

// Notify asks for a cycle soon, e.g. after an operation was enqueued. It is
// ignored while offline.
func (s *Service) Notify() {
	if s.online() {
		s.kick()
	}
}

// ForceSync re-checks connectivity and runs a cycle now. The returned status
// is taken after the cycle. When a cycle is already running, e.g. one the
// connectivity check itself kicked off, ForceSync waits for it instead of
// starting another; it returns ErrSyncInProgress only if ctx ends first.
func (s *Service) ForceSync(ctx context.Context) (Status, error) {
	if s.net != nil && !s.net.Check(ctx) {
		return s.Status(ctx), ErrOffline
	}
	err := s.runCycle(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		s.mu.Lock()
		idle := s.idle
		s.mu.Unlock()
		select {
		case <-idle:
			err = nil
		case <-ctx.Done():
		}
	}
	return s.Status(ctx), err
}

// Status returns the current sync state. Queue counts are read from the
// store and left zero when it is unavailable.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	st := Status{
		IsSyncing:  s.syncing.Load(),
		Online:     s.online(),
		Errors:     append([]OperationError(nil), s.errs...),
		LastSyncAt: s.lastSyncAt,
	}
	s.mu.Unlock()

	if qs, err := s.store.QueueStats(ctx); err == nil {
		st.Pending, st.Failed = qs.Pending, qs.Failed
	}
	return st
}

func (s *Service) online() bool {
	return s.net == nil || s.net.IsOnline()
}

func (s *Service) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) loop(ctx context.Context) {
	defer s.loopWG.Done()
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-s.wake:
		}
		if s.online() {
			_ = s.runCycle(ctx)
		}
	}
}

// runCycle runs one cycle unless another is in flight, in which case the
// trigger is dropped. A started cycle is never interrupted: it runs detached
// from ctx's cancellation so a confirmed remote write is always reflected
// locally.
func (s *Service) runCycle(ctx context.Context) error {
	s.lifeMu.Lock()
	if s.stopped {
		s.lifeMu.Unlock()
		return ErrStopped
	}
	s.cycles.Add(1)
	s.lifeMu.Unlock()
	defer s.cycles.Done()

	s.mu.Lock()
	if s.syncing.Load() {
		s.mu.Unlock()
		return ErrSyncInProgress
	}
	s.syncing.Store(true)
	idle := make(chan struct{})
	s.idle = idle
	s.mu.Unlock()
	defer func() {
		s.syncing.Store(false)
		close(idle)
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("sync cycle panicked")
		}
	}()

	s.cycle(context.WithoutCancel(ctx))
	return nil
}

func (s *Service) cycle(ctx context.Context) {
	start := time.Now()
	ctx, span := otel.Tracer("syncer").Start(ctx, "sync.cycle")
	defer span.End()

	s.mu.Lock()
	s.errs = nil
	s.mu.Unlock()

	defer func() {
		syncCycleDur.Observe(time.Since(start).Seconds())
		now := s.clock.Now()
		s.mu.Lock()
		s.lastSyncAt = &now
		s.mu.Unlock()
	}()

	if !s.store.Available() {
		log.Warn().Msg("sync skipped: local store unavailable")
		return
	}
	rows, err := s.store.ListPending(ctx)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("sync: list pending operations")
		return
	}

	blocked := make(map[domain.RecordKey]struct{})
	counts := make(map[string]int)
	for _, row := range rows {
		if !s.online() {
			break
		}
		counts[s.step(ctx, row.ID, blocked)]++
	}

	if s.opts.CompletedRetention > 0 {
		if _, err := s.store.PurgeCompleted(ctx, s.clock.Now().Add(-s.opts.CompletedRetention)); err != nil {
			log.Warn().Err(err).Msg("sync: purge completed operations")
		}
	}
	if qs, err := s.store.QueueStats(ctx); err == nil {
		syncPending.Set(float64(qs.Pending))
	}

	span.SetAttributes(
		attribute.Int("sync.completed", counts[outcomeCompleted]),
		attribute.Int("sync.failed", counts[outcomeFailed]),
		attribute.Int("sync.retry", counts[outcomeRetry]),
	)
	if len(rows) > 0 {
		log.Info().
			Int("queued", len(rows)).
			Int("completed", counts[outcomeCompleted]).
			Int("retry", counts[outcomeRetry]).
			Int("failed", counts[outcomeFailed]).
			Int("skipped", counts[outcomeSkipped]).
			Dur("took", time.Since(start)).
			Msg("sync cycle finished")
	}
}

// step claims and replays one operation. Payloads are re-read at claim time
// because earlier replays in the same cycle may have rewritten them.
func (s *Service) step(ctx context.Context, id uint64, blocked map[domain.RecordKey]struct{}) string {
	row, err := s.store.ClaimOperation(ctx, id)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Uint64("op_id", id).Msg("sync: claim operation")
		}
		return outcomeSkipped
	}
	defer s.store.ReleaseOperation(id)

	op, err := row.Operation()
	if err != nil {
		s.markFailed(ctx, row, row.RetryCount, err)
		return outcomeFailed
	}

	keys := op.Keys()
	for _, k := range keys {
		if _, ok := blocked[k]; ok {
			syncOps.WithLabelValues(string(row.Kind), outcomeSkipped).Inc()
			return outcomeSkipped
		}
	}
	if !row.Eligible(s.clock.Now()) {
		block(blocked, keys)
		return outcomeSkipped
	}

	out := s.replay(ctx, row, op)
	if out == outcomeRetry || out == outcomeSkipped {
		block(blocked, keys)
	}
	return out
}

func block(blocked map[domain.RecordKey]struct{}, keys []domain.RecordKey) {
	for _, k := range keys {
		blocked[k] = struct{}{}
	}
}

// replay runs the operation until it completes, fails terminally, or is left
// pending with a next-retry time.
func (s *Service) replay(ctx context.Context, row *domain.PendingOperation, op domain.Operation) string {
	ctx, span := otel.Tracer("syncer").Start(ctx, "sync.operation", trace.WithAttributes(
		attribute.Int64("op.id", int64(row.ID)),
		attribute.String("op.kind", string(row.Kind)),
	))
	defer span.End()

	retries := row.RetryCount
	for {
		err := op.Accept(ctx, &replayer{s: s, id: row.ID})
		if err == nil {
			syncOps.WithLabelValues(string(row.Kind), outcomeCompleted).Inc()
			return outcomeCompleted
		}
		span.RecordError(err)

		var le *localError
		if errors.As(err, &le) {
			log.Error().Err(err).Uint64("op_id", row.ID).Str("kind", string(row.Kind)).Msg("sync: reflect result")
			s.record(row, retries, err, false)
			return outcomeSkipped
		}
		if !remote.IsRetryable(err) {
			span.SetStatus(codes.Error, err.Error())
			s.markFailed(ctx, row, retries, err)
			return outcomeFailed
		}

		retries++
		if retries > s.opts.MaxRetries {
			span.SetStatus(codes.Error, "retries exhausted")
			s.markFailed(ctx, row, retries, fmt.Errorf("retries exhausted: %w", err))
			return outcomeFailed
		}

		delay := s.opts.Backoff.Delay(retries - 1)
		if delay <= s.opts.InlineRetryMax && s.online() {
			s.persist(ctx, row.ID, domain.StatusPatch{Status: domain.OpPending, RetryCount: retries, LastError: err.Error()})
			if retry.Sleep(ctx, s.clock, delay) != nil {
				s.record(row, retries, err, false)
				return outcomeSkipped
			}
			continue
		}

		next := s.clock.Now().Add(delay)
		s.persist(ctx, row.ID, domain.StatusPatch{Status: domain.OpPending, RetryCount: retries, LastError: err.Error(), NextRetryAt: &next})
		s.record(row, retries, err, false)
		syncOps.WithLabelValues(string(row.Kind), outcomeRetry).Inc()
		log.Debug().Err(err).Uint64("op_id", row.ID).Int("retry", retries).Time("next_retry_at", next).Msg("sync: operation rescheduled")
		return outcomeRetry
	}
}

func (s *Service) markFailed(ctx context.Context, row *domain.PendingOperation, retries int, cause error) {
	s.persist(ctx, row.ID, domain.StatusPatch{Status: domain.OpFailed, RetryCount: retries, LastError: cause.Error()})
	s.record(row, retries, cause, true)
	syncOps.WithLabelValues(string(row.Kind), outcomeFailed).Inc()
	log.Warn().Err(cause).Uint64("op_id", row.ID).Str("kind", string(row.Kind)).Int("retries", retries).Msg("sync: operation failed")
}

func (s *Service) persist(ctx context.Context, id uint64, patch domain.StatusPatch) {
	if err := s.store.UpdateStatus(ctx, id, patch); err != nil {
		log.Error().Err(err).Uint64("op_id", id).Str("status", string(patch.Status)).Msg("sync: update operation status")
	}
}

func (s *Service) record(row *domain.PendingOperation, retries int, err error, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, OperationError{
		OperationID: row.ID,
		Kind:        row.Kind,
		Message:     err.Error(),
		RetryCount:  retries,
		Terminal:    terminal,
	})
}
