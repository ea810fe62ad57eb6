// Package dispatch fans committed indicators out to the configured
// destinations and records one outcome per destination.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"threatreg/internal/destination"
	"threatreg/internal/domain"
	"threatreg/internal/metrics"
	"threatreg/internal/support"
)

const (
	DefaultAttemptTimeout   = 10 * time.Second
	DefaultMaxConcurrent    = 32
	DefaultPerDispatchLimit = 4

	recordTimeout   = 5 * time.Second
	maxErrorMessage = 1024
)

// OutcomeRecorder persists delivery outcomes.
type OutcomeRecorder interface {
	RecordDeliveryOutcome(ctx context.Context, outcome domain.DeliveryOutcome) error
}

// Notifier is told about every recorded outcome.
type Notifier interface {
	PublishOutcome(ctx context.Context, outcome domain.DeliveryOutcome) error
}

type Option func(*Coordinator)

func WithAttemptTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = func() time.Duration { return timeout }
	}
}

// WithAttemptTimeoutSource reads the timeout on every attempt so reloaded
// settings take effect without rebuilding the coordinator.
func WithAttemptTimeoutSource(source func() time.Duration) Option {
	return func(c *Coordinator) {
		if source != nil {
			c.timeout = source
		}
	}
}

func WithMaxConcurrent(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrent = int64(n)
		}
	}
}

func WithPerDispatchLimit(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.perDispatch = n
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

type Coordinator struct {
	// mu guards destinations and the limits below it.
	mu           sync.RWMutex
	destinations []destination.Destination

	maxConcurrent int64
	perDispatch   int
	sem           *semaphore.Weighted

	recorder OutcomeRecorder
	notifier Notifier

	timeout func() time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	lifecycle sync.Mutex
	closed    bool
	wg        sync.WaitGroup
}

func New(destinations []destination.Destination, recorder OutcomeRecorder, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		destinations:  append([]destination.Destination(nil), destinations...),
		recorder:      recorder,
		timeout:       func() time.Duration { return DefaultAttemptTimeout },
		maxConcurrent: DefaultMaxConcurrent,
		perDispatch:   DefaultPerDispatchLimit,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sem = semaphore.NewWeighted(c.maxConcurrent)

	return c
}

// SetDestinations replaces the destination set used by later dispatches.
func (c *Coordinator) SetDestinations(destinations []destination.Destination) {
	c.mu.Lock()
	c.destinations = append([]destination.Destination(nil), destinations...)
	c.mu.Unlock()
}

// SetLimits changes the concurrency bounds for attempts started afterwards.
// Attempts already holding a slot finish under the previous bound.
// Non-positive values leave a limit unchanged.
func (c *Coordinator) SetLimits(maxConcurrent, perDispatch int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if maxConcurrent > 0 && int64(maxConcurrent) != c.maxConcurrent {
		c.maxConcurrent = int64(maxConcurrent)
		c.sem = semaphore.NewWeighted(c.maxConcurrent)
	}
	if perDispatch > 0 {
		c.perDispatch = perDispatch
	}
}

// Limits returns the global and per-dispatch concurrency bounds.
func (c *Coordinator) Limits() (maxConcurrent, perDispatch int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.maxConcurrent), c.perDispatch
}

func (c *Coordinator) Destinations() []destination.Destination {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]destination.Destination(nil), c.destinations...)
}

// Dispatch schedules one delivery attempt per destination and returns
// immediately. The indicator must already be committed.
func (c *Coordinator) Dispatch(indicator domain.IndicatorRecord) {
	destinations := c.Destinations()
	if len(destinations) == 0 {
		log.Debug("No destinations configured", "indicator", indicator.ID)
		return
	}

	c.lifecycle.Lock()
	if c.closed {
		c.lifecycle.Unlock()
		log.Warn("Dispatch skipped, coordinator closed", "indicator", indicator.ID)
		return
	}
	c.wg.Add(1)
	c.lifecycle.Unlock()

	go func() {
		defer c.wg.Done()
		c.run(indicator, destinations)
	}()
}

func (c *Coordinator) run(indicator domain.IndicatorRecord, destinations []destination.Destination) {
	_, perDispatch := c.Limits()

	var g errgroup.Group
	g.SetLimit(perDispatch)

	for _, dest := range destinations {
		g.Go(func() error {
			c.attempt(indicator, dest)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) attempt(indicator domain.IndicatorRecord, dest destination.Destination) {
	outcome := domain.DeliveryOutcome{
		IndicatorID: indicator.ID,
		Destination: dest.Name,
	}

	c.mu.RLock()
	sem := c.sem
	c.mu.RUnlock()

	if err := sem.Acquire(c.ctx, 1); err != nil {
		outcome.Error = errorText(fmt.Errorf("dispatch cancelled: %w", err))
		c.finish(outcome, metrics.ResultFailed)
		return
	}
	defer sem.Release(1)

	metrics.DeliveriesInFlight.Inc()
	defer metrics.DeliveriesInFlight.Dec()

	localID, err := dest.Resolve(indicator.Kind)
	if err != nil {
		outcome.Error = errorText(fmt.Errorf("%w: %s", err, indicator.Kind))
		c.finish(outcome, metrics.ResultMappingMissing)
		return
	}
	if !dest.Credential {
		outcome.Error = errorText(domain.ErrCredentialMissing)
		c.finish(outcome, metrics.ResultCredentialMissing)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout())
	defer cancel()

	started := time.Now()
	status, body, err := submit(ctx, dest, localID, indicator)
	metrics.DeliveryDuration.WithLabelValues(dest.Name).Observe(time.Since(started).Seconds())

	if status != 0 {
		outcome.Status = &status
	}

	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		outcome.Error = errorText(err)
		c.finish(outcome, metrics.ResultCredentialMissing)
	case err != nil:
		outcome.Error = errorText(err)
		c.finish(outcome, metrics.ResultFailed)
	case status < 200 || status > 299:
		outcome.Error = errorText(fmt.Errorf("HTTP %d: %s", status, body))
		c.finish(outcome, metrics.ResultRejected)
	default:
		c.finish(outcome, metrics.ResultDelivered)
	}
}

// finish records the outcome. Failures to record are logged and counted only.
func (c *Coordinator) finish(outcome domain.DeliveryOutcome, result string) {
	outcome.AttemptedAt = time.Now().UTC()
	metrics.DeliveryAttempts.WithLabelValues(outcome.Destination, result).Inc()

	if result == metrics.ResultDelivered {
		log.Info("Indicator delivered", "indicator", outcome.IndicatorID, "destination", outcome.Destination, "status", *outcome.Status)
	} else {
		log.Warn("Indicator delivery failed", "indicator", outcome.IndicatorID, "destination", outcome.Destination, "result", result, "error", derefString(outcome.Error))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), recordTimeout)
	defer cancel()

	if c.recorder != nil {
		err := guard(func() error { return c.recorder.RecordDeliveryOutcome(ctx, outcome) })
		if err != nil {
			metrics.OutcomeRecordFailures.Inc()
			log.Error("Failed to record delivery outcome", "indicator", outcome.IndicatorID, "destination", outcome.Destination, "error", err)
		}
	}

	if c.notifier != nil {
		if err := guard(func() error { return c.notifier.PublishOutcome(ctx, outcome) }); err != nil {
			log.Warn("Failed to publish delivery outcome", "destination", outcome.Destination, "error", err)
		}
	}
}

// submit runs the adapter call, turning a panic into an attempt error.
func submit(ctx context.Context, dest destination.Destination, localID string, indicator domain.IndicatorRecord) (status int, body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Delivery attempt panicked", "destination", dest.Name, "indicator", indicator.ID, "panic", r)
			status, body, err = 0, nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return dest.Adapter.Submit(ctx, localID, indicator)
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Wait blocks until every scheduled dispatch has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops accepting dispatches and waits for running ones. When ctx ends
// first, in-flight attempts are cancelled and ctx.Err is returned once they
// have been recorded.
func (c *Coordinator) Close(ctx context.Context) error {
	c.lifecycle.Lock()
	c.closed = true
	c.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

func errorText(err error) *string {
	msg := support.Truncate(err.Error(), maxErrorMessage)
	return &msg
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
