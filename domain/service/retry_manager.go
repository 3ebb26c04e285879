package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodefleet/conexus/domain/model"
	"github.com/nodefleet/conexus/domain/port/outbound"
)

// RetryOperation is a unit of work retried by RetryManager. It should
// be idempotent; the manager makes no attempt to deduplicate retried
// attempts beyond what name is used for in logging.
type RetryOperation func(ctx context.Context) error

type retryTask struct {
	ctx       context.Context
	name      string
	op        RetryOperation
	attempt   int
	nextRunAt time.Time
	resultCh  chan error
}

// RetryManager schedules bounded exponential backoff retries from a
// single ticker goroutine that launches each due attempt on its own
// goroutine, grounded on the teacher's ChannelQueue retry loop (a
// ticker draining a pending-retries slice) generalized from one
// queue's message redelivery to any named operation.
type RetryManager struct {
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	backoffFactor float64
	logger        outbound.Logger

	workerCtx    context.Context
	workerCancel context.CancelFunc
	wg           sync.WaitGroup

	mu      sync.Mutex
	pending []*retryTask

	onRetry atomic.Pointer[func()]
}

// SetOnRetry registers fn to be called once per retried attempt the
// manager actually issues — not the initial call made directly from
// Execute. Metrics subscribes to this to populate retryAttempts
// (spec.md §3/§8 scenario 5). A nil fn clears any previous observer.
func (rm *RetryManager) SetOnRetry(fn func()) {
	if fn == nil {
		rm.onRetry.Store(nil)
		return
	}
	rm.onRetry.Store(&fn)
}

// NewRetryManager builds a manager with the given backoff policy. If
// maxDelay is zero it defaults to 10x baseDelay.
func NewRetryManager(ctx context.Context, maxAttempts int, baseDelay, maxDelay time.Duration, backoffFactor float64, logger outbound.Logger) *RetryManager {
	if maxDelay <= 0 {
		maxDelay = 10 * baseDelay
	}
	if backoffFactor <= 0 {
		backoffFactor = 2.0
	}

	workerCtx, cancel := context.WithCancel(ctx)

	rm := &RetryManager{
		maxAttempts:   maxAttempts,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
		backoffFactor: backoffFactor,
		logger:        logger,
		workerCtx:     workerCtx,
		workerCancel:  cancel,
	}

	rm.wg.Add(1)
	go rm.run()

	return rm
}

// Execute runs op, retrying on failure with exponential backoff up to
// maxAttempts total attempts. It blocks until the operation succeeds,
// exhausts its attempts, or ctx is cancelled.
func (rm *RetryManager) Execute(ctx context.Context, name string, op RetryOperation) error {
	if err := op(ctx); err == nil {
		return nil
	} else if rm.maxAttempts <= 1 {
		return err
	}

	task := &retryTask{
		ctx:       ctx,
		name:      name,
		op:        op,
		attempt:   1,
		nextRunAt: time.Now().Add(rm.delayFor(1)),
		resultCh:  make(chan error, 1),
	}

	rm.mu.Lock()
	rm.pending = append(rm.pending, task)
	rm.mu.Unlock()

	select {
	case err := <-task.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-rm.workerCtx.Done():
		return fmt.Errorf("%w: retry manager shutting down: %w", model.ErrCancelled, rm.workerCtx.Err())
	}
}

func (rm *RetryManager) delayFor(attempt int) time.Duration {
	delay := rm.baseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rm.backoffFactor)
		if delay > rm.maxDelay {
			return rm.maxDelay
		}
	}
	if delay > rm.maxDelay {
		delay = rm.maxDelay
	}
	return delay
}

func (rm *RetryManager) run() {
	defer rm.wg.Done()

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-rm.workerCtx.Done():
			return
		case <-ticker.C:
			rm.drainDue()
		}
	}
}

func (rm *RetryManager) drainDue() {
	now := time.Now()

	rm.mu.Lock()
	remaining := rm.pending[:0]
	var due []*retryTask
	for _, t := range rm.pending {
		if now.After(t.nextRunAt) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	rm.pending = remaining
	rm.mu.Unlock()

	for _, t := range due {
		rm.wg.Add(1)
		go rm.attempt(t)
	}
}

func (rm *RetryManager) attempt(t *retryTask) {
	defer rm.wg.Done()

	if t.ctx.Err() != nil {
		t.resultCh <- t.ctx.Err()
		return
	}

	if fn := rm.onRetry.Load(); fn != nil {
		(*fn)()
	}

	err := t.op(t.ctx)
	if err == nil {
		t.resultCh <- nil
		return
	}

	t.attempt++
	if t.attempt >= rm.maxAttempts {
		rm.logger.Warn("retry exhausted", "operation", t.name, "attempts", t.attempt-1, "error", err)
		t.resultCh <- err
		return
	}

	rm.logger.Info("retrying operation", "operation", t.name, "attempt", t.attempt, "error", err)
	t.nextRunAt = time.Now().Add(rm.delayFor(t.attempt))

	rm.mu.Lock()
	rm.pending = append(rm.pending, t)
	rm.mu.Unlock()
}

// Shutdown stops accepting new scheduling and waits up to 5 seconds
// for in-flight retries to finish, mirroring the teacher's
// ChannelQueue.Stop grace period.
func (rm *RetryManager) Shutdown() {
	rm.workerCancel()

	done := make(chan struct{})
	go func() {
		rm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		rm.logger.Warn("retry manager shutdown timed out")
	}
}
