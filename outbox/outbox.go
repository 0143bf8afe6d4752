// Package outbox runs the side effects that workflow operations commit
// together with their own writes. Tasks are claimed with a conditional
// update, so several dispatchers can share one database.
package outbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/internal/backoff"
	"github.com/defensechain/defensechain/storage/model"
)

// Handler executes a single task. A returned error schedules another attempt.
type Handler func(ctx context.Context, task model.Task) error

// Options tune a Dispatcher
type Options struct {
	BatchSize    int
	InitialDelay time.Duration
	PollInterval time.Duration
	// Lease is how long a claimed task may run before it is reclaimed
	Lease time.Duration
	// Now overrides the clock
	Now func() time.Time
}

// DefaultOptions are used for zero-valued Options fields
var DefaultOptions = Options{
	BatchSize:    20,
	InitialDelay: 5 * time.Second,
	PollInterval: 5 * time.Second,
	Lease:        model.DefaultTaskLease,
}

// Dispatcher runs due tasks through the handler registered for their kind
type Dispatcher struct {
	store    model.TasksStore
	options  Options
	handlers map[string]Handler
	mu       sync.RWMutex
	kick     chan struct{}
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher on the passed store
func NewDispatcher(store model.TasksStore, options Options) *Dispatcher {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultOptions.BatchSize
	}
	if options.InitialDelay <= 0 {
		options.InitialDelay = DefaultOptions.InitialDelay
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultOptions.PollInterval
	}
	if options.Lease <= 0 {
		options.Lease = DefaultOptions.Lease
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		store:    store,
		options:  options,
		handlers: make(map[string]Handler),
		kick:     make(chan struct{}, 1),
		now:      now,
	}
}

// Register sets the handler for a task kind
func (d *Dispatcher) Register(kind string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

func (d *Dispatcher) handler(kind string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Kick wakes up a started dispatcher, e.g. after a commit that enqueued tasks
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// RunDue runs every due task once and returns the number of tasks that
// completed
func (d *Dispatcher) RunDue(ctx context.Context) (int, error) {
	tasks, err := d.store.Due(d.now(), d.options.Lease, d.options.BatchSize)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		claimed, err := d.store.Claim(task, d.now(), d.options.Lease)
		if err != nil {
			log.WithError(err).WithField("task", task.ID).Error("outbox: failed to claim task")
			continue
		}
		if !claimed {
			continue
		}
		if d.run(ctx, task) {
			done++
		}
	}
	return done, nil
}

func (d *Dispatcher) run(ctx context.Context, task model.Task) bool {
	logger := log.WithFields(
		log.Fields{
			"task":    task.ID,
			"kind":    task.Kind,
			"subject": task.Subject,
			"attempt": task.Attempts + 1,
		},
	)
	err := d.execute(ctx, task)
	if err == nil {
		if err = d.store.Complete(task.ID); err != nil {
			logger.WithError(err).Error("outbox: failed to mark task as done")
			return false
		}
		logger.Debug("outbox: task done")
		return true
	}

	attempts := task.Attempts + 1
	final := task.MaxAttempts > 0 && attempts >= task.MaxAttempts
	next := d.now().Add(backoff.Exponential(d.options.InitialDelay, attempts))
	if ferr := d.store.Fail(task.ID, attempts, final, next, err.Error()); ferr != nil {
		logger.WithError(ferr).Error("outbox: failed to record task failure")
	}
	if final {
		logger.WithError(err).Error("outbox: task failed permanently")
	} else {
		logger.WithError(err).WithField("next_run", next).Warn("outbox: task failed, retrying")
	}
	return false
}

func (d *Dispatcher) execute(ctx context.Context, task model.Task) (err error) {
	h, ok := d.handler(task.Kind)
	if !ok {
		return errors.Errorf("no handler registered for task kind %q", task.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("task", task.ID).Errorf("outbox: handler panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, task)
}

// Start runs due tasks every poll interval and whenever the dispatcher is
// kicked, until ctx is canceled. Wait blocks until the loop has returned.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.options.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-d.kick:
			}
			for {
				n, err := d.RunDue(ctx)
				if err != nil && ctx.Err() == nil {
					log.WithError(err).Error("outbox: failed to run due tasks")
				}
				if n < d.options.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}()
}

// Wait blocks until every loop started with Start has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
