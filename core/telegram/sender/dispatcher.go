package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/m3rciful/mergebot/core/logger"
	"github.com/m3rciful/mergebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the queue cannot take another job.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tunes the dispatcher. Zero values get defaults.
type Options struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	// RetryBackoff is the first retry delay; later ones grow exponentially.
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job, retries included.
	MaxDuration time.Duration
	// OnResult, if set, observes the final outcome of every job.
	OnResult func(action string, err error)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher runs outbound Telegram calls on a worker pool with retries.
type Dispatcher struct {
	opts Options

	// mu guards closed and the close of jobs against concurrent sends.
	mu     sync.RWMutex
	closed bool
	jobs   chan job
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.process(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run may be called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that finally failed.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) process(j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempt := 0
	policy := d.policy()
	err := backoff.RetryNotify(func() error {
		attempt++
		err := j.run()
		policy.last = err
		if err != nil && !netutil.ShouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxRetries)), ctx),
		func(err error, delay time.Duration) {
			logger.Debug(j.ctx, component, "send.retry", append(j.attrs(),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("err_kind", netutil.Classify(err)),
			)...)
		})

	attrs := append(j.attrs(), slog.Int("attempts", attempt), slog.Duration("duration", time.Since(start)))
	if err != nil {
		d.errs.Add(1)
		logger.Error(j.ctx, component, "send.fail", append(attrs,
			slog.String("status", "fail"),
			slog.String("err", netutil.Redact(err)),
			slog.String("err_kind", netutil.Classify(err)),
		)...)
	} else if attempt > 1 {
		logger.Info(j.ctx, component, "send.retry.success", append(attrs, slog.String("status", "ok"))...)
	} else {
		logger.Debug(j.ctx, component, "send.success", append(attrs, slog.String("status", "ok"))...)
	}
	if d.opts.OnResult != nil {
		d.opts.OnResult(j.action, err)
	}
}

func (d *Dispatcher) policy() *floodAware {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.opts.RetryBackoff
	exp.MaxInterval = d.opts.MaxDuration
	exp.MaxElapsedTime = d.opts.MaxDuration
	return &floodAware{BackOff: exp}
}

func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

// floodAware stretches the next delay to the retry_after Telegram sent with
// the last 429.
type floodAware struct {
	backoff.BackOff
	last error
}

func (f *floodAware) NextBackOff() time.Duration {
	next := f.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	var flood tele.FloodError
	if errors.As(f.last, &flood) && flood.RetryAfter > 0 {
		next = max(next, time.Duration(flood.RetryAfter)*time.Second)
	}
	return next
}
