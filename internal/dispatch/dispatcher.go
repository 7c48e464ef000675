package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/lure/internal/hermes"
	"github.com/MikeSquared-Agency/lure/internal/metrics"
)

var ErrAlreadyQueued = errors.New("report already queued")

// Delivery outcomes.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

type Outcome struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type Config struct {
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type job struct {
	sessionID string
	report    []byte
}

// Dispatcher delivers final reports in the background. Each session's report
// is accepted at most once; delivery is retried with exponential backoff up
// to MaxAttempts and never blocks the caller of Enqueue.
type Dispatcher struct {
	sender  Sender
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  hermes.Publisher

	onOutcome func(Outcome)

	mu       sync.Mutex
	pending  []job
	queued   map[string]bool
	outcomes map[string]Outcome
	wake     chan struct{}
}

// New returns a Dispatcher. A nil sender marks every report as skipped.
func New(sender Sender, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Dispatcher{
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		queued:   make(map[string]bool),
		outcomes: make(map[string]Outcome),
		wake:     make(chan struct{}, 1),
	}
}

func (d *Dispatcher) SetMetrics(m *metrics.Metrics) { d.metrics = m }

func (d *Dispatcher) SetEvents(p hermes.Publisher) { d.events = p }

// OnOutcome registers fn to be called once per report when delivery settles.
func (d *Dispatcher) OnOutcome(fn func(Outcome)) { d.onOutcome = fn }

// Enqueue hands a report to the delivery workers. It returns
// ErrAlreadyQueued if a report for sessionID was accepted before.
func (d *Dispatcher) Enqueue(sessionID string, report []byte) error {
	d.mu.Lock()
	if d.queued[sessionID] {
		d.mu.Unlock()
		return ErrAlreadyQueued
	}
	d.queued[sessionID] = true
	d.pending = append(d.pending, job{sessionID: sessionID, report: append([]byte(nil), report...)})
	depth := len(d.pending)
	d.mu.Unlock()

	d.metrics.QueueDepth(depth)
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Outcome returns the settled delivery outcome for a session.
func (d *Dispatcher) Outcome(sessionID string) (Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.outcomes[sessionID]
	return o, ok
}

// Pending returns the number of reports waiting for a worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	err := g.Wait()
	if n := d.Pending(); n > 0 {
		d.logger.Warn("dispatcher stopped with undelivered reports", "pending", n)
	}
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		j, ok := d.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-d.wake:
				continue
			}
		}
		o, done := d.deliver(ctx, j)
		if !done {
			// shutdown cut the delivery short; the report stays pending
			d.requeue(j)
			d.logger.Warn("report delivery interrupted by shutdown",
				"session_id", j.sessionID,
				"attempts", o.Attempts,
			)
			return
		}
		d.settle(o)

		// pass the wake-up on in case more work arrived while busy
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

func (d *Dispatcher) next() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return job{}, false
	}
	j := d.pending[0]
	d.pending = d.pending[1:]
	d.metrics.QueueDepth(len(d.pending))
	return j, true
}

// requeue puts an unsettled job back at the head of the queue.
func (d *Dispatcher) requeue(j job) {
	d.mu.Lock()
	d.pending = append([]job{j}, d.pending...)
	depth := len(d.pending)
	d.mu.Unlock()
	d.metrics.QueueDepth(depth)
}

// deliver sends j until it succeeds, fails permanently or runs out of
// attempts. It returns false when ctx ended before the outcome was known.
func (d *Dispatcher) deliver(ctx context.Context, j job) (Outcome, bool) {
	o := Outcome{SessionID: j.sessionID}
	if d.sender == nil {
		o.Status = StatusSkipped
		o.At = time.Now()
		return o, true
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		o.Attempts++
		d.metrics.DeliveryAttempt()
		err := d.sender.Send(ctx, j.sessionID, j.report)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			d.logger.Warn("report delivery failed, retrying",
				"session_id", j.sessionID,
				"attempt", o.Attempts,
				"retry_in", wait,
				"error", err,
			)
		}),
	)

	o.At = time.Now()
	if err != nil {
		if ctx.Err() != nil {
			return o, false
		}
		o.Status = StatusFailed
		o.Error = err.Error()
		return o, true
	}
	o.Status = StatusDelivered
	return o, true
}

func (d *Dispatcher) settle(o Outcome) {
	d.mu.Lock()
	d.outcomes[o.SessionID] = o
	d.mu.Unlock()

	d.metrics.Delivery(o.Status)
	switch o.Status {
	case StatusFailed:
		d.logger.Error("report delivery failed",
			"session_id", o.SessionID,
			"attempts", o.Attempts,
			"error", o.Error,
		)
	default:
		d.logger.Info("report delivery settled",
			"session_id", o.SessionID,
			"status", o.Status,
			"attempts", o.Attempts,
		)
	}

	if d.events != nil {
		subject := hermes.SubjectDelivered
		if o.Status == StatusFailed {
			subject = hermes.SubjectDeliveryFailed
		}
		ev := hermes.DeliveryEvent{SessionID: o.SessionID, Outcome: o.Status, Attempts: o.Attempts, Error: o.Error}
		if err := d.events.Publish(subject, ev); err != nil {
			d.logger.Warn("failed to publish delivery event", "session_id", o.SessionID, "error", err)
		}
	}

	if d.onOutcome != nil {
		d.onOutcome(o)
	}
}
