// Package delivery sends one message to many recipients in paced batches.
//
// Pacing is deliberate: every recipient but the last is followed by a
// uniformly random delay, and every batch but the last by a fixed pause.
// One recipient's failure never stops the job.
package delivery

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// Defaults applied by Options.normalize.
const (
	DefaultTypingTime = 1000 * time.Millisecond
	DefaultMinDelay   = 2000 * time.Millisecond
	DefaultMaxDelay   = 5000 * time.Millisecond
	DefaultBatchSize  = 10
	MaxBatchSize      = 50
	DefaultBatchDelay = 30000 * time.Millisecond
)

// ErrNotRegistered is the error text recorded when the existence check fails.
const ErrNotRegistered = "Number not registered"

// Item is one recipient with an opaque payload handed back to the Target.
type Item struct {
	Recipient string
	Payload   any
}

// Sent is a successful delivery.
type Sent struct {
	MessageID string
	Timestamp int64
}

// Target performs the single-message send for the scheduler.
type Target interface {
	// Deliver sends item. jobID tags the send in the delivery ledger.
	Deliver(ctx context.Context, jobID string, item Item) (Sent, error)
	// IsRegistered reports whether recipient has an account.
	IsRegistered(ctx context.Context, recipient string) (bool, error)
}

// Options controls pacing. Zero values take the defaults; a negative
// BatchDelay disables the pause between batches.
type Options struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	BatchSize   int
	BatchDelay  time.Duration
	CheckNumber bool
}

func (o Options) normalize() Options {
	if o.MinDelay <= 0 {
		o.MinDelay = DefaultMinDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize > MaxBatchSize {
		o.BatchSize = MaxBatchSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	} else if o.BatchDelay == 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	return o
}

// Success is one itemized success in a Summary.
type Success struct {
	Recipient string `json:"recipient"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// Failure is one itemized failure in a Summary.
type Failure struct {
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// Summary is the outcome of a job. Total always equals Success plus Failed.
type Summary struct {
	JobID     string    `json:"jobId"`
	Total     int       `json:"total"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	Results   []Success `json:"results"`
	Errors    []Failure `json:"errors"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler runs delivery jobs against a Target.
type Scheduler struct {
	target Target
	logger *zap.Logger
	sleep  Sleeper
	rand   func(n int64) int64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSleeper replaces the pacing wait.
func WithSleeper(s Sleeper) Option {
	return func(sc *Scheduler) { sc.sleep = s }
}

// WithRand replaces the jitter source; fn returns a value in [0, n).
func WithRand(fn func(n int64) int64) Option {
	return func(sc *Scheduler) { sc.rand = fn }
}

// New creates a Scheduler for target.
func New(target Target, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		target: target,
		logger: logger,
		sleep:  sleepCtx,
		rand:   rand.Int64N,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run delivers items in order. Cancelling ctx stops the job before the next
// recipient; the summary covers what was attempted and has Cancelled set.
func (s *Scheduler) Run(ctx context.Context, items []Item, opts Options) Summary {
	opts = opts.normalize()
	sum := Summary{
		JobID:   uuid.NewString(),
		Results: []Success{},
		Errors:  []Failure{},
	}

	for start := 0; start < len(items); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(items))
		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				sum.Cancelled = true
				return sum
			}
			s.deliverOne(ctx, sum.JobID, items[i], opts, &sum)

			if i < len(items)-1 {
				if s.sleep(ctx, s.jitter(opts)) != nil {
					sum.Cancelled = true
					return sum
				}
			}
		}
		if end < len(items) {
			s.logger.Debug("batch complete, pausing",
				zap.String("job", sum.JobID),
				zap.Int("sent", end),
				zap.Int("total", len(items)),
				zap.Duration("delay", opts.BatchDelay),
			)
			if s.sleep(ctx, opts.BatchDelay) != nil {
				sum.Cancelled = true
				return sum
			}
		}
	}
	return sum
}

func (s *Scheduler) deliverOne(ctx context.Context, jobID string, item Item, opts Options, sum *Summary) {
	sum.Total++
	fail := func(msg string) {
		sum.Failed++
		sum.Errors = append(sum.Errors, Failure{Recipient: item.Recipient, Error: msg})
	}

	if opts.CheckNumber && !wa.IsGroupID(item.Recipient) {
		ok, err := s.target.IsRegistered(ctx, item.Recipient)
		if err != nil {
			fail(err.Error())
			return
		}
		if !ok {
			fail(ErrNotRegistered)
			return
		}
	}

	sent, err := s.target.Deliver(ctx, jobID, item)
	if err != nil {
		s.logger.Warn("bulk item failed", zap.String("job", jobID), zap.String("recipient", item.Recipient), zap.Error(err))
		fail(err.Error())
		return
	}
	sum.Success++
	sum.Results = append(sum.Results, Success{
		Recipient: item.Recipient,
		MessageID: sent.MessageID,
		Timestamp: sent.Timestamp,
	})
}

// jitter returns a uniform delay in [MinDelay, MaxDelay].
func (s *Scheduler) jitter(opts Options) time.Duration {
	span := int64(opts.MaxDelay - opts.MinDelay)
	if span <= 0 {
		return opts.MinDelay
	}
	return opts.MinDelay + time.Duration(s.rand(span+1))
}
