package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"huddle.app/relay/common/logger"
	"huddle.app/relay/internal/queue"
)

type PoolConfig struct {
	Concurrency int
}

// Pool reads dispatch jobs from the stream and runs at most Concurrency of them
// at once. Reading stalls while every slot is busy, so a slow provider backs up
// in Redis as undelivered entries rather than in memory.
type Pool struct {
	consumer   Consumer
	dispatcher JobDispatcher
	cfg        PoolConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func NewPool(consumer Consumer, dispatcher JobDispatcher, cfg PoolConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pool{
		consumer:   consumer,
		dispatcher: dispatcher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called. In-flight jobs are allowed
// to finish before it returns.
func (p *Pool) Run(ctx context.Context) error {
	defer close(p.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker.pool",
	})

	// One token per worker. Entries are only read for free slots, so nothing
	// sits in the group's pending list waiting behind a busy worker while
	// the reclaimer's idle clock runs.
	slots := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	slog.InfoContext(ctx, "dispatch pool started", "concurrency", p.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			slog.InfoContext(ctx, "dispatch pool stopping")
			return nil
		case slots <- struct{}{}:
		}
		free := 1 + acquireFree(slots)

		deliveries, err := p.consumer.Read(ctx, int64(free))
		if err != nil {
			releaseSlots(slots, free)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "reading dispatch jobs failed", "error", err)
			p.sleep(ctx, time.Second)
			continue
		}
		if len(deliveries) > free {
			// consumer ignored the count; never run more than we hold slots for
			slog.ErrorContext(ctx, "consumer returned more entries than requested, leaving extras for reclaim",
				"requested", free,
				"returned", len(deliveries))
			deliveries = deliveries[:free]
		}
		releaseSlots(slots, free-len(deliveries))

		for _, d := range deliveries {
			wg.Add(1)
			go func(d queue.Delivery) {
				defer wg.Done()
				defer func() { <-slots }()
				p.handle(ctx, d)
			}(d)
		}
	}
}

// acquireFree takes every slot still free without blocking.
func acquireFree(slots chan struct{}) int {
	n := 0
	for {
		select {
		case slots <- struct{}{}:
			n++
		default:
			return n
		}
	}
}

func releaseSlots(slots chan struct{}, n int) {
	for i := 0; i < n; i++ {
		<-slots
	}
}

func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.stoppedCh
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-p.stopCh:
	case <-t.C:
	}
}

// handle settles one delivery:
//   - success and duplicates are acked
//   - jobs without a usable record go to the DLQ
//   - anything else stays pending for the reclaimer
func (p *Pool) handle(ctx context.Context, d queue.Delivery) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		StreamMessageID: &d.ID,
	})

	err := p.dispatchSafe(ctx, d.Job)
	switch {
	case err == nil, errors.Is(err, ErrDuplicateDispatch):
		if ackErr := p.consumer.Ack(ctx, d); ackErr != nil {
			slog.WarnContext(ctx, "failed to ack dispatch job", "error", ackErr)
		}
	case errors.Is(err, ErrRecordMissing):
		if dlqErr := p.consumer.SendDLQ(ctx, d, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to dead-letter dispatch job", "error", dlqErr)
		}
	default:
		slog.ErrorContext(ctx, "dispatch job left pending for reclaim",
			"error", err,
			"record_id", d.Job.RecordID)
	}
}

func (p *Pool) dispatchSafe(ctx context.Context, job queue.DispatchJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in dispatch",
				"panic", r,
				"record_id", job.RecordID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.dispatcher.Dispatch(ctx, job)
}
