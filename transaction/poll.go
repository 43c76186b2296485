package transaction

import (
	"context"
	"log"
	"time"

	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/service"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 60
)

type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultPollMaxAttempts
	}
	return c
}

// Poller calls a fetch function until Done accepts a value, the attempts run
// out or ctx is cancelled. The last successful value is remembered: if Gone
// recognises an error after at least one success, Run stops and returns that
// value with consumed set.
type Poller[T any] struct {
	Interval    time.Duration
	MaxAttempts int
	Done        func(T) bool
	Gone        func(error) bool
	OnFailure   func(attempt int, err error)
}

func (p Poller[T]) Run(ctx context.Context, fetch func(context.Context) (T, error)) (value T, consumed bool, err error) {
	var (
		zero T
		last T
		seen bool
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := fetch(ctx)
		if ctx.Err() != nil {
			return zero, false, ctx.Err()
		}
		switch {
		case err == nil:
			last, seen = v, true
			if p.Done(v) {
				return v, false, nil
			}
		case seen && p.Gone != nil && p.Gone(err):
			return last, true, nil
		default:
			if p.OnFailure != nil {
				p.OnFailure(attempt, err)
			}
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, false, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, false, &TimeoutError{Attempts: p.MaxAttempts}
}

// ResultFetcher is the relay call the initiator polls.
type ResultFetcher interface {
	TransactionResult(ctx context.Context, shareID string) (*models.Transaction, error)
}

// WaitForAcceptance polls the relay until the share has a borrower.
//
// Relays delete a share once it has been answered, so a 404 that follows a
// successful read is taken to mean the acceptor got there between two polls.
// In that case the last record seen is used, and it still has to name a
// borrower. A 404 before any successful read is retried like any other failure.
func WaitForAcceptance(ctx context.Context, relay ResultFetcher, shareID string, cfg PollConfig) (*models.Transaction, error) {
	cfg = cfg.withDefaults()
	p := Poller[*models.Transaction]{
		Interval:    cfg.Interval,
		MaxAttempts: cfg.MaxAttempts,
		Done:        (*models.Transaction).Accepted,
		Gone:        service.IsNotFound,
		OnFailure: func(attempt int, err error) {
			log.Printf("poll %s: attempt %d/%d: %v", shareID, attempt, cfg.MaxAttempts, err)
		},
	}
	rec, consumed, err := p.Run(ctx, func(ctx context.Context) (*models.Transaction, error) {
		rec, err := relay.TransactionResult(ctx, shareID)
		pollAttempts.WithLabelValues(attemptLabel(rec, err)).Inc()
		return rec, err
	})
	if err != nil {
		return nil, err
	}
	if consumed {
		log.Printf("poll %s: share gone after a successful read, using last record", shareID)
		if !rec.Accepted() {
			return nil, ErrBorrowerMissing
		}
	}
	return rec, nil
}

func attemptLabel(rec *models.Transaction, err error) string {
	switch {
	case service.IsNotFound(err):
		return "not_found"
	case err != nil:
		return "error"
	case rec.Accepted():
		return "accepted"
	}
	return "pending"
}
