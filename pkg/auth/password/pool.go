package password

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rhuss/digsite/pkg/observability"
)

// Pool bounds the number of concurrent hash and verify calls on the
// wrapped hasher. Callers wait for a free worker or until their context is
// done.
type Pool struct {
	inner   Hasher
	sem     *semaphore.Weighted
	workers int
}

// NewPool wraps inner with a pool of the given size (minimum 1).
func NewPool(inner Hasher, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{inner: inner, sem: semaphore.NewWeighted(int64(workers)), workers: workers}
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Hash runs inner.Hash on a pool worker.
func (p *Pool) Hash(ctx context.Context, plaintext string) (string, error) {
	var out string
	err := p.run(ctx, "hash", func() error {
		var err error
		out, err = p.inner.Hash(ctx, plaintext)
		return err
	})
	return out, err
}

// Verify runs inner.Verify on a pool worker.
func (p *Pool) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	var ok bool
	err := p.run(ctx, "verify", func() error {
		var err error
		ok, err = p.inner.Verify(ctx, plaintext, hash)
		return err
	})
	return ok, err
}

// NeedsRehash delegates to the wrapped hasher when it supports it.
func (p *Pool) NeedsRehash(hash string) bool {
	if r, ok := p.inner.(Rehasher); ok {
		return r.NeedsRehash(hash)
	}
	return false
}

func (p *Pool) run(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	defer func() {
		observability.PasswordHashDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	observability.PasswordPoolInUse.Inc()
	defer func() {
		observability.PasswordPoolInUse.Dec()
		p.sem.Release(1)
	}()

	return fn()
}
