package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrent argon2 computations. Each hash costs
// tens of megabytes and several milliseconds of CPU, so an unbounded burst of
// logins would starve every other request on the host.
type Pool struct {
	hasher *Argon2
	sem    *semaphore.Weighted
}

// NewPool wraps hasher with a weighted semaphore of size concurrency.
// A non-positive concurrency defaults to GOMAXPROCS.
func NewPool(hasher *Argon2, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}
}

// Hash waits for a slot and hashes password. It returns ctx.Err() if the
// context ends while waiting.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	return p.hasher.Hash(password)
}

// Verify waits for a slot and verifies password against encodedHash.
func (p *Pool) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	return p.hasher.Verify(password, encodedHash)
}

// VerifyDummy waits for a slot and burns one verification worth of work.
func (p *Pool) VerifyDummy(ctx context.Context, password string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.hasher.VerifyDummy(password)
	return nil
}

// NeedsUpgrade does not take a slot; it only parses the hash.
func (p *Pool) NeedsUpgrade(encodedHash string) (bool, error) {
	return p.hasher.NeedsUpgrade(encodedHash)
}
