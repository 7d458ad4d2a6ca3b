package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFail = errors.New("fail")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cb := New(cfg)
	cb.now = clock.Now
	return cb, clock
}

func failing(ctx context.Context) error { return errFail }
func passing(ctx context.Context) error { return nil }

func TestOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, Timeout: time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failing, nil), errFail)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	}, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing, nil)
	assert.NoError(t, cb.Execute(ctx, passing, nil))
	_ = cb.Execute(ctx, failing, nil)

	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	var transitions []string
	cb.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	})

	_ = cb.Execute(ctx, failing, nil)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	assert.NoError(t, cb.Execute(ctx, passing, nil))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing, nil)
	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, failing, nil), errFail)
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, passing, nil), ErrOpen)
}

func TestHalfOpenLimitsConcurrentProbes(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, MaxRequestsHalfOpen: 1, Timeout: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing, nil)
	clock.Advance(time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return cb.Execute(ctx, passing, nil)
	}, nil)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestUncountableErrorsPassThrough(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})
	notCounted := func(err error) bool { return !errors.Is(err, context.Canceled) }

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return context.Canceled
	}, notCounted)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestReset(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Hour})
	_ = cb.Execute(context.Background(), failing, nil)
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), passing, nil))
}
