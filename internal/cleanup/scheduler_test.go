package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type runnerFunc func(ctx context.Context) (Result, error)

func (f runnerFunc) RunOnce(ctx context.Context) (Result, error) { return f(ctx) }

func TestScheduler_RunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	s := NewScheduler(runnerFunc(func(context.Context) (Result, error) {
		calls.Add(1)
		return Result{}, nil
	}), "@every 1s")

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestScheduler_StopCancelsRunningSweep(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{}, 1)
	s := NewScheduler(runnerFunc(func(ctx context.Context) (Result, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return Result{}, ctx.Err()
	}), "@every 1s")

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep never started")
	}
	s.Stop()
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(runnerFunc(func(context.Context) (Result, error) { return Result{}, nil }), "whenever")
	assert.Error(t, s.Start(context.Background()))
	s.Stop()
}
