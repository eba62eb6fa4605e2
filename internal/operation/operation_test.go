package operation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRegistry_SecondStartIsBusy(t *testing.T) {
	r := NewRegistry(Options{})
	release := make(chan struct{})

	op, err := r.Start(context.Background(), "Autolineup", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, r.Status().State)
	assert.Same(t, op, r.Current())

	_, err = r.Start(context.Background(), "Align teams", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerBusy)
	var busy *BusyError
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, "Autolineup", busy.Running)
	assert.Equal(t, "server is currently busy with operation: Autolineup", err.Error())

	close(release)
	require.NoError(t, op.Wait(waitCtx(t)))
	assert.Nil(t, r.Current())

	// Idle again: a new run is accepted.
	next, err := r.Start(context.Background(), "Align teams", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, next.Wait(waitCtx(t)))
}

func TestRegistry_ReturnsToIdleAfterFailureAndPanic(t *testing.T) {
	r := NewRegistry(Options{})
	boom := errors.New("boom")

	err := r.Run(waitCtx(t), "Autolineup", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	st := r.Status()
	assert.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, "failed", st.Last.Status)
	assert.Equal(t, "boom", st.Last.Error)

	err = r.Run(waitCtx(t), "Autolineup", func(ctx context.Context) error { panic("kaput") })
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "kaput", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Nil(t, r.Current())

	err = r.Run(waitCtx(t), "Autolineup", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "succeeded", r.Status().Last.Status)
}

func TestRegistry_DetachesFromCallerCancellation(t *testing.T) {
	r := NewRegistry(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	op, err := r.Start(ctx, "Autolineup", func(ctx context.Context) error {
		close(started)
		<-release
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started
	cancel()
	close(release)

	assert.NoError(t, op.Wait(waitCtx(t)))
}

func TestRegistry_ConcurrentStartsAdmitOne(t *testing.T) {
	r := NewRegistry(Options{})
	release := make(chan struct{})
	var admitted, busy atomic.Int32
	var ops []*Operation
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op, err := r.Start(context.Background(), "Autolineup", func(ctx context.Context) error {
				<-release
				return nil
			})
			if err != nil {
				busy.Add(1)
				return
			}
			admitted.Add(1)
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(release)

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(15), busy.Load())
	for _, op := range ops {
		require.NoError(t, op.Wait(waitCtx(t)))
	}
}
