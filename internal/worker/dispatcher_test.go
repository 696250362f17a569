package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"adminbot/internal/models"
)

func event(p models.Principal, id string) models.Event {
	return models.Event{ID: id, Principal: p, Kind: models.EventText, Text: id}
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close dispatcher: %v", err)
	}
}

func TestDispatcherKeepsPerPrincipalOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu     sync.Mutex
		seen   = make(map[models.Principal][]string)
		active = make(map[models.Principal]*int32)
	)
	for _, p := range []models.Principal{1, 2, 3} {
		active[p] = new(int32)
	}
	var overlap atomic.Bool

	d := NewDispatcher(Config{MinWorkers: 2, MaxWorkers: 4, QueueSize: 64}, HandlerFunc(func(_ context.Context, ev models.Event) {
		if atomic.AddInt32(active[ev.Principal], 1) != 1 {
			overlap.Store(true)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[ev.Principal] = append(seen[ev.Principal], ev.ID)
		mu.Unlock()
		atomic.AddInt32(active[ev.Principal], -1)
	}), nil)

	const perPrincipal = 20
	for i := 0; i < perPrincipal; i++ {
		for _, p := range []models.Principal{1, 2, 3} {
			require.NoError(t, d.Submit(event(p, fmt.Sprintf("%d-%02d", p, i))))
		}
	}
	closeDispatcher(t, d)

	require.False(t, overlap.Load(), "events of one principal ran concurrently")
	for _, p := range []models.Principal{1, 2, 3} {
		got := seen[p]
		require.Len(t, got, perPrincipal)
		for i, id := range got {
			require.Equal(t, fmt.Sprintf("%d-%02d", p, i), id)
		}
	}
}

func TestDispatcherRunsPrincipalsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	otherDone := make(chan struct{})
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8}, HandlerFunc(func(_ context.Context, ev models.Event) {
		if ev.Principal == 1 {
			<-release
			return
		}
		close(otherDone)
	}), nil)

	require.NoError(t, d.Submit(event(1, "slow")))
	require.NoError(t, d.Submit(event(2, "fast")))

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("principal 2 was blocked behind principal 1")
	}
	close(release)
	closeDispatcher(t, d)
}

func TestDispatcherBusyWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	var (
		mu    sync.Mutex
		order []string
	)
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, HandlerFunc(func(_ context.Context, ev models.Event) {
		if ev.ID == "e1" {
			<-release
		}
		mu.Lock()
		order = append(order, ev.ID)
		mu.Unlock()
	}), nil)

	require.NoError(t, d.Submit(event(7, "e1")))
	require.Eventually(t, func() bool { return d.Stats().InFlight == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Submit(event(7, "e2")))
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.queued == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Submit(event(7, "e3")))
	require.ErrorIs(t, d.Submit(event(7, "e4")), ErrDispatcherBusy)

	close(release)
	closeDispatcher(t, d)
	require.Equal(t, []string{"e1", "e2", "e3"}, order)
	require.ErrorIs(t, d.Submit(event(7, "late")), ErrDispatcherClosed)
}

func TestDispatcherRecoversFromPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	var handled atomic.Int32
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, HandlerFunc(func(_ context.Context, ev models.Event) {
		if ev.ID == "boom" {
			panic("handler exploded")
		}
		handled.Add(1)
	}), nil)

	require.NoError(t, d.Submit(event(1, "boom")))
	require.NoError(t, d.Submit(event(1, "after")))
	closeDispatcher(t, d)
	require.EqualValues(t, 1, handled.Load())
}

func TestDispatcherCloseTimeoutCancelsHandlers(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, HandlerFunc(func(ctx context.Context, _ models.Event) {
		close(started)
		<-ctx.Done()
	}), nil)

	require.NoError(t, d.Submit(event(1, "stuck")))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	// the cancelled handler returns and the dispatcher winds down
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatcher did not stop after cancellation")
	}
}

func TestPoolRetiresIdleWorkersDownToMin(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(Config{MinWorkers: 1, MaxWorkers: 3, QueueSize: 8, IdleTimeout: 20 * time.Millisecond}, HandlerFunc(func(context.Context, models.Event) {
		time.Sleep(5 * time.Millisecond)
	}), nil)

	for p := models.Principal(1); p <= 3; p++ {
		require.NoError(t, d.Submit(event(p, "x")))
	}
	require.Eventually(t, func() bool { return d.Stats().Workers == 1 }, 2*time.Second, 10*time.Millisecond)
	closeDispatcher(t, d)
}
