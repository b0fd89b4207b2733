package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p := New(Config{NWorkersCPU: 2, NWorkersGPU: 1, UpdateTimeout: 10 * time.Millisecond}, nil)
	t.Cleanup(p.Stop)
	return p
}

func TestSubmitRunsAndReportsDone(t *testing.T) {
	p := newTestPool(t)

	done := make(chan Result, 1)
	p.RegisterHook("unit-test", func(_ context.Context, res Result) {
		done <- res
	})

	id, err := p.Submit(context.Background(), "unit-test", "proj-1", "alice", models.QueueCPU, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case res := <-done:
		assert.Equal(t, models.TaskDone, res.Task.Status)
		assert.Equal(t, "ok", res.Value)
		assert.NoError(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("hook never fired")
	}
}

func TestSubmitReportsFailure(t *testing.T) {
	p := newTestPool(t)
	done := make(chan Result, 1)
	p.RegisterHook("unit-test-fail", func(_ context.Context, res Result) { done <- res })

	boom := errors.New("boom")
	_, err := p.Submit(context.Background(), "unit-test-fail", "proj-1", "alice", models.QueueCPU, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.NoError(t, err)

	select {
	case res := <-done:
		assert.Equal(t, models.TaskFailed, res.Task.Status)
		assert.ErrorIs(t, res.Err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("hook never fired")
	}
}

func TestKillCancelsRunningTask(t *testing.T) {
	p := newTestPool(t)
	started := make(chan struct{})
	done := make(chan Result, 1)
	p.RegisterHook("cancel-test", func(_ context.Context, res Result) { done <- res })

	id, err := p.Submit(context.Background(), "cancel-test", "proj-1", "alice", models.QueueCPU, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, p.Kill(id))

	select {
	case res := <-done:
		assert.Equal(t, models.TaskCancelled, res.Task.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled task never completed")
	}
}

func TestKillUnknownTaskReturnsNotFound(t *testing.T) {
	p := newTestPool(t)
	err := p.Kill("does-not-exist")
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestStatusReflectsLifecycle(t *testing.T) {
	p := newTestPool(t)
	release := make(chan struct{})
	started := make(chan struct{})

	id, err := p.Submit(context.Background(), "status-test", "proj-1", "bob", models.QueueCPU, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	<-started
	snap, err := p.Status(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, snap.Status)
	close(release)
}

func TestActiveByUserFiltersByKindAndStatus(t *testing.T) {
	p := newTestPool(t)
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	_, err := p.Submit(context.Background(), "kind-a", "proj-1", "carol", models.QueueCPU, func(ctx context.Context) (any, error) {
		wg.Done()
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), "kind-b", "proj-1", "carol", models.QueueCPU, func(ctx context.Context) (any, error) {
		wg.Done()
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	wg.Wait()
	active := p.ActiveByUser("carol", []string{"kind-a"})
	assert.Len(t, active, 1)
	assert.Equal(t, "kind-a", active[0].Kind)

	allKinds := p.ActiveByUser("carol", nil)
	assert.Len(t, allKinds, 2)

	noneForOtherUser := p.ActiveByUser("dave", nil)
	assert.Empty(t, noneForOtherUser)

	close(release)
}

func TestSetProgressUpdatesSnapshot(t *testing.T) {
	p := newTestPool(t)
	release := make(chan struct{})
	started := make(chan struct{})

	id, err := p.Submit(context.Background(), "progress-test", "proj-1", "erin", models.QueueCPU, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	p.SetProgress(id, "3/10")
	snap, err := p.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "3/10", snap.Progress)
	close(release)
}

func TestPanicInHookIsRecovered(t *testing.T) {
	p := newTestPool(t)
	done := make(chan struct{}, 1)
	p.RegisterHook("panicky", func(_ context.Context, res Result) {
		defer close(done)
		panic("hook exploded")
	})

	_, err := p.Submit(context.Background(), "panicky", "proj-1", "frank", models.QueueCPU, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hook never ran")
	}
	// The pool must still be usable after a hook panics.
	_, err = p.Submit(context.Background(), "unit-test", "proj-1", "frank", models.QueueCPU, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	assert.NoError(t, err)
}
