package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/tagsync/runner"
)

func TestWorkerPool_RunsEveryRequest(t *testing.T) {
	requests := make(RequestChannel, 10)
	factory := func() *Orchestrator { return NewOrchestrator(runner.New()) }

	var mu sync.Mutex
	outcomes := map[string]Status{}
	handler := func(ctx context.Context, o *Orchestrator, req TransferRequest) error {
		out, err := RunTransfer(ctx, o, req, nil)
		if err != nil {
			return err
		}
		mu.Lock()
		outcomes[req.Tag] = out.Status
		mu.Unlock()
		return nil
	}

	pool := NewWorkerPool(context.Background(), requests, factory, handler)
	pool.SetWorkerCount(3)
	assert.Equal(t, 3, pool.WorkerCount())

	tags := []string{"celeste", "hades", "tunic", "hollowknight", "cuphead"}
	for _, tag := range tags {
		requests <- TransferRequest{Tag: tag, Command: "echo '50%'; echo 'speedup is 1.0'"}
	}
	close(requests)
	pool.Wait()

	require.Len(t, outcomes, len(tags))
	for _, tag := range tags {
		assert.Equal(t, StatusCompleted, outcomes[tag], tag)
	}
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	requests := make(RequestChannel, 10)
	factory := func() *Orchestrator { return NewOrchestrator(runner.New()) }

	var running, peak atomic.Int32
	handler := func(ctx context.Context, o *Orchestrator, req TransferRequest) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer running.Add(-1)
		_, err := RunTransfer(ctx, o, req, nil)
		return err
	}

	pool := NewWorkerPool(context.Background(), requests, factory, handler)
	pool.SetWorkerCount(2)
	for range 6 {
		requests <- TransferRequest{Tag: "celeste", Command: "sleep 0.2"}
	}
	close(requests)
	pool.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestWorkerPool_ScaleDown(t *testing.T) {
	requests := make(RequestChannel)
	factory := func() *Orchestrator { return NewOrchestrator(runner.New()) }
	handler := func(ctx context.Context, o *Orchestrator, req TransferRequest) error { return nil }

	pool := NewWorkerPool(context.Background(), requests, factory, handler)
	pool.SetWorkerCount(4)
	pool.SetWorkerCount(1)
	assert.Equal(t, 1, pool.WorkerCount())

	pool.Stop()
}

func TestWorkerPool_StopCancelsRunningTransfers(t *testing.T) {
	requests := make(RequestChannel, 1)
	factory := func() *Orchestrator { return NewOrchestrator(runner.New()) }

	result := make(chan Status, 1)
	handler := func(ctx context.Context, o *Orchestrator, req TransferRequest) error {
		out, err := RunTransfer(ctx, o, req, nil)
		result <- out.Status
		return err
	}

	pool := NewWorkerPool(context.Background(), requests, factory, handler)
	pool.SetWorkerCount(1)
	requests <- TransferRequest{Tag: "celeste", Command: "sleep 10"}

	time.Sleep(300 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	select {
	case status := <-result:
		assert.Equal(t, StatusCancelled, status)
	default:
		t.Fatal("transfer was never picked up")
	}
}
