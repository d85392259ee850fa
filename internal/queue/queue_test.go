package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
)

func runDispatcher(t *testing.T, q *queue.Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go q.Run(ctx)
}

func TestSynchronousRequestCompletesImmediately(t *testing.T) {
	q := queue.New(func(req *queue.RequestData) (secrets.Result, bool) {
		return secrets.Ok(), true
	})
	runDispatcher(t, q)

	replyC, err := q.Enqueue(1234, "ping", nil)
	require.NoError(t, err)

	select {
	case result := <-replyC:
		assert.True(t, result.Ok())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestAsynchronousRequestCompletesViaFinish(t *testing.T) {
	var pendingID uint64
	ready := make(chan struct{})

	q := queue.New(func(req *queue.RequestData) (secrets.Result, bool) {
		pendingID = req.ID
		close(ready)
		return secrets.Result{}, false
	})
	runDispatcher(t, q)

	replyC, err := q.Enqueue(1234, "unlock_collection", nil)
	require.NoError(t, err)

	<-ready
	q.Finish(pendingID, secrets.Ok())

	select {
	case result := <-replyC:
		assert.True(t, result.Ok())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestLenReflectsInFlightRequests(t *testing.T) {
	block := make(chan struct{})
	q := queue.New(func(req *queue.RequestData) (secrets.Result, bool) {
		<-block
		return secrets.Ok(), true
	})
	runDispatcher(t, q)

	_, err := q.Enqueue(1, "op", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, 5*time.Millisecond)
	close(block)
}
