// Package queue is the request queue and cooperative dispatcher (§4.4,
// C4): a single queue of in-flight requests serviced by one dispatcher
// goroutine, directly grounded on the original daemon's
// RequestQueue::enqueueRequest / handleRequests pair. Go replaces the
// original's Qt event-loop re-posting with a goroutine that loops on a
// wakeup channel, but keeps the same free-id allocation scheme and the
// same 100ms yield budget so that a large backlog cannot starve the
// dispatcher of responsiveness to new requests.
package queue

import (
	"context"
	"sync"
	"time"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

// Status is a request's position in its lifecycle, mirroring the
// original's RequestPending / RequestInProgress / RequestFinished enum.
type Status int

const (
	Pending Status = iota
	InProgress
	Finished
)

// RequestData is one in-flight request. Handler implementations
// (internal/processor) read Verb/Params/CallerPID and, for completed
// requests, report back through Finish rather than writing Result
// directly — the queue alone owns the state transition into Finished so
// that the dispatcher never races a handler goroutine.
type RequestData struct {
	ID        uint64
	CallerPID int
	Verb      string
	Params    interface{}

	status Status
	result secrets.Result
	replyC chan secrets.Result
}

// Handler processes a Pending request. If it returns completed=true, the
// returned result is delivered immediately. If completed=false, the
// handler has started an asynchronous continuation (e.g. waiting on an
// AuthenticationPlugin) and must eventually call Queue.Finish with the
// same request's ID.
type Handler func(*RequestData) (result secrets.Result, completed bool)

// Queue is the cooperative request queue and dispatcher.
type Queue struct {
	handler Handler

	mu       sync.Mutex
	requests []*RequestData
	nextID   uint64

	wake chan struct{}
}

// New constructs a Queue that calls handler for every Pending request.
func New(handler Handler) *Queue {
	return &Queue{
		handler: handler,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue admits a new request and returns a channel that receives
// exactly one secrets.Result once the request completes. It returns
// ErrSecretsDaemonRequestQueueFull if every uint64 request id is
// currently in use — which in practice only happens under a pathological
// backlog, since ids are only reused after wrapping all the way around.
func (q *Queue) Enqueue(callerPID int, verb string, params interface{}) (<-chan secrets.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok := q.nextFreeID()
	if !ok {
		return nil, secrets.NewError(secrets.ErrSecretsDaemonRequestQueueFull, "request queue is full, try again later")
	}

	req := &RequestData{
		ID:        id,
		CallerPID: callerPID,
		Verb:      verb,
		Params:    params,
		status:    Pending,
		replyC:    make(chan secrets.Result, 1),
	}
	q.requests = append(q.requests, req)
	q.notify()
	return req.replyC, nil
}

// nextFreeID scans the in-flight requests for the first id not currently
// in use, starting just after the previously issued id and wrapping
// around — the same free-id scan as the original's enqueueRequest, which
// starts at ++requestId and loops "for ( ; nextFreeId != prevId; ++nextFreeId)".
func (q *Queue) nextFreeID() (uint64, bool) {
	prevID := q.nextID
	candidate := prevID + 1
	for {
		inUse := false
		for _, r := range q.requests {
			if r.ID == candidate {
				inUse = true
				break
			}
		}
		if !inUse {
			q.nextID = candidate
			return candidate, true
		}
		candidate++
		if candidate == prevID {
			return 0, false
		}
	}
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Finish transitions a request to Finished with the given result and
// wakes the dispatcher, so that an asynchronous continuation (§4.5's
// *WithAuthenticationKey workers, or a crypto-helper completion) can
// deliver its outcome without holding up the dispatcher while it waits.
func (q *Queue) Finish(id uint64, result secrets.Result) {
	q.mu.Lock()
	for _, r := range q.requests {
		if r.ID == id {
			r.status = Finished
			r.result = result
			q.notify()
			q.mu.Unlock()
			return
		}
	}
	q.mu.Unlock()
}

// Run drives the dispatcher until ctx is cancelled. It must run on its
// own goroutine; the Handler it was constructed with, and every
// continuation that calls Finish, may run on other goroutines, but only
// Run itself mutates request status from Pending/InProgress towards
// Finished-and-removed.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
			q.dispatchOnce()
		}
	}
}

// yieldBudget mirrors the original's QElapsedTimer-gated 100msec budget:
// once handling the backlog has taken this long, stop and re-notify
// rather than starve other work indefinitely.
const yieldBudget = 100 * time.Millisecond

func (q *Queue) dispatchOnce() {
	start := time.Now()

	for {
		q.mu.Lock()
		if len(q.requests) == 0 {
			q.mu.Unlock()
			return
		}

		var (
			req    *RequestData
			idx    int
			action Status
		)
		for i, r := range q.requests {
			if r.status == Pending {
				req, idx, action = r, i, Pending
				break
			}
			if r.status == Finished {
				req, idx, action = r, i, Finished
				break
			}
		}
		if req == nil {
			// Everything remaining is InProgress awaiting a continuation.
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		switch action {
		case Pending:
			req.status = InProgress
			result, completed := q.handler(req)
			if completed {
				q.deliver(idx, req, result)
			}
		case Finished:
			q.deliver(idx, req, req.result)
		}

		if time.Since(start) > yieldBudget {
			q.mu.Lock()
			stillWork := len(q.requests) > 0
			q.mu.Unlock()
			if stillWork {
				q.notify()
			}
			return
		}
	}
}

// deliver sends the result to the waiting caller and removes the request
// from the queue. It re-locates the request by id rather than trusting
// idx, since the slice may have been mutated by a concurrent Enqueue
// between the scan and here.
func (q *Queue) deliver(_ int, req *RequestData, result secrets.Result) {
	req.replyC <- result
	close(req.replyC)

	q.mu.Lock()
	for i, r := range q.requests {
		if r.ID == req.ID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
}

// Len reports how many requests are currently in flight, used by a
// status verb to report queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}
