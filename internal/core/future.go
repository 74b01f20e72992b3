package core

import "sync"

// Thenable is the capability set that marks a returned value as a deferred
// result: anything that can have resolution and rejection handlers attached.
// *Future implements it; so can caller-supplied future types.
type Thenable interface {
	Then(onResolve func(vals []any), onReject func(reason error))
}

type futureState int

const (
	futurePending futureState = iota
	futureResolved
	futureRejected
)

// Future is a deferred result that settles exactly once, with either
// resolution values or a rejection reason. Handlers are always dispatched
// through the scheduling loop, even when attached after settlement, so
// observers never see a synchronous settle.
type Future struct {
	loop *Loop

	mu        sync.Mutex
	state     futureState
	vals      []any
	reason    error
	resolvers []func([]any)
	rejectors []func(error)
}

// NewFuture creates a pending Future scheduled on the given loop. A nil loop
// selects the process-wide default.
func NewFuture(loop *Loop) *Future {
	if loop == nil {
		loop = DefaultLoop()
	}

	return &Future{loop: loop}
}

// Resolve settles the future with values. Later settles are ignored.
func (f *Future) Resolve(vals ...any) {
	f.mu.Lock()

	if f.state != futurePending {
		f.mu.Unlock()
		return
	}

	f.state = futureResolved
	f.vals = vals
	resolvers := f.resolvers
	f.resolvers, f.rejectors = nil, nil
	f.mu.Unlock()

	for _, handle := range resolvers {
		f.loop.Defer(func() { handle(vals) })
	}
}

// Reject settles the future with a reason. Later settles are ignored.
func (f *Future) Reject(reason error) {
	f.mu.Lock()

	if f.state != futurePending {
		f.mu.Unlock()
		return
	}

	f.state = futureRejected
	f.reason = reason
	rejectors := f.rejectors
	f.resolvers, f.rejectors = nil, nil
	f.mu.Unlock()

	for _, handle := range rejectors {
		f.loop.Defer(func() { handle(reason) })
	}
}

// Then attaches settlement handlers. Either handler may be nil. Handlers for
// an already-settled future are still delivered on a later scheduling turn.
func (f *Future) Then(onResolve func(vals []any), onReject func(reason error)) {
	f.mu.Lock()

	switch f.state {
	case futurePending:
		if onResolve != nil {
			f.resolvers = append(f.resolvers, onResolve)
		}

		if onReject != nil {
			f.rejectors = append(f.rejectors, onReject)
		}

		f.mu.Unlock()
	case futureResolved:
		vals := f.vals
		f.mu.Unlock()

		if onResolve != nil {
			f.loop.Defer(func() { onResolve(vals) })
		}
	case futureRejected:
		reason := f.reason
		f.mu.Unlock()

		if onReject != nil {
			f.loop.Defer(func() { onReject(reason) })
		}
	}
}

// Await blocks until the future settles and returns its resolution values or
// rejection reason.
func (f *Future) Await() ([]any, error) {
	done := make(chan struct{})

	var (
		vals   []any
		reason error
	)

	f.Then(
		func(v []any) { vals = v; close(done) },
		func(err error) { reason = err; close(done) },
	)

	<-done

	return vals, reason
}
