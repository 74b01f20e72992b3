package core

import "sync"

// Loop is a cooperative single-goroutine scheduler. Replayed callbacks and
// future settlements are always deferred through a Loop so that callers of an
// asynchronous-shaped call never observe synchronous completion, matching the
// live timing contract. Tasks run in the order they were deferred.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
	stop  sync.Once
}

// NewLoop creates a Loop and starts its scheduling goroutine.
func NewLoop() *Loop {
	loop := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	go loop.run()

	return loop
}

// Defer schedules task for a later scheduling turn. It never runs task
// synchronously.
func (l *Loop) Defer(task func()) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop shuts the scheduling goroutine down. Tasks still queued are dropped.
func (l *Loop) Stop() {
	l.stop.Do(func() { close(l.done) })
}

func (l *Loop) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			for {
				l.mu.Lock()

				if len(l.queue) == 0 {
					l.mu.Unlock()
					break
				}

				task := l.queue[0]
				l.queue = l.queue[1:]
				l.mu.Unlock()

				task()
			}
		}
	}
}

//nolint:gochecknoglobals // process-wide fallback loop, created on first use
var (
	defaultLoop     *Loop
	defaultLoopOnce sync.Once
)

// DefaultLoop returns the process-wide scheduling loop, creating it on first
// use. Wrappers that aren't given a loop explicitly share this one, which
// keeps deferred work ordered across wrappers.
func DefaultLoop() *Loop {
	defaultLoopOnce.Do(func() { defaultLoop = NewLoop() })

	return defaultLoop
}
