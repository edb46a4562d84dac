package krunloop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kmetrics"
)

var (
	RunLoopElapsedMsMetric = kmetrics.CreateKmetric(context.Background(), "runloop_elapsed_ms", "time spent processing run loop events", []string{"name", "event"})
)

// CriticalResource is the state owned by one RunLoop. Only events touch it, one at a time.
type CriticalResource interface {
	IsResource()
}

type IEvent[T CriticalResource] interface {
	GetName() string
	Process(ctx context.Context, resource T)
}

type EventPoster[T CriticalResource] interface {
	PostEvent(event IEvent[T])
}

// RunLoop processes posted events strictly one after another on the goroutine calling Run.
type RunLoop[T CriticalResource] struct {
	name             string
	resource         T
	queue            *UnboundedQueue[T]
	currentEventName atomic.Value

	mu     sync.Mutex
	cancel context.CancelFunc
	exited chan struct{}
}

// NewRunLoop: name is for logging and metrics only.
func NewRunLoop[T CriticalResource](ctx context.Context, resource T, name string) *RunLoop[T] {
	return &RunLoop[T]{
		name:     name,
		resource: resource,
		queue:    NewUnboundedQueue[T](),
		exited:   make(chan struct{}),
	}
}

// PostEvent never blocks.
func (rl *RunLoop[T]) PostEvent(event IEvent[T]) {
	rl.queue.Enqueue(event)
}

// CurrentEvent returns the name of the event being processed, "" when idle.
func (rl *RunLoop[T]) CurrentEvent() string {
	s, _ := rl.currentEventName.Load().(string)
	return s
}

func (rl *RunLoop[T]) QueueSize() int {
	return rl.queue.GetSize()
}

// Run blocks until ctx is done or StopAndWaitForExit is called. Pending events are discarded on exit.
func (rl *RunLoop[T]) Run(ctx context.Context) {
	rl.mu.Lock()
	ctx, rl.cancel = context.WithCancel(ctx)
	rl.mu.Unlock()
	defer func() {
		rl.queue.Close()
		close(rl.exited)
	}()

	for {
		for {
			if ctx.Err() != nil {
				break
			}
			event, ok := rl.queue.TryDequeue()
			if !ok {
				break
			}
			rl.processOne(ctx, event)
		}
		select {
		case <-ctx.Done():
			klogging.Info(ctx).With("runloop", rl.name).Log("RunLoopStopped", "run loop stopped")
			return
		case <-rl.queue.Notify():
		}
	}
}

func (rl *RunLoop[T]) processOne(ctx context.Context, event IEvent[T]) {
	name := event.GetName()
	rl.currentEventName.Store(name)
	sw := kcommon.StartStopwatch()
	defer func() {
		rl.currentEventName.Store("")
		RunLoopElapsedMsMetric.GetTimeSequence(ctx, rl.name, name).Add(int64(sw.ElapsedMs()))
	}()
	event.Process(ctx, rl.resource)
}

// Done is closed once Run has returned.
func (rl *RunLoop[T]) Done() <-chan struct{} {
	return rl.exited
}

// StopAndWaitForExit is a no-op if Run was never called.
func (rl *RunLoop[T]) StopAndWaitForExit() {
	rl.mu.Lock()
	cancel := rl.cancel
	rl.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-rl.exited
}
