package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/wire"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/partition"
)

// WorkerEntry is one connected worker. Index is its arrival order and never changes during a run.
type WorkerEntry struct {
	Index     int
	Address   string
	Conn      net.Conn
	Benchmark wire.Benchmark
	Assigned  partition.Interval
	Response  wire.Response
}

// WorkerPool holds at most capacity entries in arrival order.
type WorkerPool struct {
	capacity int
	entries  []*WorkerEntry

	mu     sync.Mutex
	closed bool
}

func NewWorkerPool(capacity int) *WorkerPool {
	return &WorkerPool{
		capacity: capacity,
		entries:  make([]*WorkerEntry, 0, capacity),
	}
}

func (pool *WorkerPool) Add(conn net.Conn) (*WorkerEntry, error) {
	if pool.Full() {
		return nil, kerror.Create("PoolFull", "worker pool is at capacity").With("capacity", pool.capacity).WithErrorCode(kerror.EC_RESOURCE_LIMIT)
	}
	entry := &WorkerEntry{
		Index:   len(pool.entries),
		Address: conn.RemoteAddr().String(),
		Conn:    conn,
	}
	pool.entries = append(pool.entries, entry)
	return entry, nil
}

func (pool *WorkerPool) Size() int {
	return len(pool.entries)
}

func (pool *WorkerPool) Capacity() int {
	return pool.capacity
}

func (pool *WorkerPool) Full() bool {
	return len(pool.entries) >= pool.capacity
}

func (pool *WorkerPool) Entries() []*WorkerEntry {
	return pool.entries
}

func (pool *WorkerPool) Benchmarks() []wire.Benchmark {
	benchmarks := make([]wire.Benchmark, len(pool.entries))
	for i, e := range pool.entries {
		benchmarks[i] = e.Benchmark
	}
	return benchmarks
}

// CloseAll closes every connection still open. Safe to call more than once and from several goroutines.
func (pool *WorkerPool) CloseAll() {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if pool.closed {
		return
	}
	pool.closed = true
	for _, e := range pool.entries {
		e.Conn.Close()
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// AssemblePool accepts connections until maxWorkers are pooled or window elapses. The window is an
// absolute deadline on the listener, so nothing is accepted after it. Accept errors other than the
// deadline are logged and skipped.
func AssemblePool(ctx context.Context, listener *net.TCPListener, maxWorkers int, window time.Duration) (*WorkerPool, error) {
	pool := NewWorkerPool(maxWorkers)
	deadline := time.Now().Add(window)
	if err := listener.SetDeadline(deadline); err != nil {
		return nil, kerror.Wrap(err, "ListenFailure", "cannot set accept deadline", false).WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	// a cancelled ctx pulls the deadline in so Accept returns right away
	stop := context.AfterFunc(ctx, func() { listener.SetDeadline(time.Now()) })
	defer stop()

	for !pool.Full() {
		conn, err := listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				pool.CloseAll()
				return nil, ctx.Err()
			}
			if isTimeout(err) {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				pool.CloseAll()
				return nil, kerror.Wrap(err, "ListenerClosed", "listener closed during pool assembly", false).WithErrorCode(kerror.EC_NETWORK_ERR)
			}
			klogging.Warning(ctx).WithError(err).Log("AcceptFailed", "skipping worker candidate")
			continue
		}
		conn.SetDeadline(time.Time{})
		entry, _ := pool.Add(conn)
		klogging.Info(ctx).With("index", entry.Index).With("address", entry.Address).Log("WorkerJoined", "worker connected")
	}

	if pool.Size() == 0 {
		return nil, kerror.Create("NoWorkersFound", "no workers connected within the wait window").
			With("window", window).WithErrorCode(kerror.EC_NOT_FOUND)
	}
	klogging.Info(ctx).With("workers", pool.Size()).With("max", maxWorkers).Log("PoolAssembled", "worker pool ready")
	return pool, nil
}
