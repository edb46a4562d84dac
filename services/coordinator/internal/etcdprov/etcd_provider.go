package etcdprov

import (
	"context"
	"sync"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

func keyNotFound(key string) *kerror.Kerror {
	return kerror.Create("KeyNotFound", "key not found").With("key", key).WithErrorCode(kerror.EC_NOT_FOUND)
}

type EtcdRevision int64

type EtcdKvItem struct {
	Key         string
	Value       string
	ModRevision EtcdRevision
}

// EtcdProvider is the slice of etcd the run store needs. Every call returns its failure instead of panicking.
type EtcdProvider interface {
	// Get returns an item with empty Value and ModRevision 0 when key does not exist.
	Get(ctx context.Context, key string) (EtcdKvItem, error)

	// List returns keys under prefix in ascending key order; maxCount 0 means no limit.
	List(ctx context.Context, prefix string, maxCount int) ([]EtcdKvItem, error)

	Set(ctx context.Context, key, value string) error

	// Delete fails with KeyNotFound in strict mode when nothing was deleted.
	Delete(ctx context.Context, key string, strictMode bool) error

	Close() error
}

var (
	mu                  sync.Mutex
	currentEtcdProvider EtcdProvider
)

// GetCurrentEtcdProvider connects lazily with the ETCD_* env settings.
func GetCurrentEtcdProvider(ctx context.Context) (EtcdProvider, error) {
	mu.Lock()
	defer mu.Unlock()
	if currentEtcdProvider == nil {
		pvd, err := NewDefaultEtcdProvider(ctx)
		if err != nil {
			return nil, err
		}
		currentEtcdProvider = pvd
	}
	return currentEtcdProvider, nil
}

// RunWithEtcdProvider swaps in provider for the duration of fn, restoring the old one even if fn panics.
func RunWithEtcdProvider(provider EtcdProvider, fn func()) {
	mu.Lock()
	old := currentEtcdProvider
	currentEtcdProvider = provider
	mu.Unlock()
	defer func() {
		mu.Lock()
		currentEtcdProvider = old
		mu.Unlock()
	}()
	fn()
}

func ResetEtcdProvider() {
	mu.Lock()
	defer mu.Unlock()
	currentEtcdProvider = nil
}
