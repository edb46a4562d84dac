package etcdprov

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// FakeEtcdProvider keeps everything in memory. Revisions advance on every write like a real cluster.
type FakeEtcdProvider struct {
	mu              sync.RWMutex
	data            map[string]*fakeKV
	currentRevision EtcdRevision
}

type fakeKV struct {
	Value       string
	ModRevision EtcdRevision
}

func NewFakeEtcdProvider() *FakeEtcdProvider {
	return &FakeEtcdProvider{
		data:            make(map[string]*fakeKV),
		currentRevision: 1,
	}
}

func (f *FakeEtcdProvider) Get(ctx context.Context, key string) (EtcdKvItem, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if kv, ok := f.data[key]; ok {
		return EtcdKvItem{Key: key, Value: kv.Value, ModRevision: kv.ModRevision}, nil
	}
	return EtcdKvItem{Key: key}, nil
}

func (f *FakeEtcdProvider) List(ctx context.Context, prefix string, maxCount int) ([]EtcdKvItem, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	items := []EtcdKvItem{}
	for k, v := range f.data {
		if strings.HasPrefix(k, prefix) {
			items = append(items, EtcdKvItem{Key: k, Value: v.Value, ModRevision: v.ModRevision})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	if maxCount > 0 && len(items) > maxCount {
		items = items[:maxCount]
	}
	return items, nil
}

func (f *FakeEtcdProvider) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentRevision++
	f.data[key] = &fakeKV{Value: value, ModRevision: f.currentRevision}
	return nil
}

func (f *FakeEtcdProvider) Delete(ctx context.Context, key string, strictMode bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		if strictMode {
			return keyNotFound(key)
		}
		return nil
	}
	f.currentRevision++
	delete(f.data, key)
	return nil
}

func (f *FakeEtcdProvider) Close() error {
	return nil
}

func (f *FakeEtcdProvider) Revision() EtcdRevision {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.currentRevision
}
