package kmetrics

import (
	"sort"
	"sync"

	"go.opencensus.io/metric/metricdata"
	"go.opencensus.io/metric/metricproducer"
)

// KmetricsRegistry implements metricproducer.Producer.
type KmetricsRegistry struct {
	mu         sync.RWMutex
	metrics    map[string]*Kmetric
	histograms map[string]*Khistogram
	globalTags map[string]string
}

var _ metricproducer.Producer = (*KmetricsRegistry)(nil)

func NewKmetricsRegistry() *KmetricsRegistry {
	return &KmetricsRegistry{
		metrics:    make(map[string]*Kmetric),
		histograms: make(map[string]*Khistogram),
		globalTags: make(map[string]string),
	}
}

var kmetricsRegistry = NewKmetricsRegistry()

func GetKmetricsRegistry() *KmetricsRegistry {
	return kmetricsRegistry
}

// RegisterKmetric replaces any metric previously registered under the same name.
func (registry *KmetricsRegistry) RegisterKmetric(km *Kmetric) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.metrics[km.metricName] = km
}

func (registry *KmetricsRegistry) RegisterHistogram(his *Khistogram) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.histograms[his.metricName] = his
}

// AddGlobalTag appends key=value to every exported series, e.g. the process role.
func (registry *KmetricsRegistry) AddGlobalTag(key, value string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.globalTags[key] = value
}

// Read returns metrics sorted by name.
func (registry *KmetricsRegistry) Read() []*metricdata.Metric {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	list := []*metricdata.Metric{}
	for _, km := range registry.metrics {
		list = append(list, registry.attachGlobalTags(km.ReadCount()))
		if !km.countOnly {
			list = append(list, registry.attachGlobalTags(km.ReadSum()))
		}
	}
	for _, his := range registry.histograms {
		for _, m := range his.Read() {
			list = append(list, registry.attachGlobalTags(m))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Descriptor.Name < list[j].Descriptor.Name })
	return list
}

func (registry *KmetricsRegistry) attachGlobalTags(m *metricdata.Metric) *metricdata.Metric {
	keys := make([]string, 0, len(registry.globalTags))
	for k := range registry.globalTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Descriptor.LabelKeys = append(m.Descriptor.LabelKeys, metricdata.LabelKey{Key: k})
		for _, ts := range m.TimeSeries {
			ts.LabelValues = append(ts.LabelValues, metricdata.NewLabelValue(registry.globalTags[k]))
		}
	}
	return m
}
