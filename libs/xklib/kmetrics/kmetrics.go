package kmetrics

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"go.opencensus.io/metric/metricdata"
	"go.opencensus.io/resource"
)

// Kmetric is one logical metric exported as <name>_count and, unless CountOnly, <name>_sum.
// Each distinct tag value combination is one TimeSequence.
type Kmetric struct {
	mu          sync.Mutex // held only while adding a sequence
	metricName  string
	description string
	tagNames    []string
	sequences   atomic.Pointer[map[string]*TimeSequence]
	startTime   time.Time
	countOnly   bool
}

func CreateKmetric(ctx context.Context, name string, description string, tags []string) *Kmetric {
	km := newKmetric(name, description, tags)
	GetKmetricsRegistry().RegisterKmetric(km)
	return km
}

func newKmetric(name string, description string, tags []string) *Kmetric {
	km := &Kmetric{
		metricName:  name,
		description: description,
		tagNames:    tags,
		startTime:   time.Now(),
	}
	empty := map[string]*TimeSequence{}
	km.sequences.Store(&empty)
	return km
}

func (km *Kmetric) CountOnly() *Kmetric {
	km.countOnly = true
	return km
}

func (km *Kmetric) Name() string {
	return km.metricName
}

func makeSequenceKey(tags ...string) string {
	return strings.Join(tags, "-")
}

// GetTimeSequence panics with InvalidTagValues if len(tags) != number of tag names.
func (km *Kmetric) GetTimeSequence(ctx context.Context, tags ...string) *TimeSequence {
	key := makeSequenceKey(tags...)
	if seq, ok := (*km.sequences.Load())[key]; ok {
		return seq
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	current := *km.sequences.Load()
	if seq, ok := current[key]; ok {
		return seq
	}
	if len(tags) != len(km.tagNames) {
		panic(kerror.Create("InvalidTagValues", "number of tag values does not match tag names").
			With("metric", km.metricName).
			With("expectedLen", len(km.tagNames)).
			With("gotLen", len(tags)))
	}
	seq := &TimeSequence{
		parent:      km,
		labelValues: toLabelValues(tags),
	}
	next := make(map[string]*TimeSequence, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[key] = seq
	km.sequences.Store(&next)
	return seq
}

func (km *Kmetric) read(suffix string, pick func(*TimeSequence) int64) *metricdata.Metric {
	now := time.Now()
	series := []*metricdata.TimeSeries{}
	for _, seq := range *km.sequences.Load() {
		series = append(series, &metricdata.TimeSeries{
			LabelValues: seq.labelValues,
			Points:      []metricdata.Point{metricdata.NewInt64Point(now, pick(seq))},
			StartTime:   km.startTime,
		})
	}
	return &metricdata.Metric{
		Descriptor: metricdata.Descriptor{
			Name:        km.metricName + suffix,
			Description: km.description,
			Unit:        metricdata.UnitDimensionless,
			Type:        metricdata.TypeCumulativeInt64,
			LabelKeys:   toLabelKeys(km.tagNames),
		},
		Resource:   defaultResource(),
		TimeSeries: series,
	}
}

func (km *Kmetric) ReadCount() *metricdata.Metric {
	return km.read("_count", func(seq *TimeSequence) int64 { return atomic.LoadInt64(&seq.count) })
}

func (km *Kmetric) ReadSum() *metricdata.Metric {
	return km.read("_sum", func(seq *TimeSequence) int64 { return atomic.LoadInt64(&seq.sum) })
}

// TimeSequence is safe for concurrent Add.
type TimeSequence struct {
	parent      *Kmetric
	labelValues []metricdata.LabelValue
	count       int64
	sum         int64
}

func (ts *TimeSequence) Add(val int64) {
	atomic.AddInt64(&ts.count, 1)
	atomic.AddInt64(&ts.sum, val)
}

func (ts *TimeSequence) Get() (count int64, sum int64) {
	return atomic.LoadInt64(&ts.count), atomic.LoadInt64(&ts.sum)
}

func toLabelValues(tags []string) []metricdata.LabelValue {
	values := make([]metricdata.LabelValue, len(tags))
	for i, item := range tags {
		values[i] = metricdata.NewLabelValue(item)
	}
	return values
}

func toLabelKeys(names []string) []metricdata.LabelKey {
	keys := make([]metricdata.LabelKey, len(names))
	for i, name := range names {
		keys[i] = metricdata.LabelKey{Key: name}
	}
	return keys
}

func defaultResource() *resource.Resource {
	return &resource.Resource{Type: "integralfarm", Labels: map[string]string{}}
}
