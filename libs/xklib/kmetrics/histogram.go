package kmetrics

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"go.opencensus.io/metric/metricdata"
)

// Khistogram exports cumulative _bucket (with an extra "le" label), _sum and _count.
// Buckets are upper bounds and exclusive: a value v counts in every bucket b with v < b.
type Khistogram struct {
	mu          sync.Mutex
	metricName  string
	description string
	tagNames    []string
	buckets     []int64
	sequences   atomic.Pointer[map[string]*HistoSequence]
	startTime   time.Time
}

func CreateKhistogram(ctx context.Context, name string, description string, tags []string, buckets []int64) *Khistogram {
	his := &Khistogram{
		metricName:  name,
		description: description,
		tagNames:    tags,
		buckets:     buckets,
		startTime:   time.Now(),
	}
	empty := map[string]*HistoSequence{}
	his.sequences.Store(&empty)
	GetKmetricsRegistry().RegisterHistogram(his)
	return his
}

func (his *Khistogram) GetHistoSequence(ctx context.Context, tags ...string) *HistoSequence {
	key := makeSequenceKey(tags...)
	if seq, ok := (*his.sequences.Load())[key]; ok {
		return seq
	}

	his.mu.Lock()
	defer his.mu.Unlock()
	current := *his.sequences.Load()
	if seq, ok := current[key]; ok {
		return seq
	}
	if len(tags) != len(his.tagNames) {
		panic(kerror.Create("InvalidTagValues", "number of tag values does not match tag names").
			With("metric", his.metricName).
			With("expectedLen", len(his.tagNames)).
			With("gotLen", len(tags)))
	}
	seq := &HistoSequence{
		parent:      his,
		labelValues: toLabelValues(tags),
		counters:    make([]int64, len(his.buckets)+1),
	}
	for _, b := range his.buckets {
		seq.bucketLabels = append(seq.bucketLabels, append(toLabelValues(tags), metricdata.NewLabelValue(strconv.FormatInt(b, 10))))
	}
	seq.bucketLabels = append(seq.bucketLabels, append(toLabelValues(tags), metricdata.NewLabelValue("+Inf")))

	next := make(map[string]*HistoSequence, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[key] = seq
	his.sequences.Store(&next)
	return seq
}

type HistoSequence struct {
	parent       *Khistogram
	labelValues  []metricdata.LabelValue
	bucketLabels [][]metricdata.LabelValue
	counters     []int64 // last slot is +Inf
	count        int64
	sum          int64
}

func (hs *HistoSequence) Add(val int64) {
	for i, bucket := range hs.parent.buckets {
		if val < bucket {
			atomic.AddInt64(&hs.counters[i], 1)
		}
	}
	atomic.AddInt64(&hs.counters[len(hs.parent.buckets)], 1)
	atomic.AddInt64(&hs.count, 1)
	atomic.AddInt64(&hs.sum, val)
}

func (his *Khistogram) Read() []*metricdata.Metric {
	now := time.Now()
	var buckets, sums, counts []*metricdata.TimeSeries
	for _, seq := range *his.sequences.Load() {
		for i := range seq.counters {
			buckets = append(buckets, his.series(now, seq.bucketLabels[i], atomic.LoadInt64(&seq.counters[i])))
		}
		sums = append(sums, his.series(now, seq.labelValues, atomic.LoadInt64(&seq.sum)))
		counts = append(counts, his.series(now, seq.labelValues, atomic.LoadInt64(&seq.count)))
	}
	bucketKeys := append(toLabelKeys(his.tagNames), metricdata.LabelKey{Key: "le"})
	return []*metricdata.Metric{
		his.metric("_bucket", bucketKeys, buckets),
		his.metric("_sum", toLabelKeys(his.tagNames), sums),
		his.metric("_count", toLabelKeys(his.tagNames), counts),
	}
}

func (his *Khistogram) series(now time.Time, labels []metricdata.LabelValue, v int64) *metricdata.TimeSeries {
	return &metricdata.TimeSeries{
		LabelValues: labels,
		Points:      []metricdata.Point{metricdata.NewInt64Point(now, v)},
		StartTime:   his.startTime,
	}
}

func (his *Khistogram) metric(suffix string, keys []metricdata.LabelKey, series []*metricdata.TimeSeries) *metricdata.Metric {
	if series == nil {
		series = []*metricdata.TimeSeries{}
	}
	return &metricdata.Metric{
		Descriptor: metricdata.Descriptor{
			Name:        his.metricName + suffix,
			Description: his.description,
			Unit:        metricdata.UnitDimensionless,
			Type:        metricdata.TypeCumulativeInt64,
			LabelKeys:   keys,
		},
		Resource:   defaultResource(),
		TimeSeries: series,
	}
}
