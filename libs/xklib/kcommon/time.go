package kcommon

import (
	"context"
	"sync"
	"time"
)

var (
	providerMu          sync.RWMutex
	currentTimeProvider TimeProvider = NewSystemTimeProvider()
)

type TimeProvider interface {
	GetWallTimeMs() int64
	GetMonoTimeNs() int64
	ScheduleRun(delayMs int, fn func())
}

func getProvider() TimeProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return currentTimeProvider
}

// RunWithTimeProvider swaps the provider for the duration of fn.
func RunWithTimeProvider(tp TimeProvider, fn func()) {
	providerMu.Lock()
	old := currentTimeProvider
	currentTimeProvider = tp
	providerMu.Unlock()
	defer func() {
		providerMu.Lock()
		currentTimeProvider = old
		providerMu.Unlock()
	}()
	fn()
}

func GetWallTimeMs() int64 {
	return getProvider().GetWallTimeMs()
}

func GetMonoTimeNs() int64 {
	return getProvider().GetMonoTimeNs()
}

func ScheduleRun(delayMs int, fn func()) {
	getProvider().ScheduleRun(delayMs, fn)
}

// Stopwatch measures fractional milliseconds on the monotonic clock.
type Stopwatch struct {
	startNs int64
}

func StartStopwatch() Stopwatch {
	return Stopwatch{startNs: GetMonoTimeNs()}
}

func (sw Stopwatch) ElapsedMs() float64 {
	return float64(GetMonoTimeNs()-sw.startNs) / float64(time.Millisecond)
}

// SleepCtx returns false if ctx ended first.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type SystemTimeProvider struct {
	startTime time.Time
}

func NewSystemTimeProvider() *SystemTimeProvider {
	return &SystemTimeProvider{startTime: time.Now()}
}

func (provider *SystemTimeProvider) GetWallTimeMs() int64 {
	return time.Now().UnixMilli()
}

func (provider *SystemTimeProvider) GetMonoTimeNs() int64 {
	return time.Since(provider.startTime).Nanoseconds()
}

func (provider *SystemTimeProvider) ScheduleRun(delayMs int, fn func()) {
	time.AfterFunc(time.Duration(delayMs)*time.Millisecond, fn)
}

type TimerTask struct {
	Cb      func()
	DelayMs int
}

// MockTimeProvider only moves when told to. Scheduled tasks land on ChTask for the test to fire.
type MockTimeProvider struct {
	mu       sync.Mutex
	wallTime int64
	monoNs   int64

	ChTask chan *TimerTask
}

func NewMockTimeProvider() *MockTimeProvider {
	return &MockTimeProvider{ChTask: make(chan *TimerTask, 10)}
}

func (provider *MockTimeProvider) GetWallTimeMs() int64 {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	return provider.wallTime
}

func (provider *MockTimeProvider) GetMonoTimeNs() int64 {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	return provider.monoNs
}

func (provider *MockTimeProvider) ScheduleRun(delayMs int, fn func()) {
	provider.ChTask <- &TimerTask{Cb: fn, DelayMs: delayMs}
}

func (provider *MockTimeProvider) SetTimeMs(timeMs int64) *MockTimeProvider {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.wallTime = timeMs
	provider.monoNs = timeMs * int64(time.Millisecond)
	return provider
}

func (provider *MockTimeProvider) Advance(d time.Duration) *MockTimeProvider {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.wallTime += d.Milliseconds()
	provider.monoNs += d.Nanoseconds()
	return provider
}
