package kcommon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

func TestTryCatchRun(t *testing.T) {
	ctx := context.Background()
	divide := func(x, y int) int { return x / y }

	tests := []struct {
		name     string
		fn       func()
		wantType string
	}{
		{"no panic", func() {}, ""},
		{"runtime error", func() { divide(1, 0) }, "UnknownError"},
		{"kerror", func() { panic(kerror.Create("JoinFailure", "boom")) }, "JoinFailure"},
		{"error value", func() { panic(errors.New("x")) }, "UnknownError"},
		{"string value", func() { panic("bad") }, "UnknownError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ke := TryCatchRun(ctx, tt.fn)
			if tt.wantType == "" {
				assert.Nil(t, ke)
				return
			}
			assert.NotNil(t, ke)
			assert.Equal(t, tt.wantType, ke.Type)
		})
	}
}

func TestStopwatchWithMockTime(t *testing.T) {
	mock := NewMockTimeProvider().SetTimeMs(1000)
	RunWithTimeProvider(mock, func() {
		sw := StartStopwatch()
		mock.Advance(1500 * time.Microsecond)
		assert.InDelta(t, 1.5, sw.ElapsedMs(), 1e-9)
		assert.Equal(t, int64(1001), GetWallTimeMs())
	})
}

func TestMockScheduleRun(t *testing.T) {
	mock := NewMockTimeProvider()
	fired := false
	RunWithTimeProvider(mock, func() {
		ScheduleRun(100, func() { fired = true })
	})
	task := <-mock.ChTask
	assert.Equal(t, 100, task.DelayMs)
	task.Cb()
	assert.True(t, fired)
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, SleepCtx(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, SleepCtx(ctx, time.Hour))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("IF_TEST_INT", " 42")
	t.Setenv("IF_TEST_BAD", "x")
	t.Setenv("IF_TEST_FLOAT", "1e-6")
	t.Setenv("IF_TEST_BOOL", "No")
	t.Setenv("IF_TEST_MS", "250")

	assert.Equal(t, 42, GetEnvInt("IF_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("IF_TEST_BAD", 1))
	assert.Equal(t, 1e-6, GetEnvFloat("IF_TEST_FLOAT", 0))
	assert.Equal(t, false, GetEnvBool("IF_TEST_BOOL", true))
	assert.Equal(t, true, GetEnvBool("IF_TEST_BAD", true))
	assert.Equal(t, 250*time.Millisecond, GetEnvDurationMs("IF_TEST_MS", 0))
	assert.Equal(t, time.Second, GetEnvDurationMs("IF_TEST_UNSET", time.Second))
	assert.Equal(t, "d", GetEnvString("IF_TEST_UNSET", "d"))
}
