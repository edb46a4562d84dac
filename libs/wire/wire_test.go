package wire

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

func TestRequestLayout(t *testing.T) {
	buf := Request{StartPoint: 1, EndPoint: 2.5, Delta: 1e-3}.Marshal()
	require.Equal(t, RequestSize, len(buf))
	assert.Equal(t, math.Float64bits(1), binary.LittleEndian.Uint64(buf[0:]))
	assert.Equal(t, math.Float64bits(2.5), binary.LittleEndian.Uint64(buf[8:]))
	assert.Equal(t, math.Float64bits(1e-3), binary.LittleEndian.Uint64(buf[16:]))
}

func TestRecordSizes(t *testing.T) {
	assert.Equal(t, BenchmarkSize, len(Benchmark{}.Marshal()))
	assert.Equal(t, ResponseSize, len(Response{}.Marshal()))
	var b Benchmark
	err := b.Unmarshal(make([]byte, 15))
	assert.True(t, kerror.IsType(err, "MalformedMessage"))
}

func TestStreamRoundTripPreservesBits(t *testing.T) {
	var buf bytes.Buffer
	in := Response{ElapsedMs: 12.25, Result: math.Nextafter(0.5, 1)}
	require.Nil(t, WriteResponse(&buf, in))
	out, err := ReadResponse(&buf)
	require.Nil(t, err)
	assert.Equal(t, math.Float64bits(in.Result), math.Float64bits(out.Result))
	assert.Equal(t, in.ElapsedMs, out.ElapsedMs)
}

func TestShortReadIsNeverPartialParse(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		received int
	}{
		{"empty", nil, 0},
		{"truncated", Benchmark{ElapsedMs: 1, Delta: 1}.Marshal()[:9], 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBenchmark(bytes.NewReader(tt.data))
			require.NotNil(t, err)
			assert.True(t, kerror.IsType(err, "ShortRead"))
			ke, _ := kerror.AsKerror(err)
			v, _ := ke.GetDetail("received")
			assert.Equal(t, tt.received, v)
		})
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("reset by peer") }

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestReadAndWriteFailures(t *testing.T) {
	_, err := ReadRequest(errReader{})
	assert.True(t, kerror.IsType(err, "ReadFailed"))
	err = WriteRequest(shortWriter{}, Request{})
	assert.True(t, kerror.IsType(err, "ShortWrite"))
}

func TestValidate(t *testing.T) {
	assert.Nil(t, Benchmark{ElapsedMs: 3, Delta: 1e-6}.Validate())
	assert.NotNil(t, Benchmark{ElapsedMs: 0, Delta: 1e-6}.Validate())
	assert.NotNil(t, Benchmark{ElapsedMs: math.NaN(), Delta: 1e-6}.Validate())
	assert.Nil(t, Request{StartPoint: 1, EndPoint: 1, Delta: 0.1}.Validate())
	assert.NotNil(t, Request{StartPoint: 2, EndPoint: 1, Delta: 0.1}.Validate())
	assert.NotNil(t, Request{StartPoint: 0, EndPoint: 1, Delta: 0}.Validate())
	assert.NotNil(t, Request{StartPoint: 0, EndPoint: math.Inf(1), Delta: 1}.Validate())
}

func TestProbeLoopback(t *testing.T) {
	pl, err := ListenProbes(0)
	require.Nil(t, err)
	defer pl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// an empty datagram is skipped, the next one is delivered
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: pl.Port()})
	require.Nil(t, err)
	_, err = conn.Write([]byte{})
	require.Nil(t, err)
	conn.Close()
	require.Nil(t, SendProbe(ctx, "127.0.0.1", pl.Port()))

	ip, err := pl.Wait(ctx)
	require.Nil(t, err)
	assert.True(t, ip.Equal(net.IPv4(127, 0, 0, 1)))
}

func TestProbeWaitCancel(t *testing.T) {
	pl, err := ListenProbes(0)
	require.Nil(t, err)
	defer pl.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// listener still usable after a cancelled wait
	require.Nil(t, SendProbe(context.Background(), "127.0.0.1", pl.Port()))
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_, err = pl.Wait(ctx2)
	assert.Nil(t, err)
}

func TestListenProbesBindFailure(t *testing.T) {
	pl, err := ListenProbes(0)
	require.Nil(t, err)
	defer pl.Close()
	_, err = ListenProbes(pl.Port())
	assert.True(t, kerror.IsType(err, "ListenFailure"))
}

func TestSendProbeBadAddress(t *testing.T) {
	err := SendProbe(context.Background(), "not an address", 9)
	assert.True(t, kerror.IsType(err, "BroadcastFailure"))
}
