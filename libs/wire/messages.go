package wire

import (
	"encoding/binary"
	"math"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

// Every record is a fixed run of little-endian IEEE-754 float64 fields, no framing.
const (
	BenchmarkSize = 16
	RequestSize   = 24
	ResponseSize  = 16
)

var byteOrder = binary.LittleEndian

// Benchmark is sent by a worker right after it connects back.
type Benchmark struct {
	ElapsedMs float64 // wall-clock ms of the reference integration
	Delta     float64 // step used for that integration
}

// Request assigns one sub-interval.
type Request struct {
	StartPoint float64
	EndPoint   float64
	Delta      float64
}

// Response carries the partial integral back.
type Response struct {
	ElapsedMs float64
	Result    float64
}

func putFloats(buf []byte, vals ...float64) {
	for i, v := range vals {
		byteOrder.PutUint64(buf[i*8:], math.Float64bits(v))
	}
}

func getFloat(buf []byte, i int) float64 {
	return math.Float64frombits(byteOrder.Uint64(buf[i*8:]))
}

func checkSize(record string, buf []byte, want int) error {
	if len(buf) != want {
		return kerror.Create("MalformedMessage", "record has wrong size").
			With("record", record).
			With("size", len(buf)).
			With("want", want).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return nil
}

func (m Benchmark) Marshal() []byte {
	buf := make([]byte, BenchmarkSize)
	putFloats(buf, m.ElapsedMs, m.Delta)
	return buf
}

func (m *Benchmark) Unmarshal(buf []byte) error {
	if err := checkSize("Benchmark", buf, BenchmarkSize); err != nil {
		return err
	}
	m.ElapsedMs = getFloat(buf, 0)
	m.Delta = getFloat(buf, 1)
	return nil
}

func (m Request) Marshal() []byte {
	buf := make([]byte, RequestSize)
	putFloats(buf, m.StartPoint, m.EndPoint, m.Delta)
	return buf
}

func (m *Request) Unmarshal(buf []byte) error {
	if err := checkSize("Request", buf, RequestSize); err != nil {
		return err
	}
	m.StartPoint = getFloat(buf, 0)
	m.EndPoint = getFloat(buf, 1)
	m.Delta = getFloat(buf, 2)
	return nil
}

func (m Response) Marshal() []byte {
	buf := make([]byte, ResponseSize)
	putFloats(buf, m.ElapsedMs, m.Result)
	return buf
}

func (m *Response) Unmarshal(buf []byte) error {
	if err := checkSize("Response", buf, ResponseSize); err != nil {
		return err
	}
	m.ElapsedMs = getFloat(buf, 0)
	m.Result = getFloat(buf, 1)
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate rejects values that would make the performance index meaningless.
func (m Benchmark) Validate() error {
	if !finite(m.ElapsedMs) || !finite(m.Delta) || m.ElapsedMs <= 0 || m.Delta <= 0 {
		return kerror.Create("InvalidBenchmark", "benchmark values must be finite and positive").
			With("elapsedMs", m.ElapsedMs).
			With("delta", m.Delta).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return nil
}

func (m Request) Validate() error {
	if !finite(m.StartPoint) || !finite(m.EndPoint) || !finite(m.Delta) || m.EndPoint < m.StartPoint || m.Delta <= 0 {
		return kerror.Create("InvalidRequest", "request needs finite bounds, end >= start and delta > 0").
			With("start", m.StartPoint).
			With("end", m.EndPoint).
			With("delta", m.Delta).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return nil
}
