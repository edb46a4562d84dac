package wire

import (
	"errors"
	"io"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

func writeRecord(w io.Writer, record string, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return kerror.Wrap(err, "ShortWrite", "failed to write record", false).
			With("record", record).
			With("written", n).
			With("want", len(buf)).
			WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	if n != len(buf) {
		return kerror.Create("ShortWrite", "partial record written").
			With("record", record).
			With("written", n).
			With("want", len(buf)).
			WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	return nil
}

// readRecord never returns a partially filled buffer as success.
func readRecord(r io.Reader, record string, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	if err == nil {
		return buf, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, kerror.Create("ShortRead", "peer closed before the record was complete").
			With("record", record).
			With("received", n).
			With("want", size).
			WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	return nil, kerror.Wrap(err, "ReadFailed", "failed to read record", false).
		With("record", record).
		With("received", n).
		With("want", size).
		WithErrorCode(kerror.EC_NETWORK_ERR)
}

func WriteBenchmark(w io.Writer, m Benchmark) error {
	return writeRecord(w, "Benchmark", m.Marshal())
}

func WriteRequest(w io.Writer, m Request) error {
	return writeRecord(w, "Request", m.Marshal())
}

func WriteResponse(w io.Writer, m Response) error {
	return writeRecord(w, "Response", m.Marshal())
}

func ReadBenchmark(r io.Reader) (Benchmark, error) {
	var m Benchmark
	buf, err := readRecord(r, "Benchmark", BenchmarkSize)
	if err != nil {
		return m, err
	}
	return m, m.Unmarshal(buf)
}

func ReadRequest(r io.Reader) (Request, error) {
	var m Request
	buf, err := readRecord(r, "Request", RequestSize)
	if err != nil {
		return m, err
	}
	return m, m.Unmarshal(buf)
}

func ReadResponse(r io.Reader) (Response, error) {
	var m Response
	buf, err := readRecord(r, "Response", ResponseSize)
	if err != nil {
		return m, err
	}
	return m, m.Unmarshal(buf)
}
