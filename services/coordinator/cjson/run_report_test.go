package cjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

func TestRunReportJsonFieldNames(t *testing.T) {
	report := NewRunReportJson("r1", 0, 1, 1e-4, "equal")
	report.Total = 0.5
	report.Workers = append(report.Workers, &WorkerReportJson{
		Index:     0,
		Address:   "127.0.0.1:5000",
		Benchmark: &BenchmarkJson{ElapsedMs: 1, Delta: 1e-4},
		EndPoint:  1,
		Result:    0.5,
	})
	assert.Equal(t,
		`{"run_id":"r1","start_point":0,"end_point":1,"delta":0.0001,"policy":"equal","total":0.5,"elapsed_ms":0,`+
			`"workers":[{"index":0,"address":"127.0.0.1:5000","benchmark":{"elapsed_ms":1,"delta":0.0001},"start_point":0,"end_point":1,"result":0.5,"elapsed_ms":0}]}`,
		report.ToJson())
}

func TestRunReportJsonFromJson(t *testing.T) {
	report, err := RunReportJsonFromJson(`{"run_id":"r2","total":1.5}`)
	require.Nil(t, err)
	assert.Equal(t, "r2", report.RunId)
	assert.Equal(t, 1.5, report.Total)
	assert.NotNil(t, report.Workers)

	_, err = RunReportJsonFromJson(`{"total":1}`)
	assert.True(t, kerror.IsType(err, "UnmarshalError"))
	_, err = RunReportJsonFromJson(`{`)
	assert.True(t, kerror.IsType(err, "UnmarshalError"))
}
