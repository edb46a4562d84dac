package cjson

import (
	"encoding/json"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

// path is "/integralfarm/runs/{run_id}"
type RunReportJson struct {
	RunId      string  `json:"run_id"`
	StartPoint float64 `json:"start_point"`
	EndPoint   float64 `json:"end_point"`
	Delta      float64 `json:"delta"`
	Policy     string  `json:"policy"`
	Total      float64 `json:"total"`
	ElapsedMs  float64 `json:"elapsed_ms"`

	Workers []*WorkerReportJson `json:"workers"`

	FinishedAtMs int64 `json:"finished_at_ms,omitempty"`
}

type BenchmarkJson struct {
	ElapsedMs float64 `json:"elapsed_ms"`
	Delta     float64 `json:"delta"`
}

// WorkerReportJson is one pool entry; Index is the arrival order during pool assembly.
type WorkerReportJson struct {
	Index            int            `json:"index"`
	Address          string         `json:"address"`
	Benchmark        *BenchmarkJson `json:"benchmark,omitempty"`
	PerformanceIndex float64        `json:"performance_index,omitempty"`
	StartPoint       float64        `json:"start_point"`
	EndPoint         float64        `json:"end_point"`
	Result           float64        `json:"result"`
	ElapsedMs        float64        `json:"elapsed_ms"`
}

func NewRunReportJson(runId string, start, end, delta float64, policy string) *RunReportJson {
	return &RunReportJson{
		RunId:      runId,
		StartPoint: start,
		EndPoint:   end,
		Delta:      delta,
		Policy:     policy,
		Workers:    []*WorkerReportJson{},
	}
}

func (obj *RunReportJson) SetFinished() *RunReportJson {
	obj.FinishedAtMs = kcommon.GetWallTimeMs()
	return obj
}

func (obj *RunReportJson) ToJson() string {
	bytes, err := json.Marshal(obj)
	if err != nil {
		ke := kerror.Wrap(err, "MarshalError", "failed to marshal RunReportJson", false)
		panic(ke)
	}
	return string(bytes)
}

// RunReportJsonFromJson returns an error instead of panicking: stored reports may come from another version.
func RunReportJsonFromJson(stringJson string) (*RunReportJson, error) {
	var obj RunReportJson
	if err := json.Unmarshal([]byte(stringJson), &obj); err != nil {
		return nil, kerror.Wrap(err, "UnmarshalError", "failed to unmarshal RunReportJson", false)
	}
	if obj.RunId == "" {
		return nil, kerror.Create("UnmarshalError", "missing required field: run_id")
	}
	if obj.Workers == nil {
		obj.Workers = []*WorkerReportJson{}
	}
	return &obj, nil
}
