package runstore

import (
	"context"
	"strings"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/services/coordinator/cjson"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/etcdprov"
)

const (
	RunsPrefix = "/integralfarm/runs/"
	LatestKey  = "/integralfarm/latest"
)

type RunStore interface {
	SaveRun(ctx context.Context, report *cjson.RunReportJson) error
	// GetRun returns RunNotFound for an unknown id. An empty runId means the latest run.
	GetRun(ctx context.Context, runId string) (*cjson.RunReportJson, error)
	// ListRuns returns at most maxCount run ids in key order; 0 means all.
	ListRuns(ctx context.Context, maxCount int) ([]string, error)
}

type EtcdRunStore struct {
	pvd etcdprov.EtcdProvider
}

func NewEtcdRunStore(pvd etcdprov.EtcdProvider) *EtcdRunStore {
	return &EtcdRunStore{pvd: pvd}
}

func runKey(runId string) string {
	return RunsPrefix + runId
}

// SaveRun writes the report first and then moves the latest pointer, so latest never names a missing run.
func (store *EtcdRunStore) SaveRun(ctx context.Context, report *cjson.RunReportJson) error {
	if report == nil || report.RunId == "" {
		return kerror.Create("InvalidRunReport", "run report needs a run id").WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if err := store.pvd.Set(ctx, runKey(report.RunId), report.ToJson()); err != nil {
		return err
	}
	if err := store.pvd.Set(ctx, LatestKey, report.RunId); err != nil {
		return err
	}
	klogging.Info(ctx).With("runId", report.RunId).With("key", runKey(report.RunId)).Log("RunSaved", "run report stored")
	return nil
}

func (store *EtcdRunStore) GetRun(ctx context.Context, runId string) (*cjson.RunReportJson, error) {
	if runId == "" {
		latest, err := store.pvd.Get(ctx, LatestKey)
		if err != nil {
			return nil, err
		}
		if latest.Value == "" {
			return nil, kerror.Create("RunNotFound", "no run stored yet").WithErrorCode(kerror.EC_NOT_FOUND)
		}
		runId = latest.Value
	}
	item, err := store.pvd.Get(ctx, runKey(runId))
	if err != nil {
		return nil, err
	}
	if item.Value == "" {
		return nil, kerror.Create("RunNotFound", "run not found").With("runId", runId).WithErrorCode(kerror.EC_NOT_FOUND)
	}
	return cjson.RunReportJsonFromJson(item.Value)
}

func (store *EtcdRunStore) ListRuns(ctx context.Context, maxCount int) ([]string, error) {
	items, err := store.pvd.List(ctx, RunsPrefix, maxCount)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, strings.TrimPrefix(item.Key, RunsPrefix))
	}
	return ids, nil
}
