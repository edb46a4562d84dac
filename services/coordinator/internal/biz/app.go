package biz

import (
	"context"

	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	"github.com/xinkaiwang/integralfarm/services/coordinator/cjson"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/common"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/config"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/core"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/etcdprov"
	"github.com/xinkaiwang/integralfarm/services/coordinator/internal/runstore"
)

type App struct {
	cfg   *config.CoordinatorConfig
	store runstore.RunStore
}

type AppOption func(*App)

// WithRunStore overrides the store chosen from config.
func WithRunStore(store runstore.RunStore) AppOption {
	return func(app *App) {
		app.store = store
	}
}

// NewApp connects the run store when RunStoreEnabled. A store that cannot be reached is logged and left out.
func NewApp(ctx context.Context, cfg *config.CoordinatorConfig, options ...AppOption) *App {
	app := &App{cfg: cfg}
	for _, option := range options {
		option(app)
	}
	if app.store == nil && cfg.RunStoreEnabled {
		pvd, err := etcdprov.GetCurrentEtcdProvider(ctx)
		if err != nil {
			klogging.Warning(ctx).WithError(err).Log("RunStoreUnavailable", "runs will not be persisted")
		} else {
			app.store = runstore.NewEtcdRunStore(pvd)
		}
	}
	return app
}

// RunOnce performs one integral and logs a metrics snapshot however it ends. Persisting the
// report never changes the outcome.
func (app *App) RunOnce(ctx context.Context) (*cjson.RunReportJson, error) {
	defer common.LogMetricsSnapshot(ctx)
	c := core.NewCoordinator(app.cfg)
	klogging.Info(ctx).
		With("runId", c.RunId()).
		With("start", app.cfg.Interval.Start).
		With("end", app.cfg.Interval.End).
		With("delta", app.cfg.Delta).
		With("policy", app.cfg.Policy()).
		With("maxWorkers", app.cfg.MaxWorkers).
		With("wait", app.cfg.WaitWindow).
		Log("RunStarting", "starting run")
	report, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	if app.store != nil {
		if err := app.store.SaveRun(ctx, report); err != nil {
			klogging.Warning(ctx).WithError(err).With("runId", report.RunId).Log("RunSaveFailed", "run report not persisted")
		}
	}
	return report, nil
}
