package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/questlogapp/questlog-server/internal/catalog"
	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/logger"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/refresh"
	"github.com/questlogapp/questlog-server/internal/resolver"
)

// ProvideRefreshCoordinator provides the refresh coordinator.
func ProvideRefreshCoordinator(i do.Injector) (*refresh.Coordinator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	index := do.MustInvoke[*refindex.Index](i)
	client := do.MustInvoke[*catalog.Client](i)
	pipeline := do.MustInvoke[*resolver.Pipeline](i)

	return refresh.New(storeHandle.Store, index, client, pipeline, refresh.Options{
		Interval:        cfg.Refresh.Interval,
		WebhookDedupTTL: cfg.Refresh.WebhookDedupTTL,
		Logger:          log.Logger,
	}), nil
}

// RefreshSchedulerHandle wraps the scheduler goroutine with shutdown capability.
type RefreshSchedulerHandle struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *RefreshSchedulerHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideRefreshScheduler starts the periodic refresh scheduler.
func ProvideRefreshScheduler(i do.Injector) (*RefreshSchedulerHandle, error) {
	coordinator := do.MustInvoke[*refresh.Coordinator](i)

	ctx, cancel := context.WithCancel(context.Background())
	go coordinator.Run(ctx)

	return &RefreshSchedulerHandle{cancel: cancel}, nil
}
