package providers

import (
	"github.com/samber/do/v2"

	"github.com/questlogapp/questlog-server/internal/catalog"
	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/logger"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
)

// ProvideAdmissionGate provides the upstream admission gate. The total quota
// is split across caller classes: half to interactive traffic, a quarter each
// to webhooks and bulk passes.
func ProvideAdmissionGate(i do.Injector) (*ratelimit.Gate, error) {
	cfg := do.MustInvoke[*config.Config](i)

	budgets := map[ratelimit.Class]ratelimit.Budget{
		ratelimit.ClassInteractive: {RPS: cfg.Catalog.TotalRPS / 2, Burst: cfg.Catalog.Burst},
		ratelimit.ClassWebhook:     {RPS: cfg.Catalog.TotalRPS / 4, Burst: cfg.Catalog.Burst / 2},
		ratelimit.ClassBatch:       {RPS: cfg.Catalog.TotalRPS / 4, Burst: cfg.Catalog.Burst / 2},
	}
	fallback := ratelimit.Budget{RPS: cfg.Catalog.TotalRPS / 4, Burst: 1}

	return ratelimit.New(budgets, fallback, cfg.Catalog.MaxWait), nil
}

// ProvideCatalogClient provides the upstream catalog API client.
func ProvideCatalogClient(i do.Injector) (*catalog.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	gate := do.MustInvoke[*ratelimit.Gate](i)
	log := do.MustInvoke[*logger.Logger](i)

	return catalog.New(cfg.Catalog, gate, log.Logger), nil
}
