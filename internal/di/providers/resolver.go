package providers

import (
	"github.com/samber/do/v2"

	"github.com/questlogapp/questlog-server/internal/catalog"
	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/logger"
	"github.com/questlogapp/questlog-server/internal/matcher"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/resolver"
)

// ProvideScorer provides the candidate scorer.
func ProvideScorer(i do.Injector) (*matcher.Scorer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return matcher.NewScorer(matcher.DefaultWeights(), cfg.Resolver.YearWindow), nil
}

// ProvideResolverPipeline provides the resolution pipeline.
func ProvideResolverPipeline(i do.Injector) (*resolver.Pipeline, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	index := do.MustInvoke[*refindex.Index](i)
	client := do.MustInvoke[*catalog.Client](i)
	scorer := do.MustInvoke[*matcher.Scorer](i)

	return resolver.New(index, storeHandle.Store, client, scorer, resolver.Options{
		Policy: matcher.Policy{
			AcceptThreshold: cfg.Resolver.AcceptThreshold,
			Margin:          cfg.Resolver.Margin,
			Floor:           cfg.Resolver.Floor,
		},
		Deadline:      cfg.Server.ResolveDeadline,
		MaxCandidates: cfg.Resolver.MaxCandidates,
		LiveFallback:  cfg.Resolver.LiveSearchFallback,
		Logger:        log.Logger,
	}), nil
}
