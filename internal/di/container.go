// Package di provides dependency injection configuration for the QuestLog server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/questlogapp/questlog-server/internal/catalog"
	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/di/providers"
	"github.com/questlogapp/questlog-server/internal/logger"
	"github.com/questlogapp/questlog-server/internal/matcher"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/refresh"
	"github.com/questlogapp/questlog-server/internal/resolver"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Reference index
	do.Provide(injector, providers.ProvideReferenceIndex)

	// Upstream catalog
	do.Provide(injector, providers.ProvideAdmissionGate)
	do.Provide(injector, providers.ProvideCatalogClient)

	// Resolution
	do.Provide(injector, providers.ProvideScorer)
	do.Provide(injector, providers.ProvideResolverPipeline)

	// Refresh
	do.Provide(injector, providers.ProvideRefreshCoordinator)
	do.Provide(injector, providers.ProvideRefreshScheduler)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*refindex.Index](injector)
	_ = do.MustInvoke[*ratelimit.Gate](injector)
	_ = do.MustInvoke[*catalog.Client](injector)
	_ = do.MustInvoke[*matcher.Scorer](injector)
	_ = do.MustInvoke[*resolver.Pipeline](injector)
	_ = do.MustInvoke[*refresh.Coordinator](injector)
	_ = do.MustInvoke[*providers.RefreshSchedulerHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
