// Package refresh coordinates bulk reference crawls, webhook-driven updates,
// and re-resolution of pending library entries.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/questlogapp/questlog-server/internal/catalog"
	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/id"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/resolver"
	"github.com/questlogapp/questlog-server/internal/store"
)

// Options configures the coordinator.
type Options struct {
	// Interval between scheduled full refresh passes.
	Interval time.Duration
	// WebhookDedupTTL is how long processed idempotency keys are remembered.
	WebhookDedupTTL time.Duration
	Logger          *slog.Logger
}

// Coordinator runs refresh jobs. One job runs at a time; triggering while a
// job is running returns the running job.
type Coordinator struct {
	store    *store.Store
	index    *refindex.Index
	catalog  *catalog.Client
	pipeline *resolver.Pipeline

	interval time.Duration
	dedupTTL time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	runningJob string
}

// New creates a refresh coordinator.
func New(st *store.Store, index *refindex.Index, client *catalog.Client, pipeline *resolver.Pipeline, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		store:    st,
		index:    index,
		catalog:  client,
		pipeline: pipeline,
		interval: opts.Interval,
		dedupTTL: opts.WebhookDedupTTL,
		logger:   logger,
	}
}

// TriggerRefresh starts a full refresh job. With reconcile set, resolved
// entries are re-examined too and higher-confidence matches may replace
// existing mappings; otherwise only pending entries are re-resolved.
func (c *Coordinator) TriggerRefresh(ctx context.Context, reconcile bool) (*domain.RefreshJob, error) {
	c.mu.Lock()
	if c.runningJob != "" {
		runningID := c.runningJob
		c.mu.Unlock()
		return c.JobStatus(ctx, runningID)
	}

	job := &domain.RefreshJob{
		ID:        id.MustGenerate("job"),
		State:     domain.JobScheduled,
		Reconcile: reconcile,
	}
	c.runningJob = job.ID
	c.mu.Unlock()

	if err := c.store.Jobs.Create(ctx, job.ID, job); err != nil {
		c.clearRunning()
		return nil, err
	}

	// The job outlives the triggering request.
	go c.runJob(context.WithoutCancel(ctx), job, domain.Families())

	return job, nil
}

// JobStatus returns the stored state of a refresh job.
func (c *Coordinator) JobStatus(ctx context.Context, jobID string) (*domain.RefreshJob, error) {
	return c.store.Jobs.Get(ctx, jobID)
}

func (c *Coordinator) clearRunning() {
	c.mu.Lock()
	c.runningJob = ""
	c.mu.Unlock()
}

// runJob crawls each family independently, swaps in whatever validated, then
// re-resolves the affected portion of the library.
func (c *Coordinator) runJob(ctx context.Context, job *domain.RefreshJob, families []domain.EntityFamily) {
	defer c.clearRunning()

	job.State = domain.JobRunning
	job.StartedAt = time.Now().UTC()
	c.persistJob(ctx, job)

	succeeded, failed := 0, 0
	for _, family := range families {
		result := c.refreshFamily(ctx, family)
		job.Families = append(job.Families, result)
		if result.Error == "" {
			succeeded++
		} else {
			failed++
		}
		c.persistJob(ctx, job)
	}

	if failed == 0 || succeeded > 0 {
		reresolved, err := c.reresolve(ctx, job.Reconcile)
		job.Reresolved = reresolved
		if err != nil {
			c.logger.Warn("re-resolution pass incomplete", "job", job.ID, "error", err)
		}
	}

	switch {
	case failed == 0:
		job.State = domain.JobSucceeded
	case succeeded == 0:
		job.State = domain.JobFailed
	default:
		job.State = domain.JobPartiallyFailed
	}
	job.FinishedAt = time.Now().UTC()
	c.persistJob(ctx, job)

	c.logger.Info("refresh job finished",
		"job", job.ID,
		"state", job.State,
		"families_ok", succeeded,
		"families_failed", failed,
		"reresolved", job.Reresolved,
	)
}

// refreshFamily crawls one family and swaps it into the index. A crawl or
// validation failure leaves the live generation untouched for that family.
func (c *Coordinator) refreshFamily(ctx context.Context, family domain.EntityFamily) domain.FamilyResult {
	result := domain.FamilyResult{Family: family}

	snap := &refindex.Snapshot{}
	var err error

	switch family {
	case domain.FamilyGames:
		snap.Games, err = c.catalog.CollectGames(ctx)
		result.Count = len(snap.Games)
	case domain.FamilyExternal:
		snap.Mappings, err = c.catalog.CollectExternalGames(ctx)
		result.Count = len(snap.Mappings)
	default:
		var items []*domain.Annotation
		items, err = c.catalog.CollectAnnotations(ctx, family)
		result.Count = len(items)
		switch family {
		case domain.FamilyCollections:
			snap.Collections = items
		case domain.FamilyCompanies:
			snap.Companies = items
		case domain.FamilyGenres:
			snap.Genres = items
		case domain.FamilyKeywords:
			snap.Keywords = items
		}
	}

	if err != nil {
		result.Error = err.Error()
		c.logger.Error("family crawl failed", "family", family, "error", err)
		return result
	}

	if err := c.index.RebuildFamily(family, snap); err != nil {
		result.Error = err.Error()
		if errors.Is(err, errors.ErrIndexStale) {
			result.Skipped = true
			c.logger.Warn("family rebuild rejected, keeping previous generation",
				"family", family, "count", result.Count, "error", err)
		} else {
			c.logger.Error("family rebuild failed", "family", family, "error", err)
		}
		return result
	}

	return result
}

// reresolve re-runs the pipeline over pending entries, or over every entry
// when reconciling. Returns the number of entries re-examined.
func (c *Coordinator) reresolve(ctx context.Context, reconcile bool) (int, error) {
	count := 0
	for entry, err := range c.store.LibraryEntries.List(ctx) {
		if err != nil {
			return count, err
		}
		if !reconcile && !entry.Status.Pending() {
			continue
		}

		_, err = c.pipeline.Resolve(ctx, resolver.Request{
			Storefront:  entry.Storefront,
			StoreGameID: entry.StoreGameID,
			Title:       entry.RawTitle,
			Class:       ratelimit.ClassBatch,
			Reconcile:   reconcile,
		})
		if err != nil {
			c.logger.Warn("re-resolution failed", "key", entry.Key(), "error", err)
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			continue
		}
		count++
	}
	return count, nil
}

func (c *Coordinator) persistJob(ctx context.Context, job *domain.RefreshJob) {
	if err := c.store.Jobs.Upsert(ctx, job.ID, job); err != nil {
		c.logger.Error("failed to persist job state",
			"job", job.ID,
			"state", job.State,
			"error", fmt.Errorf("upsert job: %w", err),
		)
	}
}
