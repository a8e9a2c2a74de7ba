// Package main provides an operator CLI for bulk reference crawls. It pulls
// one family (or all of them) from the upstream catalog, reports counts, and
// can run the genre classification batch over unannotated games.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/questlogapp/questlog-server/internal/catalog"
	"github.com/questlogapp/questlog-server/internal/classifier"
	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/logger"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
)

func main() {
	family := flag.String("family", "all", "Entity family to crawl (games, collections, companies, genres, keywords, external_games, all)")
	classify := flag.Bool("classify", false, "Run genre classification over games the upstream left unannotated")

	// LoadConfig registers the shared flags and parses the command line.
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	})

	if cfg.Catalog.ClientID == "" || cfg.Catalog.ClientSecret == "" {
		log.Fatal("catalog credentials are required for crawls")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate := ratelimit.New(map[ratelimit.Class]ratelimit.Budget{
		ratelimit.ClassBatch: {RPS: cfg.Catalog.TotalRPS, Burst: cfg.Catalog.Burst},
	}, ratelimit.Budget{RPS: cfg.Catalog.TotalRPS, Burst: 1}, cfg.Catalog.MaxWait)

	client := catalog.New(cfg.Catalog, gate, log.Logger)

	families, err := selectFamilies(*family)
	if err != nil {
		log.Fatal("invalid family", "family", *family, "error", err)
	}

	var games []*domain.CatalogEntry
	for _, f := range families {
		count, crawled, err := crawlFamily(ctx, client, f)
		if err != nil {
			log.Fatal("crawl failed", "family", f, "error", err)
		}
		log.Info("family crawled", "family", f, "count", count)
		if f == domain.FamilyGames {
			games = crawled
		}
	}

	if *classify {
		model := classifier.New(cfg.Classifier, log.Logger)
		if model == nil {
			log.Fatal("classification requested but CLASSIFIER_URL is not set")
		}
		classifyGames(ctx, model, games, log)
	}
}

// selectFamilies maps the flag value to the crawl order. Games go last so a
// partial run still refreshes the smaller families first.
func selectFamilies(name string) ([]domain.EntityFamily, error) {
	if name == "all" {
		return domain.Families(), nil
	}
	f := domain.EntityFamily(name)
	for _, known := range domain.Families() {
		if f == known {
			return []domain.EntityFamily{f}, nil
		}
	}
	return nil, fmt.Errorf("unknown entity family %q", name)
}

// crawlFamily pulls one family and returns its size. Game entries are also
// returned for the optional classification batch.
func crawlFamily(ctx context.Context, client *catalog.Client, family domain.EntityFamily) (int, []*domain.CatalogEntry, error) {
	switch family {
	case domain.FamilyGames:
		games, err := client.CollectGames(ctx)
		return len(games), games, err
	case domain.FamilyExternal:
		mappings, err := client.CollectExternalGames(ctx)
		return len(mappings), nil, err
	default:
		items, err := client.CollectAnnotations(ctx, family)
		return len(items), nil, err
	}
}

// classifyGames runs the genre model over games with no upstream genres.
// Failures on individual entries are logged and skipped so one bad title
// never aborts the batch.
func classifyGames(ctx context.Context, model *classifier.Client, games []*domain.CatalogEntry, log *logger.Logger) {
	if len(games) == 0 {
		log.Warn("no games crawled, nothing to classify (did you crawl the games family?)")
		return
	}

	classified, failed := 0, 0
	for _, game := range games {
		if len(game.GenreIDs) > 0 {
			continue
		}
		if ctx.Err() != nil {
			log.Warn("classification interrupted", "classified", classified, "failed", failed)
			return
		}

		genres, err := model.Predict(ctx, game)
		if err != nil {
			failed++
			log.Warn("classification failed", "catalog_id", game.ID, "title", game.Title, "error", err)
			continue
		}
		classified++
		log.Info("genres predicted", "catalog_id", game.ID, "title", game.Title, "genres", genres)
	}

	log.Info("classification batch complete", "classified", classified, "failed", failed)
}
