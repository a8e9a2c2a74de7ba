package catalog

import (
	"context"
	"encoding/json/v2"
	"fmt"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
)

// Bulk crawls page through an entire upstream family in fixed-size pages.
// All crawl traffic runs under the batch caller class so interactive
// resolution keeps its own budget.

// CollectGames fetches the full games family.
func (c *Client) CollectGames(ctx context.Context) ([]*domain.CatalogEntry, error) {
	raw, err := collectPaged[rawGame](ctx, c, "/games", gameFields)
	if err != nil {
		return nil, err
	}

	games := make([]*domain.CatalogEntry, 0, len(raw))
	for i := range raw {
		games = append(games, raw[i].toDomain())
	}
	return games, nil
}

// CollectAnnotations fetches one annotation family (collections, companies,
// genres, or keywords).
func (c *Client) CollectAnnotations(ctx context.Context, family domain.EntityFamily) ([]*domain.Annotation, error) {
	endpoint, ok := annotationEndpoints[family]
	if !ok {
		return nil, errors.Validationf("family %s is not an annotation family", family)
	}

	raw, err := collectPaged[rawAnnotation](ctx, c, endpoint, "fields name, slug;")
	if err != nil {
		return nil, err
	}

	items := make([]*domain.Annotation, 0, len(raw))
	for i := range raw {
		items = append(items, raw[i].toDomain())
	}
	return items, nil
}

// CollectExternalGames fetches the storefront mapping family. Entries for
// unsupported storefronts are dropped.
func (c *Client) CollectExternalGames(ctx context.Context) ([]*domain.ExternalGameMapping, error) {
	fields := "fields game, uid, category;"
	raw, err := collectPaged[rawExternalGame](ctx, c, "/external_games", fields)
	if err != nil {
		return nil, err
	}

	mappings := make([]*domain.ExternalGameMapping, 0, len(raw))
	for i := range raw {
		storefront, ok := storefrontFromCategory(raw[i].Category)
		if !ok || raw[i].UID == "" || raw[i].Game == 0 {
			continue
		}
		mappings = append(mappings, &domain.ExternalGameMapping{
			Storefront:  storefront,
			StoreGameID: raw[i].UID,
			CatalogID:   raw[i].Game,
			Confidence:  1.0, // upstream-asserted mapping
		})
	}
	return mappings, nil
}

var annotationEndpoints = map[domain.EntityFamily]string{
	domain.FamilyCollections: "/collections",
	domain.FamilyCompanies:   "/companies",
	domain.FamilyGenres:      "/genres",
	domain.FamilyKeywords:    "/keywords",
}

// collectPaged pages through an endpoint until a short page signals the end.
func collectPaged[T any](ctx context.Context, c *Client, endpoint, fields string) ([]T, error) {
	pageSize := c.pageSize
	var all []T

	for offset := 0; ; offset += pageSize {
		query := fmt.Sprintf("%s sort id asc; limit %d; offset %d;", fields, pageSize, offset)

		body, err := c.post(ctx, ratelimit.ClassBatch, endpoint, query)
		if err != nil {
			return nil, err
		}

		var page []T
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errors.Wrapf(err, errors.CodeParse, "decode %s page at offset %d", endpoint, offset)
		}

		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	c.logger.Info("crawl family complete", "endpoint", endpoint, "count", len(all))
	return all, nil
}
