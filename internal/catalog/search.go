package catalog

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"strings"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
)

const gameFields = "fields name, alternative_names.name, first_release_date, collection, involved_companies.company, genres, keywords;"

// SearchByTitle queries the upstream full-text search for candidate games.
// Used as the fallback when the local reference index yields no candidates.
func (c *Client) SearchByTitle(ctx context.Context, class ratelimit.Class, title string, limit int) ([]*domain.CatalogEntry, error) {
	query := fmt.Sprintf("search %q; %s limit %d;", sanitize(title), gameFields, limit)

	body, err := c.post(ctx, class, "/games", query)
	if err != nil {
		return nil, err
	}

	var raw []rawGame
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, errors.CodeParse, "decode game search response")
	}

	games := make([]*domain.CatalogEntry, 0, len(raw))
	for i := range raw {
		games = append(games, raw[i].toDomain())
	}
	return games, nil
}

// GetGame fetches a single game by upstream ID.
func (c *Client) GetGame(ctx context.Context, class ratelimit.Class, id uint64) (*domain.CatalogEntry, error) {
	query := fmt.Sprintf("%s where id = %d;", gameFields, id)

	body, err := c.post(ctx, class, "/games", query)
	if err != nil {
		return nil, err
	}

	var raw []rawGame
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, errors.CodeParse, "decode game response")
	}
	if len(raw) == 0 {
		return nil, errors.NotFoundf("game %d not found upstream", id)
	}
	return raw[0].toDomain(), nil
}

// sanitize strips quote characters from user-supplied titles before they are
// embedded in a query body.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r == ';' {
			return -1
		}
		return r
	}, s)
}
