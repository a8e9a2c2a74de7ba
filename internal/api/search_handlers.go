package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/normalize"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search the catalog",
		Description: "Searches catalog titles in the live reference index generation",
		Tags:        []string{"Catalog"},
	}, s.handleSearchCatalog)
}

// === DTOs ===

type SearchCatalogInput struct {
	Query string `query:"q" doc:"Title query"`
}

type CatalogEntryResponse struct {
	ID          uint64   `json:"id" doc:"Catalog entry ID"`
	Title       string   `json:"title" doc:"Canonical title"`
	Aliases     []string `json:"aliases,omitempty" doc:"Alternative titles"`
	ReleaseYear int      `json:"release_year,omitempty" doc:"First release year"`
}

type SearchCatalogResponse struct {
	Results      []CatalogEntryResponse `json:"results" doc:"Matching catalog entries"`
	IndexVersion uint64                 `json:"index_version" doc:"Generation the search ran against"`
}

type SearchCatalogOutput struct {
	Body SearchCatalogResponse
}

// === Handlers ===

func (s *Server) handleSearchCatalog(ctx context.Context, input *SearchCatalogInput) (*SearchCatalogOutput, error) {
	_ = ctx

	normTitle := normalize.Title(input.Query)
	if normTitle == "" {
		return nil, errors.Validation("query is required")
	}

	matches, err := s.index.Search(normTitle)
	if err != nil {
		return nil, err
	}

	results := make([]CatalogEntryResponse, 0, len(matches))
	for _, entry := range matches {
		results = append(results, CatalogEntryResponse{
			ID:          entry.ID,
			Title:       entry.Title,
			Aliases:     entry.Aliases,
			ReleaseYear: entry.ReleaseYear,
		})
	}

	return &SearchCatalogOutput{Body: SearchCatalogResponse{
		Results:      results,
		IndexVersion: s.index.Version(),
	}}, nil
}
