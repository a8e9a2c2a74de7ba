package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
	"github.com/questlogapp/questlog-server/internal/resolver"
)

func (s *Server) registerResolveRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "resolveGame",
		Method:      http.MethodPost,
		Path:        "/api/v1/resolve",
		Summary:     "Resolve a storefront game",
		Description: "Resolves a storefront-reported game to a canonical catalog identity",
		Tags:        []string{"Resolution"},
	}, s.handleResolve)
}

// === DTOs ===

type ResolveRequest struct {
	Storefront  string `json:"storefront" validate:"required,oneof=steam gog egs" doc:"Storefront name"`
	StoreGameID string `json:"store_game_id" validate:"required,min=1,max=128" doc:"Storefront-scoped game ID"`
	Title       string `json:"title,omitempty" validate:"max=512" doc:"Storefront-reported title"`
}

type ResolveInput struct {
	Body ResolveRequest
}

// EntryResponse is the wire shape of a library entry.
type EntryResponse struct {
	Storefront  string              `json:"storefront" doc:"Storefront name"`
	StoreGameID string              `json:"store_game_id" doc:"Storefront-scoped game ID"`
	Title       string              `json:"title,omitempty" doc:"Storefront-reported title"`
	Status      string              `json:"status" doc:"Resolution status"`
	CatalogID   uint64              `json:"catalog_id,omitempty" doc:"Resolved catalog entry ID"`
	Confidence  float64             `json:"confidence,omitempty" doc:"Match confidence"`
	Retryable   bool                `json:"retryable,omitempty" doc:"Whether a later pass will reattempt"`
	Candidates  []CandidateResponse `json:"candidates,omitempty" doc:"Shortlist for ambiguous entries"`
	UpdatedAt   time.Time           `json:"updated_at,omitzero" doc:"Last resolution attempt"`
}

// CandidateResponse is one scored match candidate.
type CandidateResponse struct {
	CatalogID uint64  `json:"catalog_id" doc:"Catalog entry ID"`
	Title     string  `json:"title" doc:"Catalog title"`
	Score     float64 `json:"score" doc:"Match score"`
}

type EntryOutput struct {
	Body EntryResponse
}

// === Handlers ===

func (s *Server) handleResolve(ctx context.Context, input *ResolveInput) (*EntryOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	entry, err := s.pipeline.Resolve(ctx, resolver.Request{
		Storefront:  domain.Storefront(input.Body.Storefront),
		StoreGameID: input.Body.StoreGameID,
		Title:       input.Body.Title,
		Class:       ratelimit.ClassInteractive,
	})
	if err != nil {
		return nil, err
	}

	return &EntryOutput{Body: mapEntryResponse(entry)}, nil
}

// === Mappers ===

func mapEntryResponse(e *domain.LibraryEntry) EntryResponse {
	resp := EntryResponse{
		Storefront:  string(e.Storefront),
		StoreGameID: e.StoreGameID,
		Title:       e.RawTitle,
		Status:      string(e.Status),
		CatalogID:   e.ResolvedID,
		Confidence:  e.Confidence,
		Retryable:   e.Retryable,
		UpdatedAt:   e.UpdatedAt,
	}
	for _, cand := range e.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateResponse{
			CatalogID: cand.CatalogID,
			Title:     cand.Title,
			Score:     cand.Score,
		})
	}
	return resp
}
