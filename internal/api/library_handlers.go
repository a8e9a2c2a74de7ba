package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
)

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listLibrary",
		Method:      http.MethodGet,
		Path:        "/api/v1/library/{storefront}",
		Summary:     "List library entries",
		Description: "Returns library entries for one storefront, optionally filtered by status",
		Tags:        []string{"Library"},
	}, s.handleListLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID: "manualMatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/match",
		Summary:     "Manually match an entry",
		Description: "Pins a storefront game to a catalog entry chosen by the user",
		Tags:        []string{"Library"},
	}, s.handleManualMatch)
}

// === DTOs ===

type ListLibraryInput struct {
	Storefront string `path:"storefront" doc:"Storefront name"`
	Status     string `query:"status" doc:"Filter by resolution status"`
}

type ListLibraryResponse struct {
	Entries []EntryResponse `json:"entries" doc:"Library entries"`
}

type ListLibraryOutput struct {
	Body ListLibraryResponse
}

type ManualMatchRequest struct {
	Storefront  string `json:"storefront" validate:"required,oneof=steam gog egs" doc:"Storefront name"`
	StoreGameID string `json:"store_game_id" validate:"required,min=1,max=128" doc:"Storefront-scoped game ID"`
	CatalogID   uint64 `json:"catalog_id" validate:"required,gt=0" doc:"Catalog entry to pin"`
}

type ManualMatchInput struct {
	Body ManualMatchRequest
}

// === Handlers ===

func (s *Server) handleListLibrary(ctx context.Context, input *ListLibraryInput) (*ListLibraryOutput, error) {
	storefront := domain.Storefront(input.Storefront)
	if !storefront.Valid() {
		return nil, errors.Validationf("unknown storefront %q", input.Storefront)
	}

	if input.Status != "" {
		switch domain.EntryStatus(input.Status) {
		case domain.StatusUnresolved, domain.StatusResolved, domain.StatusAmbiguous, domain.StatusFailed:
		default:
			return nil, errors.Validationf("unknown status %q", input.Status)
		}
	}

	entries := make([]EntryResponse, 0)
	for entry, err := range s.store.LibraryEntries.ListByIndex(ctx, "storefront", string(storefront)) {
		if err != nil {
			return nil, err
		}
		if input.Status != "" && string(entry.Status) != input.Status {
			continue
		}
		entries = append(entries, mapEntryResponse(entry))
	}

	return &ListLibraryOutput{Body: ListLibraryResponse{Entries: entries}}, nil
}

func (s *Server) handleManualMatch(ctx context.Context, input *ManualMatchInput) (*EntryOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	entry, err := s.pipeline.ManualMatch(ctx,
		domain.Storefront(input.Body.Storefront),
		input.Body.StoreGameID,
		input.Body.CatalogID,
	)
	if err != nil {
		return nil, err
	}

	return &EntryOutput{Body: mapEntryResponse(entry)}, nil
}
