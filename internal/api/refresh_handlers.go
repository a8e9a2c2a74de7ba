package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/refresh"
)

func (s *Server) registerRefreshRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "triggerRefresh",
		Method:      http.MethodPost,
		Path:        "/api/v1/refresh",
		Summary:     "Trigger a refresh job",
		Description: "Starts a bulk reference refresh; returns the running job if one is already active",
		Tags:        []string{"Refresh"},
	}, s.handleTriggerRefresh)

	huma.Register(s.api, huma.Operation{
		OperationID: "getJob",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get refresh job status",
		Tags:        []string{"Refresh"},
	}, s.handleGetJob)

	huma.Register(s.api, huma.Operation{
		OperationID:   "ingestStorefrontWebhook",
		Method:        http.MethodPost,
		Path:          "/api/v1/webhooks/storefront",
		Summary:       "Ingest a storefront webhook",
		Description:   "Accepts a storefront library delivery; duplicate idempotency keys are acknowledged without effect",
		Tags:          []string{"Webhooks"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStorefrontWebhook)
}

// === DTOs ===

type TriggerRefreshRequest struct {
	Reconcile bool `json:"reconcile,omitempty" doc:"Re-examine resolved entries and allow higher-confidence overwrites"`
}

type TriggerRefreshInput struct {
	Body TriggerRefreshRequest
}

type JobResponse struct {
	ID         string              `json:"id" doc:"Job ID"`
	State      string              `json:"state" doc:"Job state"`
	Reconcile  bool                `json:"reconcile,omitempty" doc:"Whether this is a reconcile pass"`
	Families   []FamilyResultEntry `json:"families,omitempty" doc:"Per-family outcomes"`
	Reresolved int                 `json:"reresolved,omitempty" doc:"Entries re-examined"`
	StartedAt  time.Time           `json:"started_at,omitzero" doc:"Start time"`
	FinishedAt time.Time           `json:"finished_at,omitzero" doc:"Finish time"`
}

type FamilyResultEntry struct {
	Family  string `json:"family" doc:"Entity family"`
	Count   int    `json:"count" doc:"Entities crawled"`
	Error   string `json:"error,omitempty" doc:"Failure reason"`
	Skipped bool   `json:"skipped,omitempty" doc:"Rebuild rejected, previous generation kept"`
}

type JobOutput struct {
	Body JobResponse
}

type GetJobInput struct {
	ID string `path:"id" doc:"Job ID"`
}

type WebhookRequest struct {
	Storefront string                `json:"storefront" validate:"required,oneof=steam gog egs" doc:"Storefront name"`
	Entries    []WebhookEntryRequest `json:"entries" validate:"required,min=1,max=1000" doc:"Reported games"`
}

type WebhookEntryRequest struct {
	StoreGameID string `json:"store_game_id" validate:"required,min=1,max=128" doc:"Storefront-scoped game ID"`
	Title       string `json:"title,omitempty" validate:"max=512" doc:"Storefront-reported title"`
}

type WebhookInput struct {
	IdempotencyKey string `header:"Idempotency-Key" doc:"Delivery idempotency key"`
	Body           WebhookRequest
}

type WebhookResponse struct {
	Duplicate bool `json:"duplicate" doc:"Delivery was already processed"`
	Accepted  int  `json:"accepted" doc:"Entries resolved or queued"`
	Failed    int  `json:"failed" doc:"Entries that failed resolution"`
}

type WebhookOutput struct {
	Body WebhookResponse
}

// === Handlers ===

func (s *Server) handleTriggerRefresh(ctx context.Context, input *TriggerRefreshInput) (*JobOutput, error) {
	job, err := s.coordinator.TriggerRefresh(ctx, input.Body.Reconcile)
	if err != nil {
		return nil, err
	}
	return &JobOutput{Body: mapJobResponse(job)}, nil
}

func (s *Server) handleGetJob(ctx context.Context, input *GetJobInput) (*JobOutput, error) {
	job, err := s.coordinator.JobStatus(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &JobOutput{Body: mapJobResponse(job)}, nil
}

func (s *Server) handleStorefrontWebhook(ctx context.Context, input *WebhookInput) (*WebhookOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	entries := make([]refresh.WebhookEntry, 0, len(input.Body.Entries))
	for _, e := range input.Body.Entries {
		entries = append(entries, refresh.WebhookEntry{
			StoreGameID: e.StoreGameID,
			Title:       e.Title,
		})
	}

	result, err := s.coordinator.HandleWebhook(ctx, refresh.WebhookEvent{
		IdempotencyKey: input.IdempotencyKey,
		Storefront:     domain.Storefront(input.Body.Storefront),
		Entries:        entries,
	})
	if err != nil {
		return nil, err
	}

	return &WebhookOutput{Body: WebhookResponse{
		Duplicate: result.Duplicate,
		Accepted:  result.Accepted,
		Failed:    result.Failed,
	}}, nil
}

// === Mappers ===

func mapJobResponse(job *domain.RefreshJob) JobResponse {
	resp := JobResponse{
		ID:         job.ID,
		State:      string(job.State),
		Reconcile:  job.Reconcile,
		Reresolved: job.Reresolved,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	for _, fam := range job.Families {
		resp.Families = append(resp.Families, FamilyResultEntry{
			Family:  string(fam.Family),
			Count:   fam.Count,
			Error:   fam.Error,
			Skipped: fam.Skipped,
		})
	}
	return resp
}
