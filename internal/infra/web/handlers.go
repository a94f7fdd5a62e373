package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"mediavault/internal/domain"
	"mediavault/internal/domain/model"
	"mediavault/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// statusClientClosedRequest distinguishes user-requested cancellation from
// genuine failure so API clients can branch without string matching.
const statusClientClosedRequest = 499

type ingestRequest struct {
	UserID      string `json:"user_id"`
	URL         string `json:"url"`
	Platform    string `json:"platform"`
	LocalPath   string `json:"local_path"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (r ingestRequest) source() model.IngestionSource {
	return model.IngestionSource{
		URL:         r.URL,
		Platform:    model.Platform(r.Platform),
		LocalPath:   r.LocalPath,
		Title:       r.Title,
		Description: r.Description,
	}
}

type mediaItemResponse struct {
	ID            string   `json:"id"`
	OwnerID       string   `json:"owner_id"`
	SourceURL     string   `json:"source_url,omitempty"`
	Platform      string   `json:"platform"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	SizeBytes     int64    `json:"size_bytes"`
	Format        string   `json:"format"`
	CaptionStatus string   `json:"caption_status"`
	Summary       string   `json:"summary,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

func toMediaItemResponse(item *model.MediaItem) *mediaItemResponse {
	if item == nil {
		return nil
	}
	return &mediaItemResponse{
		ID:            item.ID,
		OwnerID:       item.OwnerID,
		SourceURL:     item.SourceURL,
		Platform:      string(item.Platform),
		Title:         item.Title,
		Description:   item.Description,
		SizeBytes:     item.SizeBytes,
		Format:        item.Format,
		CaptionStatus: string(item.CaptionStatus),
		Summary:       item.Summary,
		Keywords:      item.Keywords,
	}
}

type ingestResponse struct {
	JobID     string             `json:"job_id"`
	Stage     string             `json:"stage"`
	MediaItem *mediaItemResponse `json:"media_item,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func ingestHandler(ingestUC usecase.IngestionUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		job, item, err := ingestUC.Submit(ctx, req.UserID, req.source())
		if err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("ingestion request failed")
			writeJSON(w, ingestStatus(err), ingestResponse{
				JobID: job.ID,
				Stage: string(job.Stage),
				Error: err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusCreated, ingestResponse{
			JobID:     job.ID,
			Stage:     string(job.Stage),
			MediaItem: toMediaItemResponse(item),
		})
	}
}

func ingestBatchHandler(ingestUC usecase.IngestionUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req struct {
			UserID  string          `json:"user_id"`
			Sources []ingestRequest `json:"sources"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || len(req.Sources) == 0 {
			http.Error(w, "user_id and sources are required", http.StatusBadRequest)
			return
		}

		sources := make([]model.IngestionSource, len(req.Sources))
		for i, s := range req.Sources {
			sources[i] = s.source()
		}

		results := ingestUC.SubmitBatch(ctx, req.UserID, sources)
		out := make([]ingestResponse, len(results))
		for i, res := range results {
			out[i] = ingestResponse{
				JobID:     res.Job.ID,
				Stage:     string(res.Job.Stage),
				MediaItem: toMediaItemResponse(res.Item),
			}
			if res.Err != nil {
				out[i].Error = res.Err.Error()
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
	}
}

func cancelJobHandler(ingestUC usecase.IngestionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if jobID == "" {
			http.Error(w, "job id is required", http.StatusBadRequest)
			return
		}
		ingestUC.Cancel(jobID)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
	}
}

func captionRequestHandler(captionUC usecase.CaptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		mediaID := chi.URLParam(r, "mediaID")
		job, err := captionUC.Request(ctx, mediaID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Media item not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to request captions", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"job_id": job.ID,
			"status": string(job.Status),
		})
	}
}

func captionStatusHandler(captionUC usecase.CaptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		mediaID := chi.URLParam(r, "mediaID")
		st, err := captionUC.QueueStatus(ctx, mediaID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "No active caption job", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to read queue status", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id":                 st.JobID,
			"status":                 string(st.Status),
			"position":               st.Position,
			"estimated_wait_minutes": st.EstimatedWaitMinutes,
		})
	}
}

// ingestStatus maps domain failures onto HTTP statuses.
func ingestStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrCancelled):
		return statusClientClosedRequest
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnsupportedPlatform), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMediaNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMediaPrivate), errors.Is(err, domain.ErrAgeRestricted):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
