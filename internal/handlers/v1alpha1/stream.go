package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ugclab/ugc-pipeline/internal/service"
	"github.com/ugclab/ugc-pipeline/internal/service/mappers"
	"github.com/ugclab/ugc-pipeline/pkg/log"
)

const statusEvent = "status"

// (GET /api/v1/pipeline/jobs/{id}/stream)
//
// StreamJob pushes the job status as server sent events every time the record
// changes. The stream ends once the job is completed or failed.
func (h *ServiceHandler) StreamJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("pipeline_handler").WithContext(ctx).Operation("stream_job").WithString("job_id", id).Build()

	flusher, ok := w.(http.Flusher)
	if !ok {
		renderError(w, r, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	job, err := h.pipelineSrv.GetJob(ctx, id)
	if err != nil {
		logger.Error(err).Log()
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	var lastUpdate time.Time
	sent := 0
	for {
		if !job.UpdatedAt.Equal(lastUpdate) {
			data, err := json.Marshal(mappers.JobToApi(h.pipelineSrv.Catalog(), *job))
			if err != nil {
				logger.Error(err).Log()
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", statusEvent, data); err != nil {
				logger.Error(err).Log()
				return
			}
			flusher.Flush()
			lastUpdate = job.UpdatedAt
			sent++
		}

		if job.Terminal() {
			logger.Success().WithInt("events", sent).Log()
			return
		}

		select {
		case <-ctx.Done():
			logger.Step("client_gone").WithInt("events", sent).Log()
			return
		case <-ticker.C:
		}

		job, err = h.pipelineSrv.GetJob(ctx, id)
		if err != nil {
			// deleted while streaming, or the store went away
			logger.Error(err).Log()
			_, _ = fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
			flusher.Flush()
			return
		}
	}
}
