package v1alpha1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/service"
	"github.com/ugclab/ugc-pipeline/internal/service/mappers"
	"github.com/ugclab/ugc-pipeline/pkg/keycase"
	"github.com/ugclab/ugc-pipeline/pkg/log"
)

const maxRequestBody = 1 << 20

// (POST /api/v1/pipeline/jobs)
func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	logger := log.NewDebugLogger("pipeline_handler").WithContext(r.Context()).Operation("create_job").Build()

	req, err := decodeStartRequest(r)
	if err != nil {
		logger.Error(err).Log()
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	h.startJob(w, r, logger, req)
}

// (POST /api/v1/pipeline/prompts)
func (h *ServiceHandler) CreatePromptJob(w http.ResponseWriter, r *http.Request) {
	logger := log.NewDebugLogger("pipeline_handler").WithContext(r.Context()).Operation("create_prompt_job").Build()

	req, err := decodeStartRequest(r)
	if err != nil {
		logger.Error(err).Log()
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if !req.HasBlueprint() {
		logger.Error(errors.New("missing blueprint")).Log()
		renderError(w, r, http.StatusBadRequest, "blueprint is required")
		return
	}

	h.startJob(w, r, logger, req)
}

func (h *ServiceHandler) startJob(w http.ResponseWriter, r *http.Request, logger *log.OperationTracer, req api.PipelineStartRequest) {
	job, err := h.pipelineSrv.StartJob(r.Context(), req)
	if err != nil {
		logger.Error(err).Log()
		switch err.(type) {
		case *service.ErrInvalidRequest:
			renderError(w, r, http.StatusBadRequest, err.Error())
		case *service.ErrJobAlreadyExists:
			renderError(w, r, http.StatusConflict, err.Error())
		case *service.ErrUnavailable:
			renderError(w, r, http.StatusServiceUnavailable, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to start job: %v", err))
		}
		return
	}

	logger.Success().WithString("job_id", job.ID).Log()
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, mappers.StartResponseToApi(*job))
}

// (GET /api/v1/pipeline/jobs)
func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("pipeline_handler").WithContext(ctx).Operation("list_jobs").Build()

	filter := service.JobFilter{Status: r.URL.Query().Get("status")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			logger.Error(err).Log()
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", limit))
			return
		}
		filter.Limit = n
	}

	jobs, err := h.pipelineSrv.ListJobs(ctx, filter)
	if err != nil {
		logger.Error(err).Log()
		switch err.(type) {
		case *service.ErrInvalidRequest:
			renderError(w, r, http.StatusBadRequest, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
		}
		return
	}

	logger.Success().WithInt("count", len(jobs)).Log()
	render.JSON(w, r, mappers.JobListToApi(h.pipelineSrv.Catalog(), jobs))
}

// (GET /api/v1/pipeline/jobs/{id})
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("pipeline_handler").WithContext(ctx).Operation("get_job").WithString("job_id", id).Build()

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

	logger.Success().Log()
	render.JSON(w, r, mappers.JobToApi(h.pipelineSrv.Catalog(), *job))
}

// (DELETE /api/v1/pipeline/jobs/{id})
func (h *ServiceHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("pipeline_handler").WithContext(ctx).Operation("delete_job").WithString("job_id", id).Build()

	job, err := h.pipelineSrv.DeleteJob(ctx, id)
	if err != nil {
		logger.Error(err).Log()
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrJobNotTerminal:
			renderError(w, r, http.StatusConflict, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to delete job: %v", err))
		}
		return
	}

	logger.Success().Log()
	render.JSON(w, r, mappers.JobToApi(h.pipelineSrv.Catalog(), *job))
}

// (GET /api/v1/pipeline/catalog)
func (h *ServiceHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, mappers.CatalogToApi(h.pipelineSrv.Catalog()))
}

// decodeStartRequest accepts camelCase and snake_case keys. Unknown keys are
// ignored. The blueprint is kept verbatim, a null blueprint is dropped.
func decodeStartRequest(r *http.Request) (api.PipelineStartRequest, error) {
	var req api.PipelineStartRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return req, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, fmt.Errorf("empty body")
	}

	var raw struct {
		Blueprint json.RawMessage `json:"blueprint"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, err
	}

	body, err = keycase.ToCamel(body)
	if err != nil {
		return req, err
	}

	if err := render.DecodeJSON(bytes.NewReader(body), &req); err != nil {
		return req, err
	}

	req.Blueprint = nil
	if b := bytes.TrimSpace(raw.Blueprint); len(b) > 0 && !bytes.Equal(b, []byte("null")) {
		req.Blueprint = b
	}
	return req, nil
}
