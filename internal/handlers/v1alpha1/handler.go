package v1alpha1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/service"
	"github.com/ugclab/ugc-pipeline/pkg/requestid"
)

const (
	BasePath = "/api/v1/pipeline"

	defaultStreamInterval = time.Second
)

type ServiceHandler struct {
	pipelineSrv    *service.PipelineService
	streamInterval time.Duration
}

func NewServiceHandler(pipelineSrv *service.PipelineService, streamInterval time.Duration) *ServiceHandler {
	if streamInterval <= 0 {
		streamInterval = defaultStreamInterval
	}
	return &ServiceHandler{
		pipelineSrv:    pipelineSrv,
		streamInterval: streamInterval,
	}
}

// Register mounts the pipeline api and the health endpoint on router.
func (h *ServiceHandler) Register(router chi.Router) {
	router.Get("/health", h.Health)

	router.Route(BasePath, func(r chi.Router) {
		r.Get("/catalog", h.GetCatalog)
		r.Post("/prompts", h.CreatePromptJob)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/{id}", h.GetJob)
			r.Delete("/{id}", h.DeleteJob)
			r.Get("/{id}/stream", h.StreamJob)
		})
	})
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pipelineSrv.Health(r.Context()); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, api.Health{Status: "unavailable"})
		return
	}
	render.JSON(w, r, api.Health{Status: "ok"})
}

func renderError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, api.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())})
}
