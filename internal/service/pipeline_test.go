package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/collaborator"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/service"
	"github.com/ugclab/ugc-pipeline/internal/service/mappers"
	"github.com/ugclab/ugc-pipeline/internal/store"
	"github.com/ugclab/ugc-pipeline/internal/validator"
)

type starterFunc func(ctx context.Context, req api.PipelineStartRequest) (string, error)

func (f starterFunc) Start(ctx context.Context, req api.PipelineStartRequest) (string, error) {
	return f(ctx, req)
}

var _ = Describe("pipeline service", func() {
	var (
		ctx  context.Context
		cat  *catalog.Catalog
		s    store.Store
		orch *pipeline.Orchestrator
		srv  *service.PipelineService
	)

	validRequest := api.PipelineStartRequest{
		VideoUrl:           "https://cdn.example.com/reference.mp4",
		ProductDescription: "a serum",
	}

	BeforeEach(func() {
		ctx = context.TODO()
		cat = catalog.Default()
		s = store.NewMemoryStore(cat)
		orch = pipeline.NewOrchestrator(s.Job(), cat, collaborator.NewSimulatedRunner(0))
		srv = service.NewPipelineService(orch, s, cat)
	})

	AfterEach(func() {
		orch.Close()
		_ = s.Close()
	})

	Context("start", func() {
		It("returns the created job", func() {
			job, err := srv.StartJob(ctx, validRequest)
			Expect(err).To(BeNil())
			Expect(job.ID).ToNot(BeEmpty())
			Expect(job.CreatedAt).ToNot(BeZero())

			orch.Wait()
			job, err = srv.GetJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(catalog.JobCompleted))
		})

		It("maps validation errors to an invalid request", func() {
			_, err := srv.StartJob(ctx, api.PipelineStartRequest{})
			Expect(err).ToNot(BeNil())
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidRequest{})))
			Expect(err.Error()).To(ContainSubstring("VideoUrl is required"))
		})

		It("maps duplicate ids to a conflict", func() {
			req := validRequest
			req.JobId = "campaign-7"

			_, err := srv.StartJob(ctx, req)
			Expect(err).To(BeNil())

			_, err = srv.StartJob(ctx, req)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobAlreadyExists{})))
		})

		It("reports a closed orchestrator as unavailable", func() {
			orch.Close()
			_, err := srv.StartJob(ctx, validRequest)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrUnavailable{})))
			Expect(errors.Is(err, pipeline.ErrClosed)).To(BeTrue())
		})

		It("keeps unknown errors", func() {
			boom := errors.New("boom")
			srv = service.NewPipelineService(starterFunc(func(context.Context, api.PipelineStartRequest) (string, error) {
				return "", boom
			}), s, cat)

			_, err := srv.StartJob(ctx, validRequest)
			Expect(err).To(Equal(boom))
		})

		It("reports validator errors raised by the starter", func() {
			srv = service.NewPipelineService(starterFunc(func(context.Context, api.PipelineStartRequest) (string, error) {
				return "", validator.NewErrInvalidField("%s", "Config.AspectRatio has an unsupported value")
			}), s, cat)

			_, err := srv.StartJob(ctx, validRequest)
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidRequest{})))
		})
	})

	Context("get", func() {
		It("returns not found for an unknown job", func() {
			_, err := srv.GetJob(ctx, "missing")
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobNotFound{})))
		})
	})

	Context("list", func() {
		It("filters by status", func() {
			_, err := s.Job().Create(ctx, "running", json.RawMessage(`{}`))
			Expect(err).To(BeNil())
			_, err = s.Job().Create(ctx, "failed", json.RawMessage(`{}`))
			Expect(err).To(BeNil())
			_, err = s.Job().MarkFailed(ctx, "failed", "boom")
			Expect(err).To(BeNil())

			jobs, err := srv.ListJobs(ctx, service.JobFilter{})
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))

			jobs, err = srv.ListJobs(ctx, service.JobFilter{Status: "failed"})
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal("failed"))
		})

		It("rejects an unknown status", func() {
			_, err := srv.ListJobs(ctx, service.JobFilter{Status: "paused"})
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidRequest{})))
		})

		It("rejects a negative limit", func() {
			_, err := srv.ListJobs(ctx, service.JobFilter{Limit: -1})
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidRequest{})))
		})
	})

	Context("delete", func() {
		It("deletes a terminal job", func() {
			_, err := s.Job().Create(ctx, "done", json.RawMessage(`{}`))
			Expect(err).To(BeNil())
			_, err = s.Job().MarkCompleted(ctx, "done")
			Expect(err).To(BeNil())

			job, err := srv.DeleteJob(ctx, "done")
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal("done"))

			_, err = srv.GetJob(ctx, "done")
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobNotFound{})))
		})

		It("refuses to delete a running job", func() {
			_, err := s.Job().Create(ctx, "busy", json.RawMessage(`{}`))
			Expect(err).To(BeNil())

			_, err = srv.DeleteJob(ctx, "busy")
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobNotTerminal{})))
			Expect(err.Error()).To(ContainSubstring("busy is running"))
		})

		It("returns not found for an unknown job", func() {
			_, err := srv.DeleteJob(ctx, "missing")
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrJobNotFound{})))
		})
	})

	It("is healthy while the store answers", func() {
		Expect(srv.Health(ctx)).To(Succeed())
	})
})

var _ = Describe("mappers", func() {
	cat := catalog.Default()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	It("derives nodes and progress of a running job", func() {
		job := store.NewMemoryJobStore(cat)
		_, err := job.Create(context.TODO(), "job-1", json.RawMessage(`{}`))
		Expect(err).To(BeNil())
		_, err = job.RecordStageResult(context.TODO(), "job-1", catalog.StepDownload, json.RawMessage(`{"videoPath":"/tmp/v.mp4"}`))
		Expect(err).To(BeNil())
		record, err := job.Get(context.TODO(), "job-1")
		Expect(err).To(BeNil())

		status := mappers.JobToApi(cat, *record)
		Expect(status.JobId).To(Equal("job-1"))
		Expect(status.Status).To(Equal("running"))
		Expect(status.CurrentStep).To(Equal("download_completed"))
		Expect(status.Nodes).To(HaveLen(6))
		Expect(status.Nodes["download"]).To(Equal("completed"))
		Expect(status.Nodes["extract"]).To(Equal("running"))
		Expect(status.Nodes["render"]).To(Equal("pending"))
		Expect(status.Progress.StepNumber).To(Equal(1))
		Expect(status.Progress.TotalSteps).To(Equal(6))
		Expect(status.Progress.CurrentStep).To(Equal("Extracting frames and audio"))
		Expect(string(status.StageResults["download"])).To(MatchJSON(`{"videoPath":"/tmp/v.mp4"}`))
		Expect(status.PromptProvenance).To(BeNil())
	})

	It("marks every node completed on a completed job", func() {
		done := created.Add(time.Minute)
		status := mappers.JobToApi(cat, modelJob("job-2", catalog.JobCompleted, "render_completed", created, &done))

		for _, node := range status.Nodes {
			Expect(node).To(Equal("completed"))
		}
		Expect(status.Progress.Percentage).To(BeNumerically("==", 100))
		Expect(status.CompletedAt).ToNot(BeNil())
	})

	It("lists the catalog with the skip marker of optional steps", func() {
		steps := mappers.CatalogToApi(cat)
		Expect(steps).To(HaveLen(6))
		Expect(steps[0].Id).To(Equal("download"))
		Expect(steps[0].SkipMarker).To(BeNil())
		Expect(steps[4].Id).To(Equal("scene_image"))
		Expect(steps[4].Optional).To(BeTrue())
		Expect(*steps[4].SkipMarker).To(Equal("scene_image_skipped"))
	})
})
