package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/events"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
	"github.com/ugclab/ugc-pipeline/internal/store"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
	"github.com/ugclab/ugc-pipeline/internal/validator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stageFunc func(req pipeline.StageRequest) (json.RawMessage, error)

// fakeRunner answers with canned payloads unless a step has its own behavior.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []pipeline.StageRequest
	behavior map[catalog.StepID]stageFunc
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{behavior: map[catalog.StepID]stageFunc{}}
}

func (f *fakeRunner) on(step catalog.StepID, fn stageFunc) *fakeRunner {
	f.behavior[step] = fn
	return f
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.StageRequest) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.behavior[req.Step]
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}

	switch req.Step {
	case catalog.StepAnalyze:
		return json.RawMessage(`{"blueprint":{"setting":"kitchen","lighting":"ring light","energy":"high"}}`), nil
	case catalog.StepPrompt:
		return json.RawMessage(`{"basePrompt":"base prompt","enhancedPrompt":"enhanced prompt"}`), nil
	case catalog.StepSceneImage:
		return json.RawMessage(`{"imageUrl":"https://cdn.example.com/scene.png"}`), nil
	default:
		return json.RawMessage(fmt.Sprintf(`{"step":%q}`, req.Step)), nil
	}
}

func (f *fakeRunner) stepsCalled() []catalog.StepID {
	f.mu.Lock()
	defer f.mu.Unlock()
	steps := make([]catalog.StepID, 0, len(f.calls))
	for _, c := range f.calls {
		steps = append(steps, c.Step)
	}
	return steps
}

func (f *fakeRunner) lastCall(step catalog.StepID) (pipeline.StageRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Step == step {
			return f.calls[i], true
		}
	}
	return pipeline.StageRequest{}, false
}

// recordingStore remembers the order of the store calls.
type recordingStore struct {
	store.Job
	mu    sync.Mutex
	calls []string
}

func (r *recordingStore) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recordingStore) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingStore) RecordStageResult(ctx context.Context, id string, step catalog.StepID, payload json.RawMessage) (*model.Job, error) {
	r.add("result:" + string(step))
	return r.Job.RecordStageResult(ctx, id, step, payload)
}

func (r *recordingStore) RecordStageSkipped(ctx context.Context, id string, step catalog.StepID) (*model.Job, error) {
	r.add("skip:" + string(step))
	return r.Job.RecordStageSkipped(ctx, id, step)
}

func (r *recordingStore) SetPromptProvenance(ctx context.Context, id string, p prompt.Provenance) (*model.Job, error) {
	r.add("provenance")
	return r.Job.SetPromptProvenance(ctx, id, p)
}

func (r *recordingStore) MarkCompleted(ctx context.Context, id string) (*model.Job, error) {
	r.add("completed")
	return r.Job.MarkCompleted(ctx, id)
}

func (r *recordingStore) MarkFailed(ctx context.Context, id string, msg string) (*model.Job, error) {
	r.add("failed")
	return r.Job.MarkFailed(ctx, id, msg)
}

type sinkEvent struct {
	kind  string
	event events.JobEvent
}

type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *fakeSink) Publish(_ context.Context, kind string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: kind, event: v.(events.JobEvent)})
	return nil
}

func (s *fakeSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.kind)
	}
	return kinds
}

type failingSink struct{}

func (failingSink) Publish(context.Context, string, any) error {
	return errors.New("stream unavailable")
}

// gatedStore holds every Create until release is closed.
type gatedStore struct {
	store.Job
	entered chan string
	release chan struct{}
}

func (g *gatedStore) Create(ctx context.Context, id string, input json.RawMessage) (*model.Job, error) {
	g.entered <- id
	<-g.release
	return g.Job.Create(ctx, id, input)
}

type fakeArchiver struct {
	mu   sync.Mutex
	jobs []model.Job
}

func (a *fakeArchiver) Archive(_ context.Context, job *model.Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job.Clone())
	return nil
}

var fastRetries = pipeline.RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
}

func request() api.PipelineStartRequest {
	return api.PipelineStartRequest{
		VideoUrl:           "https://cdn.example.com/reference.mp4",
		ProductDescription: "a vitamin C serum",
	}
}

func ptr[T any](v T) *T {
	return &v
}

var _ = Describe("orchestrator", func() {
	var (
		ctx      context.Context
		cat      *catalog.Catalog
		jobs     *recordingStore
		runner   *fakeRunner
		sink     *fakeSink
		archiver *fakeArchiver
		orch     *pipeline.Orchestrator
	)

	newOrchestrator := func(opts ...pipeline.Option) *pipeline.Orchestrator {
		base := []pipeline.Option{
			pipeline.WithRetryPolicy(fastRetries),
			pipeline.WithEventSink(sink),
			pipeline.WithArchiver(archiver),
		}
		return pipeline.NewOrchestrator(jobs, cat, runner, append(base, opts...)...)
	}

	run := func(req api.PipelineStartRequest) *model.Job {
		id, err := orch.Start(ctx, req)
		Expect(err).To(BeNil())
		orch.Wait()

		job, err := orch.GetStatus(ctx, id)
		Expect(err).To(BeNil())
		return job
	}

	BeforeEach(func() {
		ctx = context.TODO()
		cat = catalog.Default()
		jobs = &recordingStore{Job: store.NewMemoryJobStore(cat)}
		runner = newFakeRunner()
		sink = &fakeSink{}
		archiver = &fakeArchiver{}
		orch = newOrchestrator()
	})

	AfterEach(func() {
		orch.Close()
	})

	Context("start", func() {
		It("rejects an invalid request without creating a job", func() {
			_, err := orch.Start(ctx, api.PipelineStartRequest{VideoUrl: "not a url"})

			var fieldErr *validator.ErrInvalidField
			Expect(errors.As(err, &fieldErr)).To(BeTrue())

			list, err := jobs.List(ctx, nil)
			Expect(err).To(BeNil())
			Expect(list).To(BeEmpty())
		})

		It("keeps the caller supplied job id and rejects duplicates", func() {
			req := request()
			req.JobId = "campaign-1"

			id, err := orch.Start(ctx, req)
			Expect(err).To(BeNil())
			Expect(id).To(Equal("campaign-1"))

			_, err = orch.Start(ctx, req)
			Expect(err).To(MatchError(store.ErrDuplicateJob))
		})

		It("returns while the first stage is still running", func() {
			release := make(chan struct{})
			runner.on(catalog.StepDownload, func(pipeline.StageRequest) (json.RawMessage, error) {
				<-release
				return json.RawMessage(`{}`), nil
			})

			cctx, cancel := context.WithCancel(ctx)
			id, err := orch.Start(cctx, request())
			Expect(err).To(BeNil())
			// cancelling the caller context does not stop the job
			cancel()

			job, err := orch.GetStatus(ctx, id)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(catalog.JobRunning))
			Expect(job.CurrentStep).To(Equal(catalog.MarkerNone))

			close(release)
			orch.Wait()

			job, err = orch.GetStatus(ctx, id)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(catalog.JobCompleted))
		})

		It("stores the request with the defaults applied", func() {
			job := run(request())

			var input api.PipelineStartRequest
			Expect(json.Unmarshal(job.Input, &input)).To(Succeed())
			Expect(input.JobId).To(Equal(job.ID))
			Expect(input.Config.VideoModel).To(Equal(api.DefaultVideoModel))
			Expect(input.Config.AspectRatio).To(Equal(api.DefaultAspectRatio))
		})

		It("does not serialize the record creation of concurrent starts", func() {
			gated := &gatedStore{Job: jobs.Job, entered: make(chan string, 2), release: make(chan struct{})}
			orch = pipeline.NewOrchestrator(gated, cat, runner, pipeline.WithRetryPolicy(fastRetries))

			var wg sync.WaitGroup
			for _, id := range []string{"job-a", "job-b"} {
				req := request()
				req.JobId = id
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := orch.Start(ctx, req)
					Expect(err).To(BeNil())
				}()
			}

			Eventually(gated.entered).Should(Receive())
			Eventually(gated.entered).Should(Receive())

			close(gated.release)
			wg.Wait()
			orch.Wait()
		})

		It("refuses new jobs once closed", func() {
			orch.Close()
			_, err := orch.Start(ctx, request())
			Expect(err).To(MatchError(pipeline.ErrClosed))
		})
	})

	Context("execution", func() {
		It("runs every stage in order and completes the job", func() {
			job := run(request())

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(job.CurrentStep).To(Equal("render_completed"))
			Expect(job.ErrorMessage).To(BeNil())
			Expect(job.CompletedAt).ToNot(BeNil())
			Expect(job.StageResults).To(HaveLen(6))
			Expect(runner.stepsCalled()).To(Equal([]catalog.StepID{
				catalog.StepDownload, catalog.StepExtract, catalog.StepAnalyze,
				catalog.StepPrompt, catalog.StepSceneImage, catalog.StepRender,
			}))

			Expect(job.PromptProvenance).ToNot(BeNil())
			Expect(job.PromptProvenance.Source).To(Equal(prompt.SourceEnhanced))
			Expect(job.PromptProvenance.Text).To(Equal("enhanced prompt"))

			for _, s := range cat.DeriveStatuses(job.CurrentStep, job.Status) {
				Expect(s).To(Equal(catalog.NodeCompleted))
			}
		})

		It("stores the provenance right before completing", func() {
			run(request())

			calls := jobs.Calls()
			Expect(calls).To(HaveLen(8))
			Expect(calls[len(calls)-2:]).To(Equal([]string{"provenance", "completed"}))
		})

		It("hands the resolved prompt and the scene image to the render stage", func() {
			run(request())

			render, found := runner.lastCall(catalog.StepRender)
			Expect(found).To(BeTrue())
			Expect(render.Input.Prompt).To(Equal("enhanced prompt"))
			Expect(render.Input.PromptSource).To(Equal(prompt.SourceEnhanced))
			Expect(render.Input.SceneImageURL).To(Equal("https://cdn.example.com/scene.png"))
			Expect(render.Input.PreviousResults).To(HaveKey(catalog.StepAnalyze))
			Expect(render.Input.Blueprint).ToNot(BeNil())
			Expect(render.Input.Blueprint.Setting).To(Equal("kitchen"))

			download, _ := runner.lastCall(catalog.StepDownload)
			Expect(download.Input.VideoURL).To(Equal("https://cdn.example.com/reference.mp4"))
			Expect(download.Input.PreviousResults).To(BeEmpty())
			Expect(download.Input.Prompt).To(BeEmpty())
		})

		It("publishes the lifecycle events and archives the record", func() {
			job := run(request())

			Expect(sink.kinds()).To(Equal([]string{
				events.JobStartedKind,
				events.StageCompletedKind, events.StageCompletedKind, events.StageCompletedKind,
				events.StageCompletedKind, events.StageCompletedKind, events.StageCompletedKind,
				events.JobCompletedKind,
			}))

			archiver.mu.Lock()
			defer archiver.mu.Unlock()
			Expect(archiver.jobs).To(HaveLen(1))
			Expect(archiver.jobs[0].ID).To(Equal(job.ID))
			Expect(archiver.jobs[0].Status).To(Equal(catalog.JobCompleted))
		})
	})

	Context("optional scene image", func() {
		It("is skipped when the request asks for it", func() {
			req := request()
			req.Config.SkipSceneImage = true

			job := run(req)

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(runner.stepsCalled()).ToNot(ContainElement(catalog.StepSceneImage))
			Expect(job.StageResults).ToNot(HaveKey(catalog.StepSceneImage))
			Expect(jobs.Calls()).To(ContainElement("skip:scene_image"))
			Expect(sink.kinds()).To(ContainElement(events.StageSkippedKind))

			render, _ := runner.lastCall(catalog.StepRender)
			Expect(render.Input.SceneImageURL).To(BeEmpty())
		})

		It("is skipped when image to video is disabled", func() {
			req := request()
			req.Config.UseImageToVideo = ptr(false)

			job := run(req)

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(runner.stepsCalled()).To(HaveLen(5))
		})

		It("shows the skip as a completed node while running", func() {
			req := request()
			req.Config.SkipSceneImage = true
			release := make(chan struct{})
			runner.on(catalog.StepRender, func(pipeline.StageRequest) (json.RawMessage, error) {
				<-release
				return json.RawMessage(`{}`), nil
			})

			id, err := orch.Start(ctx, req)
			Expect(err).To(BeNil())

			Eventually(func() string {
				job, err := orch.GetStatus(ctx, id)
				Expect(err).To(BeNil())
				return job.CurrentStep
			}).Should(Equal("scene_image_skipped"))

			statuses := cat.DeriveStatuses("scene_image_skipped", catalog.JobRunning)
			Expect(statuses[catalog.StepSceneImage]).To(Equal(catalog.NodeCompleted))
			Expect(statuses[catalog.StepRender]).To(Equal(catalog.NodeRunning))

			close(release)
			orch.Wait()
		})
	})

	Context("retries", func() {
		It("retries a failing stage and succeeds", func() {
			var attempts []int
			runner.on(catalog.StepExtract, func(req pipeline.StageRequest) (json.RawMessage, error) {
				attempts = append(attempts, req.Attempt)
				if req.Attempt < 3 {
					return nil, errors.New("ffmpeg crashed")
				}
				return json.RawMessage(`{"frames":24}`), nil
			})

			job := run(request())

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(attempts).To(Equal([]int{1, 2, 3}))
			Expect(string(job.StageResults[catalog.StepExtract])).To(MatchJSON(`{"frames":24}`))
			Expect(sink.kinds()).To(ContainElement(events.StageRetriedKind))
		})

		It("fails the job once the attempts are exhausted and keeps partial results", func() {
			runner.on(catalog.StepPrompt, func(pipeline.StageRequest) (json.RawMessage, error) {
				return nil, errors.New("llm unavailable")
			})

			job := run(request())

			Expect(job.Status).To(Equal(catalog.JobFailed))
			Expect(job.ErrorMessage).ToNot(BeNil())
			Expect(*job.ErrorMessage).To(Equal("stage prompt failed after 3 attempt(s): llm unavailable"))
			Expect(job.CurrentStep).To(Equal("analyze_completed"))
			Expect(job.StageResults).To(HaveLen(3))
			Expect(job.PromptProvenance).To(BeNil())
			Expect(runner.stepsCalled()).ToNot(ContainElement(catalog.StepRender))

			statuses := cat.DeriveStatuses(job.CurrentStep, job.Status)
			Expect(statuses[catalog.StepAnalyze]).To(Equal(catalog.NodeCompleted))
			Expect(statuses[catalog.StepPrompt]).To(Equal(catalog.NodeFailed))
			Expect(statuses[catalog.StepSceneImage]).To(Equal(catalog.NodePending))
			Expect(statuses[catalog.StepRender]).To(Equal(catalog.NodePending))

			Expect(sink.kinds()).To(ContainElement(events.JobFailedKind))
			archiver.mu.Lock()
			defer archiver.mu.Unlock()
			Expect(archiver.jobs).To(HaveLen(1))
			Expect(archiver.jobs[0].Status).To(Equal(catalog.JobFailed))
		})

		It("does not retry a permanent error", func() {
			calls := 0
			runner.on(catalog.StepDownload, func(pipeline.StageRequest) (json.RawMessage, error) {
				calls++
				return nil, pipeline.Permanent(errors.New("video not found"))
			})

			job := run(request())

			Expect(calls).To(Equal(1))
			Expect(job.Status).To(Equal(catalog.JobFailed))
			Expect(*job.ErrorMessage).To(Equal("stage download failed after 1 attempt(s): video not found"))
			Expect(job.CurrentStep).To(Equal(catalog.MarkerNone))
		})

		It("treats a payload that is not json as a permanent failure", func() {
			runner.on(catalog.StepExtract, func(pipeline.StageRequest) (json.RawMessage, error) {
				return json.RawMessage(`{not json`), nil
			})

			job := run(request())

			Expect(job.Status).To(Equal(catalog.JobFailed))
			Expect(*job.ErrorMessage).To(Equal("stage extract failed after 1 attempt(s): stage returned invalid json"))
		})

		It("bounds every attempt with the stage timeout", func() {
			orch = newOrchestrator(
				pipeline.WithRetryPolicy(pipeline.RetryPolicy{MaxAttempts: 1}),
				pipeline.WithStageTimeout(20*time.Millisecond),
			)
			runner.on(catalog.StepRender, func(req pipeline.StageRequest) (json.RawMessage, error) {
				time.Sleep(100 * time.Millisecond)
				return nil, context.DeadlineExceeded
			})

			job := run(request())

			Expect(job.Status).To(Equal(catalog.JobFailed))
			Expect(*job.ErrorMessage).To(HavePrefix("stage render failed after 1 attempt(s)"))
			Expect(job.CurrentStep).To(Equal("scene_image_completed"))
		})
	})

	Context("event sink errors", func() {
		var (
			logs    *observer.ObservedLogs
			restore func()
		)

		BeforeEach(func() {
			var core zapcore.Core
			core, logs = observer.New(zapcore.DebugLevel)
			restore = zap.ReplaceGlobals(zap.New(core))
		})

		AfterEach(func() {
			restore()
		})

		It("logs a rejected retry event and keeps retrying", func() {
			orch = newOrchestrator(pipeline.WithEventSink(failingSink{}))
			runner.on(catalog.StepExtract, func(req pipeline.StageRequest) (json.RawMessage, error) {
				if req.Attempt < 2 {
					return nil, errors.New("ffmpeg crashed")
				}
				return json.RawMessage(`{}`), nil
			})

			job := run(request())
			Expect(job.Status).To(Equal(catalog.JobCompleted))

			retried := logs.FilterMessage("failed to publish event").FilterField(zap.String("kind", events.StageRetriedKind))
			Expect(retried.Len()).To(Equal(1))
			Expect(retried.All()[0].ContextMap()).To(HaveKeyWithValue("job_id", job.ID))
			Expect(retried.All()[0].Level).To(Equal(zapcore.WarnLevel))
		})
	})

	Context("blueprint jobs", func() {
		blueprint := json.RawMessage(`{"setting":"garage","lighting":"neon","energy":"low","hook":"unboxing"}`)

		blueprintRequest := func() api.PipelineStartRequest {
			return api.PipelineStartRequest{
				Blueprint:          blueprint,
				ProductDescription: "a pocket torch",
			}
		}

		It("records the video stages from the blueprint and only generates the prompt", func() {
			job := run(blueprintRequest())

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(runner.stepsCalled()).To(Equal([]catalog.StepID{catalog.StepPrompt}))
			Expect(job.CurrentStep).To(Equal("scene_image_skipped"))
			Expect(job.StageResults).To(HaveLen(4))
			Expect(string(job.StageResults[catalog.StepDownload])).To(MatchJSON(`{"source":"blueprint"}`))
			Expect(string(job.StageResults[catalog.StepAnalyze])).To(MatchJSON(`{"source":"blueprint","blueprint":` + string(blueprint) + `}`))
			Expect(job.StageResults).ToNot(HaveKey(catalog.StepRender))

			Expect(job.PromptProvenance).ToNot(BeNil())
			Expect(job.PromptProvenance.Source).To(Equal(prompt.SourceEnhanced))

			p, _ := runner.lastCall(catalog.StepPrompt)
			Expect(p.Input.VideoURL).To(BeEmpty())
			Expect(p.Input.Blueprint).ToNot(BeNil())
			Expect(p.Input.Blueprint.Setting).To(Equal("garage"))
			Expect(p.Input.PreviousResults).To(HaveKey(catalog.StepAnalyze))

			var input api.PipelineStartRequest
			Expect(json.Unmarshal(job.Input, &input)).To(Succeed())
			Expect(input.Config.RenderEnabled()).To(BeFalse())

			Expect(sink.kinds()).To(Equal([]string{
				events.JobStartedKind,
				events.StageCompletedKind, events.StageCompletedKind, events.StageCompletedKind,
				events.StageCompletedKind, events.StageSkippedKind,
				events.JobCompletedKind,
			}))
		})

		It("uses the blueprint in the fallback prompt", func() {
			runner.on(catalog.StepPrompt, func(pipeline.StageRequest) (json.RawMessage, error) {
				return json.RawMessage(`{"basePrompt":""}`), nil
			})

			job := run(blueprintRequest())

			Expect(job.PromptProvenance.Source).To(Equal(prompt.SourceFallback))
			Expect(job.PromptProvenance.Text).To(ContainSubstring("natural garage setting with neon"))
			Expect(job.PromptProvenance.Text).To(ContainSubstring("low energy"))
		})

		It("renders when asked to", func() {
			req := blueprintRequest()
			req.Config.RenderVideo = ptr(true)

			job := run(req)

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(job.CurrentStep).To(Equal("render_completed"))
			Expect(runner.stepsCalled()).To(Equal([]catalog.StepID{
				catalog.StepPrompt, catalog.StepSceneImage, catalog.StepRender,
			}))

			render, _ := runner.lastCall(catalog.StepRender)
			Expect(render.Input.Prompt).To(Equal("enhanced prompt"))
		})

		It("rejects a blueprint that is not an object", func() {
			req := blueprintRequest()
			req.Blueprint = json.RawMessage(`"garage"`)

			_, err := orch.Start(ctx, req)

			var fieldErr *validator.ErrInvalidField
			Expect(errors.As(err, &fieldErr)).To(BeTrue())
			Expect(err.Error()).To(Equal("PipelineStartRequest.Blueprint must be a json object"))
		})

		It("stops a full job before rendering when rendering is off", func() {
			req := request()
			req.Config.RenderVideo = ptr(false)

			job := run(req)

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(runner.stepsCalled()).To(Equal([]catalog.StepID{
				catalog.StepDownload, catalog.StepExtract, catalog.StepAnalyze, catalog.StepPrompt,
			}))
			Expect(job.PromptProvenance).ToNot(BeNil())
		})
	})

	Context("prompt fallback", func() {
		It("uses the base prompt when the enhanced one is blank", func() {
			runner.on(catalog.StepPrompt, func(pipeline.StageRequest) (json.RawMessage, error) {
				return json.RawMessage(`{"basePrompt":"iPhone UGC prompt...","enhancedPrompt":"   "}`), nil
			})

			job := run(request())

			Expect(job.PromptProvenance.Source).To(Equal(prompt.SourceBase))
			Expect(job.PromptProvenance.Text).To(Equal("iPhone UGC prompt..."))
			Expect(job.PromptProvenance.EnhancedLength).To(Equal(3))
		})

		It("ignores the enhanced prompt when mechanics are disabled", func() {
			req := request()
			req.Config.EnableMechanics = ptr(false)

			job := run(req)

			Expect(job.PromptProvenance.Source).To(Equal(prompt.SourceBase))
			Expect(job.PromptProvenance.Text).To(Equal("base prompt"))
		})

		It("falls back to the template built from the blueprint", func() {
			runner.on(catalog.StepPrompt, func(pipeline.StageRequest) (json.RawMessage, error) {
				return json.RawMessage(`{"basePrompt":""}`), nil
			})

			job := run(request())

			Expect(job.Status).To(Equal(catalog.JobCompleted))
			Expect(job.PromptProvenance.Source).To(Equal(prompt.SourceFallback))
			Expect(job.PromptProvenance.Text).To(ContainSubstring("holding a vitamin C serum"))
			Expect(job.PromptProvenance.Text).To(ContainSubstring("natural kitchen setting with ring light"))
			Expect(job.PromptProvenance.Text).To(ContainSubstring("high energy"))

			render, _ := runner.lastCall(catalog.StepRender)
			Expect(render.Input.Prompt).To(Equal(job.PromptProvenance.Text))
		})
	})
})
