package client_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/client"
	"github.com/ugclab/ugc-pipeline/internal/collaborator"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/store"
)

// scriptedAPI answers GetStatus from a script, repeating its last entry.
type scriptedAPI struct {
	mu       sync.Mutex
	startErr error
	script   []func() (*api.JobStatus, error)
	polls    int
}

func (s *scriptedAPI) Start(context.Context, api.PipelineStartRequest) (string, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	return "job-1", nil
}

func (s *scriptedAPI) GetStatus(_ context.Context, jobID string) (*api.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.polls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.polls++
	return s.script[idx]()
}

func (s *scriptedAPI) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func status(s string) func() (*api.JobStatus, error) {
	return func() (*api.JobStatus, error) {
		return &api.JobStatus{JobId: "job-1", Status: s}, nil
	}
}

func failure(msg string) func() (*api.JobStatus, error) {
	return func() (*api.JobStatus, error) {
		return nil, errors.New(msg)
	}
}

var _ = Describe("poller", func() {
	var (
		ctx    context.Context
		events []client.PollEvent
		opts   client.PollOptions
	)

	BeforeEach(func() {
		ctx = context.TODO()
		events = nil
		opts = client.PollOptions{
			Interval: 5 * time.Millisecond,
			Jitter:   -1,
			Observer: func(e client.PollEvent) { events = append(events, e) },
		}
	})

	It("polls until the job completes", func() {
		fake := &scriptedAPI{script: []func() (*api.JobStatus, error){
			status("running"), status("running"), status("completed"),
		}}

		final, err := client.NewPoller(fake).StartAndAwait(ctx, api.PipelineStartRequest{}, opts)
		Expect(err).To(BeNil())
		Expect(final.Status).To(Equal("completed"))
		Expect(events).To(HaveLen(3))
		Expect(events[0].Attempt).To(Equal(1))
		Expect(events[2].Status.Status).To(Equal("completed"))
	})

	It("returns a failed job without an error", func() {
		fake := &scriptedAPI{script: []func() (*api.JobStatus, error){status("failed")}}

		final, err := client.NewPoller(fake).StartAndAwait(ctx, api.PipelineStartRequest{}, opts)
		Expect(err).To(BeNil())
		Expect(final.Status).To(Equal("failed"))
	})

	It("keeps polling through poll errors", func() {
		fake := &scriptedAPI{script: []func() (*api.JobStatus, error){
			failure("connection refused"), failure("connection refused"), status("completed"),
		}}

		final, err := client.NewPoller(fake).StartAndAwait(ctx, api.PipelineStartRequest{}, opts)
		Expect(err).To(BeNil())
		Expect(final.Status).To(Equal("completed"))
		Expect(events).To(HaveLen(3))
		Expect(events[0].Err).To(MatchError("connection refused"))
		Expect(events[0].Status).To(BeNil())
	})

	It("returns the start error without polling", func() {
		fake := &scriptedAPI{startErr: errors.New("invalid request")}

		_, err := client.NewPoller(fake).StartAndAwait(ctx, api.PipelineStartRequest{}, opts)
		Expect(err).To(MatchError("invalid request"))
		Expect(fake.polls).To(Equal(0))
		Expect(events).To(BeEmpty())
	})

	It("gives up after the timeout", func() {
		fake := &scriptedAPI{script: []func() (*api.JobStatus, error){status("running")}}
		opts.Timeout = 30 * time.Millisecond

		_, err := client.NewPoller(fake).StartAndAwait(ctx, api.PipelineStartRequest{}, opts)

		var timeout *client.TimeoutError
		Expect(errors.As(err, &timeout)).To(BeTrue())
		Expect(timeout.JobID).To(Equal("job-1"))
		Expect(timeout.After).To(Equal(30 * time.Millisecond))
		Expect(events).ToNot(BeEmpty())
		Expect(events[len(events)-1].Err).To(Equal(err))

		polls := fake.pollCount()
		Consistently(fake.pollCount, 50*time.Millisecond, 5*time.Millisecond).Should(Equal(polls))
	})

	It("stops when the context is cancelled", func() {
		fake := &scriptedAPI{script: []func() (*api.JobStatus, error){status("running")}}
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := client.NewPoller(fake).StartAndAwait(cctx, api.PipelineStartRequest{}, opts)
		Expect(err).To(MatchError(context.DeadlineExceeded))

		polls := fake.pollCount()
		Consistently(fake.pollCount, 50*time.Millisecond, 5*time.Millisecond).Should(Equal(polls))
	})

	It("stops polling on an explicit cancel", func() {
		fake := &scriptedAPI{script: []func() (*api.JobStatus, error){status("running")}}
		cctx, cancel := context.WithCancel(ctx)

		done := make(chan error, 1)
		go func() {
			_, err := client.NewPoller(fake).Await(cctx, "job-1", client.PollOptions{Interval: 5 * time.Millisecond, Jitter: -1})
			done <- err
		}()

		Eventually(fake.pollCount).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))

		polls := fake.pollCount()
		Consistently(fake.pollCount, 50*time.Millisecond, 5*time.Millisecond).Should(Equal(polls))
	})

	It("awaits an in process job", func() {
		cat := catalog.Default()
		orch := pipeline.NewOrchestrator(store.NewMemoryJobStore(cat), cat, collaborator.NewSimulatedRunner(time.Millisecond))
		defer orch.Close()

		final, err := client.NewPoller(client.NewLocalAPI(orch, cat)).StartAndAwait(ctx, api.PipelineStartRequest{
			VideoUrl: "https://cdn.example.com/v.mp4",
		}, opts)
		Expect(err).To(BeNil())
		Expect(final.Status).To(Equal("completed"))
		Expect(final.Nodes).To(HaveLen(6))
		Expect(final.PromptProvenance).ToNot(BeNil())
	})

	It("leaves an in process job running after a poll timeout", func() {
		cat := catalog.Default()
		orch := pipeline.NewOrchestrator(store.NewMemoryJobStore(cat), cat, collaborator.NewSimulatedRunner(20*time.Millisecond))
		defer orch.Close()

		local := client.NewLocalAPI(orch, cat)
		opts.Timeout = 30 * time.Millisecond

		_, err := client.NewPoller(local).StartAndAwait(ctx, api.PipelineStartRequest{
			VideoUrl: "https://cdn.example.com/v.mp4",
		}, opts)

		var timeout *client.TimeoutError
		Expect(errors.As(err, &timeout)).To(BeTrue())

		current, err := local.GetStatus(ctx, timeout.JobID)
		Expect(err).To(BeNil())
		Expect(current.Status).To(Equal("running"))

		Eventually(func() string {
			s, err := local.GetStatus(ctx, timeout.JobID)
			Expect(err).To(BeNil())
			return s.Status
		}, 2*time.Second, 10*time.Millisecond).Should(Equal("completed"))
	})
})
