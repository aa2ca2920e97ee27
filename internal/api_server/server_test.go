package apiserver_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	apiserver "github.com/ugclab/ugc-pipeline/internal/api_server"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/collaborator"
	"github.com/ugclab/ugc-pipeline/internal/config"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/service"
	"github.com/ugclab/ugc-pipeline/internal/store"
	"github.com/ugclab/ugc-pipeline/pkg/requestid"
)

var _ = Describe("api server", func() {
	var (
		cfg  *config.Config
		s    store.Store
		orch *pipeline.Orchestrator
		srv  *service.PipelineService
	)

	BeforeEach(func() {
		var err error
		cfg, err = config.NewDefault()
		Expect(err).To(BeNil())

		cat := catalog.Default()
		s = store.NewMemoryStore(cat)
		orch = pipeline.NewOrchestrator(s.Job(), cat, collaborator.NewSimulatedRunner(0))
		srv = service.NewPipelineService(orch, s, cat)
	})

	AfterEach(func() {
		orch.Close()
	})

	It("echoes the request id", func() {
		router, err := apiserver.New(cfg, srv, nil).Router()
		Expect(err).To(BeNil())
		ts := httptest.NewServer(router)
		defer ts.Close()

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		Expect(err).To(BeNil())
		req.Header.Set(requestid.Header, "abc-123")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get(requestid.Header)).To(Equal("abc-123"))
	})

	It("can build its router more than once", func() {
		_, err := apiserver.New(cfg, srv, nil).Router()
		Expect(err).To(BeNil())
		_, err = apiserver.New(cfg, srv, nil).Router()
		Expect(err).To(BeNil())
	})

	It("puts the request id in error bodies", func() {
		router, err := apiserver.New(cfg, srv, nil).Router()
		Expect(err).To(BeNil())
		ts := httptest.NewServer(router)
		defer ts.Close()

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/pipeline/jobs/missing", nil)
		Expect(err).To(BeNil())
		req.Header.Set(requestid.Header, "req-404")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		body, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		Expect(string(body)).To(ContainSubstring(`"requestId":"req-404"`))
	})

	It("serves until the context is cancelled", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.TODO())
		done := make(chan error, 1)
		go func() {
			done <- apiserver.New(cfg, srv, listener).Run(ctx)
		}()

		Eventually(func() int {
			resp, err := http.Get("http://" + listener.Addr().String() + "/health")
			if err != nil {
				return 0
			}
			resp.Body.Close()
			return resp.StatusCode
		}).Should(Equal(http.StatusOK))

		cancel()
		Eventually(done, 6*time.Second).Should(Receive(BeNil()))
	})

	It("exposes the job metrics", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		metricsSrv, err := apiserver.NewMetricServer(listener.Addr().String(), listener, s)
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.TODO())
		defer cancel()
		go func() {
			_ = metricsSrv.Run(ctx)
		}()

		Eventually(func() string {
			resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
			if err != nil {
				return ""
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return string(body)
		}).Should(And(
			ContainSubstring("ugc_pipeline_store_up 1"),
			ContainSubstring("ugc_pipeline_jobs_in_flight"),
		))
	})
})
