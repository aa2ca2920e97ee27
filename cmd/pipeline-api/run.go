package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	apiserver "github.com/ugclab/ugc-pipeline/internal/api_server"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/service"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := loadConfig()
		if err != nil {
			return err
		}
		defer flush()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		c := catalog.Default()

		zap.S().Infow("Initializing data store", "type", cfg.Database.Type)
		s, err := newStore(cfg, c, cfg.Service.MigrateOnStart)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}
		defer s.Close()

		opts, producer, err := orchestratorOptions(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing pipeline", "error", err)
		}
		if producer != nil {
			defer producer.Close()
		}

		orch := pipeline.NewOrchestrator(s.Job(), c, newStageRunner(cfg), opts...)
		// running jobs finish before the store and the producer are closed
		defer orch.Close()

		pipelineSrv := service.NewPipelineService(orch, s, c)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, pipelineSrv, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("Error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			metricsServer, err := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener, s)
			if err != nil {
				zap.S().Fatalw("creating metrics server", "error", err)
			}
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("Error running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}
