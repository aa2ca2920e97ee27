package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/client"
	"github.com/ugclab/ugc-pipeline/internal/collaborator"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/store"
)

const (
	ExitCompleted = 0
	ExitFailed    = 1
	ExitTimeout   = 2
	ExitUsage     = 3
)

type RunOptions struct {
	GlobalOptions

	VideoUrl           string
	ProductImages      []string
	ProductDescription string
	ProductContext     string
	JobId              string
	SkipSceneImage     bool
	NoMechanics        bool
	EnergyLevel        string
	// Blueprint is a file path or an inline json object.
	Blueprint string
	Render    bool

	Interval time.Duration
	Timeout  time.Duration
	Local    bool
	// LocalLatency is the delay of every simulated stage in local mode.
	LocalLatency time.Duration
	Output       string

	// jobAPI replaces the server client, set by tests.
	jobAPI client.JobAPI
}

func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Interval:      2 * time.Second,
		Timeout:       30 * time.Minute,
		LocalLatency:  200 * time.Millisecond,
	}
}

func NewCmdRun() *cobra.Command {
	o := DefaultRunOptions()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a pipeline job and wait until it completes or fails.",
		Long: `Start a pipeline job and poll its status until it completes or fails.

Exit codes: 0 completed, 1 failed, 2 timed out, 3 the job could not be started.`,
		Example: "run --video-url https://www.tiktok.com/@creator/video/1 --description 'vitamin C serum'\nrun --local --video-url https://example.com/v.mp4\nrun --blueprint blueprint.json --description 'vitamin C serum'",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}
			if err := o.Validate(args); err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *RunOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.VideoUrl, "video-url", o.VideoUrl, "URL of the reference video")
	fs.StringSliceVar(&o.ProductImages, "product-images", o.ProductImages, "URLs of the product images")
	fs.StringVar(&o.ProductDescription, "description", o.ProductDescription, "Description of the product")
	fs.StringVar(&o.ProductContext, "context", o.ProductContext, "Additional context about the product")
	fs.StringVar(&o.JobId, "job-id", o.JobId, "Id of the job, generated by the server when empty")
	fs.BoolVar(&o.SkipSceneImage, "skip-scene-image", o.SkipSceneImage, "Do not generate a scene image")
	fs.BoolVar(&o.NoMechanics, "no-mechanics", o.NoMechanics, "Do not enhance the prompt with mechanics")
	fs.StringVar(&o.EnergyLevel, "energy", o.EnergyLevel, "Energy level of the video (low, medium, high)")
	fs.StringVar(&o.Blueprint, "blueprint", o.Blueprint, "Blueprint of an earlier analysis, as a file path or inline json. Only the prompt is generated")
	fs.BoolVar(&o.Render, "render", o.Render, "Render the video of a blueprint job")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Interval between two status polls")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Stop waiting for the job after this duration")
	fs.BoolVar(&o.Local, "local", o.Local, "Run the job in process with simulated stages instead of calling a server")
	fs.DurationVar(&o.LocalLatency, "local-latency", o.LocalLatency, "Duration of every simulated stage in local mode")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format of the final status. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *RunOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.VideoUrl == "" && o.Blueprint == "" {
		return fmt.Errorf("--video-url or --blueprint is required")
	}
	if o.Render && o.Blueprint == "" {
		return fmt.Errorf("--render needs --blueprint")
	}
	if o.Interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	if o.Timeout < 0 {
		return fmt.Errorf("--timeout must not be negative")
	}
	return validateOutput(o.Output)
}

func (o *RunOptions) request() (api.PipelineStartRequest, error) {
	req := api.PipelineStartRequest{
		JobId:              o.JobId,
		VideoUrl:           o.VideoUrl,
		ProductImages:      o.ProductImages,
		ProductDescription: o.ProductDescription,
		ProductContext:     o.ProductContext,
		Config: api.PipelineConfig{
			SkipSceneImage: o.SkipSceneImage,
			EnergyLevel:    o.EnergyLevel,
		},
	}
	if o.NoMechanics {
		disabled := false
		req.Config.EnableMechanics = &disabled
	}

	if o.Blueprint != "" {
		blueprint, err := readBlueprint(o.Blueprint)
		if err != nil {
			return req, err
		}
		req.Blueprint = blueprint
		render := o.Render
		req.Config.RenderVideo = &render
	}
	return req, nil
}

// readBlueprint returns value when it is inline json, else the content of
// the file it names.
func readBlueprint(value string) (json.RawMessage, error) {
	data := []byte(strings.TrimSpace(value))
	if !bytes.HasPrefix(data, []byte("{")) {
		var err error
		data, err = os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("reading blueprint: %w", err)
		}
		data = bytes.TrimSpace(data)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("blueprint is not valid json")
	}
	return data, nil
}

func (o *RunOptions) Run(ctx context.Context, args []string) error {
	jobAPI, cleanup, err := o.api()
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	defer cleanup()

	req, err := o.request()
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	jobID, err := jobAPI.Start(ctx, req)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("starting job: %w", err)}
	}
	fmt.Fprintf(o.Out(), "job %s started\n", jobID)

	var lastStep string
	status, err := client.NewPoller(jobAPI).Await(ctx, jobID, client.PollOptions{
		Interval: o.Interval,
		Timeout:  o.Timeout,
		Observer: func(ev client.PollEvent) {
			if ev.Status == nil || ev.Status.CurrentStep == lastStep {
				return
			}
			lastStep = ev.Status.CurrentStep
			fmt.Fprintf(o.Out(), "%5.1f%% %s\n", ev.Status.Progress.Percentage, progressLine(ev.Status))
		},
	})
	if err != nil {
		var timeoutErr *client.TimeoutError
		if errors.As(err, &timeoutErr) {
			return &ExitError{Code: ExitTimeout, Err: err}
		}
		return &ExitError{Code: ExitFailed, Err: err}
	}

	if err := o.print(o.Out(), status); err != nil {
		return err
	}

	if status.Status == string(catalog.JobFailed) {
		msg := "unknown error"
		if status.Error != nil {
			msg = *status.Error
		}
		return &ExitError{Code: ExitFailed, Err: fmt.Errorf("job %s failed: %s", jobID, msg)}
	}
	return nil
}

func (o *RunOptions) print(w io.Writer, status *api.JobStatus) error {
	return printResource(w, o.Output, status, func(tw *tabwriter.Writer) { printJobsTable(tw, *status) })
}

// api returns the job api of the server, or of an in-process pipeline in
// local mode. The returned func releases it.
func (o *RunOptions) api() (client.JobAPI, func(), error) {
	if o.jobAPI != nil {
		return o.jobAPI, func() {}, nil
	}

	if o.Local {
		c := catalog.Default()
		s := store.NewMemoryStore(c)
		orch := pipeline.NewOrchestrator(s.Job(), c, collaborator.NewSimulatedRunner(o.LocalLatency))
		return client.NewLocalAPI(orch, c), func() {
			orch.Close()
			_ = s.Close()
		}, nil
	}

	c, err := o.Client()
	if err != nil {
		return nil, nil, fmt.Errorf("creating client: %w", err)
	}
	return c, func() {}, nil
}

func progressLine(status *api.JobStatus) string {
	step := status.Progress.CurrentStep
	if step == "" {
		step = status.CurrentStep
	}
	return fmt.Sprintf("step %d/%d %s", status.Progress.StepNumber, status.Progress.TotalSteps, step)
}
