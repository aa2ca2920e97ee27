package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"go.uber.org/zap"
)

// SimulatedRunner answers every stage with a deterministic payload after a
// fixed latency. It backs the api server when no collaborator is configured.
type SimulatedRunner struct {
	latency time.Duration
}

var _ pipeline.StageRunner = (*SimulatedRunner)(nil)

func NewSimulatedRunner(latency time.Duration) *SimulatedRunner {
	return &SimulatedRunner{latency: latency}
}

func (s *SimulatedRunner) Run(ctx context.Context, req pipeline.StageRequest) (json.RawMessage, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	zap.S().Named("simulated_runner").Debugw("running stage", "job_id", req.JobID, "stage", req.Step, "attempt", req.Attempt)

	out, err := json.Marshal(simulatedPayload(req))
	if err != nil {
		return nil, pipeline.Permanent(err)
	}
	return out, nil
}

func simulatedPayload(req pipeline.StageRequest) any {
	in := req.Input
	base := fmt.Sprintf("https://assets.ugclab.local/%s", req.JobID)

	switch req.Step {
	case catalog.StepDownload:
		return map[string]any{
			"videoPath":       base + "/reference.mp4",
			"durationSeconds": 12.5,
			"sourceUrl":       in.VideoURL,
		}
	case catalog.StepExtract:
		return map[string]any{
			"framesDir":  base + "/frames",
			"frameCount": 24,
			"audioPath":  base + "/audio.wav",
		}
	case catalog.StepAnalyze:
		return pipeline.AnalyzeStageResult{
			Blueprint: pipeline.BlueprintSummary{
				Setting:  "bedroom",
				Lighting: "natural window light",
				Energy:   in.Config.EnergyLevel,
			},
		}
	case catalog.StepPrompt:
		r := pipeline.PromptStageResult{
			BasePrompt: fmt.Sprintf("Selfie style video of a creator showing %s", orDefault(in.ProductDescription, "the product")),
		}
		if in.Config.MechanicsEnabled() {
			enhanced := r.BasePrompt + ", hook in the first second, handheld camera shake"
			r.EnhancedPrompt = &enhanced
		}
		return r
	case catalog.StepSceneImage:
		return pipeline.SceneImageStageResult{ImageURL: base + "/scene.png"}
	case catalog.StepRender:
		return map[string]any{
			"videoUrl":    base + "/final.mp4",
			"model":       in.Config.VideoModel,
			"duration":    in.Config.VideoDuration,
			"aspectRatio": in.Config.AspectRatio,
			"prompt":      in.Prompt,
		}
	default:
		return map[string]any{"step": req.Step}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
