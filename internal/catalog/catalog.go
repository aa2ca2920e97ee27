package catalog

import (
	"errors"
	"fmt"
)

type StepID string

const (
	StepDownload   StepID = "download"
	StepExtract    StepID = "extract"
	StepAnalyze    StepID = "analyze"
	StepPrompt     StepID = "prompt"
	StepSceneImage StepID = "scene_image"
	StepRender     StepID = "render"
)

// MarkerNone is the marker of a job that has not completed any step yet.
const MarkerNone = ""

// Step is one entry of the pipeline sequence.
type Step struct {
	ID               StepID
	CompletionMarker string
	// SkipMarker is only set on optional steps. Recording it counts as
	// completing the step.
	SkipMarker string
	Label      string
}

func (s Step) Optional() bool {
	return s.SkipMarker != ""
}

// Catalog is the ordered, immutable list of pipeline steps.
type Catalog struct {
	steps    []Step
	markers  map[string]int
	position map[StepID]int
}

var defaultCatalog = mustNew(
	Step{ID: StepDownload, CompletionMarker: CompletionMarker(StepDownload), Label: "Downloading video"},
	Step{ID: StepExtract, CompletionMarker: CompletionMarker(StepExtract), Label: "Extracting frames and audio"},
	Step{ID: StepAnalyze, CompletionMarker: CompletionMarker(StepAnalyze), Label: "Analyzing blueprint"},
	Step{ID: StepPrompt, CompletionMarker: CompletionMarker(StepPrompt), Label: "Generating prompt"},
	Step{ID: StepSceneImage, CompletionMarker: CompletionMarker(StepSceneImage), SkipMarker: SkipMarker(StepSceneImage), Label: "Generating scene image"},
	Step{ID: StepRender, CompletionMarker: CompletionMarker(StepRender), Label: "Rendering video"},
)

// Default returns the six step catalog used by the pipeline.
func Default() *Catalog {
	return defaultCatalog
}

func CompletionMarker(id StepID) string {
	return fmt.Sprintf("%s_completed", id)
}

func SkipMarker(id StepID) string {
	return fmt.Sprintf("%s_skipped", id)
}

// New validates the steps and builds a catalog from them. The order of the
// arguments is the execution order.
func New(steps ...Step) (*Catalog, error) {
	if len(steps) == 0 {
		return nil, errors.New("catalog must contain at least one step")
	}

	c := &Catalog{
		steps:    make([]Step, 0, len(steps)),
		markers:  make(map[string]int, len(steps)*2),
		position: make(map[StepID]int, len(steps)),
	}

	addMarker := func(marker string, idx int) error {
		if marker == MarkerNone {
			return fmt.Errorf("step %d has an empty marker", idx)
		}
		if _, found := c.markers[marker]; found {
			return fmt.Errorf("duplicate marker %q", marker)
		}
		c.markers[marker] = idx
		return nil
	}

	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("step %d has no id", i)
		}
		if _, found := c.position[s.ID]; found {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		if err := addMarker(s.CompletionMarker, i); err != nil {
			return nil, err
		}
		if s.Optional() {
			if err := addMarker(s.SkipMarker, i); err != nil {
				return nil, err
			}
		}
		c.position[s.ID] = i
		c.steps = append(c.steps, s)
	}

	return c, nil
}

func mustNew(steps ...Step) *Catalog {
	c, err := New(steps...)
	if err != nil {
		panic(err)
	}
	return c
}

// Steps returns a copy of the ordered steps.
func (c *Catalog) Steps() []Step {
	steps := make([]Step, len(c.steps))
	copy(steps, c.steps)
	return steps
}

func (c *Catalog) Len() int {
	return len(c.steps)
}

func (c *Catalog) At(idx int) Step {
	return c.steps[idx]
}

func (c *Catalog) Step(id StepID) (Step, bool) {
	idx, found := c.position[id]
	if !found {
		return Step{}, false
	}
	return c.steps[idx], true
}

func (c *Catalog) Position(id StepID) (int, bool) {
	idx, found := c.position[id]
	return idx, found
}

// IndexOf resolves a marker to the index of the step it completes.
// MarkerNone resolves to -1. Unknown markers resolve to -1 and false.
func (c *Catalog) IndexOf(marker string) (int, bool) {
	if marker == MarkerNone {
		return -1, true
	}
	idx, found := c.markers[marker]
	if !found {
		return -1, false
	}
	return idx, true
}
