package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/thoas/go-funk"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

func validateOutput(output string) error {
	if len(output) > 0 && !funk.Contains(legalOutputTypes, output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

// printResource writes v as json or yaml, or calls table for the default format.
func printResource(w io.Writer, output string, v any, table func(w *tabwriter.Writer)) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(w, "%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(w, "%s\n", string(marshalled))
		return nil
	default:
		tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
		table(tw)
		return tw.Flush()
	}
}

func printJobsTable(w *tabwriter.Writer, jobs ...api.JobStatus) {
	fmt.Fprintln(w, "ID\tSTATUS\tSTEP\tPROGRESS\tPROMPT\tERROR")
	for _, j := range jobs {
		source := "-"
		if j.PromptProvenance != nil {
			source = j.PromptProvenance.Source
		}
		errMsg := "-"
		if j.Error != nil {
			errMsg = *j.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\t%s\n", j.JobId, j.Status, j.Progress.CurrentStep, j.Progress.Percentage, source, errMsg)
	}
}

func printCatalogTable(w *tabwriter.Writer, steps api.Catalog) {
	fmt.Fprintln(w, "#\tID\tLABEL\tOPTIONAL")
	for i, s := range steps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", i+1, s.Id, s.Label, s.Optional)
	}
}
