package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GetOptions struct {
	GlobalOptions

	Output string
	Status string
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:     "get (TYPE | TYPE/ID)",
		Short:   "Display one or many resources.",
		Example: "get jobs --status failed\nget job/0b0e4c1a -o yaml\nget catalog",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringVar(&o.Status, "status", o.Status, "Only list the jobs with this status")
}

func (o *GetOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	return nil
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if _, _, err := parseAndValidateKindId(args[0]); err != nil {
		return err
	}

	return validateOutput(o.Output)
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	switch {
	case kind == JobKind && id != "":
		job, err := c.GetStatus(ctx, id)
		if err != nil {
			return fmt.Errorf("reading %s/%s: %w", kind, id, err)
		}
		return printResource(o.Out(), o.Output, job, func(w *tabwriter.Writer) { printJobsTable(w, *job) })
	case kind == JobKind:
		jobs, err := c.List(ctx, o.Status)
		if err != nil {
			return fmt.Errorf("listing %s: %w", plural(kind), err)
		}
		return printResource(o.Out(), o.Output, jobs, func(w *tabwriter.Writer) { printJobsTable(w, jobs...) })
	case kind == CatalogKind:
		steps, err := c.Catalog(ctx)
		if err != nil {
			return fmt.Errorf("reading %s: %w", kind, err)
		}
		return printResource(o.Out(), o.Output, steps, func(w *tabwriter.Writer) { printCatalogTable(w, steps) })
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}
}
