package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ugclab/ugc-pipeline/internal/cli"
)

func main() {
	command := NewUgcCtlCommand()
	if err := command.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}

func NewUgcCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ugcctl [flags] [options]",
		Short:         "ugcctl controls the UGC video pipeline service.",
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	// bad flags are usage errors
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &cli.ExitError{Code: cli.ExitUsage, Err: err}
	})
	cmd.AddCommand(cli.NewCmdRun())
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdDelete())
	cmd.AddCommand(cli.NewCmdConfigure())

	return cmd
}
