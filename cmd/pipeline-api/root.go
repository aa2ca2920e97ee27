package main

import "github.com/spf13/cobra"

var (
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use: "pipeline-api",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "Path to a file of environment variables, .env when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides UGC_PIPELINE_LOG_LEVEL")
}
