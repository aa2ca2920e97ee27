package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/ugclab/ugc-pipeline/internal/client"
)

type GlobalOptions struct {
	ServerUrl      string
	ConfigFilePath string
	RequestTimeout time.Duration

	out io.Writer
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
		RequestTimeout: 30 * time.Second,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the server, overrides the config file")
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the client config file")
	fs.DurationVar(&o.RequestTimeout, "request-timeout", o.RequestTimeout, "Timeout of a single request to the server")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	o.out = cmd.OutOrStdout()
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	return nil
}

func (o *GlobalOptions) Out() io.Writer {
	if o.out == nil {
		return os.Stdout
	}
	return o.out
}

// Client connects to --server-url when set, otherwise to the server of the
// config file.
func (o *GlobalOptions) Client() (*client.PipelineClient, error) {
	cfg := client.NewDefault()
	if o.ServerUrl != "" {
		cfg.Service.Server = o.ServerUrl
	} else {
		fileCfg, err := client.ParseConfigFile(o.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("no --server-url given and %w", err)
		}
		cfg = fileCfg
	}
	if cfg.Service.Timeout == 0 {
		cfg.Service.Timeout = o.RequestTimeout
	}
	return client.NewFromConfig(cfg)
}
