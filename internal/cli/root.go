package cli

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"sparkrt/app"
	"sparkrt/internal/buildinfo"
	"sparkrt/internal/log"
)

func NewRootCmd(name, shortDesc, longDesc string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           name,
		Short:         shortDesc,
		Long:          longDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       buildinfo.Short(),
	}

	cmd.PersistentFlags().String("log_level", "warn", "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log_format", "auto", "Set the log format (auto, text, logfmt, json)")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file (defaults apply when empty)")

	cmd.PersistentPreRunE = func(cc *cobra.Command, _ []string) error {
		flags := cc.Flags()

		var merr error

		logLevel, err := flags.GetString("log_level")
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		logFormat, err := flags.GetString("log_format")
		if err != nil {
			merr = multierror.Append(merr, err)
		}

		if merr != nil {
			return fmt.Errorf("invalid argument: %w", merr)
		}

		h, err := log.CreateHandler(cc.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return fmt.Errorf("failed creating log handler: %w", err)
		}
		slog.SetDefault(slog.New(h))

		return nil
	}

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig returns the config named by the --config flag, or the defaults.
func loadConfig(cc *cobra.Command) (app.Config, error) {
	path, err := cc.Flags().GetString("config")
	if err != nil {
		return app.Config{}, fmt.Errorf("invalid argument: %w", err)
	}
	if path == "" {
		return app.DefaultConfig(), nil
	}
	return app.LoadConfig(path)
}
