package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigCmd returns the config command.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cc)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cc.OutOrStdout().Write(out)
			return err
		},
	}
}
