package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sparkrt/internal/buildinfo"
)

// NewVersionCmd returns the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version of the sparkrt CLI",
		Run: func(cc *cobra.Command, _ []string) {
			fmt.Fprintln(cc.OutOrStdout(), buildinfo.Summary())
		},
	}
}
