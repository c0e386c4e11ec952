package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"sparkrt/app"
	"sparkrt/hal"
)

// NewRunCmd returns the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the kernel and run the demo workload",
		Long: `Boot the kernel on the host HAL and run the demo workload: producers and
consumers exchanging frames through a message queue and memory pool, a
reporter woken per batch, and a heartbeat timer driving table writers while
readers sample it. A report is printed when the run ends.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().Uint64("ticks", 0, "Stop after N ticks (0 runs until interrupted; overrides run.ticks)")
	cmd.Flags().Bool("virtual", true, "Advance time as fast as the threads go idle (overrides run.virtual)")
	cmd.Flags().Int("hz", 0, "Wall-clock tick rate (overrides kernel.tick_hz)")
	cmd.Flags().Bool("console", false, "Echo the HAL console (LED, panic output) to stdout")

	return cmd
}

func runRun(cc *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cc)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cc, &cfg); err != nil {
		return err
	}

	console, err := cc.Flags().GetBool("console")
	if err != nil {
		return fmt.Errorf("invalid argument: %w", err)
	}
	var out io.Writer = io.Discard
	if console {
		out = cc.OutOrStdout()
	}

	sys, err := app.New(hal.New(out, cfg.Kernel.TickHz), cfg, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cc.Context(), os.Interrupt)
	defer stop()

	report, err := sys.Run(ctx)
	if report != nil {
		fmt.Fprintln(cc.OutOrStdout(), report.Render())
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", sys.ID(), err)
	}
	return nil
}

func applyRunFlags(cc *cobra.Command, cfg *app.Config) error {
	flags := cc.Flags()

	var merr error

	if flags.Changed("ticks") {
		v, err := flags.GetUint64("ticks")
		if err != nil {
			merr = multierror.Append(merr, err)
		}
		cfg.Run.Ticks = v
	}
	if flags.Changed("virtual") {
		v, err := flags.GetBool("virtual")
		if err != nil {
			merr = multierror.Append(merr, err)
		}
		cfg.Run.Virtual = v
	}
	if flags.Changed("hz") {
		v, err := flags.GetInt("hz")
		if err != nil {
			merr = multierror.Append(merr, err)
		}
		cfg.Kernel.TickHz = v
	}

	if merr != nil {
		return fmt.Errorf("invalid argument: %w", merr)
	}
	return cfg.Validate()
}
