package reaper

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/cmdutil"
)

var once bool

func init() {
	Cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and print the result")
}

// Cmd represents the reaper command
var Cmd = &cobra.Command{
	Use:   "reaper",
	Short: "Recover jobs abandoned in processing",
	Long: `Recover jobs abandoned in processing

- A job processing for longer than REAPER_STALE_AFTER is considered orphaned
- Orphans with attempts left go back to the queue; the rest fail as orphaned_processing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := cmdutil.SignalContext()
		defer stop()

		application, err := cmdutil.Bootstrap(ctx, nil)
		if err != nil {
			return err
		}
		defer cmdutil.Shutdown(application)

		r := application.NewReaper()
		if !once {
			return r.Run(ctx)
		}

		report, err := r.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, requeued %d, failed %d\n",
			report.Scanned, report.Requeued, report.Failed)
		return nil
	},
}
