package worker

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/cmdutil"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/config"
)

var (
	slots      int
	withReaper bool
)

func init() {
	Cmd.Flags().IntVarP(&slots, "slots", "s", 0, "concurrent jobs, overrides WORKER_SLOTS")
	Cmd.Flags().BoolVar(&withReaper, "with-reaper", false, "also run the orphan reaper in this process")
}

// Cmd represents the worker command
var Cmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued jobs",
	Long: `Process queued jobs

- Each slot loads its own diarization, transcription and enrichment clients once
- A slot runs one job at a time: preprocess, diarize, transcribe, align, enrich
- On SIGINT or SIGTERM the pool stops claiming; interrupted jobs are left for the reaper`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := cmdutil.SignalContext()
		defer stop()

		application, err := cmdutil.Bootstrap(ctx, func(cfg *config.Config) {
			if slots > 0 {
				cfg.Worker.Slots = slots
			}
		})
		if err != nil {
			return err
		}
		defer cmdutil.Shutdown(application)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return application.NewWorkerPool().Run(gctx) })
		if withReaper {
			g.Go(func() error { return application.NewReaper().Run(gctx) })
		}
		return g.Wait()
	},
}
