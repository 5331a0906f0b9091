package serve

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/cmdutil"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/config"
)

var (
	addr       string
	withWorker bool
	withReaper bool
)

func init() {
	Cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address, overrides HTTP_ADDR")
	Cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the worker pool in this process")
	Cmd.Flags().BoolVar(&withReaper, "with-reaper", false, "also run the orphan reaper in this process")
}

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API

- POST /transcribe accepts an audio upload and returns a job id
- GET /transcribe/{id} reports status and the transcript once completed
- GET /transcribe/{id}/transcript downloads the transcript in any format
- DELETE /transcribe/{id} removes the job and its upload
- /health, /ollama/status and /metrics serve operations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := cmdutil.SignalContext()
		defer stop()

		application, err := cmdutil.Bootstrap(ctx, func(cfg *config.Config) {
			if addr != "" {
				cfg.HTTPAddr = addr
			}
		})
		if err != nil {
			return err
		}
		defer cmdutil.Shutdown(application)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return application.NewAPIServer().Run(gctx) })
		if withWorker {
			g.Go(func() error { return application.NewWorkerPool().Run(gctx) })
		}
		if withReaper {
			g.Go(func() error { return application.NewReaper().Run(gctx) })
		}
		return g.Wait()
	},
}
