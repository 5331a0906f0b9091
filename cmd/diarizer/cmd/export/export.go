package export

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/cmdutil"
	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/formatter"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
)

var jobID string
var outputFormat string
var outputFilePath string

func init() {
	Cmd.Flags().StringVarP(&jobID, "job", "j", "", "job id to export")
	Cmd.Flags().StringVarP(&outputFormat, "format", "f", "xlsx", "json, srt, vtt, text or xlsx")
	Cmd.Flags().StringVarP(&outputFilePath, "outputFilePath", "o", "", "set outputFilePath")

	Cmd.MarkFlagRequired("job")
	Cmd.MarkFlagRequired("outputFilePath")
}

// Cmd represents the export command
var Cmd = &cobra.Command{
	Use:   "export",
	Short: "Export a completed job's transcript to a file",
	Long: `Export a completed job's transcript to a file

- Reads the job straight from the configured job store
- Defaults to an Excel sheet with one row per utterance`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := cmdutil.SignalContext()
		defer stop()

		format := model.ResponseFormat(outputFormat)
		if !formatter.IsSupported(format) {
			return apperrors.Newf("unsupported format %q", outputFormat)
		}

		application, err := cmdutil.Bootstrap(ctx, nil)
		if err != nil {
			return err
		}
		defer cmdutil.Shutdown(application)

		job, err := application.Jobs.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusCompleted {
			return apperrors.InvalidState(jobID, string(model.JobStatusCompleted), string(job.Status))
		}

		data, _, err := formatter.Render(format, job.Result)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputFilePath, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "export finished, exported file path: %v\n", outputFilePath)
		return nil
	},
}
