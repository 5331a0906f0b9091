package submit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/cmdutil"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/api/v1/dto"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/formatter"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/client"
)

var (
	serverURL      string
	speakers       int
	responseFormat string
	enableLLM      bool
	contentType    string
	wait           bool
	pollInterval   time.Duration
	outputFilePath string
	showProgress   bool
)

func init() {
	defaultServer := os.Getenv("DIARIZER_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}

	Cmd.Flags().StringVarP(&serverURL, "server", "s", defaultServer, "diarizer API base URL")
	Cmd.Flags().IntVarP(&speakers, "speakers", "n", 0, "expected number of speakers (2-10), 0 to detect")
	Cmd.Flags().StringVarP(&responseFormat, "format", "f", "json", "response format: json, srt, vtt, text, xlsx")
	Cmd.Flags().BoolVar(&enableLLM, "llm", false, "request summary, action items and topics")
	Cmd.Flags().StringVar(&contentType, "content-type", "", "override the media type detected from the extension")
	Cmd.Flags().BoolVarP(&wait, "wait", "w", true, "wait for the job to finish")
	Cmd.Flags().DurationVar(&pollInterval, "poll", 2*time.Second, "status poll interval while waiting")
	Cmd.Flags().StringVarP(&outputFilePath, "output", "o", "", "write the transcript here instead of stdout")
	Cmd.Flags().BoolVar(&showProgress, "progress", false, "force the progress bar even when stderr is not a terminal")
}

// Cmd represents the submit command
var Cmd = &cobra.Command{
	Use:   "submit <audio-file>",
	Short: "Upload an audio file and fetch its transcript",
	Long: `Upload an audio file and fetch its transcript

- Uploads the file to a running diarizer API
- Polls the job and shows its pipeline stage
- Writes the transcript in the requested format once completed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := cmdutil.SignalContext()
		defer stop()

		path := args[0]
		format := model.ResponseFormat(responseFormat)
		// xlsx is download only; the job itself is stored as json
		submitFormat := format
		if format == formatter.FormatXLSX {
			submitFormat = model.FormatJSON
		}

		c := client.New(serverURL, nil)
		submitted, err := c.Submit(ctx, path, client.SubmitOptions{
			ExpectedSpeakers:  speakers,
			ResponseFormat:    submitFormat,
			EnableLLMAnalysis: enableLLM,
			ContentType:       contentType,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "job %s %s\n", submitted.JobID, submitted.Status)
		if !wait {
			fmt.Fprintln(cmd.OutOrStdout(), submitted.JobID)
			return nil
		}

		tracker := client.NewProgressTracker(client.ProgressConfig{
			Enabled: client.ShouldShowProgress(showProgress),
			Writer:  cmd.ErrOrStderr(),
		}, filepath.Base(path))
		job, err := c.Wait(ctx, submitted.JobID, pollInterval, func(j *dto.JobResponse) {
			if cmdutil.Verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "status %s, stage %s\n", j.Status, j.Progress)
			}
			tracker.Update(j)
		})
		tracker.Wait()
		if err != nil {
			return err
		}
		if job.Status == model.JobStatusFailed {
			if job.Error != nil {
				return fmt.Errorf("job %s failed (%s): %s", job.JobID, job.Error.Kind, job.Error.Message)
			}
			return fmt.Errorf("job %s failed", job.JobID)
		}

		transcript, err := c.Transcript(ctx, submitted.JobID, format)
		if err != nil {
			return err
		}
		if outputFilePath == "" {
			_, err = cmd.OutOrStdout().Write(transcript)
			return err
		}
		if err := os.WriteFile(outputFilePath, transcript, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "transcript written to %s\n", outputFilePath)
		return nil
	},
}
