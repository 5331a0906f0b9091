package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/cmdutil"
	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/export"
	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/reaper"
	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/serve"
	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/submit"
	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/version"
	"github.com/DrBenedictPorkins/audio-diarizer/cmd/diarizer/cmd/worker"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "diarizer",
	Short: "Speaker diarization and transcription job service",
	Long: `Speaker diarization and transcription job service.

- serve accepts uploads over HTTP and answers job queries
- worker claims queued jobs and runs segmentation, transcription and alignment
- reaper recovers jobs whose worker disappeared
- submit and export are clients for a running deployment`,
	SilenceUsage:     true,
	TraverseChildren: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(worker.Cmd)
	rootCmd.AddCommand(reaper.Cmd)
	rootCmd.AddCommand(submit.Cmd)
	rootCmd.AddCommand(export.Cmd)
	rootCmd.AddCommand(version.Cmd)

	rootCmd.PersistentFlags().BoolVarP(&cmdutil.Verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&cmdutil.ConfigPath, "config", "c", "",
		"YAML config file; environment variables override it")
}
