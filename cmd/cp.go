package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/nfarrar/ytscribe/internal"
)

// cpCmd copies the transcript to the system clipboard instead of printing to stdout.
var cpCmd = &cobra.Command{
	Use:   "cp [URL]",
	Short: "Copy a video's transcript to the clipboard",
	Example: `  # Copy a transcript to the clipboard
  ytscribe cp "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  ytscribe cp tAP1eZYEuKA`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, videoID := internal.ParseArg(args[0])
		if !internal.IsValidYouTubeID(videoID) {
			return fmt.Errorf("'%s' is not a valid YouTube URL or video ID", args[0])
		}

		app := internal.NewApp(config)
		req, err := internal.BuildTranscriptRequest(cmd, config, videoID)
		if err != nil {
			return err
		}

		result, err := app.ResolveTranscriptWithStatus(cmd.Context(), req, !config.Quiet)
		if err != nil {
			return err
		}
		if !result.Found() && result.Source != internal.SourceCache {
			return fmt.Errorf("no transcript could be obtained for %s; every strategy was exhausted", videoID)
		}

		if err := clipboard.WriteAll(result.Text); err != nil {
			return fmt.Errorf("copying transcript to clipboard: %w", err)
		}

		if !config.Quiet {
			fmt.Println("Transcript copied to clipboard")
		}

		return nil
	},
}

func init() {
	internal.AddResolveFlags(cpCmd)
	rootCmd.AddCommand(cpCmd)
}
