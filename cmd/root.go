package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nfarrar/ytscribe/internal"
)

var (
	config *internal.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ytscribe [YouTube URL or ID]",
	Short: "Resolve YouTube transcripts through a fallback pipeline",
	Long: `ytscribe obtains the transcript of a YouTube video.

It walks a chain of strategies from cheapest to most expensive: the public
captions API, the caption endpoint directly, a headless browser capturing
the transcript panel, and finally audio extraction transcribed with
OpenAI's Whisper. The first strategy that yields text wins.`,
	Example: `  # Resolve a video's transcript
  ytscribe "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  ytscribe tAP1eZYEuKA

  # Prefer German captions, then English
  ytscribe tAP1eZYEuKA --languages de,en

  # Present cookies from a Netscape jar export
  ytscribe tAP1eZYEuKA --cookie-jar ~/cookies.txt

  # Route every attempt through the configured proxy
  ytscribe tAP1eZYEuKA --force-proxy`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := internal.HandleVerboseFlag(cmd, config); err != nil {
			return err
		}
		quiet, err := cmd.Flags().GetBool("quiet")
		if err != nil {
			return err
		}
		config.Quiet = quiet
		return nil
	},
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate argument before processing
		arg := args[0]
		if internal.IsLikelyCommand(arg) {
			availableCommands := []string{"mcp", "status", "version", "paths", "help"}
			var suggestions []string
			for _, cmdName := range availableCommands {
				if strings.Contains(cmdName, arg) || (len(arg) <= len(cmdName) && strings.Contains(arg, cmdName[:len(arg)])) {
					suggestions = append(suggestions, cmdName)
				}
			}

			if len(suggestions) > 0 {
				return fmt.Errorf("'%s' doesn't look like a YouTube URL or video ID. Did you mean: %s?", arg, strings.Join(suggestions, ", "))
			}
			return fmt.Errorf("'%s' doesn't look like a YouTube URL or video ID. Use --help to see available commands", arg)
		}

		_, videoID := internal.ParseArg(arg)
		if !internal.IsValidYouTubeID(videoID) {
			return fmt.Errorf("'%s' is not a valid YouTube URL or video ID", arg)
		}

		app := internal.NewApp(config)
		req, err := internal.BuildTranscriptRequest(cmd, config, videoID)
		if err != nil {
			return err
		}

		showStatus := !config.Quiet && !config.Verbose
		result, err := app.ResolveTranscriptWithStatus(cmd.Context(), req, showStatus)
		if err != nil {
			return err
		}
		if !result.Found() && result.Source != internal.SourceCache {
			return fmt.Errorf("no transcript could be obtained for %s; every strategy was exhausted", videoID)
		}

		if config.Verbose {
			fmt.Fprintf(os.Stderr, "Resolved via %s in %dms\n", result.Source, result.ElapsedMS())
		}
		fmt.Println(result.Text)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Create a cancellable context for the entire application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize configuration with Viper
	config = internal.InitConfig()

	// Ensure XDG directories exist
	if err := internal.EnsureDirs(config.ConfigDir, config.DataDir, config.CacheDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating XDG directories: %v\n", err)
		os.Exit(1)
	}

	// Ensure default config exists in XDG config directory
	if err := internal.EnsureDefaultConfig(config.ConfigDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default config: %v\n", err)
	}

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Handle shutdown signal in a separate goroutine
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt signal. Cleaning up and shutting down...")

		// Cancel the main context to signal all operations to stop
		cancel()

		// Create a context with timeout for cleanup operations
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cleanupCancel()

		// Run cleanup with timeout context
		cleanupDone := make(chan struct{})
		go func() {
			if err := internal.CleanupTempDir(config.TempDir); err != nil {
				fmt.Fprintf(os.Stderr, "Error cleaning up temporary files: %v\n", err)
			}
			close(cleanupDone)
		}()

		// Wait for either cleanup to complete or timeout
		select {
		case <-cleanupDone:
			// Cleanup completed successfully
		case <-cleanupCtx.Done():
			// Timeout occurred
			fmt.Fprintln(os.Stderr, "Warning: Cleanup timed out, forcing exit")
		}

		// Exit the program
		os.Exit(0)
	}()

	// Set context on root command
	rootCmd.SetContext(ctx)

	return rootCmd.Execute()
}

func init() {
	internal.AddResolveFlags(rootCmd)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for debugging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress status output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is $XDG_CONFIG_HOME/ytscribe/config.toml)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
