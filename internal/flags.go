package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AddResolveFlags adds the flags shared by every command that resolves
// transcripts.
func AddResolveFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("languages", "l", nil, "Preferred caption languages in order (default from config)")
	cmd.Flags().String("cookies", "", "Cookie header to present, e.g. 'CONSENT=YES+1; PREF=...'")
	cmd.Flags().String("cookie-jar", "", "Path to a Netscape-format cookie jar file")
	cmd.Flags().Bool("force-proxy", false, "Route every network attempt through the configured proxy")
}

// BuildTranscriptRequest assembles a resolve request from command flags,
// falling back to configured defaults where a flag was not set.
func BuildTranscriptRequest(cmd *cobra.Command, config *Config, videoID string) (*TranscriptRequest, error) {
	req := &TranscriptRequest{
		VideoID:   videoID,
		Languages: config.Languages,
		Cookies:   NoCookies(),
	}

	if langs, err := cmd.Flags().GetStringSlice("languages"); err == nil && len(langs) > 0 {
		req.Languages = langs
	}

	header, _ := cmd.Flags().GetString("cookies")
	jarPath, _ := cmd.Flags().GetString("cookie-jar")
	switch {
	case header != "" && jarPath != "":
		return nil, fmt.Errorf("--cookies and --cookie-jar are mutually exclusive")
	case header != "":
		req.Cookies = CookiesInline(header)
	case jarPath != "":
		if !FileExists(jarPath) {
			return nil, fmt.Errorf("cookie jar %s does not exist", jarPath)
		}
		req.Cookies = CookiesFile(jarPath)
	}

	forceProxy, err := cmd.Flags().GetBool("force-proxy")
	if err != nil {
		return nil, fmt.Errorf("failed to get force-proxy flag: %w", err)
	}
	req.ForceProxy = forceProxy || config.ForceProxy

	return req, nil
}

// HandleVerboseFlag processes the --verbose flag to update config
func HandleVerboseFlag(cmd *cobra.Command, config *Config) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("failed to get verbose flag: %w", err)
	}
	config.Verbose = verbose
	return nil
}
