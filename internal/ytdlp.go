package internal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lrstanley/go-ytdlp"
)

// VideoMetadata contains the video information the pipeline cares about:
// how long the video runs (audio-strategy cost guardrail) and whether any
// captions exist at all.
type VideoMetadata struct {
	Title       string  `json:"title"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	HasCaptions bool    `json:"has_captions"`
}

// MetadataProbe fetches video details using yt-dlp.
type MetadataProbe struct {
	verbose bool
}

// NewMetadataProbe creates a metadata prober.
func NewMetadataProbe(verbose bool) *MetadataProbe {
	return &MetadataProbe{verbose: verbose}
}

// Metadata fetches video details using go-ytdlp
func (p *MetadataProbe) Metadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	dl := ytdlp.New().
		DumpSingleJSON().
		NoPlaylist().
		SkipDownload()

	result, err := dl.Run(ctx, WatchURL(videoID))
	if err != nil {
		return nil, fmt.Errorf("extracting video metadata: %w", err)
	}

	// Parse into a raw map first to extract subtitle availability
	var rawData map[string]any
	if err := json.Unmarshal([]byte(result.Stdout), &rawData); err != nil {
		return nil, fmt.Errorf("parsing video metadata: %w", err)
	}

	var metadata VideoMetadata
	if err := json.Unmarshal([]byte(result.Stdout), &metadata); err != nil {
		return nil, fmt.Errorf("parsing video metadata: %w", err)
	}

	metadata.HasCaptions = extractSubtitleInfo(rawData)
	return &metadata, nil
}

// extractSubtitleInfo extracts subtitle availability from yt-dlp JSON output
func extractSubtitleInfo(rawData map[string]any) bool {
	if subtitles, ok := rawData["subtitles"].(map[string]any); ok && len(subtitles) > 0 {
		return true
	}
	if autoCaptions, ok := rawData["automatic_captions"].(map[string]any); ok && len(autoCaptions) > 0 {
		return true
	}
	return false
}
