package internal

import (
	"context"
	"strings"

	"github.com/horiagug/youtube-transcript-api-go/pkg/yt_transcript"
	"github.com/horiagug/youtube-transcript-api-go/pkg/yt_transcript_formatters"
	"github.com/horiagug/youtube-transcript-api-go/pkg/yt_transcript_models"
	"github.com/rs/zerolog"
)

// CaptionsAPIStrategy is the fastest path: a third-party captions library
// does the whole dance. Its errors are opaque; anything it raises becomes a
// strategy failure and control falls through to the next strategy.
type CaptionsAPIStrategy struct {
	cfg *Config
	log zerolog.Logger

	// fetch is swappable for tests; the default drives the captions library.
	fetch func(videoID string, languages []string) (string, error)
}

// NewCaptionsAPIStrategy builds the library-mediated strategy.
func NewCaptionsAPIStrategy(cfg *Config, log zerolog.Logger) *CaptionsAPIStrategy {
	return &CaptionsAPIStrategy{cfg: cfg, log: log, fetch: fetchViaCaptionsLibrary}
}

func (s *CaptionsAPIStrategy) Source() Source { return SourceCaptionsAPI }

func (s *CaptionsAPIStrategy) Enabled() bool { return s.cfg.CaptionsAPIEnabled }

// Fetch tries each preferred language through the captions library.
func (s *CaptionsAPIStrategy) Fetch(ctx context.Context, req *TranscriptRequest) (string, error) {
	languages := req.Languages
	if len(languages) == 0 {
		languages = s.cfg.Languages
	}

	var lastErr error
	for _, lang := range languages {
		if ctx.Err() != nil {
			return "", failf(ReasonTimeout, "captions library: %v", ctx.Err())
		}

		text, err := s.fetch(req.VideoID, []string{lang})
		if err != nil {
			lastErr = err
			s.log.Debug().
				Str("video_id", req.VideoID).
				Str("lang", lang).
				Err(err).
				Msg("captions library miss")
			if isCaptionsMissing(err) {
				continue
			}
			break
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}

	if lastErr == nil {
		return "", failf(ReasonNotFound, "no captions for any preferred language")
	}
	if isCaptionsMissing(lastErr) {
		return "", &StrategyError{Reason: ReasonNotFound, Err: lastErr}
	}
	return "", &StrategyError{Reason: classify(lastErr), Err: lastErr}
}

// isCaptionsMissing sniffs the library's "no captions" condition out of its
// opaque error strings.
func isCaptionsMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "captions not found") ||
		strings.Contains(msg, "no transcript") ||
		strings.Contains(msg, "transcripts disabled")
}

// fetchViaCaptionsLibrary drives the youtube-transcript-api-go client.
func fetchViaCaptionsLibrary(videoID string, languages []string) (string, error) {
	client := yt_transcript.NewClient()
	transcripts, err := client.GetTranscripts(videoID, languages)
	if err != nil {
		return "", err
	}
	if len(transcripts) == 0 {
		return "", nil
	}

	formatter := yt_transcript_formatters.NewTextFormatter(
		yt_transcript_formatters.WithTimestamps(false),
	)
	return formatter.Format([]yt_transcript_models.Transcript{transcripts[0]})
}
