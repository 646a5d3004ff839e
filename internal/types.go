package internal

import "time"

// Source identifies which extraction strategy produced a transcript.
type Source string

const (
	SourceCaptionsAPI Source = "captions_api"
	SourceTimedText   Source = "timedtext"
	SourceBrowser     Source = "browser"
	SourceAudioASR    Source = "audio_asr"
	SourceCache       Source = "cache"
	SourceNone        Source = "none"
)

// Outcome is the per-attempt result recorded in structured logs.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeDisabled Outcome = "disabled"
)

// TranscriptRequest describes one resolve call. Cookies are borrowed from the
// caller for the duration of the call and never persisted.
type TranscriptRequest struct {
	VideoID    string
	Languages  []string
	Cookies    CookieSource
	ForceProxy bool
}

// TranscriptResult pairs the extracted text with the strategy that produced
// it. Empty text always carries SourceNone; non-empty text always carries one
// of the four real strategy tags.
type TranscriptResult struct {
	Text    string
	Source  Source
	Elapsed time.Duration
}

// ElapsedMS returns the elapsed time in whole milliseconds, the unit used by
// the logging contract.
func (r TranscriptResult) ElapsedMS() int64 {
	return r.Elapsed.Milliseconds()
}

// Found reports whether any strategy produced usable text.
func (r TranscriptResult) Found() bool {
	return r.Source != SourceNone && r.Text != ""
}
