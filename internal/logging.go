package internal

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Interactive terminals get the console
// writer; everything else gets JSON so dashboards can parse attempt events.
func NewLogger(verbose bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// attemptLogger emits the per-attempt operational events other systems are
// built on. Field names (video_id, strategy, outcome, elapsed_ms, reason)
// are a stable contract.
type attemptLogger struct {
	log     zerolog.Logger
	videoID string
}

func newAttemptLogger(log zerolog.Logger, videoID string) attemptLogger {
	return attemptLogger{log: log, videoID: videoID}
}

func (a attemptLogger) event(strategy Source, outcome Outcome) *zerolog.Event {
	return a.log.Info().
		Str("video_id", a.videoID).
		Str("strategy", string(strategy)).
		Str("outcome", string(outcome))
}

// Success records a winning strategy attempt.
func (a attemptLogger) Success(strategy Source, elapsed time.Duration) {
	a.event(strategy, OutcomeSuccess).
		Int64("elapsed_ms", elapsed.Milliseconds()).
		Msg("strategy attempt")
}

// Failure records a failed strategy attempt with its taxonomy reason.
func (a attemptLogger) Failure(strategy Source, elapsed time.Duration, reason Reason, err error) {
	ev := a.event(strategy, OutcomeFailure).
		Int64("elapsed_ms", elapsed.Milliseconds()).
		Str("reason", string(reason))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("strategy attempt")
}

// Skipped records a strategy that was not attempted (breaker open).
func (a attemptLogger) Skipped(strategy Source, reason string) {
	a.event(strategy, OutcomeSkipped).
		Int64("elapsed_ms", 0).
		Str("reason", reason).
		Msg("strategy attempt")
}

// Disabled records a strategy switched off by configuration.
func (a attemptLogger) Disabled(strategy Source) {
	a.event(strategy, OutcomeDisabled).
		Int64("elapsed_ms", 0).
		Msg("strategy attempt")
}
