package internal

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the pipeline.
var metrics struct {
	ResolveCalls       atomic.Int64
	ResolveEmpty       atomic.Int64
	CaptionsAttempts   atomic.Int64
	CaptionsSuccesses  atomic.Int64
	TimedTextAttempts  atomic.Int64
	TimedTextSuccesses atomic.Int64
	BrowserAttempts    atomic.Int64
	BrowserSuccesses   atomic.Int64
	BrowserSkips       atomic.Int64
	AudioASRAttempts   atomic.Int64
	AudioASRSuccesses  atomic.Int64
}

func incrAttempt(s Source) {
	switch s {
	case SourceCaptionsAPI:
		metrics.CaptionsAttempts.Add(1)
	case SourceTimedText:
		metrics.TimedTextAttempts.Add(1)
	case SourceBrowser:
		metrics.BrowserAttempts.Add(1)
	case SourceAudioASR:
		metrics.AudioASRAttempts.Add(1)
	}
}

func incrSuccess(s Source) {
	switch s {
	case SourceCaptionsAPI:
		metrics.CaptionsSuccesses.Add(1)
	case SourceTimedText:
		metrics.TimedTextSuccesses.Add(1)
	case SourceBrowser:
		metrics.BrowserSuccesses.Add(1)
	case SourceAudioASR:
		metrics.AudioASRSuccesses.Add(1)
	}
}

// GetMetrics returns a snapshot of all pipeline counters. The proxy
// preflight cache contributes its hit/miss counts when a manager is given.
func GetMetrics(proxies *ProxyManager) map[string]int64 {
	m := map[string]int64{
		"resolve_calls":       metrics.ResolveCalls.Load(),
		"resolve_empty":       metrics.ResolveEmpty.Load(),
		"captions_attempts":   metrics.CaptionsAttempts.Load(),
		"captions_successes":  metrics.CaptionsSuccesses.Load(),
		"timedtext_attempts":  metrics.TimedTextAttempts.Load(),
		"timedtext_successes": metrics.TimedTextSuccesses.Load(),
		"browser_attempts":    metrics.BrowserAttempts.Load(),
		"browser_successes":   metrics.BrowserSuccesses.Load(),
		"browser_skips":       metrics.BrowserSkips.Load(),
		"audio_asr_attempts":  metrics.AudioASRAttempts.Load(),
		"audio_asr_successes": metrics.AudioASRSuccesses.Load(),
	}
	if proxies != nil {
		hits, misses := proxies.PreflightStats()
		m["preflight_cache_hits"] = hits
		m["preflight_cache_misses"] = misses
	}
	return m
}

// FormatMetrics returns counters as a simple text format for status output.
func FormatMetrics(proxies *ProxyManager) string {
	m := GetMetrics(proxies)
	keys := []string{
		"resolve_calls", "resolve_empty",
		"captions_attempts", "captions_successes",
		"timedtext_attempts", "timedtext_successes",
		"browser_attempts", "browser_successes", "browser_skips",
		"audio_asr_attempts", "audio_asr_successes",
		"preflight_cache_hits", "preflight_cache_misses",
	}
	var sb strings.Builder
	for _, k := range keys {
		if v, ok := m[k]; ok {
			fmt.Fprintf(&sb, "%s %d\n", k, v)
		}
	}
	return sb.String()
}
