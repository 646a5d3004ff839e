package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type deadlineClient struct {
	remaining time.Duration
	text      string
}

func (c *deadlineClient) CreateTranscription(ctx context.Context, file *os.File) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		c.remaining = time.Until(dl)
	}
	return c.text, nil
}

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeDeadlineAllowsMinutesLongUploads(t *testing.T) {
	client := &deadlineClient{text: "recognized"}
	a := NewASR(client, 10*time.Minute, false)

	text, err := a.Transcribe(context.Background(), writeWAV(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recognized" {
		t.Fatalf("got %q", text)
	}
	// Long audio takes minutes to upload and transcribe; a seconds-scale
	// deadline would make the strategy fail on every real video.
	if client.remaining < 9*time.Minute {
		t.Fatalf("transcription deadline only %s away, too tight for long audio", client.remaining)
	}
}

func TestTranscribeRejectsOversizedFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(WhisperLimit + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	a := NewASR(&deadlineClient{}, time.Minute, false)
	if _, err := a.Transcribe(context.Background(), path); err == nil {
		t.Fatal("expected error for file over the Whisper size limit")
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	a := NewASRWithKey("", time.Minute, false)
	if _, err := a.Transcribe(context.Background(), writeWAV(t)); err == nil {
		t.Fatal("expected error without an API key")
	}
}
