package internal

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// TranscriptionClient is the speech-to-text collaborator for the audio
// strategy. Kept narrow so tests can stub it.
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, file *os.File) (string, error)
}

// OpenAIClient wraps the official OpenAI Go SDK
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey string) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client}
}

// CreateTranscription sends an audio file to the Whisper API.
func (c *OpenAIClient) CreateTranscription(ctx context.Context, file *os.File) (string, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  file,
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ASR handles third-party speech-to-text uploads for the audio strategy.
type ASR struct {
	client     TranscriptionClient
	timeout    time.Duration
	verbose    bool
	apiKey     string
	clientOnce sync.Once
}

// NewASR creates a speech-to-text processor with an explicit client.
func NewASR(client TranscriptionClient, timeout time.Duration, verbose bool) *ASR {
	return &ASR{client: client, timeout: timeout, verbose: verbose}
}

// NewASRWithKey creates a speech-to-text processor with lazy client
// initialization; callers resolving captions-only videos never pay for the
// client construction.
func NewASRWithKey(apiKey string, timeout time.Duration, verbose bool) *ASR {
	return &ASR{apiKey: apiKey, timeout: timeout, verbose: verbose}
}

// ensureClient initializes the OpenAI client if needed
func (a *ASR) ensureClient() error {
	if a.client != nil {
		return nil
	}
	if a.apiKey == "" {
		return fmt.Errorf("OpenAI API key is required - set it in config.toml or OPENAI_API_KEY environment variable")
	}
	a.clientOnce.Do(func() {
		a.client = NewOpenAIClient(a.apiKey)
	})
	return nil
}

// Transcribe uploads a WAV file and returns the recognized text.
func (a *ASR) Transcribe(ctx context.Context, audioFile string) (string, error) {
	if err := a.ensureClient(); err != nil {
		return "", err
	}

	info, err := os.Stat(audioFile)
	if err != nil {
		return "", fmt.Errorf("getting audio file info: %w", err)
	}
	if info.Size() > WhisperLimit {
		return "", fmt.Errorf("audio file %s exceeds Whisper size limit (%d > %d bytes)", audioFile, info.Size(), WhisperLimit)
	}

	file, err := os.Open(audioFile)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.client.CreateTranscription(ctx, file)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return text, nil
}
