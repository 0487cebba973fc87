// Package extract turns binary media into plain text. Each modality is a
// strategy dispatcher over exactly one implemented backend plus a NONE
// no-op; extractors hold no state across calls beyond their configured
// backend parameters.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrNoBackend reports that the selected conversion method has no
// configured backend. The caller decides the user-facing fallback text.
var ErrNoBackend = errors.New("extraction backend not configured")

// AudioMethod selects the audio conversion backend.
type AudioMethod string

const (
	AudioCloudflareWhisper AudioMethod = "CLOUDFLARE_WHISPER"
	AudioNone              AudioMethod = "NONE"
)

// NoAudioMethodText is returned by the NONE method.
const NoAudioMethodText = "No audio to text conversion method specified"

// NoSpeechText is returned when the backend transcribes nothing.
const NoSpeechText = "No speech detected in the audio"

// WhisperConfig configures the Cloudflare Workers AI Whisper backend.
type WhisperConfig struct {
	AccountID string
	APIToken  string
	// Endpoint overrides the default Workers AI run URL.
	Endpoint string
}

// AudioToText converts audio bytes to text through a configured backend.
type AudioToText struct {
	method  AudioMethod
	whisper *WhisperConfig
	client  *http.Client
	logger  *slog.Logger
}

// AudioOptions configure an AudioToText extractor.
type AudioOptions struct {
	Method  AudioMethod
	Whisper *WhisperConfig
	Client  *http.Client
	Logger  *slog.Logger
}

// NewAudioToText creates an audio extractor.
func NewAudioToText(opts AudioOptions) *AudioToText {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioToText{
		method:  opts.Method,
		whisper: opts.Whisper,
		client:  client,
		logger:  logger,
	}
}

// whisperResponse is the Workers AI envelope reduced to the fields used.
type whisperResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Text string `json:"text"`
	} `json:"result"`
}

// ConvertToText runs the given conversion method over the audio bytes.
// An empty method falls back to the configured one.
func (a *AudioToText) ConvertToText(ctx context.Context, audio []byte, method AudioMethod) (string, error) {
	if method == "" {
		method = a.method
	}
	switch method {
	case AudioCloudflareWhisper:
		return a.convertWithWhisper(ctx, audio)
	default:
		return NoAudioMethodText, nil
	}
}

func (a *AudioToText) convertWithWhisper(ctx context.Context, audio []byte) (string, error) {
	if a.whisper == nil || a.whisper.AccountID == "" || a.whisper.APIToken == "" {
		return "", fmt.Errorf("cloudflare whisper: %w", ErrNoBackend)
	}

	endpoint := a.whisper.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.cloudflare.com/client/v4/accounts/%s/ai/run/@cf/openai/whisper", a.whisper.AccountID)
	}

	// Workers AI Whisper takes the audio as an array of byte values.
	samples := make([]int, len(audio))
	for i, b := range audio {
		samples[i] = int(b)
	}
	body, err := json.Marshal(map[string]any{"audio": samples})
	if err != nil {
		return "", fmt.Errorf("marshal whisper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build whisper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.whisper.APIToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}

	if !result.Success || result.Result.Text == "" {
		return NoSpeechText, nil
	}

	a.logger.Info("transcription complete", "text_len", len(result.Result.Text))
	return result.Result.Text, nil
}
