package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	// Arabella, the voice the original card decks were recorded with.
	elevenLabsDefaultVoice = "aEO01A4wXwd1O8GPgGlF"
	elevenLabsDefaultModel = "eleven_monolingual_v2"

	ttsTimeout = 60 * time.Second
)

// ElevenLabs calls the ElevenLabs text-to-speech endpoint.
type ElevenLabs struct {
	APIKey     string
	BaseURL    string
	VoiceID    string
	Model      string
	HTTPClient *http.Client
}

// NewElevenLabs creates an ElevenLabs synthesizer. voiceID and model may
// be empty; the account defaults above are used.
func NewElevenLabs(apiKey, voiceID, model string) *ElevenLabs {
	return &ElevenLabs{
		APIKey:     strings.TrimSpace(apiKey),
		BaseURL:    elevenLabsBaseURL,
		VoiceID:    voiceID,
		Model:      model,
		HTTPClient: &http.Client{Timeout: ttsTimeout},
	}
}

type elevenLabsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings map[string]any `json:"voice_settings"`
}

// Synthesize produces an MP3 clip. The language parameter is ignored;
// ElevenLabs voices are multilingual per model.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice, _ string) (*Clip, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: %w (set ELEVENLABS_API_KEY)", apperr.ErrNoCredential)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", apperr.ErrInvalidInput)
	}
	if voice == "" {
		voice = e.VoiceID
	}
	if voice == "" {
		voice = elevenLabsDefaultVoice
	}
	model := e.Model
	if model == "" {
		model = elevenLabsDefaultModel
	}

	payload, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: model,
		VoiceSettings: map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.5,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	reqURL := strings.TrimRight(e.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Endpoint: "elevenlabs", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.TransportError{Endpoint: "elevenlabs", Status: resp.StatusCode}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("elevenlabs returned no audio data")
	}

	return &Clip{
		Audio:    body,
		Format:   "mp3",
		Provider: ProviderElevenLabs,
		Voice:    voice,
		Model:    model,
	}, nil
}
