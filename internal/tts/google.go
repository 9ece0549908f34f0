package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

const (
	googleBaseURL         = "https://texttospeech.googleapis.com"
	googleDefaultLanguage = "cmn-cn"
	googleDefaultVoice    = "cmn-CN-Chirp3-HD-Achernar"
)

// Google calls the Google Cloud text-to-speech endpoint (Chirp voices).
type Google struct {
	APIKey     string
	BaseURL    string
	Language   string
	Voice      string
	HTTPClient *http.Client
}

// NewGoogle creates a Google Cloud synthesizer.
func NewGoogle(apiKey, language, voice string) *Google {
	return &Google{
		APIKey:     strings.TrimSpace(apiKey),
		BaseURL:    googleBaseURL,
		Language:   language,
		Voice:      voice,
		HTTPClient: &http.Client{Timeout: ttsTimeout},
	}
}

type googleRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type googleResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize produces an MP3 clip via the v1 text:synthesize endpoint.
func (g *Google) Synthesize(ctx context.Context, text, voice, language string) (*Clip, error) {
	if g.APIKey == "" {
		return nil, fmt.Errorf("google tts: %w (set GOOGLE_CLOUD_API_KEY)", apperr.ErrNoCredential)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", apperr.ErrInvalidInput)
	}
	if language == "" {
		language = g.Language
	}
	if language == "" {
		language = googleDefaultLanguage
	}
	if voice == "" {
		voice = g.Voice
	}
	if voice == "" {
		voice = googleDefaultVoice
	}

	var gr googleRequest
	gr.Input.Text = text
	gr.Voice.LanguageCode = language
	gr.Voice.Name = voice
	gr.AudioConfig.AudioEncoding = "MP3"

	payload, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	reqURL := strings.TrimRight(g.BaseURL, "/") + "/v1/text:synthesize?key=" + url.QueryEscape(g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Endpoint: "google tts", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.TransportError{Endpoint: "google tts", Status: resp.StatusCode}
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode tts response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("google tts returned no audio data")
	}

	return &Clip{
		Audio:    audio,
		Format:   "mp3",
		Provider: ProviderGoogle,
		Voice:    voice,
		Language: language,
		Model:    "chirp",
	}, nil
}
