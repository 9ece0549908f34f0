// Package tts adapts cloud text-to-speech endpoints behind a single
// synthesis call. Two providers are supported: ElevenLabs and Google
// Cloud Chirp. Both return MP3 bytes.
package tts

import (
	"context"
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
)

// Providers accepted by Synthesize.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderGoogle     = "google"
)

// Request describes one synthesis call. Voice and Language are optional;
// each provider falls back to its configured default.
type Request struct {
	Text     string
	Provider string
	Voice    string
	Language string
}

// Clip is the result of a synthesis call.
type Clip struct {
	Audio    []byte
	Format   string
	Provider string
	Voice    string
	Language string
	Model    string
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, language string) (*Clip, error)
}

// Service routes synthesis requests to the configured providers. A nil
// provider means the corresponding credential was absent at startup;
// calls to it fail with a configuration error instead of crashing.
type Service struct {
	elevenlabs Synthesizer
	google     Synthesizer
	defaultTo  string
}

// NewService builds a service from whichever providers are configured.
func NewService(elevenlabs, google Synthesizer, defaultProvider string) *Service {
	if defaultProvider == "" {
		defaultProvider = ProviderElevenLabs
	}
	return &Service{elevenlabs: elevenlabs, google: google, defaultTo: defaultProvider}
}

// Synthesize dispatches to the requested provider.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Clip, error) {
	provider := req.Provider
	if provider == "" {
		provider = s.defaultTo
	}
	switch provider {
	case ProviderElevenLabs:
		if s.elevenlabs == nil {
			return nil, fmt.Errorf("elevenlabs: %w (set ELEVENLABS_API_KEY)", apperr.ErrNoCredential)
		}
		return s.elevenlabs.Synthesize(ctx, req.Text, req.Voice, req.Language)
	case ProviderGoogle:
		if s.google == nil {
			return nil, fmt.Errorf("google tts: %w (set GOOGLE_CLOUD_API_KEY)", apperr.ErrNoCredential)
		}
		return s.google.Synthesize(ctx, req.Text, req.Voice, req.Language)
	default:
		return nil, fmt.Errorf("%w: unsupported tts provider %q (supported: %s, %s)",
			apperr.ErrInvalidInput, provider, ProviderElevenLabs, ProviderGoogle)
	}
}
