package internal

import (
	"fmt"
	"log/slog"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/embeddings"
	"github.com/starford/ansuz/internal/tts"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration. Credentials are
// resolved once, at load time; adapters receive them through this
// struct and never read the environment themselves.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Anki       AnkiConfig        `yaml:"anki"`
	TTS        TTSConfig         `yaml:"tts"`
	Embeddings EmbeddingsConfig  `yaml:"embeddings"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Anki.Validate(); err != nil {
		return err
	}
	if err := c.TTS.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	Transport string     `yaml:"transport"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Transport == "" {
		c.Transport = TransportStdio
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Transport, validation.Required, validation.In(TransportStdio, TransportSSE)),
	); err != nil {
		return err
	}
	if c.Transport == TransportSSE {
		return c.HTTP.Validate()
	}
	return nil
}

// HTTPConfig holds HTTP server configuration for the SSE transport.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AnkiConfig holds the AnkiConnect endpoint configuration.
type AnkiConfig struct {
	URL string `yaml:"url"`
}

// Validate validates the AnkiConnect configuration.
func (c *AnkiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
	)
}

// TTSConfig holds text-to-speech provider configuration. A provider
// with an empty API key is simply disabled; calls to it return a
// configuration error instead of failing at startup.
type TTSConfig struct {
	Provider   string           `yaml:"provider"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Google     GoogleTTSConfig  `yaml:"google"`
}

// Validate validates the TTS configuration.
func (c *TTSConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = tts.ProviderElevenLabs
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(tts.ProviderElevenLabs, tts.ProviderGoogle)),
	)
}

// ElevenLabsConfig holds ElevenLabs credentials and voice defaults.
type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	Model   string `yaml:"model"`
}

// GoogleTTSConfig holds Google Cloud TTS credentials and voice defaults.
type GoogleTTSConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
	Voice    string `yaml:"voice"`
}

// EmbeddingsConfig holds the embeddings endpoint configuration. An
// empty API key disables semantic search.
type EmbeddingsConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AuthConfig holds authentication for the SSE transport.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication, suitable for localhost.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a Config with sensible defaults. API keys
// come from the conventional environment variables; godotenv has
// already folded any .env file into the environment by this point.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			Transport: TransportStdio,
			HTTP: HTTPConfig{
				Port: 8766,
			},
		},
		Anki: AnkiConfig{
			URL: anki.DefaultURL,
		},
		TTS: TTSConfig{
			Provider: tts.ProviderElevenLabs,
			ElevenLabs: ElevenLabsConfig{
				APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
				VoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
			},
			Google: GoogleTTSConfig{
				APIKey: os.Getenv("GOOGLE_CLOUD_API_KEY"),
			},
		},
		Embeddings: EmbeddingsConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  embeddings.DefaultModel,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
