package internal

import (
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/anki"
	"github.com/starford/ansuz/internal/tts"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.App.Transport != TransportStdio {
		t.Errorf("transport = %q, want %q", cfg.App.Transport, TransportStdio)
	}
	if cfg.Anki.URL != anki.DefaultURL {
		t.Errorf("anki url = %q", cfg.Anki.URL)
	}
}

func TestApplicationConfig_EmptyTransportDefaultsStdio(t *testing.T) {
	cfg := ApplicationConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty transport should default to stdio: %v", err)
	}
	if cfg.Transport != TransportStdio {
		t.Errorf("transport = %q, want %q", cfg.Transport, TransportStdio)
	}
}

func TestApplicationConfig_InvalidTransport(t *testing.T) {
	cfg := ApplicationConfig{Transport: "websocket"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid transport should fail validation")
	}
}

func TestApplicationConfig_SSERequiresPort(t *testing.T) {
	cfg := ApplicationConfig{Transport: TransportSSE}
	if err := cfg.Validate(); err == nil {
		t.Fatal("sse transport without a port should fail")
	}

	cfg.HTTP.Port = 8766
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sse transport with port should pass: %v", err)
	}

	// Port bounds are only enforced for the sse transport.
	stdio := ApplicationConfig{Transport: TransportStdio}
	if err := stdio.Validate(); err != nil {
		t.Fatalf("stdio transport should ignore http config: %v", err)
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	cfg := HTTPConfig{Port: 8766}
	if got := cfg.Address(); got != ":8766" {
		t.Errorf("address = %q", got)
	}
}

func TestAnkiConfig_RequiresURL(t *testing.T) {
	cfg := AnkiConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty anki url should fail validation")
	}
}

func TestTTSConfig_EmptyProviderDefaultsElevenLabs(t *testing.T) {
	cfg := TTSConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty provider should default: %v", err)
	}
	if cfg.Provider != tts.ProviderElevenLabs {
		t.Errorf("provider = %q", cfg.Provider)
	}
}

func TestTTSConfig_InvalidProvider(t *testing.T) {
	cfg := TTSConfig{Provider: "polly"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown provider should fail validation")
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
