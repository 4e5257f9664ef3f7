package config

import (
	"strings"
	"time"
)

// VendorConfig configures a single hosted video provider.
type VendorConfig struct {
	Enabled bool          `env:"ENABLED"  envDefault:"false"`
	BaseURL string        `env:"BASE_URL" envDefault:""`
	APIKey  string        `env:"API_KEY"  envDefault:""`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"30s"`
}

func (v *VendorConfig) sanitize() {
	v.BaseURL = strings.TrimRight(strings.TrimSpace(v.BaseURL), "/")
	v.APIKey = strings.TrimSpace(v.APIKey)
	if v.Timeout <= 0 {
		v.Timeout = 30 * time.Second
	}
	// A vendor without an endpoint or credentials cannot serve requests.
	if v.BaseURL == "" || v.APIKey == "" {
		v.Enabled = false
	}
}

// ProvidersConfig groups per-vendor configuration for the provider registry.
type ProvidersConfig struct {
	Veo3       VendorConfig `envPrefix:"PROVIDER_VEO3_"`
	Runway     VendorConfig `envPrefix:"PROVIDER_RUNWAY_"`
	NanoBanana VendorConfig `envPrefix:"PROVIDER_NANOBANANA_"`

	// StubEnabled registers the in-process stub provider. It renders nothing
	// but always succeeds, so it doubles as the terminal fallback.
	StubEnabled bool `env:"PROVIDER_STUB_ENABLED" envDefault:"true"`
}

// Sanitize applies guardrails to provider configuration values.
func (p *ProvidersConfig) Sanitize() {
	p.Veo3.sanitize()
	p.Runway.sanitize()
	p.NanoBanana.sanitize()

	// The registry must never be empty.
	if !p.Veo3.Enabled && !p.Runway.Enabled && !p.NanoBanana.Enabled {
		p.StubEnabled = true
	}
}
