package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.HighlightTTL != 24*time.Hour {
		t.Fatalf("expected default highlight ttl 24h, got %s", cfg.HighlightTTL)
	}
	if cfg.MaxUploadSize != 50<<20 {
		t.Fatalf("expected 50MB upload limit, got %d", cfg.MaxUploadSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HIGHLIGHT_TTL", "12h")
	t.Setenv("USE_S3", "true")
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.HighlightTTL != 12*time.Hour {
		t.Fatalf("expected 12h ttl, got %s", cfg.HighlightTTL)
	}
	if !cfg.UseS3 || cfg.S3Bucket != "media" {
		t.Fatalf("expected s3 settings, got use=%v bucket=%q", cfg.UseS3, cfg.S3Bucket)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimitRequests != 5 {
		t.Fatalf("malformed int should fall back to default, got %d", cfg.RateLimitRequests)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }},
		{"default secret in production", func(c *Config) { c.Environment = "production" }},
		{"s3 without bucket", func(c *Config) { c.UseS3 = true; c.S3Bucket = "" }},
		{"sendgrid without key", func(c *Config) { c.EmailProvider = "sendgrid" }},
		{"ttl above max", func(c *Config) { c.HighlightTTL = 48 * time.Hour; c.HighlightMaxTTL = time.Hour }},
		{"zero rate window", func(c *Config) { c.RateLimitWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestClientValidate(t *testing.T) {
	cfg := LoadClient()
	cfg.APIToken = ""
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error without any credentials")
	}

	cfg.JWTSecret = "secret"
	cfg.ModeratorID = "mod-1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("secret plus moderator id should validate: %v", err)
	}
}
