package ai

import "testing"

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"already normalized", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"empty host left alone", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			if cfg.EmbeddingHost != tt.want {
				t.Errorf("Normalize() host = %q, want %q", cfg.EmbeddingHost, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewConfig(
		WithEmbeddingHost("http://localhost:11434"),
		WithEmbeddingModel("embeddinggemma"),
	)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	missing := &Config{EmbeddingHost: "http://localhost:11434/v1"}
	if err := missing.Validate(); err == nil {
		t.Fatal("Validate() expected error for missing model")
	}

	empty := &Config{EmbeddingModel: "embeddinggemma"}
	if err := empty.Validate(); err == nil {
		t.Fatal("Validate() expected error for missing host")
	}
}
