package capture

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "band.rfcap")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Path: path, CenterFrequency: "146.52MHz"}, false},
		{"no frequency", Config{Path: path}, false},
		{"missing path", Config{}, true},
		{"missing file", Config{Path: filepath.Join(t.TempDir(), "nope.rfcap")}, true},
		{"bad frequency", Config{Path: path, CenterFrequency: "lots"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_CenterFrequency(t *testing.T) {
	c := Config{CenterFrequency: "146.5MHz"}
	if got := c.centerFrequency(); got != 146_500_000 {
		t.Errorf("centerFrequency() = %v, want 146500000", got)
	}
}
