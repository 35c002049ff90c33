package telemetry

import (
	"context"
	"testing"

	"github.com/quantrail/sentinel/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	provider, shutdown, err := Init(context.Background(), config.TelemetryConfig{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if provider == nil {
		t.Fatal("provider is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		host     string
		insecure bool
	}{
		{"http://collector:4318", "collector:4318", true},
		{"https://collector:4318", "collector:4318", false},
		{"collector:4318", "collector:4318", true},
	}
	for _, tc := range cases {
		host, insecure, err := parseEndpoint(tc.raw)
		if err != nil {
			t.Errorf("parseEndpoint(%q): %v", tc.raw, err)
			continue
		}
		if host != tc.host || insecure != tc.insecure {
			t.Errorf("parseEndpoint(%q) = (%q, %v), want (%q, %v)", tc.raw, host, insecure, tc.host, tc.insecure)
		}
	}
}
