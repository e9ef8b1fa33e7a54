package tracing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{"disabled", Config{}, false},
		{"enabled without endpoint", Config{Enabled: true}, true},
		{"plaintext", Config{Enabled: true, Endpoint: "localhost:4317"}, false},
		{"tls insecure", Config{Enabled: true, Endpoint: "localhost:4317", TLSInsecure: true}, false},
		{"missing CA", Config{Enabled: true, Endpoint: "localhost:4317", TLSCAPath: filepath.Join(t.TempDir(), "ca.crt")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Enabled, p.Enabled())
			assert.NotNil(t, p.Tracer("test"))
			require.NoError(t, p.Start(context.Background()))
			require.NoError(t, p.Stop(context.Background()))
		})
	}
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
