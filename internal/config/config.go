// Package config loads the pfarch configuration file.
package config

import (
	"fmt"
	"slices"

	"github.com/pfarch/pfarch/internal/decision"
)

// SchemaVersion is the only supported schema_version.
const SchemaVersion = "v1"

// Classifier names accepted by intent.classifier.
const (
	ClassifierKeyword = "keyword"
	ClassifierGenAI   = "genai"
	// ClassifierGenAIWithFallback asks Gemini first and falls back to keywords.
	ClassifierGenAIWithFallback = "genai+keyword"
)

// Agent providers accepted by agent.provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// File is the top-level structure of the configuration file.
//
// Example YAML structure:
//
//	schema_version: v1
//	database:
//	  path: /var/lib/pfarch/pfarch.db
//	decision:
//	  policy: strict
//	intent:
//	  classifier: genai+keyword
//	agent:
//	  provider: gemini
//	  model: gemini-2.0-flash-exp
type File struct {
	SchemaVersion string         `yaml:"schema_version"`
	Database      DatabaseConfig `yaml:"database"`
	Decision      DecisionConfig `yaml:"decision"`
	Intent        IntentConfig   `yaml:"intent"`
	Agent         AgentConfig    `yaml:"agent"`
	Tracing       TracingConfig  `yaml:"tracing"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	MCP           MCPConfig      `yaml:"mcp"`
}

// DatabaseConfig locates the knowledge base.
type DatabaseConfig struct {
	Path             string `yaml:"path"`
	ProfileCacheSize int    `yaml:"profile_cache_size"`
}

// DecisionConfig selects the verdict policy.
type DecisionConfig struct {
	Policy string `yaml:"policy"`
}

// IntentConfig configures budget classification.
type IntentConfig struct {
	Classifier string `yaml:"classifier"`
	Model      string `yaml:"model"`
	// AuthorizationPatterns are extra regular expressions that mean
	// "buy whatever is needed".
	AuthorizationPatterns []string `yaml:"authorization_patterns,omitempty"`
}

// AgentConfig configures the conversational agent.
type AgentConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	AuditLog  string `yaml:"audit_log"`
	// Scenario is the script for the mock provider.
	Scenario string `yaml:"scenario"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	TLSCAPath   string  `yaml:"tls_ca_path"`
	TLSInsecure bool    `yaml:"tls_insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr string `yaml:"addr"`
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	Transport string `yaml:"transport"`
	HTTPAddr  string `yaml:"http_addr"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		SchemaVersion: SchemaVersion,
		Database:      DatabaseConfig{Path: "pfarch.db", ProfileCacheSize: 64},
		Decision:      DecisionConfig{Policy: decision.DefaultPolicyName},
		Intent:        IntentConfig{Classifier: ClassifierKeyword},
		Agent:         AgentConfig{Provider: ProviderGemini, Model: "gemini-2.0-flash-exp", MaxTokens: 4096},
		MCP:           MCPConfig{Transport: "stdio", HTTPAddr: ":8082"},
	}
}

// Validate checks that the configuration is usable.
func (f *File) Validate() error {
	if f.SchemaVersion != SchemaVersion {
		return NewConfigError(fmt.Sprintf("unsupported schema_version: %q (expected %q)", f.SchemaVersion, SchemaVersion))
	}
	if f.Database.Path == "" {
		return NewConfigError("database.path must not be empty")
	}
	if f.Database.ProfileCacheSize < 0 {
		return NewConfigError("database.profile_cache_size must not be negative")
	}
	if _, err := decision.LookupPolicy(f.Decision.Policy); err != nil {
		return NewConfigError(fmt.Sprintf("decision.policy: %v (known: %v)", err, decision.PolicyNames()))
	}
	if !slices.Contains([]string{ClassifierKeyword, ClassifierGenAI, ClassifierGenAIWithFallback}, f.Intent.Classifier) {
		return NewConfigError(fmt.Sprintf("intent.classifier must be one of keyword, genai, genai+keyword (got %q)", f.Intent.Classifier))
	}
	if !slices.Contains([]string{ProviderGemini, ProviderAnthropic, ProviderMock}, f.Agent.Provider) {
		return NewConfigError(fmt.Sprintf("agent.provider must be one of gemini, anthropic, mock (got %q)", f.Agent.Provider))
	}
	if f.Agent.Provider == ProviderMock && f.Agent.Scenario == "" {
		return NewConfigError("agent.scenario is required for the mock provider")
	}
	if f.Tracing.Enabled && f.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}
	if f.Tracing.SampleRatio < 0 || f.Tracing.SampleRatio > 1 {
		return NewConfigError("tracing.sample_ratio must be between 0 and 1")
	}
	if f.MCP.Transport != "stdio" && f.MCP.Transport != "http" {
		return NewConfigError(fmt.Sprintf("mcp.transport must be stdio or http (got %q)", f.MCP.Transport))
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.message
}
