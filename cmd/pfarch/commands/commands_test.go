package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfarch/pfarch/internal/agent"
	agentmodel "github.com/pfarch/pfarch/internal/agent/model"
	"github.com/pfarch/pfarch/internal/config"
	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/evaluator"
	"github.com/pfarch/pfarch/internal/knowledge"
)

func TestParseLogLevelFlags(t *testing.T) {
	tests := []struct {
		name         string
		flags        []string
		env          map[string]string
		wantDefault  string
		wantPackages map[string]string
		wantErr      bool
	}{
		{name: "default", flags: []string{"info"}, wantDefault: "info", wantPackages: map[string]string{}},
		{name: "simple", flags: []string{"debug"}, wantDefault: "debug", wantPackages: map[string]string{}},
		{
			name:         "per package",
			flags:        []string{"default=warn", "agent.tools=debug"},
			wantDefault:  "warn",
			wantPackages: map[string]string{"agent.tools": "debug"},
		},
		{
			name:         "env overridden by flag",
			flags:        []string{"evaluator=error"},
			env:          map[string]string{"LOG_LEVEL_EVALUATOR": "debug", "LOG_LEVEL_KNOWLEDGE": "warn"},
			wantDefault:  "info",
			wantPackages: map[string]string{"evaluator": "error", "knowledge": "warn"},
		},
		{name: "invalid default", flags: []string{"loud"}, wantErr: true},
		{name: "invalid package level", flags: []string{"mcp=verbose"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			def, pkgs, err := parseLogLevelFlags(tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDefault, def)
			for pkg, level := range tt.wantPackages {
				assert.Equal(t, level, pkgs[pkg], pkg)
			}
		})
	}
}

func TestConvertEnvKeyToPackageName(t *testing.T) {
	assert.Equal(t, "agent.tools", convertEnvKeyToPackageName("LOG_LEVEL_AGENT_TOOLS"))
	assert.Equal(t, "mcp", convertEnvKeyToPackageName("LOG_LEVEL_MCP"))
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`requests:
  - site_id: dairy-nl-01
    message: "I have 50M, go ahead"
  - site_id: bakery-de-02
    process_id: pf-ova
`), 0o600))

	reqs, err := loadBatch(path)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "dairy-nl-01", reqs[0].SiteID)
	assert.Equal(t, "I have 50M, go ahead", reqs[0].Message)
	assert.Equal(t, "pf-ova", reqs[1].ProcessID)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("requests: []\n"), 0o600))
	_, err = loadBatch(empty)
	assert.Error(t, err)

	noSite := filepath.Join(dir, "nosite.yaml")
	require.NoError(t, os.WriteFile(noSite, []byte("requests:\n  - message: hi\n"), 0o600))
	_, err = loadBatch(noSite)
	assert.ErrorContains(t, err, "no site_id")
}

func TestWriteBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	writeBatchSummary(&buf, []evaluator.BatchResult{
		{
			Request: evaluator.Request{SiteID: "dairy-nl-01"},
			Result: &evaluator.Result{
				Budget: decision.Budget{Amount: 50_000_000, Source: decision.SourceUser},
				Record: &decision.Record{ID: "d-1", SiteID: "dairy-nl-01", ProcessID: "pf-blg", CapExTotal: 2_700_000, Savings: 1_300_000, Verdict: decision.Go},
			},
		},
		{Request: evaluator.Request{SiteID: "missing"}, Err: knowledge.ErrNotFound},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "VERDICT")
	assert.Contains(t, lines[1], "GO")
	assert.Contains(t, lines[1], "d-1")
	assert.Contains(t, lines[2], "ERROR")
}

func TestWriteDecisions(t *testing.T) {
	var buf bytes.Buffer
	writeDecisions(&buf, nil, time.Now())
	assert.Equal(t, "No decisions recorded\n", buf.String())

	buf.Reset()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	writeDecisions(&buf, []*decision.Record{{
		ID: "d-1", SiteID: "bakery-de-02", ProcessID: "pf-ova", BudgetSource: decision.SourceDatabase,
		Savings: -300_000, Verdict: decision.NoGo, Policy: "strict", CreatedAt: now.Add(-2 * time.Hour),
	}}, now)
	out := buf.String()
	assert.Contains(t, out, "NO-GO")
	assert.Contains(t, out, "2 hours ago")
}

func TestModelConfig(t *testing.T) {
	t.Cleanup(func() { agentProvider, agentModel, agentScenario = "", "", "" })
	cfg := config.Default()

	agentProvider, agentModel, agentScenario = "", "", ""
	mc := modelConfig(cfg)
	assert.Equal(t, agentmodel.ProviderGemini, mc.Provider)
	assert.Equal(t, cfg.Agent.Model, mc.Model)

	// Switching provider drops the configured gemini model.
	agentProvider = agentmodel.ProviderAnthropic
	mc = modelConfig(cfg)
	assert.Equal(t, agentmodel.DefaultAnthropicModel, mc.Model)

	agentProvider, agentModel, agentScenario = agentmodel.ProviderMock, "scripted", "demo.yaml"
	mc = modelConfig(cfg)
	assert.Equal(t, "scripted", mc.Model)
	assert.Equal(t, "demo.yaml", mc.ScenarioPath)
}

func TestApplyReload(t *testing.T) {
	store, err := knowledge.Open(filepath.Join(t.TempDir(), "pfarch.db"), 0)
	require.NoError(t, err)
	defer store.Close()

	strict, err := lookupPolicy("strict")
	require.NoError(t, err)
	eval, err := evaluator.New(store, store, evaluator.WithPolicy(strict))
	require.NoError(t, err)
	tools := agent.NewTools(store, strict)

	cfg := config.Default()
	cfg.Decision.Policy = "capex-only"
	require.NoError(t, applyReload(cfg, eval, tools))
	assert.Equal(t, "capex-only", eval.Policy().Name)
	assert.Equal(t, "capex-only", tools.Policy().Name)

	cfg.Decision.Policy = "no-such-policy"
	assert.Error(t, applyReload(cfg, eval, tools))
	assert.Equal(t, "capex-only", eval.Policy().Name)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_SeedEvaluateDecisions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pfarch.db")
	t.Cleanup(func() { databasePath = "" })

	out, err := execute(t, "seed", "--demo", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 2 process(es) and 2 site(s)")

	out, err = execute(t, "evaluate", "--db", db, "--site", "dairy-nl-01",
		"--message", "I have 50M, go ahead", "--policy", "strict", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "Using User Defined Budget")
	assert.Contains(t, out, "**GO**")

	out, err = execute(t, "evaluate", "--db", db, "--site", "dairy-nl-01",
		"--message", "", "--policy", "strict", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"NO-GO"`)

	out, err = execute(t, "decisions", "--db", db, "--site", "dairy-nl-01", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "dairy-nl-01")
	assert.Equal(t, 3, strings.Count(strings.TrimSpace(out), "\n")+1, "header plus two decisions")

	out, err = execute(t, "query", "--db", db, "--json=false", "SELECT id FROM client_site ORDER BY id")
	require.NoError(t, err)
	assert.Contains(t, out, "bakery-de-02")

	_, err = execute(t, "query", "--db", db, "DROP TABLE client_site")
	assert.ErrorIs(t, err, knowledge.ErrReadOnlyViolation)
}

func TestCLI_ConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pfarch.yaml")
	t.Cleanup(func() { configForce = false })

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{formatMarkdown, formatJSON, formatTerminal} {
		assert.NoError(t, validateFormat(f))
	}
	assert.Error(t, validateFormat("html"))
}
