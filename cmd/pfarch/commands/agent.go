package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfarch/pfarch/internal/agent"
	agentmodel "github.com/pfarch/pfarch/internal/agent/model"
	"github.com/pfarch/pfarch/internal/agent/runner"
	"github.com/pfarch/pfarch/internal/config"
	"github.com/pfarch/pfarch/internal/report"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to the integration architect agent",
	Long: `Start the conversational integration architect. The agent looks up the
knowledge base with its tools, applies the budget authority rules, saves the
decision and answers with the four-section report.

Without --prompt the agent reads one request per line from stdin until EOF
or "exit".

Examples:
  # One-shot request on Gemini (GOOGLE_API_KEY must be set)
  pfarch agent --prompt "Evaluate dairy-nl-01, I have 50M, go ahead"

  # Claude instead of Gemini
  pfarch agent --provider anthropic --model claude-sonnet-4-5-20250929

  # Offline demo with the scripted model
  pfarch agent --provider mock --prompt "Evaluate dairy-nl-01"`,
	RunE: runAgent,
}

var (
	agentProvider string
	agentModel    string
	agentScenario string
	agentAuditLog string
	agentPrompt   string
	agentRender   bool
)

func init() {
	agentCmd.Flags().StringVar(&agentProvider, "provider", "",
		"Model provider: gemini, anthropic or mock (overrides agent.provider)")
	agentCmd.Flags().StringVar(&agentModel, "model", "",
		"Model name (overrides agent.model)")
	agentCmd.Flags().StringVar(&agentScenario, "scenario", "",
		"Scenario file for the mock provider (defaults to the built-in demo)")
	agentCmd.Flags().StringVar(&agentAuditLog, "audit-log", "",
		"Path to write the agent audit log (JSONL format). If empty, agent.audit_log is used.")
	agentCmd.Flags().StringVar(&agentPrompt, "prompt", "",
		"Request to send to the agent (useful for scripting)")
	agentCmd.Flags().BoolVar(&agentRender, "render", false,
		"Render answers as styled markdown for the terminal")
}

// modelConfig merges the agent flags into the configured backend.
func modelConfig(cfg *config.File) agentmodel.Config {
	mc := agentmodel.Config{
		Provider:     cfg.Agent.Provider,
		Model:        cfg.Agent.Model,
		MaxTokens:    cfg.Agent.MaxTokens,
		ScenarioPath: cfg.Agent.Scenario,
	}
	if agentProvider != "" && agentProvider != mc.Provider {
		mc.Provider = agentProvider
		// The configured model belongs to the configured provider.
		mc.Model = ""
	}
	if agentModel != "" {
		mc.Model = agentModel
	}
	if agentScenario != "" {
		mc.ScenarioPath = agentScenario
	}
	if mc.Model == "" {
		switch mc.Provider {
		case agentmodel.ProviderAnthropic:
			mc.Model = agentmodel.DefaultAnthropicModel
		default:
			mc.Model = agent.DefaultModel
		}
	}
	return mc
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	policy, err := lookupPolicy(cfg.Decision.Policy)
	if err != nil {
		return err
	}

	mc := modelConfig(cfg)
	llm, err := agentmodel.New(ctx, mc)
	if err != nil {
		return err
	}

	reg := agent.DefaultRegistration()
	reg.Model = mc.Model

	auditLog := cfg.Agent.AuditLog
	if agentAuditLog != "" {
		auditLog = agentAuditLog
	}

	r, err := runner.New(ctx, runner.Config{
		LLM:          llm,
		Provider:     mc.Provider,
		Tools:        agent.NewTools(store, policy),
		Registration: reg,
		AuditLogPath: auditLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent runner: %w", err)
	}
	defer r.Close()

	out := cmd.OutOrStdout()
	if agentPrompt != "" {
		return ask(ctx, r, agentPrompt, out)
	}
	return converse(ctx, r, cmd.InOrStdin(), out)
}

// converse runs one turn per input line.
func converse(ctx context.Context, r *runner.Runner, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "pfarch agent (session %s). Type \"exit\" to quit.\n", r.SessionID())
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := ask(ctx, r, line, out); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func ask(ctx context.Context, r *runner.Runner, prompt string, out io.Writer) error {
	answer, err := r.Ask(ctx, prompt)
	if err != nil {
		return err
	}

	text := answer.Text
	if agentRender {
		if rendered, err := report.Terminal(text, 0); err == nil {
			text = rendered
		}
	}
	fmt.Fprintln(out, text)
	if answer.Decision != nil {
		fmt.Fprintf(out, "\nDecision %s recorded: %s for %s (%s budget)\n",
			answer.Decision.ID, answer.Decision.Verdict, answer.Decision.SiteID, answer.Decision.BudgetSource)
	}
	return nil
}
