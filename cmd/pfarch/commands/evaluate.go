package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfarch/pfarch/internal/evaluator"
	"github.com/pfarch/pfarch/internal/report"
)

const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
	formatTerminal = "terminal"
)

var (
	evaluateSite    string
	evaluateProcess string
	evaluateMessage string
	evaluatePolicy  string
	evaluateFormat  string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one site and print the integration report",
	Long: `Run the deterministic evaluation for one site: resolve the budget from the
message (a stated amount or purchase authorization overrides the database
budget), find the missing equipment and its CapEx, compute the savings,
decide GO or NO-GO, persist the decision and print the four-section report.

Examples:
  pfarch evaluate --site dairy-nl-01
  pfarch evaluate --site dairy-nl-01 --message "I have 50M, go ahead"
  pfarch evaluate --site bakery-de-02 --policy positive-savings --format json`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateSite, "site", "", "Client site to evaluate (required)")
	evaluateCmd.Flags().StringVar(&evaluateProcess, "process", "", "Process to evaluate (defaults to the site's target process)")
	evaluateCmd.Flags().StringVar(&evaluateMessage, "message", "", "The client's request, classified for a budget statement")
	evaluateCmd.Flags().StringVar(&evaluatePolicy, "policy", "", "Verdict policy, overrides decision.policy")
	evaluateCmd.Flags().StringVar(&evaluateFormat, "format", formatMarkdown, "Output format: markdown, json or terminal")
	_ = evaluateCmd.MarkFlagRequired("site")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if err := validateFormat(evaluateFormat); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if evaluatePolicy != "" {
		cfg.Decision.Policy = evaluatePolicy
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eval, err := newEvaluator(ctx, cfg, store)
	if err != nil {
		return err
	}
	res, err := eval.Evaluate(ctx, evaluator.Request{
		SiteID:    evaluateSite,
		ProcessID: evaluateProcess,
		Message:   evaluateMessage,
	})
	if err != nil {
		return fmt.Errorf("evaluation of %s failed: %w", evaluateSite, err)
	}
	return writeReport(cmd.OutOrStdout(), res.Report, evaluateFormat)
}

func validateFormat(format string) error {
	switch format {
	case formatMarkdown, formatJSON, formatTerminal:
		return nil
	default:
		return fmt.Errorf("invalid format %q (must be markdown, json or terminal)", format)
	}
}

func writeReport(w io.Writer, r *report.Report, format string) error {
	switch format {
	case formatJSON:
		data, err := r.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatTerminal:
		out, err := report.Terminal(r.Markdown(), 0)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	default:
		_, err := io.WriteString(w, r.Markdown())
		return err
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
