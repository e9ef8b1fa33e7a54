package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/evaluator"
)

var (
	batchFile        string
	batchConcurrency int
	batchReports     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate many sites concurrently",
	Long: `Run independent evaluations from a YAML file and print a summary table.
Each evaluation is sequential on its own; up to --concurrency run at once.
A failed evaluation is reported in the table and does not stop the others.

File format:
  requests:
    - site_id: dairy-nl-01
      message: "I have 50M, go ahead"
    - site_id: bakery-de-02
      process_id: pf-ova`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "YAML file with the requests (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "Maximum evaluations in flight")
	batchCmd.Flags().BoolVar(&batchReports, "reports", false, "Also print the markdown report of every evaluation")
	_ = batchCmd.MarkFlagRequired("file")
}

// batchSpec is the YAML layout of a batch file.
type batchSpec struct {
	Requests []evaluator.Request `yaml:"requests"`
}

func loadBatch(path string) ([]evaluator.Request, error) {
	// #nosec G304 -- batch file path is operator supplied
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var spec batchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}
	if len(spec.Requests) == 0 {
		return nil, fmt.Errorf("batch file %s has no requests", path)
	}
	for i, req := range spec.Requests {
		if req.SiteID == "" {
			return nil, fmt.Errorf("request %d in %s has no site_id", i+1, path)
		}
	}
	return spec.Requests, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	reqs, err := loadBatch(batchFile)
	if err != nil {
		return err
	}
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

	eval, err := newEvaluator(ctx, cfg, store)
	if err != nil {
		return err
	}
	results, err := eval.EvaluateAll(ctx, reqs, batchConcurrency)
	writeBatchSummary(cmd.OutOrStdout(), results)
	if batchReports {
		for _, r := range results {
			if r.Err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n---\n\n%s", r.Result.Report.Markdown())
			}
		}
	}
	if err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d evaluations failed", failed, len(results))
	}
	return nil
}

func writeBatchSummary(out io.Writer, results []evaluator.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tPROCESS\tBUDGET\tCAPEX\tSAVINGS\tVERDICT\tDECISION")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\tERROR\t%v\n", r.Request.SiteID, r.Request.ProcessID, r.Err)
			continue
		}
		rec := r.Result.Record
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.SiteID,
			rec.ProcessID,
			decision.FormatBudget(r.Result.Budget),
			decision.FormatMoney(rec.CapExTotal),
			decision.FormatMoney(rec.Savings),
			rec.Verdict,
			rec.ID,
		)
	}
	_ = w.Flush()
}
