package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/knowledge"
)

var (
	queryMaxRows int
	queryJSON    bool

	decisionsSite  string
	decisionsLimit int
	decisionsJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <SELECT ...>",
	Short: "Run a read-only analysis query against the knowledge base",
	Long: `Run a single SELECT or WITH statement against the knowledge base. Anything
that could modify data is rejected, and the statement runs in a transaction
that is always rolled back.

Example:
  pfarch query "SELECT id, name, target_process_id FROM client_site"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List recorded integration decisions",
	RunE:  runDecisions,
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxRows, "max-rows", knowledge.DefaultMaxRows, "Maximum rows to print")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output as JSON")

	decisionsCmd.Flags().StringVar(&decisionsSite, "site", "", "Only list decisions for this site")
	decisionsCmd.Flags().IntVar(&decisionsLimit, "limit", 20, "Maximum decisions to list")
	decisionsCmd.Flags().BoolVar(&decisionsJSON, "json", false, "Output as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Query(context.Background(), args[0], queryMaxRows)
	if err != nil {
		return err
	}
	if queryJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	writeQueryResult(cmd.OutOrStdout(), res)
	return nil
}

func writeQueryResult(out io.Writer, res *knowledge.QueryResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(res.Columns, "\t")))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	if res.Truncated {
		fmt.Fprintf(out, "(truncated to %d rows)\n", len(res.Rows))
	}
}

func runDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListDecisions(context.Background(), decisionsSite, decisionsLimit)
	if err != nil {
		return err
	}
	if decisionsJSON {
		return writeJSON(cmd.OutOrStdout(), records)
	}
	writeDecisions(cmd.OutOrStdout(), records, time.Now())
	return nil
}

func writeDecisions(out io.Writer, records []*decision.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No decisions recorded")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSITE\tPROCESS\tSOURCE\tCAPEX\tSAVINGS\tVERDICT\tPOLICY\tRECORDED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.SiteID,
			rec.ProcessID,
			rec.BudgetSource,
			decision.FormatMoney(rec.CapExTotal),
			decision.FormatMoney(rec.Savings),
			rec.Verdict,
			rec.Policy,
			humanize.RelTime(rec.CreatedAt, now, "ago", "from now"),
		)
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
