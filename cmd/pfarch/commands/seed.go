package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pfarch/pfarch/internal/knowledge"
	"github.com/pfarch/pfarch/internal/logging"
)

var (
	seedFixture string
	seedDemo    bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a knowledge base fixture",
	Long: `Create the knowledge base schema and load a YAML fixture of processes,
unit operations, critical parameters, sites, machines, budgets, financial
baselines and cost models. Rows are upserted, so seeding is repeatable.

Examples:
  # Load the built-in demo (a dairy and a bakery site)
  pfarch seed --demo

  # Load your own data
  pfarch seed --fixture sites.yaml --db /var/lib/pfarch/pfarch.db`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFixture, "fixture", "", "Path to a YAML fixture file")
	seedCmd.Flags().BoolVar(&seedDemo, "demo", false, "Load the built-in demo fixture")
	seedCmd.MarkFlagsMutuallyExclusive("fixture", "demo")
	seedCmd.MarkFlagsOneRequired("fixture", "demo")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.GetLogger("seed")

	fixture := knowledge.DemoFixture()
	source := "demo"
	if seedFixture != "" {
		if fixture, err = knowledge.LoadFixture(seedFixture); err != nil {
			return err
		}
		source = seedFixture
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Seed(context.Background(), fixture); err != nil {
		return fmt.Errorf("failed to seed %s: %w", cfg.Database.Path, err)
	}
	logger.Info("Seeded %s from %s", cfg.Database.Path, source)
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d process(es) and %d site(s) into %s\n",
		len(fixture.Processes), len(fixture.Sites), cfg.Database.Path)
	return nil
}
