package knowledge

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pfarch/pfarch/internal/logging"
)

//go:embed fixtures/demo.yaml
var demoFixture []byte

// Fixture is a YAML description of knowledge base content.
type Fixture struct {
	Processes []ProcessFixture `yaml:"processes"`
	Sites     []SiteFixture    `yaml:"sites"`
}

// ProcessFixture describes a process with its steps, constraints and cost models.
type ProcessFixture struct {
	Process            `yaml:",inline"`
	UnitOperations     []UnitOperation     `yaml:"unit_operations"`
	CriticalParameters []CriticalParameter `yaml:"critical_parameters"`
	CostModels         []CostModelFixture  `yaml:"cost_models"`
}

// CostModelFixture is a projected annual production cost. An empty SiteID
// marks the generic model of the process.
type CostModelFixture struct {
	SiteID               string  `yaml:"site_id"`
	AnnualProductionCost float64 `yaml:"annual_production_cost"`
}

// SiteFixture describes a client site with its machines, budget and spend.
type SiteFixture struct {
	Site             `yaml:",inline"`
	InvestmentBudget *float64           `yaml:"investment_budget"`
	Machines         []Machine          `yaml:"machines"`
	Financials       []FinancialFixture `yaml:"financials"`
}

// FinancialFixture is the current annual spend on an ingredient.
type FinancialFixture struct {
	Ingredient  string  `yaml:"ingredient"`
	AnnualSpend float64 `yaml:"annual_spend"`
}

// ParseFixture decodes a fixture and checks its references.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// DemoFixture returns the bundled demo dataset.
func DemoFixture() *Fixture {
	f, err := ParseFixture(demoFixture)
	if err != nil {
		panic(fmt.Sprintf("embedded demo fixture is invalid: %v", err))
	}
	return f
}

// Validate checks ids and cross references.
func (f *Fixture) Validate() error {
	processes := make(map[string]bool, len(f.Processes))
	for _, p := range f.Processes {
		if p.ID == "" {
			return fmt.Errorf("process %q has no id", p.Name)
		}
		if processes[p.ID] {
			return fmt.Errorf("duplicate process id %q", p.ID)
		}
		processes[p.ID] = true

		sequences := make(map[int]bool, len(p.UnitOperations))
		for _, op := range p.UnitOperations {
			if sequences[op.Sequence] {
				return fmt.Errorf("process %q: duplicate unit operation sequence %d", p.ID, op.Sequence)
			}
			sequences[op.Sequence] = true
			if op.EstimatedCost < 0 {
				return fmt.Errorf("process %q: unit operation %q has negative cost", p.ID, op.Name)
			}
		}
	}

	sites := make(map[string]bool, len(f.Sites))
	for _, s := range f.Sites {
		if s.ID == "" {
			return fmt.Errorf("site %q has no id", s.Name)
		}
		if sites[s.ID] {
			return fmt.Errorf("duplicate site id %q", s.ID)
		}
		sites[s.ID] = true
		if s.TargetProcessID != "" && !processes[s.TargetProcessID] {
			return fmt.Errorf("site %q targets unknown process %q", s.ID, s.TargetProcessID)
		}
	}

	for _, p := range f.Processes {
		for _, cm := range p.CostModels {
			if cm.SiteID != "" && !sites[cm.SiteID] {
				return fmt.Errorf("process %q: cost model for unknown site %q", p.ID, cm.SiteID)
			}
		}
	}
	return nil
}

// Seed writes a fixture in one transaction, replacing rows with the same keys.
// Child rows of every seeded process and site are replaced as a whole.
func (s *Store) Seed(ctx context.Context, f *Fixture) error {
	if err := f.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
		return nil
	}

	for _, p := range f.Processes {
		if err := exec(`INSERT INTO pf_process (id, name, host_organism, mechanism, target_ingredient, pf_product)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, host_organism = excluded.host_organism,
				mechanism = excluded.mechanism, target_ingredient = excluded.target_ingredient, pf_product = excluded.pf_product`,
			p.ID, p.Name, p.Host, p.Mechanism, p.TargetIngredient, p.Product); err != nil {
			return err
		}
		for _, table := range []string{"pf_unit_operation", "pf_cpp", "pf_cost_model"} {
			if err := exec(`DELETE FROM `+table+` WHERE process_id = ?`, p.ID); err != nil {
				return err
			}
		}
		for _, op := range p.UnitOperations {
			if err := exec(`INSERT INTO pf_unit_operation (process_id, sequence, name, stage, equipment, estimated_cost) VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, op.Sequence, op.Name, op.Stage, op.Equipment, op.EstimatedCost); err != nil {
				return err
			}
		}
		for _, cpp := range p.CriticalParameters {
			if err := exec(`INSERT INTO pf_cpp (process_id, unit_operation, parameter, min_value, max_value, unit) VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, cpp.UnitOperation, cpp.Parameter, cpp.Min, cpp.Max, cpp.Unit); err != nil {
				return err
			}
		}
	}

	for _, site := range f.Sites {
		var target any
		if site.TargetProcessID != "" {
			target = site.TargetProcessID
		}
		if err := exec(`INSERT INTO client_site (id, name, industry, location, target_process_id) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, industry = excluded.industry,
				location = excluded.location, target_process_id = excluded.target_process_id`,
			site.ID, site.Name, site.Industry, site.Location, target); err != nil {
			return err
		}
		for _, table := range []string{"client_machine", "client_investment_budget", "client_financials_baseline"} {
			if err := exec(`DELETE FROM `+table+` WHERE site_id = ?`, site.ID); err != nil {
				return err
			}
		}
		for _, m := range site.Machines {
			if err := exec(`INSERT INTO client_machine (site_id, name, machine_type, capacity) VALUES (?, ?, ?, ?)`,
				site.ID, m.Name, m.Type, m.Capacity); err != nil {
				return err
			}
		}
		if site.InvestmentBudget != nil {
			if err := exec(`INSERT INTO client_investment_budget (site_id, amount) VALUES (?, ?)`,
				site.ID, *site.InvestmentBudget); err != nil {
				return err
			}
		}
		for _, fin := range site.Financials {
			if err := exec(`INSERT INTO client_financials_baseline (site_id, ingredient, annual_spend) VALUES (?, ?, ?)`,
				site.ID, fin.Ingredient, fin.AnnualSpend); err != nil {
				return err
			}
		}
	}

	// Cost models last: site-specific rows reference sites.
	for _, p := range f.Processes {
		for _, cm := range p.CostModels {
			if err := exec(`INSERT INTO pf_cost_model (process_id, site_id, annual_production_cost) VALUES (?, ?, ?)`,
				p.ID, cm.SiteID, cm.AnnualProductionCost); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	s.profiles.Purge()

	logging.GetLogger("knowledge").InfoWithFields("Seeded knowledge base",
		logging.Field("processes", len(f.Processes)),
		logging.Field("sites", len(f.Sites)),
	)
	return nil
}
