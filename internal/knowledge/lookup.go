package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SiteContext returns the site, the process to evaluate and the site's
// database budget. An empty processID selects the site's target process.
func (s *Store) SiteContext(ctx context.Context, siteID, processID string) (*SiteContext, error) {
	var site Site
	var target sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, industry, location, target_process_id FROM client_site WHERE id = ?`, siteID,
	).Scan(&site.ID, &site.Name, &site.Industry, &site.Location, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %q: %w", siteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read site %q: %w", siteID, err)
	}
	site.TargetProcessID = target.String

	if processID == "" {
		processID = site.TargetProcessID
	}
	if processID == "" {
		return nil, fmt.Errorf("site %q has no target process: %w", siteID, ErrNotFound)
	}
	process, err := s.process(ctx, processID)
	if err != nil {
		return nil, err
	}

	out := &SiteContext{Site: site, Process: *process}
	var amount float64
	err = s.db.QueryRowContext(ctx,
		`SELECT amount FROM client_investment_budget WHERE site_id = ?`, siteID,
	).Scan(&amount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read budget of site %q: %w", siteID, err)
	default:
		out.BaselineBudget = &amount
	}
	return out, nil
}

func (s *Store) process(ctx context.Context, processID string) (*Process, error) {
	var p Process
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, host_organism, mechanism, target_ingredient, pf_product FROM pf_process WHERE id = ?`, processID,
	).Scan(&p.ID, &p.Name, &p.Host, &p.Mechanism, &p.TargetIngredient, &p.Product)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("process %q: %w", processID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read process %q: %w", processID, err)
	}
	return &p, nil
}

// TechnicalProfile returns the unit operations and critical parameters of a
// process. Profiles are cached until the next Seed.
func (s *Store) TechnicalProfile(ctx context.Context, processID string) (*TechnicalProfile, error) {
	if cached, ok := s.profiles.Get(processID); ok {
		return cached, nil
	}

	process, err := s.process(ctx, processID)
	if err != nil {
		return nil, err
	}
	profile := &TechnicalProfile{Process: *process}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, name, stage, equipment, estimated_cost FROM pf_unit_operation WHERE process_id = ? ORDER BY sequence`, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit operations of %q: %w", processID, err)
	}
	for rows.Next() {
		var op UnitOperation
		if err := rows.Scan(&op.Sequence, &op.Name, &op.Stage, &op.Equipment, &op.EstimatedCost); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan unit operation: %w", err)
		}
		profile.UnitOperations = append(profile.UnitOperations, op)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read unit operations of %q: %w", processID, err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT unit_operation, parameter, min_value, max_value, unit FROM pf_cpp WHERE process_id = ? ORDER BY unit_operation, parameter`, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to read critical parameters of %q: %w", processID, err)
	}
	for rows.Next() {
		var cpp CriticalParameter
		var minV, maxV sql.NullFloat64
		if err := rows.Scan(&cpp.UnitOperation, &cpp.Parameter, &minV, &maxV, &cpp.Unit); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan critical parameter: %w", err)
		}
		if minV.Valid {
			cpp.Min = &minV.Float64
		}
		if maxV.Valid {
			cpp.Max = &maxV.Float64
		}
		profile.CriticalParameters = append(profile.CriticalParameters, cpp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read critical parameters of %q: %w", processID, err)
	}

	s.profiles.Add(processID, profile)
	return profile, nil
}

// ClientMachines returns the equipment installed at a site. A site with no
// machines yields an empty slice.
func (s *Store) ClientMachines(ctx context.Context, siteID string) ([]Machine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, machine_type, capacity FROM client_machine WHERE site_id = ? ORDER BY name`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to read machines of site %q: %w", siteID, err)
	}
	defer rows.Close()

	machines := []Machine{}
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.Name, &m.Type, &m.Capacity); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// Economics returns the site's current spend on the ingredient the process
// replaces and the projected PF production cost. A site-specific cost model
// is preferred over the process's generic one.
func (s *Store) Economics(ctx context.Context, siteID, processID string) (*Economics, error) {
	process, err := s.process(ctx, processID)
	if err != nil {
		return nil, err
	}

	econ := &Economics{Ingredient: process.TargetIngredient}
	err = s.db.QueryRowContext(ctx,
		`SELECT annual_spend FROM client_financials_baseline WHERE site_id = ? AND ingredient = ?`,
		siteID, process.TargetIngredient,
	).Scan(&econ.BaselineSpend)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("baseline spend on %q at site %q: %w", process.TargetIngredient, siteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline spend: %w", err)
	}

	var scope string
	err = s.db.QueryRowContext(ctx,
		`SELECT annual_production_cost, site_id FROM pf_cost_model
		 WHERE process_id = ? AND site_id IN (?, '')
		 ORDER BY CASE WHEN site_id = '' THEN 1 ELSE 0 END
		 LIMIT 1`,
		processID, siteID,
	).Scan(&econ.ProjectedOpEx, &scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cost model of process %q: %w", processID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cost model: %w", err)
	}
	econ.CostModelScope = "generic"
	if scope != "" {
		econ.CostModelScope = "site"
	}
	return econ, nil
}

// Catalog lists all sites and processes.
func (s *Store) Catalog(ctx context.Context) (*Catalog, error) {
	catalog := &Catalog{Sites: []Site{}, Processes: []Process{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, industry, location, COALESCE(target_process_id, '') FROM client_site ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	for rows.Next() {
		var site Site
		if err := rows.Scan(&site.ID, &site.Name, &site.Industry, &site.Location, &site.TargetProcessID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		catalog.Sites = append(catalog.Sites, site)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, name, host_organism, mechanism, target_ingredient, pf_product FROM pf_process ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Process
		if err := rows.Scan(&p.ID, &p.Name, &p.Host, &p.Mechanism, &p.TargetIngredient, &p.Product); err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		catalog.Processes = append(catalog.Processes, p)
	}
	return catalog, rows.Err()
}
