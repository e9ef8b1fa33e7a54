// Package knowledge is the SQLite-backed knowledge base of client sites,
// precision fermentation processes and integration decisions.
package knowledge

import (
	"errors"

	"github.com/pfarch/pfarch/internal/decision"
)

var (
	// ErrNotFound is returned when a site, process or economics row is missing.
	ErrNotFound = errors.New("not found")
	// ErrReadOnlyViolation is returned when an analysis query tries to modify data.
	ErrReadOnlyViolation = errors.New("analysis queries must be a single read-only SELECT")
)

// Site is a client production site.
type Site struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Industry        string `json:"industry,omitempty" yaml:"industry"`
	Location        string `json:"location,omitempty" yaml:"location"`
	TargetProcessID string `json:"target_process_id,omitempty" yaml:"target_process"`
}

// Process is a precision fermentation process that produces an ingredient.
type Process struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Host             string `json:"host" yaml:"host"`
	Mechanism        string `json:"mechanism" yaml:"mechanism"`
	TargetIngredient string `json:"target_ingredient" yaml:"target_ingredient"`
	Product          string `json:"product" yaml:"product"`
}

// SiteContext is the site, the process evaluated for it, and the site's
// investment budget from the database (nil when no budget row exists).
type SiteContext struct {
	Site           Site     `json:"site"`
	Process        Process  `json:"process"`
	BaselineBudget *float64 `json:"baseline_budget,omitempty"`
}

// UnitOperation is one step of a process, upstream to downstream.
type UnitOperation struct {
	Sequence      int     `json:"sequence" yaml:"sequence"`
	Name          string  `json:"name" yaml:"name"`
	Stage         string  `json:"stage" yaml:"stage"`
	Equipment     string  `json:"equipment,omitempty" yaml:"equipment"`
	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"`
}

// CriticalParameter is a critical process parameter bound for a unit operation.
type CriticalParameter struct {
	UnitOperation string   `json:"unit_operation" yaml:"unit_operation"`
	Parameter     string   `json:"parameter" yaml:"parameter"`
	Min           *float64 `json:"min,omitempty" yaml:"min"`
	Max           *float64 `json:"max,omitempty" yaml:"max"`
	Unit          string   `json:"unit,omitempty" yaml:"unit"`
}

// TechnicalProfile is everything the database knows about how a process runs.
type TechnicalProfile struct {
	Process            Process             `json:"process"`
	UnitOperations     []UnitOperation     `json:"unit_operations"`
	CriticalParameters []CriticalParameter `json:"critical_parameters"`
}

// RequiredEquipment lists the equipment of each unit operation in process order.
func (p *TechnicalProfile) RequiredEquipment() []decision.Item {
	items := make([]decision.Item, 0, len(p.UnitOperations))
	for _, op := range p.UnitOperations {
		if op.Equipment == "" {
			continue
		}
		items = append(items, decision.Item{Name: op.Equipment, Cost: op.EstimatedCost})
	}
	return items
}

// Machine is a piece of equipment already installed at a client site.
type Machine struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type"`
	Capacity string `json:"capacity,omitempty" yaml:"capacity"`
}

// Economics compares what a site spends on the conventional ingredient today
// with what PF production would cost.
type Economics struct {
	Ingredient    string  `json:"ingredient"`
	BaselineSpend float64 `json:"baseline_spend"`
	ProjectedOpEx float64 `json:"projected_opex"`
	// CostModelScope is "site" when a site-specific cost model was used and
	// "generic" otherwise.
	CostModelScope string `json:"cost_model_scope"`
}

// Catalog lists what can be evaluated.
type Catalog struct {
	Sites     []Site    `json:"sites"`
	Processes []Process `json:"processes"`
}

// QueryResult is the tabular result of an analysis query.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}
