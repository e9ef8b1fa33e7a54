package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/pfarch/pfarch/internal/logging"
)

// DefaultProfileCacheSize bounds the technical profile cache.
const DefaultProfileCacheSize = 64

const schema = `
CREATE TABLE IF NOT EXISTS pf_process (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	host_organism TEXT NOT NULL DEFAULT '',
	mechanism TEXT NOT NULL DEFAULT '',
	target_ingredient TEXT NOT NULL DEFAULT '',
	pf_product TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS client_site (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	industry TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	target_process_id TEXT REFERENCES pf_process(id)
);

CREATE TABLE IF NOT EXISTS pf_unit_operation (
	process_id TEXT NOT NULL REFERENCES pf_process(id),
	sequence INTEGER NOT NULL,
	name TEXT NOT NULL,
	stage TEXT NOT NULL DEFAULT '',
	equipment TEXT NOT NULL DEFAULT '',
	estimated_cost REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (process_id, sequence)
);

CREATE TABLE IF NOT EXISTS pf_cpp (
	process_id TEXT NOT NULL REFERENCES pf_process(id),
	unit_operation TEXT NOT NULL,
	parameter TEXT NOT NULL,
	min_value REAL,
	max_value REAL,
	unit TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (process_id, unit_operation, parameter)
);

CREATE TABLE IF NOT EXISTS client_machine (
	site_id TEXT NOT NULL REFERENCES client_site(id),
	name TEXT NOT NULL,
	machine_type TEXT NOT NULL DEFAULT '',
	capacity TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (site_id, name)
);

CREATE TABLE IF NOT EXISTS client_investment_budget (
	site_id TEXT PRIMARY KEY REFERENCES client_site(id),
	amount REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS client_financials_baseline (
	site_id TEXT NOT NULL REFERENCES client_site(id),
	ingredient TEXT NOT NULL,
	annual_spend REAL NOT NULL,
	PRIMARY KEY (site_id, ingredient)
);

-- site_id '' is the generic cost model of a process.
CREATE TABLE IF NOT EXISTS pf_cost_model (
	process_id TEXT NOT NULL REFERENCES pf_process(id),
	site_id TEXT NOT NULL DEFAULT '',
	annual_production_cost REAL NOT NULL,
	PRIMARY KEY (process_id, site_id)
);

CREATE TABLE IF NOT EXISTS integration_decision (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL,
	process_id TEXT NOT NULL,
	budget_source TEXT NOT NULL,
	resolved_budget REAL NOT NULL,
	budget_unlimited INTEGER NOT NULL DEFAULT 0,
	capex_total REAL NOT NULL,
	savings REAL NOT NULL,
	fits INTEGER NOT NULL DEFAULT 0,
	verdict TEXT NOT NULL,
	justification TEXT NOT NULL DEFAULT '',
	policy TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_site ON integration_decision(site_id, created_at);
`

// Store is the knowledge base. It is safe for concurrent use.
type Store struct {
	db       *sql.DB
	path     string
	profiles *lru.Cache[string, *TechnicalProfile]
	logger   *logging.Logger
}

// Open opens or creates the knowledge database at path. ":memory:" gives a
// private in-memory database.
func Open(path string, cacheSize int) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if cacheSize <= 0 {
		cacheSize = DefaultProfileCacheSize
	}
	profiles, err := lru.New[string, *TechnicalProfile](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}

	s := &Store{
		db:       db,
		path:     path,
		profiles: profiles,
		logger:   logging.GetLogger("knowledge"),
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.logger.Debug("Opened knowledge base at %s", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
