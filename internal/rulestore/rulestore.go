// Package rulestore persists policy rules in SQLite so that "always
// allow" confirmation outcomes survive host restarts. The stored rows
// are loaded into the policy engine at construction, in insertion
// order, preserving the most-recent-wins tiebreak across sessions.
package rulestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kallt/toolgate/internal/policy"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Store is a SQLite-backed policy.RuleStore.
type Store struct {
	db *sql.DB
}

// defaultBusyTimeout is the SQLite busy timeout in milliseconds.
const defaultBusyTimeout = 5000

// Open opens (or creates) the rule database at the given path.
//
// The database is created with WAL mode, a 5 s busy timeout, and a
// single connection (SQLite serialises writes). The schema is migrated
// automatically. The caller closes the store when done.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("rulestore: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("rulestore: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rulestore: enable WAL: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rulestore: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save appends a rule. Implements policy.RuleStore.
func (s *Store) Save(ctx context.Context, r policy.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (tool, command_prefix, decision)
		VALUES (?, ?, ?)`,
		r.ToolName, r.CommandPrefix, string(r.Decision),
	)
	if err != nil {
		return fmt.Errorf("rulestore: save rule for %s: %w", r.ToolName, err)
	}
	return nil
}

// Load returns all persisted rules in insertion order.
func (s *Store) Load(ctx context.Context) ([]policy.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool, command_prefix, decision
		FROM rules
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("rulestore: load rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []policy.Rule
	for rows.Next() {
		var r policy.Rule
		var decision string
		if err := rows.Scan(&r.ToolName, &r.CommandPrefix, &decision); err != nil {
			return nil, fmt.Errorf("rulestore: scan rule: %w", err)
		}
		r.Decision = policy.Decision(decision)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rulestore: iterate rules: %w", err)
	}
	return rules, nil
}

// DeleteForTool removes every persisted rule for the given tool name
// and returns how many rows were deleted.
func (s *Store) DeleteForTool(ctx context.Context, toolName string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE tool = ?", toolName)
	if err != nil {
		return 0, fmt.Errorf("rulestore: delete rules for %s: %w", toolName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rulestore: rows affected: %w", err)
	}
	return n, nil
}
