// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dataset saves affiliation tables and search run reports to a
// SQLite file, and dispatches table reads and writes by file extension.
// A dataset is written and read only on explicit request; the registry
// client never consults it.
//
// See docs/ARCHITECTURE § Dataset.
package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/affiliation-engine/internal/analysis"
	"github.com/pdiddy/affiliation-engine/internal/registry"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Store is an affiliation dataset backed by one SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the SQLite dataset at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating dataset directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the dataset file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS affiliations (
			position INTEGER PRIMARY KEY,
			identifier TEXT NOT NULL,
			given_names TEXT,
			family_name TEXT,
			relation_role TEXT NOT NULL,
			relation_title TEXT,
			department TEXT,
			start_year INTEGER,
			end_year INTEGER,
			duration INTEGER,
			created_at TEXT,
			modified_at TEXT,
			source TEXT NOT NULL,
			identifier_type TEXT,
			identifier_value TEXT,
			email_addresses TEXT,
			organization_name TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_affiliations_identifier ON affiliations(identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_affiliations_start_year ON affiliations(start_year)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			domains TEXT NOT NULL,
			max_results INTEGER NOT NULL,
			mode TEXT,
			per_domain INTEGER NOT NULL DEFAULT 0,
			rows INTEGER NOT NULL,
			telemetry TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// runTimeLayout is fixed-width so that run timestamps sort correctly as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const columns = `identifier, given_names, family_name, relation_role, relation_title,
	department, start_year, end_year, duration, created_at, modified_at, source,
	identifier_type, identifier_value, email_addresses, organization_name`

// Save replaces the stored table with rows in one transaction.
func (s *Store) Save(ctx context.Context, rows []types.AffiliationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM affiliations`); err != nil {
		return fmt.Errorf("clearing affiliations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO affiliations (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Identifier,
			nullString(r.GivenNames),
			nullString(r.FamilyName),
			r.RelationRole,
			nullString(r.RelationTitle),
			nullString(r.Department),
			nullInt(r.StartYear),
			nullInt(r.EndYear),
			nullInt(types.ComputeDuration(r.StartYear, r.EndYear)),
			nullTime(r.CreatedAt),
			nullTime(r.ModifiedAt),
			r.Source,
			nullString(r.IdentifierType),
			nullString(r.IdentifierValue),
			nullString(r.EmailAddresses),
			nullString(r.OrganizationName),
		); err != nil {
			return fmt.Errorf("inserting row %d (%s): %w", i, r.Identifier, err)
		}
	}
	return tx.Commit()
}

// Load returns the stored rows that pass f, in saved order. The filter is
// evaluated in SQL. Duration is recomputed from the years rather than read
// from the file.
func (s *Store) Load(ctx context.Context, f analysis.Filter) ([]types.AffiliationRecord, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT ` + columns + ` FROM affiliations WHERE 1=1`)

	in := func(values []string) string {
		for _, v := range values {
			args = append(args, v)
		}
		return "IN (" + strings.TrimSuffix(strings.Repeat("?,", len(values)), ",") + ")"
	}
	if len(f.Roles) > 0 {
		qb.WriteString(" AND relation_role " + in(f.Roles))
	}
	if len(f.Departments) > 0 {
		qb.WriteString(" AND (department IS NULL OR department " + in(f.Departments) + ")")
	}
	if len(f.Sources) > 0 {
		qb.WriteString(" AND source " + in(f.Sources))
	}
	if f.YearFrom != nil {
		qb.WriteString(" AND start_year >= ?")
		args = append(args, *f.YearFrom)
	}
	if f.YearTo != nil {
		qb.WriteString(" AND start_year <= ?")
		args = append(args, *f.YearTo)
	}
	qb.WriteString(" ORDER BY position")

	rs, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying affiliations: %w", err)
	}
	defer rs.Close()

	out := []types.AffiliationRecord{}
	for rs.Next() {
		var (
			r                            types.AffiliationRecord
			given, family, title, dept   sql.NullString
			created, modified            sql.NullString
			idType, idValue, emails, org sql.NullString
			start, end, storedDuration   sql.NullInt64
		)
		if err := rs.Scan(&r.Identifier, &given, &family, &r.RelationRole, &title,
			&dept, &start, &end, &storedDuration, &created, &modified, &r.Source,
			&idType, &idValue, &emails, &org); err != nil {
			return nil, fmt.Errorf("scanning affiliation: %w", err)
		}
		r.GivenNames = fromNullString(given)
		r.FamilyName = fromNullString(family)
		r.RelationTitle = fromNullString(title)
		r.Department = fromNullString(dept)
		r.StartYear = fromNullInt(start)
		r.EndYear = fromNullInt(end)
		r.Duration = types.ComputeDuration(r.StartYear, r.EndYear)
		r.CreatedAt = fromNullTime(created)
		r.ModifiedAt = fromNullTime(modified)
		r.IdentifierType = fromNullString(idType)
		r.IdentifierValue = fromNullString(idValue)
		r.EmailAddresses = fromNullString(emails)
		r.OrganizationName = fromNullString(org)
		out = append(out, r)
	}
	return out, rs.Err()
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM affiliations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting affiliations: %w", err)
	}
	return n, nil
}

// SaveRun records a search run report. Saving the same run ID twice keeps
// the later report.
func (s *Store) SaveRun(ctx context.Context, r registry.Report) error {
	domains, err := json.Marshal(r.Domains)
	if err != nil {
		return fmt.Errorf("marshaling domains: %w", err)
	}
	tel, err := json.Marshal(r.Telemetry)
	if err != nil {
		return fmt.Errorf("marshaling telemetry: %w", err)
	}
	perDomain := 0
	if r.PerDomain {
		perDomain = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, timestamp, domains, max_results, mode, per_domain, rows, telemetry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Timestamp.UTC().Format(runTimeLayout), string(domains), r.MaxResults,
		string(r.Mode), perDomain, r.Rows, string(tel))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.RunID, err)
	}
	return nil
}

// Runs returns saved run reports, newest first.
func (s *Store) Runs(ctx context.Context) ([]registry.Report, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT run_id, timestamp, domains, max_results, mode, per_domain, rows, telemetry
		FROM runs ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rs.Close()

	var out []registry.Report
	for rs.Next() {
		var (
			r                      registry.Report
			ts, domains, tel, mode string
			perDomain              int
		)
		if err := rs.Scan(&r.RunID, &ts, &domains, &r.MaxResults, &mode, &perDomain, &r.Rows, &tel); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.Timestamp, err = time.Parse(runTimeLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing run timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(domains), &r.Domains); err != nil {
			return nil, fmt.Errorf("parsing run domains: %w", err)
		}
		if err := json.Unmarshal([]byte(tel), &r.Telemetry); err != nil {
			return nil, fmt.Errorf("parsing run telemetry: %w", err)
		}
		r.Mode = types.SearchMode(mode)
		r.PerDomain = perDomain != 0
		out = append(out, r)
	}
	return out, rs.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func fromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func fromNullTime(n sql.NullString) *time.Time {
	if !n.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, n.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
