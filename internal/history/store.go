package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Record is one escrow package that was built
type Record struct {
	ID              int64
	Project         string
	Version         string
	Fingerprint     string
	Path            string
	Size            int64
	Compression     string
	DependencyCount int
	CreatedAt       time.Time
}

// Store is a SQLite ledger of built escrow packages. Callers use it to
// recognize rebuilds whose output did not change.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at dbPath and runs migrations
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// :memory: databases exist per connection
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Debugf("History store opened at %s", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Add inserts a record and sets its ID
func (s *Store) Add(rec *Record) error {
	const query = `
		INSERT INTO escrow_packages (
			project, version, fingerprint, path, size, compression,
			dependency_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.Exec(query,
		rec.Project, rec.Version, rec.Fingerprint, rec.Path, rec.Size,
		rec.Compression, rec.DependencyCount, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert escrow package: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// Latest returns the most recent record for project and version, or nil
func (s *Store) Latest(project, version string) (*Record, error) {
	records, err := s.list(project, &version, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// List returns records newest first. An empty project lists everything;
// limit <= 0 means no limit.
func (s *Store) List(project string, limit int) ([]Record, error) {
	return s.list(project, nil, limit)
}

func (s *Store) list(project string, version *string, limit int) ([]Record, error) {
	query := `
		SELECT id, project, version, fingerprint, path, size, compression,
		       dependency_count, created_at
		FROM escrow_packages WHERE 1 = 1
	`
	var args []interface{}

	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	if version != nil {
		query += " AND version = ?"
		args = append(args, *version)
	}

	query += " ORDER BY id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escrow packages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var created string
		err := rows.Scan(
			&rec.ID, &rec.Project, &rec.Version, &rec.Fingerprint, &rec.Path,
			&rec.Size, &rec.Compression, &rec.DependencyCount, &created,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escrow package: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escrow packages: %w", err)
	}

	return records, nil
}

// migrate runs all pending migrations
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE escrow_packages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					project TEXT NOT NULL,
					version TEXT NOT NULL,
					fingerprint TEXT NOT NULL,
					path TEXT NOT NULL,
					size INTEGER DEFAULT 0,
					compression TEXT NOT NULL,
					dependency_count INTEGER DEFAULT 0,
					created_at TEXT NOT NULL
				);

				CREATE INDEX idx_escrow_packages_project_version
					ON escrow_packages(project, version);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version, applied_at) VALUES (?, ?)",
			m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
		logrus.Debugf("Applied history migration %d", m.version)
	}

	return nil
}
