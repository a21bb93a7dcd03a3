package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"estatedesk/backoffice/internal/database"
)

//go:embed sql/*.sql
var embedded embed.FS

var (
	ErrInvalidName = errors.New("invalid migration name")
	ErrUnknown     = errors.New("migration does not exist")
)

type FileInfo struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

type Status struct {
	Name             string `json:"name"`
	Checksum         string `json:"checksum"`
	Applied          bool   `json:"applied"`
	AppliedAt        string `json:"applied_at,omitempty"`
	ChecksumMismatch bool   `json:"checksum_mismatch,omitempty"`
}

type appliedRecord struct {
	checksum  string
	appliedAt time.Time
}

// Service applies the schema files shipped with the binary and records them
// in schema_migrations.
type Service struct {
	db      *sql.DB
	files   fs.FS
	nowFunc func() time.Time
}

func NewService(db *sql.DB) (*Service, error) {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return newService(db, sub)
}

func newService(db *sql.DB, files fs.FS) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &Service{db: db, files: files, nowFunc: time.Now}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure schema_migrations schema: %w", err)
	}
	return nil
}

func (s *Service) List() ([]FileInfo, error) {
	entries, err := fs.ReadDir(s.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := fs.ReadFile(s.files, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, FileInfo{Name: e.Name(), Checksum: checksum(b)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) Status(ctx context.Context) ([]Status, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	applied, err := s.loadApplied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(files))
	for _, f := range files {
		st := Status{Name: f.Name, Checksum: f.Checksum}
		if rec, ok := applied[f.Name]; ok {
			st.Applied = true
			st.AppliedAt = rec.appliedAt.UTC().Format(time.RFC3339)
			st.ChecksumMismatch = rec.checksum != f.Checksum
		}
		out = append(out, st)
	}
	return out, nil
}

// Apply executes every pending file in name order, each in its own
// transaction, and returns the names that were applied.
func (s *Service) Apply(ctx context.Context) ([]string, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	applied, err := s.loadApplied(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, f := range files {
		if _, ok := applied[f.Name]; ok {
			continue
		}
		body, err := fs.ReadFile(s.files, f.Name)
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", f.Name, err)
		}
		err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("execute migration %s: %w", f.Name, err)
			}
			return s.record(ctx, tx, f.Name, f.Checksum, s.nowFunc())
		})
		if err != nil {
			return done, err
		}
		done = append(done, f.Name)
	}
	return done, nil
}

// MarkApplied records a migration as applied without executing it.
func (s *Service) MarkApplied(ctx context.Context, name string, appliedAt time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" || !strings.HasSuffix(name, ".sql") || strings.Contains(name, "/") {
		return ErrInvalidName
	}
	b, err := fs.ReadFile(s.files, path.Clean(name))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return s.record(ctx, s.db, name, checksum(b), appliedAt)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) record(ctx context.Context, ex execer, name, sum string, appliedAt time.Time) error {
	const q = `
INSERT INTO schema_migrations (name, checksum, applied_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET checksum = EXCLUDED.checksum, applied_at = EXCLUDED.applied_at`
	if _, err := ex.ExecContext(ctx, q, name, sum, appliedAt.UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return nil
}

func (s *Service) loadApplied(ctx context.Context) (map[string]appliedRecord, error) {
	const q = `SELECT name, checksum, applied_at FROM schema_migrations`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query migration state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]appliedRecord)
	for rows.Next() {
		var name string
		var rec appliedRecord
		if err := rows.Scan(&name, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, fmt.Errorf("scan migration state: %w", err)
		}
		out[name] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration state: %w", err)
	}
	return out, nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
