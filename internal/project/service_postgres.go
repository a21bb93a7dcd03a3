package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/validation"
)

type PGService struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewPGService(db *sql.DB) (*PGService, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PGService{
		db:      db,
		nowFunc: time.Now,
	}, nil
}

const selectProject = `
SELECT p.id, COALESCE(p.code, ''), p.developer_id, d.name, p.name, p.location, p.city, p.status,
	p.property_type, p.price_from, p.price_to, p.description, p.logo_path, p.brochure_path,
	p.is_featured, p.created_at, p.updated_at
FROM project_details p
JOIN developers d ON d.id = p.developer_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Code, &p.DeveloperID, &p.DeveloperName, &p.Name, &p.Location, &p.City, &p.Status,
		&p.PropertyType, &p.PriceFrom, &p.PriceTo, &p.Description, &p.LogoPath, &p.BrochurePath,
		&p.IsFeatured, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func errDeveloperMissing() error {
	return validation.Errors{"developer_id": "Developer not found"}
}

// Create stores the project, its code and its children in one transaction.
func (s *PGService) Create(ctx context.Context, in Input) (Project, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return Project{}, err
	}
	now := s.nowFunc().UTC()

	var id int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var developerName string
		if err := tx.QueryRowContext(ctx, `SELECT name FROM developers WHERE id = $1`, in.DeveloperID).Scan(&developerName); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errDeveloperMissing()
			}
			return fmt.Errorf("load developer: %w", err)
		}

		const insert = `
INSERT INTO project_details
  (developer_id, name, location, city, status, property_type, price_from, price_to, description, is_featured, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
RETURNING id`
		if err := tx.QueryRowContext(ctx, insert, in.DeveloperID, in.Name, in.Location, in.City, in.Status, in.PropertyType,
			in.PriceFrom, in.PriceTo, in.Description, in.IsFeatured, now).Scan(&id); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE project_details SET code = $2 WHERE id = $1`, id, GenerateCode(developerName, id)); err != nil {
			return fmt.Errorf("set project code: %w", err)
		}
		return insertChildren(ctx, tx, id, in)
	})
	if err != nil {
		return Project{}, err
	}
	return s.Get(ctx, id)
}

// Update rewrites the project row and replaces its nearby, FAQ and SEO
// children atomically. Files and the OG image are left alone.
func (s *PGService) Update(ctx context.Context, id int64, in Input) (Project, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return Project{}, err
	}
	if id <= 0 {
		return Project{}, ErrNotFound
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		const q = `
UPDATE project_details
SET developer_id = $2,
	name = $3,
	location = $4,
	city = $5,
	status = $6,
	property_type = $7,
	price_from = $8,
	price_to = $9,
	description = $10,
	is_featured = $11,
	updated_at = $12
WHERE id = $1`
		res, err := tx.ExecContext(ctx, q, id, in.DeveloperID, in.Name, in.Location, in.City, in.Status, in.PropertyType,
			in.PriceFrom, in.PriceTo, in.Description, in.IsFeatured, s.nowFunc().UTC())
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return errDeveloperMissing()
			}
			return fmt.Errorf("update project: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_nearby WHERE project_id = $1`, id); err != nil {
			return fmt.Errorf("clear project nearby: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_faq WHERE project_id = $1`, id); err != nil {
			return fmt.Errorf("clear project faq: %w", err)
		}
		return insertChildren(ctx, tx, id, in)
	})
	if err != nil {
		return Project{}, err
	}
	return s.Get(ctx, id)
}

func insertChildren(ctx context.Context, tx *sql.Tx, id int64, in Input) error {
	for i, n := range in.Nearby {
		const q = `INSERT INTO project_nearby (project_id, place, distance, sort_order) VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, q, id, n.Place, n.Distance, i); err != nil {
			return fmt.Errorf("insert project nearby: %w", err)
		}
	}
	for i, f := range in.FAQs {
		const q = `INSERT INTO project_faq (project_id, question, answer, sort_order) VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, q, id, f.Question, f.Answer, i); err != nil {
			return fmt.Errorf("insert project faq: %w", err)
		}
	}
	const seo = `
INSERT INTO project_seo (project_id, meta_title, meta_description)
VALUES ($1, $2, $3)
ON CONFLICT (project_id) DO UPDATE
SET meta_title = EXCLUDED.meta_title,
	meta_description = EXCLUDED.meta_description`
	if _, err := tx.ExecContext(ctx, seo, id, in.SEO.MetaTitle, in.SEO.MetaDescription); err != nil {
		return fmt.Errorf("upsert project seo: %w", err)
	}
	return nil
}

// Assets points the project at new single-file uploads. Nil fields are left
// unchanged.
type Assets struct {
	LogoPath     *string
	BrochurePath *string
	OGImagePath  *string
}

func (s *PGService) SetAssets(ctx context.Context, id int64, a Assets) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		const q = `
UPDATE project_details
SET logo_path = COALESCE($2, logo_path),
	brochure_path = COALESCE($3, brochure_path),
	updated_at = $4
WHERE id = $1`
		res, err := tx.ExecContext(ctx, q, id, nullString(a.LogoPath), nullString(a.BrochurePath), s.nowFunc().UTC())
		if err != nil {
			return fmt.Errorf("set project assets: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if a.OGImagePath == nil {
			return nil
		}
		const seo = `
INSERT INTO project_seo (project_id, og_image_path)
VALUES ($1, $2)
ON CONFLICT (project_id) DO UPDATE SET og_image_path = EXCLUDED.og_image_path`
		if _, err := tx.ExecContext(ctx, seo, id, *a.OGImagePath); err != nil {
			return fmt.Errorf("set project og image: %w", err)
		}
		return nil
	})
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// AddFiles appends stored uploads of one kind after the project's existing
// files of that kind.
func (s *PGService) AddFiles(ctx context.Context, id int64, kind storage.Kind, paths []string) ([]File, error) {
	if !IsFileKind(kind) {
		return nil, fmt.Errorf("%s is not a project file kind", kind)
	}
	if len(paths) == 0 {
		return nil, nil
	}
	out := make([]File, 0, len(paths))
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var last int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order), -1) FROM project_files WHERE project_id = $1 AND kind = $2`, id, string(kind)).Scan(&last); err != nil {
			return fmt.Errorf("read project file order: %w", err)
		}
		now := s.nowFunc().UTC()
		for i, p := range paths {
			f := File{Kind: kind, Path: p, SortOrder: last + 1 + i}
			const q = `
INSERT INTO project_files (project_id, kind, path, sort_order, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
			if err := tx.QueryRowContext(ctx, q, id, string(kind), p, f.SortOrder, now).Scan(&f.ID); err != nil {
				if database.IsForeignKeyViolation(err) {
					return ErrNotFound
				}
				return fmt.Errorf("insert project file: %w", err)
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveFiles deletes the given file rows of the project and returns them.
// Ids that belong to other projects are ignored.
func (s *PGService) RemoveFiles(ctx context.Context, id int64, fileIDs []int64) ([]File, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	const q = `
DELETE FROM project_files
WHERE project_id = $1 AND id = ANY($2)
RETURNING id, kind, path, sort_order`
	rows, err := s.db.QueryContext(ctx, q, id, pq.Array(fileIDs))
	if err != nil {
		return nil, fmt.Errorf("delete project files: %w", err)
	}
	return collectFiles(rows)
}

func collectFiles(rows *sql.Rows) ([]File, error) {
	defer rows.Close()
	out := make([]File, 0)
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Kind, &f.Path, &f.SortOrder); err != nil {
			return nil, fmt.Errorf("scan project file: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project files: %w", err)
	}
	return out, nil
}

// Get loads the project with files, nearby places, FAQs and SEO.
func (s *PGService) Get(ctx context.Context, id int64) (Project, error) {
	if id <= 0 {
		return Project{}, ErrNotFound
	}
	p, err := scanProject(s.db.QueryRowContext(ctx, selectProject+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("get project: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, path, sort_order FROM project_files WHERE project_id = $1 ORDER BY kind, sort_order, id`, id)
	if err != nil {
		return Project{}, fmt.Errorf("list project files: %w", err)
	}
	if p.Files, err = collectFiles(rows); err != nil {
		return Project{}, err
	}
	if p.Nearby, err = s.listNearby(ctx, id); err != nil {
		return Project{}, err
	}
	if p.FAQs, err = s.listFAQs(ctx, id); err != nil {
		return Project{}, err
	}

	var seo SEO
	err = s.db.QueryRowContext(ctx, `SELECT meta_title, meta_description, og_image_path FROM project_seo WHERE project_id = $1`, id).
		Scan(&seo.MetaTitle, &seo.MetaDescription, &seo.OGImagePath)
	switch {
	case err == nil:
		p.SEO = &seo
	case !errors.Is(err, sql.ErrNoRows):
		return Project{}, fmt.Errorf("get project seo: %w", err)
	}
	return p, nil
}

func (s *PGService) listNearby(ctx context.Context, id int64) ([]Nearby, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT place, distance FROM project_nearby WHERE project_id = $1 ORDER BY sort_order, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list project nearby: %w", err)
	}
	defer rows.Close()
	out := make([]Nearby, 0)
	for rows.Next() {
		var n Nearby
		if err := rows.Scan(&n.Place, &n.Distance); err != nil {
			return nil, fmt.Errorf("scan project nearby: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PGService) listFAQs(ctx context.Context, id int64) ([]FAQ, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question, answer FROM project_faq WHERE project_id = $1 ORDER BY sort_order, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list project faq: %w", err)
	}
	defer rows.Close()
	out := make([]FAQ, 0)
	for rows.Next() {
		var f FAQ
		if err := rows.Scan(&f.Question, &f.Answer); err != nil {
			return nil, fmt.Errorf("scan project faq: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// List returns project rows without children, newest first.
func (s *PGService) List(ctx context.Context, f ListFilter) ([]Project, error) {
	page := f.Page.Normalize()
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.DeveloperID > 0 {
		add("p.developer_id = $%d", f.DeveloperID)
	}
	if city := strings.TrimSpace(f.City); city != "" {
		add("LOWER(p.city) = LOWER($%d)", city)
	}
	if status := strings.TrimSpace(f.Status); status != "" {
		add("p.status = $%d", strings.ToLower(status))
	}
	if f.FeaturedOnly {
		where = append(where, "p.is_featured = TRUE")
	}

	q := selectProject
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, page.Limit, page.Offset)
	q += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// Delete removes the project and its children and returns the loaded project
// so the caller can remove its uploads.
func (s *PGService) Delete(ctx context.Context, id int64) (Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_details WHERE id = $1`, id)
	if err != nil {
		return Project{}, fmt.Errorf("delete project: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return Project{}, err
	}
	return p, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
