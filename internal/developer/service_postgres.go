package developer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"estatedesk/backoffice/internal/database"
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

const selectDeveloper = `
SELECT id, name, description, website, established_year, logo_path, cover_path, is_active, created_at, updated_at
FROM developers`

type scanner interface {
	Scan(dest ...any) error
}

func scanDeveloper(row scanner) (Developer, error) {
	var (
		d    Developer
		year sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Website, &year, &d.LogoPath, &d.CoverPath, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Developer{}, err
	}
	if year.Valid {
		y := int(year.Int64)
		d.EstablishedYear = &y
	}
	return d, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (s *PGService) Create(ctx context.Context, in Input) (Developer, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return Developer{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := s.nowFunc().UTC()

	const q = `
INSERT INTO developers
  (name, description, website, established_year, is_active, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $6)
RETURNING id`
	d := Developer{
		Name:            in.Name,
		Description:     in.Description,
		Website:         in.Website,
		EstablishedYear: in.EstablishedYear,
		IsActive:        active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.QueryRowContext(ctx, q, d.Name, d.Description, d.Website, nullInt(in.EstablishedYear), active, now).Scan(&d.ID); err != nil {
		return Developer{}, fmt.Errorf("insert developer: %w", err)
	}
	return d, nil
}

// Get returns the developer together with its awards.
func (s *PGService) Get(ctx context.Context, id int64) (Developer, error) {
	if id <= 0 {
		return Developer{}, ErrNotFound
	}
	d, err := scanDeveloper(s.db.QueryRowContext(ctx, selectDeveloper+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Developer{}, ErrNotFound
		}
		return Developer{}, fmt.Errorf("get developer: %w", err)
	}
	awards, err := s.listAwards(ctx, s.db, id)
	if err != nil {
		return Developer{}, err
	}
	d.Awards = awards
	return d, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PGService) listAwards(ctx context.Context, q querier, developerID int64) ([]Award, error) {
	const query = `
SELECT id, developer_id, title, year, image_path, created_at
FROM developer_awards
WHERE developer_id = $1
ORDER BY year DESC NULLS LAST, id ASC`
	rows, err := q.QueryContext(ctx, query, developerID)
	if err != nil {
		return nil, fmt.Errorf("list developer awards: %w", err)
	}
	defer rows.Close()

	out := make([]Award, 0)
	for rows.Next() {
		a, err := scanAward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan developer award: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate developer awards: %w", err)
	}
	return out, nil
}

func scanAward(row scanner) (Award, error) {
	var (
		a    Award
		year sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.DeveloperID, &a.Title, &year, &a.ImagePath, &a.CreatedAt); err != nil {
		return Award{}, err
	}
	if year.Valid {
		y := int(year.Int64)
		a.Year = &y
	}
	return a, nil
}

func (s *PGService) List(ctx context.Context, f ListFilter) ([]Developer, error) {
	page := f.Page.Normalize()
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	q := selectDeveloper
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, page.Limit, page.Offset)
	q += fmt.Sprintf(" ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list developers: %w", err)
	}
	defer rows.Close()

	out := make([]Developer, 0)
	for rows.Next() {
		d, err := scanDeveloper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan developer: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate developers: %w", err)
	}
	return out, nil
}

func (s *PGService) Update(ctx context.Context, id int64, in Input) (Developer, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return Developer{}, err
	}
	if id <= 0 {
		return Developer{}, ErrNotFound
	}

	const q = `
UPDATE developers
SET name = $2,
	description = $3,
	website = $4,
	established_year = $5,
	is_active = COALESCE($6, is_active),
	updated_at = $7
WHERE id = $1`
	var active sql.NullBool
	if in.IsActive != nil {
		active = sql.NullBool{Bool: *in.IsActive, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, q, id, in.Name, in.Description, in.Website, nullInt(in.EstablishedYear), active, s.nowFunc().UTC())
	if err != nil {
		return Developer{}, fmt.Errorf("update developer: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return Developer{}, err
	}
	return s.Get(ctx, id)
}

func (s *PGService) SetImages(ctx context.Context, id int64, img Images) error {
	const q = `UPDATE developers SET logo_path = $2, cover_path = $3, updated_at = $4 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, img.LogoPath, img.CoverPath, s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("set developer images: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the developer and its awards and returns what was removed so
// the caller can clean up the stored files.
func (s *PGService) Delete(ctx context.Context, id int64) (Developer, error) {
	if id <= 0 {
		return Developer{}, ErrNotFound
	}
	var d Developer
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		d, err = scanDeveloper(tx.QueryRowContext(ctx, selectDeveloper+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load developer: %w", err)
		}
		if d.Awards, err = s.listAwards(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM developers WHERE id = $1`, id); err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrInUse
			}
			return fmt.Errorf("delete developer: %w", err)
		}
		return nil
	})
	if err != nil {
		return Developer{}, err
	}
	return d, nil
}

func (s *PGService) AddAward(ctx context.Context, developerID int64, in AwardInput, imagePath string) (Award, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return Award{}, err
	}
	if developerID <= 0 {
		return Award{}, ErrNotFound
	}
	a := Award{
		DeveloperID: developerID,
		Title:       in.Title,
		Year:        in.Year,
		ImagePath:   imagePath,
		CreatedAt:   s.nowFunc().UTC(),
	}
	const q = `
INSERT INTO developer_awards (developer_id, title, year, image_path, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	if err := s.db.QueryRowContext(ctx, q, a.DeveloperID, a.Title, nullInt(a.Year), a.ImagePath, a.CreatedAt).Scan(&a.ID); err != nil {
		if database.IsForeignKeyViolation(err) {
			return Award{}, ErrNotFound
		}
		return Award{}, fmt.Errorf("insert developer award: %w", err)
	}
	return a, nil
}

// DeleteAward removes one award and returns it.
func (s *PGService) DeleteAward(ctx context.Context, developerID, awardID int64) (Award, error) {
	const q = `
DELETE FROM developer_awards
WHERE id = $1 AND developer_id = $2
RETURNING id, developer_id, title, year, image_path, created_at`
	a, err := scanAward(s.db.QueryRowContext(ctx, q, awardID, developerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Award{}, ErrNotFound
		}
		return Award{}, fmt.Errorf("delete developer award: %w", err)
	}
	return a, nil
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
