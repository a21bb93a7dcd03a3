package testimonial

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

const testimonialColumns = `id, customer_name, designation, content, rating, photo_path, project_id, is_published, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTestimonial(row scanner) (Testimonial, error) {
	var (
		t         Testimonial
		projectID sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.CustomerName, &t.Designation, &t.Content, &t.Rating, &t.PhotoPath, &projectID,
		&t.IsPublished, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Testimonial{}, err
	}
	if projectID.Valid {
		t.ProjectID = &projectID.Int64
	}
	return t, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func errProjectMissing() error {
	return validation.Errors{"project_id": "Project not found"}
}

func (s *PGService) Create(ctx context.Context, in Input) (Testimonial, error) {
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return Testimonial{}, err
	}
	published := true
	if in.IsPublished != nil {
		published = *in.IsPublished
	}
	now := s.nowFunc().UTC()
	t := Testimonial{
		CustomerName: in.CustomerName,
		Designation:  in.Designation,
		Content:      in.Content,
		Rating:       in.Rating,
		ProjectID:    in.ProjectID,
		IsPublished:  published,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	const q = `
INSERT INTO testimonials
  (customer_name, designation, content, rating, project_id, is_published, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING id`
	if err := s.db.QueryRowContext(ctx, q, t.CustomerName, t.Designation, t.Content, t.Rating, nullInt64(t.ProjectID), t.IsPublished, now).Scan(&t.ID); err != nil {
		if database.IsForeignKeyViolation(err) {
			return Testimonial{}, errProjectMissing()
		}
		return Testimonial{}, fmt.Errorf("insert testimonial: %w", err)
	}
	return t, nil
}

func (s *PGService) Get(ctx context.Context, id int64) (Testimonial, error) {
	if id <= 0 {
		return Testimonial{}, ErrNotFound
	}
	t, err := scanTestimonial(s.db.QueryRowContext(ctx, `SELECT `+testimonialColumns+` FROM testimonials WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Testimonial{}, ErrNotFound
		}
		return Testimonial{}, fmt.Errorf("get testimonial: %w", err)
	}
	return t, nil
}

func (s *PGService) List(ctx context.Context, f ListFilter) ([]Testimonial, error) {
	page := f.Page.Normalize()
	q := `SELECT ` + testimonialColumns + ` FROM testimonials`
	if f.PublishedOnly {
		q += ` WHERE is_published = TRUE`
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, q, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list testimonials: %w", err)
	}
	defer rows.Close()

	out := make([]Testimonial, 0)
	for rows.Next() {
		t, err := scanTestimonial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan testimonial: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate testimonials: %w", err)
	}
	return out, nil
}

func (s *PGService) Update(ctx context.Context, id int64, in Input) (Testimonial, error) {
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return Testimonial{}, err
	}
	if id <= 0 {
		return Testimonial{}, ErrNotFound
	}

	const q = `
UPDATE testimonials
SET customer_name = $2,
	designation = $3,
	content = $4,
	rating = $5,
	project_id = $6,
	is_published = COALESCE($7, is_published),
	updated_at = $8
WHERE id = $1`
	var published sql.NullBool
	if in.IsPublished != nil {
		published = sql.NullBool{Bool: *in.IsPublished, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, q, id, in.CustomerName, in.Designation, in.Content, in.Rating, nullInt64(in.ProjectID), published, s.nowFunc().UTC())
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return Testimonial{}, errProjectMissing()
		}
		return Testimonial{}, fmt.Errorf("update testimonial: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return Testimonial{}, err
	}
	return s.Get(ctx, id)
}

func (s *PGService) SetPhoto(ctx context.Context, id int64, path string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE testimonials SET photo_path = $2, updated_at = $3 WHERE id = $1`, id, path, s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("set testimonial photo: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the testimonial and returns it so the photo can be removed.
func (s *PGService) Delete(ctx context.Context, id int64) (Testimonial, error) {
	if id <= 0 {
		return Testimonial{}, ErrNotFound
	}
	t, err := scanTestimonial(s.db.QueryRowContext(ctx, `DELETE FROM testimonials WHERE id = $1 RETURNING `+testimonialColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Testimonial{}, ErrNotFound
		}
		return Testimonial{}, fmt.Errorf("delete testimonial: %w", err)
	}
	return t, nil
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
