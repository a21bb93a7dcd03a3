package offer

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

const selectOffer = `
SELECT o.id, o.project_id, p.name, o.title, o.description, o.discount_label, o.valid_from, o.valid_until,
	o.is_active, o.created_at, o.updated_at
FROM project_offers o
JOIN project_details p ON p.id = o.project_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanOffer(row scanner) (Offer, error) {
	var (
		o           Offer
		from, until sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.ProjectID, &o.ProjectName, &o.Title, &o.Description, &o.DiscountLabel, &from, &until,
		&o.IsActive, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Offer{}, err
	}
	if from.Valid {
		o.ValidFrom = &from.Time
	}
	if until.Valid {
		o.ValidUntil = &until.Time
	}
	return o, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func errProjectMissing() error {
	return validation.Errors{"project_id": "Project not found"}
}

func (s *PGService) Create(ctx context.Context, in Input) (Offer, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return Offer{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	const q = `
INSERT INTO project_offers
  (project_id, title, description, discount_label, valid_from, valid_until, is_active, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, q, in.ProjectID, in.Title, in.Description, in.DiscountLabel,
		nullTime(in.ValidFrom), nullTime(in.ValidUntil), active, s.nowFunc().UTC()).Scan(&id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return Offer{}, errProjectMissing()
		}
		return Offer{}, fmt.Errorf("insert offer: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *PGService) Get(ctx context.Context, id int64) (Offer, error) {
	if id <= 0 {
		return Offer{}, ErrNotFound
	}
	o, err := scanOffer(s.db.QueryRowContext(ctx, selectOffer+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (s *PGService) List(ctx context.Context, f ListFilter) ([]Offer, error) {
	page := f.Page.Normalize()
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if f.ProjectID > 0 {
		add("o.project_id = ?", f.ProjectID)
	}
	if f.ActiveOnly {
		at := f.At
		if at.IsZero() {
			at = s.nowFunc()
		}
		where = append(where, "o.is_active = TRUE")
		add("(o.valid_from IS NULL OR o.valid_from <= ?) AND (o.valid_until IS NULL OR o.valid_until >= ?)", at.UTC())
	}

	q := selectOffer
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, page.Limit, page.Offset)
	q += fmt.Sprintf(" ORDER BY o.created_at DESC, o.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	out := make([]Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return out, nil
}

func (s *PGService) Update(ctx context.Context, id int64, in Input) (Offer, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return Offer{}, err
	}
	if id <= 0 {
		return Offer{}, ErrNotFound
	}

	const q = `
UPDATE project_offers
SET project_id = $2,
	title = $3,
	description = $4,
	discount_label = $5,
	valid_from = $6,
	valid_until = $7,
	is_active = COALESCE($8, is_active),
	updated_at = $9
WHERE id = $1`
	var active sql.NullBool
	if in.IsActive != nil {
		active = sql.NullBool{Bool: *in.IsActive, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, q, id, in.ProjectID, in.Title, in.Description, in.DiscountLabel,
		nullTime(in.ValidFrom), nullTime(in.ValidUntil), active, s.nowFunc().UTC())
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return Offer{}, errProjectMissing()
		}
		return Offer{}, fmt.Errorf("update offer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Offer{}, fmt.Errorf("read update affected rows: %w", err)
	}
	if affected == 0 {
		return Offer{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *PGService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_offers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read delete affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
