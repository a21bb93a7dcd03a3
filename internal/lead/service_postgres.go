package lead

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

const selectLead = `
SELECT l.id, l.project_id, COALESCE(p.name, ''), l.name, l.email, l.phone, l.message, l.source, l.status,
	l.created_at, l.updated_at
FROM project_leads l
LEFT JOIN project_details p ON p.id = l.project_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (Lead, error) {
	var (
		l         Lead
		projectID sql.NullInt64
	)
	if err := row.Scan(&l.ID, &projectID, &l.ProjectName, &l.Name, &l.Email, &l.Phone, &l.Message, &l.Source, &l.Status,
		&l.CreatedAt, &l.UpdatedAt); err != nil {
		return Lead{}, err
	}
	if projectID.Valid {
		l.ProjectID = &projectID.Int64
	}
	return l, nil
}

// Create records an enquiry. New leads always start in status "new".
func (s *PGService) Create(ctx context.Context, in Input) (Lead, error) {
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return Lead{}, err
	}
	now := s.nowFunc().UTC()
	l := Lead{
		ProjectID: in.ProjectID,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Message:   in.Message,
		Source:    in.Source,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var projectID sql.NullInt64
	if in.ProjectID != nil {
		projectID = sql.NullInt64{Int64: *in.ProjectID, Valid: true}
	}
	const q = `
INSERT INTO project_leads
  (project_id, name, email, phone, message, source, status, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id`
	if err := s.db.QueryRowContext(ctx, q, projectID, l.Name, l.Email, l.Phone, l.Message, l.Source, l.Status, now).Scan(&l.ID); err != nil {
		if database.IsForeignKeyViolation(err) {
			return Lead{}, validation.Errors{"project_id": "Project not found"}
		}
		return Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return l, nil
}

func (s *PGService) Get(ctx context.Context, id int64) (Lead, error) {
	if id <= 0 {
		return Lead{}, ErrNotFound
	}
	l, err := scanLead(s.db.QueryRowContext(ctx, selectLead+` WHERE l.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func (s *PGService) List(ctx context.Context, f ListFilter) ([]Lead, error) {
	page := f.Page.Normalize()
	var (
		where []string
		args  []any
	)
	if f.ProjectID > 0 {
		args = append(args, f.ProjectID)
		where = append(where, fmt.Sprintf("l.project_id = $%d", len(args)))
	}
	if status := strings.ToLower(strings.TrimSpace(f.Status)); status != "" {
		if !ValidStatus(status) {
			return nil, ErrInvalidStatus
		}
		args = append(args, status)
		where = append(where, fmt.Sprintf("l.status = $%d", len(args)))
	}

	q := selectLead
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, page.Limit, page.Offset)
	q += fmt.Sprintf(" ORDER BY l.created_at DESC, l.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	out := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

func (s *PGService) UpdateStatus(ctx context.Context, id int64, status string) (Lead, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !ValidStatus(status) {
		return Lead{}, ErrInvalidStatus
	}
	if id <= 0 {
		return Lead{}, ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `UPDATE project_leads SET status = $2, updated_at = $3 WHERE id = $1`, id, status, s.nowFunc().UTC())
	if err != nil {
		return Lead{}, fmt.Errorf("update lead status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Lead{}, fmt.Errorf("read update affected rows: %w", err)
	}
	if affected == 0 {
		return Lead{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *PGService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM project_leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
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
