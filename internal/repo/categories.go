package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"caseline/internal/domain"
)

type CategoryFilters struct {
	ActiveOnly bool
	Severity   domain.Severity
}

type scanner interface {
	Scan(dest ...any) error
}

const categoryColumns = `id,name,description,severity_level,suggested_actions_json,is_active,created_at,updated_at`

func scanCategory(s scanner) (domain.Category, error) {
	var c domain.Category
	var desc sql.NullString
	var suggested, createdAt, updatedAt string
	var active int
	if err := s.Scan(&c.ID, &c.Name, &desc, &c.SeverityLevel, &suggested, &active, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	c.Description = desc.String
	c.IsActive = active != 0
	var err error
	if c.SuggestedActions, err = unmarshalList(suggested); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTS(createdAt); err != nil {
		return c, err
	}
	c.UpdatedAt, err = parseTS(updatedAt)
	return c, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertCategory(ctx context.Context, c domain.Category) error {
	suggested, err := marshalList(c.SuggestedActions)
	if err != nil {
		return err
	}
	_, err = r.q().ExecContext(ctx, `INSERT INTO categories(`+categoryColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Description), c.SeverityLevel, suggested, boolInt(c.IsActive), formatTS(c.CreatedAt), formatTS(c.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r Repo) UpdateCategory(ctx context.Context, c domain.Category) error {
	suggested, err := marshalList(c.SuggestedActions)
	if err != nil {
		return err
	}
	res, err := r.q().ExecContext(ctx, `UPDATE categories SET name=?, description=?, severity_level=?, suggested_actions_json=?, is_active=?, updated_at=? WHERE id=?`,
		c.Name, nullable(c.Description), c.SeverityLevel, suggested, boolInt(c.IsActive), formatTS(c.UpdatedAt), c.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	return scanCategory(r.q().QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=?`, id))
}

func (r Repo) ListCategories(ctx context.Context, f CategoryFilters) ([]domain.Category, error) {
	var clauses []string
	var args []any
	if f.ActiveOnly {
		clauses = append(clauses, "is_active=1")
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity_level=?")
		args = append(args, f.Severity)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.q().QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories`+where+` ORDER BY name ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
