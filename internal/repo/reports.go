package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"caseline/internal/domain"
)

// ReportFilters narrows report queries. Zero values are ignored.
type ReportFilters struct {
	EmployeeID    string
	CategoryID    string
	Status        domain.ReportStatus
	ExcludeStatus domain.ReportStatus
	// CreatedFrom and CreatedBefore bound created_at as [from, before).
	CreatedFrom       time.Time
	CreatedBefore     time.Time
	CreatedAtOrBefore time.Time
	Newest            bool
	Limit             int
}

const reportColumns = `id,report_number,reporter_id,employee_id,category_id,incident_date,incident_description,evidence_refs_json,witnesses_json,priority,status,reviewed_at,reviewed_by,created_at,updated_at`

func scanReport(s scanner) (domain.CaseReport, error) {
	var r domain.CaseReport
	var reporterID, reviewedAt, reviewedBy sql.NullString
	var incident, evidence, witnesses, createdAt, updatedAt string
	if err := s.Scan(&r.ID, &r.ReportNumber, &reporterID, &r.EmployeeID, &r.CategoryID, &incident, &r.IncidentDescription,
		&evidence, &witnesses, &r.Priority, &r.Status, &reviewedAt, &reviewedBy, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	r.ReporterID = reporterID.String
	r.ReviewedBy = stringPtr(reviewedBy)
	var err error
	if r.IncidentDate, err = parseTS(incident); err != nil {
		return r, err
	}
	if r.EvidenceRefs, err = unmarshalList(evidence); err != nil {
		return r, err
	}
	if r.Witnesses, err = unmarshalList(witnesses); err != nil {
		return r, err
	}
	if r.ReviewedAt, err = timePtr(reviewedAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTS(createdAt); err != nil {
		return r, err
	}
	r.UpdatedAt, err = parseTS(updatedAt)
	return r, err
}

func (r Repo) InsertReport(ctx context.Context, rep domain.CaseReport) error {
	evidence, err := marshalList(rep.EvidenceRefs)
	if err != nil {
		return err
	}
	witnesses, err := marshalList(rep.Witnesses)
	if err != nil {
		return err
	}
	_, err = r.q().ExecContext(ctx, `INSERT INTO case_reports(`+reportColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.ReportNumber, nullable(rep.ReporterID), rep.EmployeeID, rep.CategoryID, formatTS(rep.IncidentDate),
		rep.IncidentDescription, evidence, witnesses, rep.Priority, rep.Status, nullableTime(rep.ReviewedAt),
		nullableStringPtr(rep.ReviewedBy), formatTS(rep.CreatedAt), formatTS(rep.UpdatedAt))
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "report_number") {
			return ErrSequenceConflict
		}
		return ErrConflict
	}
	return err
}

// UpdateReport persists the mutable review fields of a report.
func (r Repo) UpdateReport(ctx context.Context, rep domain.CaseReport) error {
	res, err := r.q().ExecContext(ctx, `UPDATE case_reports SET status=?, priority=?, reviewed_at=?, reviewed_by=?, updated_at=? WHERE id=?`,
		rep.Status, rep.Priority, nullableTime(rep.ReviewedAt), nullableStringPtr(rep.ReviewedBy), formatTS(rep.UpdatedAt), rep.ID)
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

func (r Repo) GetReport(ctx context.Context, id string) (domain.CaseReport, error) {
	return scanReport(r.q().QueryRowContext(ctx, `SELECT `+reportColumns+` FROM case_reports WHERE id=?`, id))
}

func (r Repo) GetReportByNumber(ctx context.Context, number string) (domain.CaseReport, error) {
	return scanReport(r.q().QueryRowContext(ctx, `SELECT `+reportColumns+` FROM case_reports WHERE report_number=?`, number))
}

func reportWhere(f ReportFilters) (string, []any) {
	var clauses []string
	var args []any
	if f.EmployeeID != "" {
		clauses = append(clauses, "employee_id=?")
		args = append(args, f.EmployeeID)
	}
	if f.CategoryID != "" {
		clauses = append(clauses, "category_id=?")
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ExcludeStatus != "" {
		clauses = append(clauses, "status<>?")
		args = append(args, f.ExcludeStatus)
	}
	if !f.CreatedFrom.IsZero() {
		clauses = append(clauses, "created_at>=?")
		args = append(args, formatTS(f.CreatedFrom))
	}
	if !f.CreatedBefore.IsZero() {
		clauses = append(clauses, "created_at<?")
		args = append(args, formatTS(f.CreatedBefore))
	}
	if !f.CreatedAtOrBefore.IsZero() {
		clauses = append(clauses, "created_at<=?")
		args = append(args, formatTS(f.CreatedAtOrBefore))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.CaseReport, error) {
	where, args := reportWhere(f)
	order := " ORDER BY created_at ASC, id ASC"
	if f.Newest {
		order = " ORDER BY created_at DESC, id DESC"
	}
	query := `SELECT ` + reportColumns + ` FROM case_reports` + where + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.CaseReport{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

func (r Repo) CountReports(ctx context.Context, f ReportFilters) (int, error) {
	where, args := reportWhere(f)
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM case_reports`+where, args...).Scan(&n)
	return n, err
}
