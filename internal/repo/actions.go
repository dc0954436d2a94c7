package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"caseline/internal/domain"
)

// ActionFilters narrows action queries. CategoryID and ExcludeVerdict apply
// through the linked report and the verdict column respectively, so an
// action without a report never matches a CategoryID filter.
type ActionFilters struct {
	EmployeeID        string
	ReportID          string
	CategoryID        string
	Status            domain.ActionStatus
	ExcludeStatus     domain.ActionStatus
	ExcludeVerdict    domain.Verdict
	// ExcludeReportStatus drops actions whose linked report has this status.
	ExcludeReportStatus domain.ReportStatus
	CreatedFrom         time.Time
	CreatedBefore       time.Time
	CreatedAtOrBefore   time.Time
	// DueBefore with WithoutExplanation selects overdue explanation requests.
	DueBefore          time.Time
	WithoutExplanation bool
	Newest             bool
	Limit              int
}

const actionColumns = `a.id,a.action_number,a.employee_id,a.report_id,a.investigator_id,a.issued_by,a.action_type,a.action_details,a.status,
a.employee_explanation,a.explanation_submitted_at,a.investigation_notes,a.investigation_findings,a.investigation_recommendation,
a.investigation_completed_at,a.verdict,a.verdict_details,a.verdict_issued_at,a.effective_date,a.due_date,a.created_at,a.updated_at`

func scanAction(s scanner) (domain.DisciplinaryAction, error) {
	var a domain.DisciplinaryAction
	var reportID, investigatorID, details, explanation, explainedAt, notes, findings, recommendation,
		completedAt, verdict, verdictDetails, verdictAt, effective, due sql.NullString
	var createdAt, updatedAt string
	if err := s.Scan(&a.ID, &a.ActionNumber, &a.EmployeeID, &reportID, &investigatorID, &a.IssuedBy, &a.ActionType, &details, &a.Status,
		&explanation, &explainedAt, &notes, &findings, &recommendation, &completedAt, &verdict, &verdictDetails, &verdictAt,
		&effective, &due, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, ErrNotFound
		}
		return a, err
	}
	a.ReportID = stringPtr(reportID)
	a.InvestigatorID = stringPtr(investigatorID)
	a.ActionDetails = details.String
	a.EmployeeExplanation = explanation.String
	a.InvestigationNotes = notes.String
	a.InvestigationFindings = findings.String
	a.InvestigationRecommendation = recommendation.String
	a.VerdictDetails = verdictDetails.String
	if verdict.Valid && verdict.String != "" {
		v := domain.Verdict(verdict.String)
		a.Verdict = &v
	}
	var err error
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&a.ExplanationSubmittedAt, explainedAt},
		{&a.InvestigationCompletedAt, completedAt},
		{&a.VerdictIssuedAt, verdictAt},
		{&a.EffectiveDate, effective},
		{&a.DueDate, due},
	} {
		if *f.dst, err = timePtr(f.src); err != nil {
			return a, err
		}
	}
	if a.CreatedAt, err = parseTS(createdAt); err != nil {
		return a, err
	}
	a.UpdatedAt, err = parseTS(updatedAt)
	return a, err
}

func nullableVerdict(v *domain.Verdict) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func (r Repo) InsertAction(ctx context.Context, a domain.DisciplinaryAction) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO disciplinary_actions(`+strings.ReplaceAll(actionColumns, "a.", "")+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ActionNumber, a.EmployeeID, nullableStringPtr(a.ReportID), nullableStringPtr(a.InvestigatorID), a.IssuedBy,
		a.ActionType, nullable(a.ActionDetails), a.Status, nullable(a.EmployeeExplanation), nullableTime(a.ExplanationSubmittedAt),
		nullable(a.InvestigationNotes), nullable(a.InvestigationFindings), nullable(a.InvestigationRecommendation),
		nullableTime(a.InvestigationCompletedAt), nullableVerdict(a.Verdict), nullable(a.VerdictDetails),
		nullableTime(a.VerdictIssuedAt), nullableTime(a.EffectiveDate), nullableTime(a.DueDate),
		formatTS(a.CreatedAt), formatTS(a.UpdatedAt))
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "action_number") {
			return ErrSequenceConflict
		}
		return ErrConflict
	}
	return err
}

// UpdateAction persists every lifecycle field. Identity, employee, issuer
// and creation time never change after insert.
func (r Repo) UpdateAction(ctx context.Context, a domain.DisciplinaryAction) error {
	res, err := r.q().ExecContext(ctx, `UPDATE disciplinary_actions SET investigator_id=?, action_details=?, status=?,
employee_explanation=?, explanation_submitted_at=?, investigation_notes=?, investigation_findings=?, investigation_recommendation=?,
investigation_completed_at=?, verdict=?, verdict_details=?, verdict_issued_at=?, effective_date=?, due_date=?, updated_at=?
WHERE id=?`,
		nullableStringPtr(a.InvestigatorID), nullable(a.ActionDetails), a.Status,
		nullable(a.EmployeeExplanation), nullableTime(a.ExplanationSubmittedAt), nullable(a.InvestigationNotes),
		nullable(a.InvestigationFindings), nullable(a.InvestigationRecommendation), nullableTime(a.InvestigationCompletedAt),
		nullableVerdict(a.Verdict), nullable(a.VerdictDetails), nullableTime(a.VerdictIssuedAt), nullableTime(a.EffectiveDate),
		nullableTime(a.DueDate), formatTS(a.UpdatedAt), a.ID)
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

func (r Repo) GetAction(ctx context.Context, id string) (domain.DisciplinaryAction, error) {
	return scanAction(r.q().QueryRowContext(ctx, `SELECT `+actionColumns+` FROM disciplinary_actions a WHERE a.id=?`, id))
}

func (r Repo) GetActionByNumber(ctx context.Context, number string) (domain.DisciplinaryAction, error) {
	return scanAction(r.q().QueryRowContext(ctx, `SELECT `+actionColumns+` FROM disciplinary_actions a WHERE a.action_number=?`, number))
}

func actionWhere(f ActionFilters) (string, string, []any) {
	var clauses []string
	var args []any
	join := ""
	if f.EmployeeID != "" {
		clauses = append(clauses, "a.employee_id=?")
		args = append(args, f.EmployeeID)
	}
	if f.ReportID != "" {
		clauses = append(clauses, "a.report_id=?")
		args = append(args, f.ReportID)
	}
	if f.CategoryID != "" {
		join = " JOIN case_reports r ON r.id = a.report_id"
		clauses = append(clauses, "r.category_id=?")
		args = append(args, f.CategoryID)
	}
	if f.ExcludeReportStatus != "" {
		join = " JOIN case_reports r ON r.id = a.report_id"
		clauses = append(clauses, "r.status<>?")
		args = append(args, f.ExcludeReportStatus)
	}
	if f.Status != "" {
		clauses = append(clauses, "a.status=?")
		args = append(args, f.Status)
	}
	if f.ExcludeStatus != "" {
		clauses = append(clauses, "a.status<>?")
		args = append(args, f.ExcludeStatus)
	}
	if f.ExcludeVerdict != "" {
		clauses = append(clauses, "(a.verdict IS NULL OR a.verdict<>?)")
		args = append(args, f.ExcludeVerdict)
	}
	if !f.CreatedFrom.IsZero() {
		clauses = append(clauses, "a.created_at>=?")
		args = append(args, formatTS(f.CreatedFrom))
	}
	if !f.CreatedBefore.IsZero() {
		clauses = append(clauses, "a.created_at<?")
		args = append(args, formatTS(f.CreatedBefore))
	}
	if !f.CreatedAtOrBefore.IsZero() {
		clauses = append(clauses, "a.created_at<=?")
		args = append(args, formatTS(f.CreatedAtOrBefore))
	}
	if !f.DueBefore.IsZero() {
		clauses = append(clauses, "a.due_date IS NOT NULL AND a.due_date<?")
		args = append(args, formatTS(f.DueBefore))
	}
	if f.WithoutExplanation {
		clauses = append(clauses, "COALESCE(a.employee_explanation,'')=''")
	}
	if len(clauses) == 0 {
		return join, "", args
	}
	return join, " WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListActions(ctx context.Context, f ActionFilters) ([]domain.DisciplinaryAction, error) {
	join, where, args := actionWhere(f)
	order := " ORDER BY a.created_at ASC, a.id ASC"
	if f.Newest {
		order = " ORDER BY a.created_at DESC, a.id DESC"
	}
	query := `SELECT ` + actionColumns + ` FROM disciplinary_actions a` + join + where + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DisciplinaryAction{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountActions(ctx context.Context, f ActionFilters) (int, error) {
	join, where, args := actionWhere(f)
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM disciplinary_actions a`+join+where, args...).Scan(&n)
	return n, err
}
