package engine

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"caseline/internal/casework"
	"caseline/internal/domain"
	"caseline/internal/repo"
)

// OverallStatus is the derived status of a report together with its
// display fields.
type OverallStatus struct {
	ReportID     string `json:"report_id"`
	ReportNumber string `json:"report_number"`
	casework.StatusView
}

// GetOverallStatus derives the status of a report from its actions. A
// cached value is served when present; cache failures fall back to the
// live derivation. A derived status is cached only if no action of the
// report changed while it was being computed.
func (e Engine) GetOverallStatus(ctx context.Context, ref string) (OverallStatus, error) {
	rep, err := e.loadReport(ctx, e.Store, ref)
	if err != nil {
		return OverallStatus{}, err
	}
	out := OverallStatus{ReportID: rep.ID, ReportNumber: rep.ReportNumber}
	c := e.statusCache()
	status, hit, err := c.Get(ctx, rep.ID)
	switch {
	case err != nil:
		e.Metrics.CacheRead("error")
		e.log().WithError(err).WithField("report_id", rep.ID).Warn("status cache read failed")
	case hit:
		e.Metrics.CacheRead("hit")
		out.StatusView = casework.ViewStatus(status)
		return out, nil
	default:
		e.Metrics.CacheRead("miss")
	}
	// generation is taken before the read so a concurrent change rejects the write
	gen, genErr := c.Generation(ctx, rep.ID)
	if genErr != nil {
		e.log().WithError(genErr).WithField("report_id", rep.ID).Warn("status cache read failed")
	}
	actions, err := e.Store.ListActions(ctx, repo.ActionFilters{ReportID: rep.ID})
	if err != nil {
		return OverallStatus{}, err
	}
	status = casework.OverallStatus(rep, actions)
	if genErr == nil {
		stored, err := c.Set(ctx, rep.ID, status, gen)
		switch {
		case err != nil:
			e.log().WithError(err).WithField("report_id", rep.ID).Warn("status cache write failed")
		case !stored:
			e.log().WithField("report_id", rep.ID).Debug("status changed during derivation, not cached")
		}
	}
	out.StatusView = casework.ViewStatus(status)
	return out, nil
}

func (e Engine) invalidate(ctx context.Context, reportID string) {
	if reportID == "" {
		return
	}
	if err := e.statusCache().Invalidate(ctx, reportID); err != nil {
		e.log().WithError(err).WithField("report_id", reportID).Warn("status cache invalidation failed")
	}
}

func (e Engine) invalidateFor(ctx context.Context, a domain.DisciplinaryAction) {
	if a.ReportID != nil {
		e.invalidate(ctx, *a.ReportID)
	}
}

// GetViolationSummary counts the employee's non-dismissed reports in the
// category. With no record to place, the ordinal is the count itself.
func (e Engine) GetViolationSummary(ctx context.Context, employeeID, categoryID string) (casework.ViolationSummary, error) {
	employeeID = strings.TrimSpace(employeeID)
	categoryID = strings.TrimSpace(categoryID)
	var fields []casework.FieldError
	if employeeID == "" {
		fields = append(fields, casework.FieldError{Field: "employee_id", Reason: "is required"})
	}
	if categoryID == "" {
		fields = append(fields, casework.FieldError{Field: "category_id", Reason: "is required"})
	}
	if len(fields) > 0 {
		return casework.ViolationSummary{}, casework.ValidationError{Fields: fields}
	}
	if _, err := e.FindCategory(ctx, categoryID); err != nil {
		return casework.ViolationSummary{}, err
	}
	n, err := e.Store.CountReports(ctx, repo.ReportFilters{
		EmployeeID:    employeeID,
		CategoryID:    categoryID,
		ExcludeStatus: domain.ReportDismissed,
	})
	if err != nil {
		return casework.ViolationSummary{}, err
	}
	return casework.Summarize(n, n), nil
}

// ReportViolationSummary places a report among the employee's reports in
// the same category.
func (e Engine) ReportViolationSummary(ctx context.Context, ref string) (casework.ViolationSummary, error) {
	rep, err := e.loadReport(ctx, e.Store, ref)
	if err != nil {
		return casework.ViolationSummary{}, err
	}
	f := repo.ReportFilters{
		EmployeeID:    rep.EmployeeID,
		CategoryID:    rep.CategoryID,
		ExcludeStatus: domain.ReportDismissed,
	}
	count, err := e.Store.CountReports(ctx, f)
	if err != nil {
		return casework.ViolationSummary{}, err
	}
	f.CreatedAtOrBefore = rep.CreatedAt
	position, err := e.Store.CountReports(ctx, f)
	if err != nil {
		return casework.ViolationSummary{}, err
	}
	// a dismissed report is outside its own sibling set
	if rep.Status == domain.ReportDismissed {
		count++
		position++
	}
	return casework.Summarize(count, position), nil
}

// ActionViolationSummary counts actions whose linked report shares the
// employee and category. An action without a report stands alone.
func (e Engine) ActionViolationSummary(ctx context.Context, ref string) (casework.ViolationSummary, error) {
	a, err := e.loadAction(ctx, e.Store, ref)
	if err != nil {
		return casework.ViolationSummary{}, err
	}
	if a.ReportID == nil {
		return casework.Summarize(1, 1), nil
	}
	rep, err := e.Store.GetReport(ctx, *a.ReportID)
	if err != nil {
		return casework.ViolationSummary{}, notFound(err, "report", *a.ReportID)
	}
	f := repo.ActionFilters{
		EmployeeID:          a.EmployeeID,
		CategoryID:          rep.CategoryID,
		ExcludeVerdict:      domain.VerdictDismissed,
		ExcludeReportStatus: domain.ReportDismissed,
	}
	count, err := e.Store.CountActions(ctx, f)
	if err != nil {
		return casework.ViolationSummary{}, err
	}
	f.CreatedAtOrBefore = a.CreatedAt
	position, err := e.Store.CountActions(ctx, f)
	if err != nil {
		return casework.ViolationSummary{}, err
	}
	// the action itself always counts, even when the filters drop it
	if (a.Verdict != nil && *a.Verdict == domain.VerdictDismissed) || rep.Status == domain.ReportDismissed {
		count++
		position++
	}
	e.log().WithFields(logrus.Fields{"action": a.ActionNumber, "count": count}).Debug("action violation summary")
	return casework.Summarize(count, position), nil
}
