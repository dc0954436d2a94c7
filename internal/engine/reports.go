package engine

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"caseline/internal/casework"
	"caseline/internal/domain"
	"caseline/internal/events"
	"caseline/internal/repo"
)

const (
	opDismissReport   = "dismiss report"
	guardNotDismissed = "not_dismissed"
)

type FileReportInput struct {
	ReporterID          string          `json:"reporter_id,omitempty"`
	EmployeeID          string          `json:"employee_id" validate:"notblank"`
	CategoryID          string          `json:"category_id" validate:"notblank"`
	IncidentDate        time.Time       `json:"incident_date" validate:"required"`
	IncidentDescription string          `json:"incident_description" validate:"notblank,max=10000"`
	EvidenceRefs        []string        `json:"evidence_refs,omitempty" validate:"omitempty,dive,notblank"`
	Witnesses           []string        `json:"witnesses,omitempty" validate:"omitempty,dive,notblank"`
	Priority            domain.Priority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high" enum:"low,medium,high"`
	ActorID             string          `json:"-"`
}

type ReportQuery struct {
	EmployeeID string
	CategoryID string
	Status     domain.ReportStatus
	Limit      int
}

// FileReport validates the input, reserves a DR number and stores the
// report in reported status.
func (e Engine) FileReport(ctx context.Context, in FileReportInput) (domain.CaseReport, error) {
	rep, err := e.fileReport(ctx, in)
	e.observe("file_report", err, logrus.Fields{"employee_id": in.EmployeeID, "report_number": rep.ReportNumber})
	return rep, err
}

func (e Engine) fileReport(ctx context.Context, in FileReportInput) (domain.CaseReport, error) {
	if err := casework.Validate(in); err != nil {
		return domain.CaseReport{}, err
	}
	cat, err := e.Store.GetCategory(ctx, in.CategoryID)
	if err != nil {
		return domain.CaseReport{}, notFound(err, "category", in.CategoryID)
	}
	if !cat.IsActive {
		return domain.CaseReport{}, casework.ValidationError{Fields: []casework.FieldError{{Field: "category_id", Reason: "is inactive"}}}
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	now := e.now()
	rep := domain.CaseReport{
		ID:                  e.newID(),
		ReporterID:          strings.TrimSpace(in.ReporterID),
		EmployeeID:          strings.TrimSpace(in.EmployeeID),
		CategoryID:          cat.ID,
		IncidentDate:        in.IncidentDate.UTC(),
		IncidentDescription: in.IncidentDescription,
		EvidenceRefs:        nonNil(in.EvidenceRefs),
		Witnesses:           nonNil(in.Witnesses),
		Priority:            priority,
		Status:              domain.ReportReported,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err = e.withNumber(ctx, repo.SequenceReport, casework.ReportPrefix, now, func(number string) error {
		rep.ReportNumber = number
		return e.Store.Atomically(ctx, func(s repo.Store) error {
			if err := s.InsertReport(ctx, rep); err != nil {
				return err
			}
			_, err := e.appendEvent(ctx, s, events.ReportFiled, events.KindReport, rep.ID, actorOr(in.ActorID, rep.ReporterID), events.Payload{
				"report_number": rep.ReportNumber,
				"employee_id":   rep.EmployeeID,
				"category_id":   rep.CategoryID,
				"priority":      rep.Priority,
			})
			return err
		})
	})
	if err != nil {
		return domain.CaseReport{}, err
	}
	return rep, nil
}

// GetReport accepts a report id or a DR number.
func (e Engine) GetReport(ctx context.Context, ref string) (domain.CaseReport, error) {
	return e.loadReport(ctx, e.Store, ref)
}

func (e Engine) loadReport(ctx context.Context, s repo.Store, ref string) (domain.CaseReport, error) {
	var (
		rep domain.CaseReport
		err error
	)
	if casework.IsReferenceNumber(ref) {
		rep, err = s.GetReportByNumber(ctx, ref)
	} else {
		rep, err = s.GetReport(ctx, ref)
	}
	if err != nil {
		return rep, notFound(err, "report", ref)
	}
	return rep, nil
}

func (e Engine) ListReports(ctx context.Context, q ReportQuery) ([]domain.CaseReport, error) {
	return e.Store.ListReports(ctx, repo.ReportFilters{
		EmployeeID: q.EmployeeID,
		CategoryID: q.CategoryID,
		Status:     q.Status,
		Newest:     true,
		Limit:      q.Limit,
	})
}

// MarkReviewed records the first review of a report and moves it from
// reported to under_review. Later calls return the report unchanged.
func (e Engine) MarkReviewed(ctx context.Context, ref, reviewerID string) (domain.CaseReport, error) {
	rep, err := e.markReviewed(ctx, ref, strings.TrimSpace(reviewerID))
	e.observe("review_report", err, logrus.Fields{"report": ref})
	if err == nil {
		e.invalidate(ctx, rep.ID)
	}
	return rep, err
}

func (e Engine) markReviewed(ctx context.Context, ref, reviewerID string) (domain.CaseReport, error) {
	if reviewerID == "" {
		return domain.CaseReport{}, casework.ValidationError{Fields: []casework.FieldError{{Field: "reviewer_id", Reason: "is required"}}}
	}
	var out domain.CaseReport
	err := e.Store.Atomically(ctx, func(s repo.Store) error {
		rep, err := e.loadReport(ctx, s, ref)
		if err != nil {
			return err
		}
		out = rep
		if rep.ReviewedAt != nil {
			return nil
		}
		now := e.now()
		rep.ReviewedAt = &now
		rep.ReviewedBy = &reviewerID
		if rep.Status == domain.ReportReported {
			rep.Status = domain.ReportUnderReview
		}
		rep.UpdatedAt = now
		if err := s.UpdateReport(ctx, rep); err != nil {
			return err
		}
		if _, err := e.appendEvent(ctx, s, events.ReportReviewed, events.KindReport, rep.ID, reviewerID, events.Payload{
			"report_number": rep.ReportNumber,
			"status":        rep.Status,
		}); err != nil {
			return err
		}
		out = rep
		return nil
	})
	return out, err
}

// DismissReport closes a report without action. A dismissed report drops
// out of violation counting.
func (e Engine) DismissReport(ctx context.Context, ref, actorID, reason string) (domain.CaseReport, error) {
	rep, err := e.dismissReport(ctx, ref, strings.TrimSpace(actorID), reason)
	e.observe("dismiss_report", err, logrus.Fields{"report": ref})
	if err == nil {
		e.invalidate(ctx, rep.ID)
	}
	return rep, err
}

func (e Engine) dismissReport(ctx context.Context, ref, actorID, reason string) (domain.CaseReport, error) {
	var out domain.CaseReport
	err := e.Store.Atomically(ctx, func(s repo.Store) error {
		rep, err := e.loadReport(ctx, s, ref)
		if err != nil {
			return err
		}
		out = rep
		if rep.Status == domain.ReportDismissed {
			return casework.GuardViolation{
				Operation: opDismissReport,
				Guard:     guardNotDismissed,
				Reason:    "report already dismissed",
				Status:    string(rep.Status),
				Current:   rep,
			}
		}
		rep.Status = domain.ReportDismissed
		rep.UpdatedAt = e.now()
		if err := s.UpdateReport(ctx, rep); err != nil {
			return err
		}
		if _, err := e.appendEvent(ctx, s, events.ReportDismissed, events.KindReport, rep.ID, actorOr(actorID, ""), events.Payload{
			"report_number": rep.ReportNumber,
			"reason":        reason,
		}); err != nil {
			return err
		}
		out = rep
		return nil
	})
	return out, err
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
