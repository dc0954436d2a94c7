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
	opIssueAction     = "issue action"
	guardReportIsOpen = "report_not_dismissed"
)

type IssueActionInput struct {
	EmployeeID    string     `json:"employee_id" validate:"notblank"`
	ReportID      string     `json:"report_id,omitempty" doc:"Report id or DR number"`
	IssuedBy      string     `json:"issued_by,omitempty" validate:"notblank"`
	ActionType    string     `json:"action_type" validate:"notblank,max=100"`
	ActionDetails string     `json:"action_details,omitempty" validate:"max=10000"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}

type ActionQuery struct {
	EmployeeID string
	ReportID   string
	CategoryID string
	Status     domain.ActionStatus
	Limit      int
}

// ActionView adds the derived guard flags and overdue marker to an action.
type ActionView struct {
	domain.DisciplinaryAction
	IsExplanationOverdue bool `json:"is_explanation_overdue"`
	CanSubmitExplanation bool `json:"can_submit_explanation"`
	CanInvestigate       bool `json:"can_investigate"`
	CanIssueVerdict      bool `json:"can_issue_verdict"`
}

func (e Engine) ViewAction(a domain.DisciplinaryAction) ActionView {
	return ActionView{
		DisciplinaryAction:   a,
		IsExplanationOverdue: casework.IsExplanationOverdue(a, e.now()),
		CanSubmitExplanation: casework.CanSubmitExplanation(a),
		CanInvestigate:       casework.CanInvestigate(a),
		CanIssueVerdict:      casework.CanIssueVerdict(a),
	}
}

// IssueAction validates the input, resolves the optional linked report and
// stores the action in action_issued status under a fresh DA number.
func (e Engine) IssueAction(ctx context.Context, in IssueActionInput) (domain.DisciplinaryAction, error) {
	a, err := e.issueAction(ctx, in)
	e.observe("issue_action", err, logrus.Fields{"employee_id": in.EmployeeID, "action_number": a.ActionNumber})
	if err == nil {
		e.invalidateFor(ctx, a)
	}
	return a, err
}

func (e Engine) issueAction(ctx context.Context, in IssueActionInput) (domain.DisciplinaryAction, error) {
	if err := casework.Validate(in); err != nil {
		return domain.DisciplinaryAction{}, err
	}
	employeeID := strings.TrimSpace(in.EmployeeID)
	var reportID *string
	if ref := strings.TrimSpace(in.ReportID); ref != "" {
		rep, err := e.loadReport(ctx, e.Store, ref)
		if err != nil {
			return domain.DisciplinaryAction{}, err
		}
		if rep.EmployeeID != employeeID {
			return domain.DisciplinaryAction{}, casework.ValidationError{Fields: []casework.FieldError{{Field: "employee_id", Reason: "does not match the linked report"}}}
		}
		if rep.Status == domain.ReportDismissed {
			return domain.DisciplinaryAction{}, casework.GuardViolation{
				Operation: opIssueAction,
				Guard:     guardReportIsOpen,
				Reason:    "report " + rep.ReportNumber + " is dismissed",
				Status:    string(rep.Status),
				Current:   rep,
			}
		}
		reportID = &rep.ID
	}
	now := e.now()
	a := domain.DisciplinaryAction{
		ID:            e.newID(),
		EmployeeID:    employeeID,
		ReportID:      reportID,
		IssuedBy:      strings.TrimSpace(in.IssuedBy),
		ActionType:    strings.TrimSpace(in.ActionType),
		ActionDetails: in.ActionDetails,
		Status:        domain.ActionIssued,
		EffectiveDate: utcPtr(in.EffectiveDate),
		DueDate:       utcPtr(in.DueDate),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := e.withNumber(ctx, repo.SequenceAction, casework.ActionPrefix, now, func(number string) error {
		a.ActionNumber = number
		return e.Store.Atomically(ctx, func(s repo.Store) error {
			if err := s.InsertAction(ctx, a); err != nil {
				return err
			}
			payload := events.Payload{
				"action_number": a.ActionNumber,
				"employee_id":   a.EmployeeID,
				"action_type":   a.ActionType,
			}
			if a.ReportID != nil {
				payload["report_id"] = *a.ReportID
			}
			_, err := e.appendEvent(ctx, s, events.ActionIssued, events.KindAction, a.ID, a.IssuedBy, payload)
			return err
		})
	})
	if err != nil {
		return domain.DisciplinaryAction{}, err
	}
	return a, nil
}

// GetAction accepts an action id or a DA number.
func (e Engine) GetAction(ctx context.Context, ref string) (domain.DisciplinaryAction, error) {
	return e.loadAction(ctx, e.Store, ref)
}

func (e Engine) loadAction(ctx context.Context, s repo.Store, ref string) (domain.DisciplinaryAction, error) {
	var (
		a   domain.DisciplinaryAction
		err error
	)
	if casework.IsReferenceNumber(ref) {
		a, err = s.GetActionByNumber(ctx, ref)
	} else {
		a, err = s.GetAction(ctx, ref)
	}
	if err != nil {
		return a, notFound(err, "action", ref)
	}
	return a, nil
}

func (e Engine) ListActions(ctx context.Context, q ActionQuery) ([]domain.DisciplinaryAction, error) {
	f := repo.ActionFilters{
		EmployeeID: q.EmployeeID,
		CategoryID: q.CategoryID,
		Status:     q.Status,
		Newest:     true,
		Limit:      q.Limit,
	}
	if q.ReportID != "" {
		rep, err := e.loadReport(ctx, e.Store, q.ReportID)
		if err != nil {
			return nil, err
		}
		f.ReportID = rep.ID
	}
	return e.Store.ListActions(ctx, f)
}

// ListOverdueActions returns actions whose explanation due date has passed
// with no explanation on file. Nothing is transitioned.
func (e Engine) ListOverdueActions(ctx context.Context) ([]domain.DisciplinaryAction, error) {
	now := e.now()
	candidates, err := e.Store.ListActions(ctx, repo.ActionFilters{DueBefore: now, WithoutExplanation: true})
	if err != nil {
		return nil, err
	}
	out := make([]domain.DisciplinaryAction, 0, len(candidates))
	for _, a := range candidates {
		if casework.IsExplanationOverdue(a, now) {
			out = append(out, a)
		}
	}
	return out, nil
}

type RequestExplanationInput struct {
	DueDate *time.Time `json:"due_date,omitempty" doc:"Defaults to the configured explanation window from now"`
	ActorID string     `json:"-"`
}

type SubmitExplanationInput struct {
	Explanation string `json:"explanation"`
	ActorID     string `json:"-"`
}

type AssignInvestigatorInput struct {
	InvestigatorID string `json:"investigator_id"`
	ActorID        string `json:"-"`
}

type CompleteInvestigationInput struct {
	Notes          string `json:"notes"`
	Findings       string `json:"findings,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	ActorID        string `json:"-"`
}

type IssueVerdictInput struct {
	Verdict string `json:"verdict" doc:"uphold, dismiss, guilty, dismissed, not_guilty or partially_guilty"`
	Details string `json:"details,omitempty"`
	ActorID string `json:"-"`
}

func (e Engine) RequestExplanation(ctx context.Context, ref string, in RequestExplanationInput) (domain.DisciplinaryAction, error) {
	window := e.explanationWindow()
	due := utcPtr(in.DueDate)
	return e.transition(ctx, ref, "request_explanation", events.ActionExplanationRequested, in.ActorID,
		func(a domain.DisciplinaryAction, now time.Time) (domain.DisciplinaryAction, error) {
			return casework.RequestExplanation(a, due, now, window)
		},
		func(a domain.DisciplinaryAction) events.Payload {
			return events.Payload{"due_date": a.DueDate}
		})
}

func (e Engine) SubmitExplanation(ctx context.Context, ref string, in SubmitExplanationInput) (domain.DisciplinaryAction, error) {
	return e.transition(ctx, ref, "submit_explanation", events.ActionExplanationSubmitted, in.ActorID,
		func(a domain.DisciplinaryAction, now time.Time) (domain.DisciplinaryAction, error) {
			return casework.SubmitExplanation(a, in.Explanation, now)
		},
		func(a domain.DisciplinaryAction) events.Payload {
			return events.Payload{"submitted_at": a.ExplanationSubmittedAt}
		})
}

func (e Engine) AssignInvestigator(ctx context.Context, ref string, in AssignInvestigatorInput) (domain.DisciplinaryAction, error) {
	return e.transition(ctx, ref, "assign_investigator", events.ActionInvestigatorAssigned, in.ActorID,
		func(a domain.DisciplinaryAction, now time.Time) (domain.DisciplinaryAction, error) {
			return casework.AssignInvestigator(a, in.InvestigatorID, now)
		},
		func(a domain.DisciplinaryAction) events.Payload {
			return events.Payload{"investigator_id": a.InvestigatorID, "status": a.Status}
		})
}

func (e Engine) CompleteInvestigation(ctx context.Context, ref string, in CompleteInvestigationInput) (domain.DisciplinaryAction, error) {
	return e.transition(ctx, ref, "complete_investigation", events.ActionInvestigationCompleted, in.ActorID,
		func(a domain.DisciplinaryAction, now time.Time) (domain.DisciplinaryAction, error) {
			return casework.CompleteInvestigation(a, in.Notes, in.Findings, in.Recommendation, now)
		},
		func(a domain.DisciplinaryAction) events.Payload {
			return events.Payload{"recommendation": a.InvestigationRecommendation}
		})
}

func (e Engine) IssueVerdict(ctx context.Context, ref string, in IssueVerdictInput) (domain.DisciplinaryAction, error) {
	return e.transition(ctx, ref, "issue_verdict", events.ActionVerdictIssued, in.ActorID,
		func(a domain.DisciplinaryAction, now time.Time) (domain.DisciplinaryAction, error) {
			return casework.IssueVerdict(a, in.Verdict, in.Details, now)
		},
		func(a domain.DisciplinaryAction) events.Payload {
			return events.Payload{"verdict": a.Verdict}
		})
}

// transition loads the action, applies step and persists the result with
// its audit event in one transaction. When step refuses, the stored action
// is returned untouched alongside the error.
func (e Engine) transition(
	ctx context.Context,
	ref, op, evtType, actorID string,
	step func(domain.DisciplinaryAction, time.Time) (domain.DisciplinaryAction, error),
	payload func(domain.DisciplinaryAction) events.Payload,
) (domain.DisciplinaryAction, error) {
	var out domain.DisciplinaryAction
	err := e.Store.Atomically(ctx, func(s repo.Store) error {
		cur, err := e.loadAction(ctx, s, ref)
		if err != nil {
			return err
		}
		out = cur
		next, err := step(cur, e.now())
		if err != nil {
			return err
		}
		if err := s.UpdateAction(ctx, next); err != nil {
			return err
		}
		p := payload(next)
		p["action_number"] = next.ActionNumber
		p["from_status"] = cur.Status
		p["to_status"] = next.Status
		if _, err := e.appendEvent(ctx, s, evtType, events.KindAction, next.ID, actorOr(actorID, ""), p); err != nil {
			return err
		}
		out = next
		return nil
	})
	e.observe(op, err, logrus.Fields{"action": ref, "status": out.Status})
	if err != nil {
		return out, err
	}
	e.invalidateFor(ctx, out)
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
