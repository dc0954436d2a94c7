package casework

import (
	"fmt"
	"strings"
	"time"

	"caseline/internal/domain"
)

// DefaultExplanationWindow is used when an explanation is requested without
// a due date and no configured window applies.
const DefaultExplanationWindow = 7 * 24 * time.Hour

const (
	OpRequestExplanation    = "request explanation"
	OpSubmitExplanation     = "submit explanation"
	OpAssignInvestigator    = "assign investigator"
	OpCompleteInvestigation = "complete investigation"
	OpIssueVerdict          = "issue verdict"
)

const (
	GuardNotTerminal          = "not_terminal"
	GuardCanSubmitExplanation = "can_submit_explanation"
	GuardCanInvestigate       = "can_investigate"
	GuardCanIssueVerdict      = "can_issue_verdict"
)

// CanRequestExplanation holds for every non-terminal status.
func CanRequestExplanation(a domain.DisciplinaryAction) bool {
	return !a.Status.Terminal()
}

// CanSubmitExplanation holds while an explanation is expected and no
// explanation has been finalized. An existing explanation may only be
// replaced after an explicit re-request.
func CanSubmitExplanation(a domain.DisciplinaryAction) bool {
	switch a.Status {
	case domain.ActionExplanationRequested, domain.ActionIssued, domain.ActionUnderInvestigation:
	default:
		return false
	}
	return !(hasText(a.EmployeeExplanation) && a.Status != domain.ActionExplanationRequested)
}

func CanInvestigate(a domain.DisciplinaryAction) bool {
	if a.Status == domain.ActionCompleted || hasText(a.InvestigationNotes) {
		return false
	}
	switch a.Status {
	case domain.ActionIssued, domain.ActionExplanationRequested,
		domain.ActionExplanationSubmitted, domain.ActionUnderInvestigation:
		return true
	}
	return false
}

func CanIssueVerdict(a domain.DisciplinaryAction) bool {
	return a.Status == domain.ActionAwaitingVerdict && a.Verdict == nil
}

// IsExplanationOverdue reports a due date in the past with no explanation on file.
// It never changes state.
func IsExplanationOverdue(a domain.DisciplinaryAction, now time.Time) bool {
	return a.DueDate != nil && a.DueDate.Before(now) && !hasText(a.EmployeeExplanation)
}

// RequestExplanation moves the action to explanation_requested. A nil due
// date defaults to now plus window. Prior explanation text is kept.
func RequestExplanation(a domain.DisciplinaryAction, due *time.Time, now time.Time, window time.Duration) (domain.DisciplinaryAction, error) {
	if !CanRequestExplanation(a) {
		return a, violation(a, OpRequestExplanation, GuardNotTerminal, "action is completed")
	}
	if window <= 0 {
		window = DefaultExplanationWindow
	}
	d := now.Add(window)
	if due != nil {
		d = *due
	}
	next := a
	next.DueDate = &d
	next.Status = domain.ActionExplanationRequested
	next.UpdatedAt = now
	return next, nil
}

func SubmitExplanation(a domain.DisciplinaryAction, text string, now time.Time) (domain.DisciplinaryAction, error) {
	if !CanSubmitExplanation(a) {
		reason := fmt.Sprintf("action is %s", a.Status)
		if hasText(a.EmployeeExplanation) && a.Status != domain.ActionExplanationRequested {
			reason = "explanation already finalized"
		}
		return a, violation(a, OpSubmitExplanation, GuardCanSubmitExplanation, reason)
	}
	if !hasText(text) {
		return a, invalid("explanation", "is required")
	}
	next := a
	next.EmployeeExplanation = text
	next.ExplanationSubmittedAt = &now
	next.Status = domain.ActionExplanationSubmitted
	next.UpdatedAt = now
	return next, nil
}

// AssignInvestigator sets the investigator. Status moves to
// under_investigation unless an explanation request or submission is in
// flight, in which case the status is preserved.
func AssignInvestigator(a domain.DisciplinaryAction, investigatorID string, now time.Time) (domain.DisciplinaryAction, error) {
	if !CanInvestigate(a) {
		return a, violation(a, OpAssignInvestigator, GuardCanInvestigate, investigateReason(a))
	}
	investigatorID = strings.TrimSpace(investigatorID)
	if investigatorID == "" {
		return a, invalid("investigator_id", "is required")
	}
	next := a
	next.InvestigatorID = &investigatorID
	switch a.Status {
	case domain.ActionExplanationRequested, domain.ActionExplanationSubmitted:
	default:
		next.Status = domain.ActionUnderInvestigation
	}
	next.UpdatedAt = now
	return next, nil
}

func CompleteInvestigation(a domain.DisciplinaryAction, notes, findings, recommendation string, now time.Time) (domain.DisciplinaryAction, error) {
	if !CanInvestigate(a) {
		return a, violation(a, OpCompleteInvestigation, GuardCanInvestigate, investigateReason(a))
	}
	if !hasText(notes) {
		return a, invalid("notes", "is required")
	}
	next := a
	next.InvestigationNotes = notes
	next.InvestigationFindings = findings
	next.InvestigationRecommendation = recommendation
	next.InvestigationCompletedAt = &now
	next.Status = domain.ActionAwaitingVerdict
	next.UpdatedAt = now
	return next, nil
}

// IssueVerdict records the verdict and closes the action.
func IssueVerdict(a domain.DisciplinaryAction, input, details string, now time.Time) (domain.DisciplinaryAction, error) {
	if !CanIssueVerdict(a) {
		reason := fmt.Sprintf("action is %s", a.Status)
		if a.Verdict != nil {
			reason = "verdict already issued"
		}
		return a, violation(a, OpIssueVerdict, GuardCanIssueVerdict, reason)
	}
	v, ok := NormalizeVerdict(input)
	if !ok {
		return a, invalid("verdict", "must be one of uphold, dismiss, guilty, dismissed, not_guilty, partially_guilty")
	}
	next := a
	next.Verdict = &v
	next.VerdictDetails = details
	next.VerdictIssuedAt = &now
	next.Status = domain.ActionCompleted
	next.UpdatedAt = now
	return next, nil
}

// NormalizeVerdict maps the request vocabulary onto stored verdicts:
// uphold is guilty, dismiss is dismissed, canonical values pass through.
func NormalizeVerdict(input string) (domain.Verdict, bool) {
	switch s := strings.ToLower(strings.TrimSpace(input)); s {
	case "uphold":
		return domain.VerdictGuilty, true
	case "dismiss":
		return domain.VerdictDismissed, true
	default:
		v := domain.Verdict(s)
		return v, v.Valid()
	}
}

func investigateReason(a domain.DisciplinaryAction) string {
	switch {
	case a.Status == domain.ActionCompleted:
		return "action is completed"
	case hasText(a.InvestigationNotes):
		return "investigation already completed"
	default:
		return fmt.Sprintf("action is %s", a.Status)
	}
}

func violation(a domain.DisciplinaryAction, op, guard, reason string) GuardViolation {
	return GuardViolation{
		Operation: op,
		Guard:     guard,
		Reason:    reason,
		Status:    string(a.Status),
		Current:   a,
	}
}

func hasText(s string) bool { return strings.TrimSpace(s) != "" }
