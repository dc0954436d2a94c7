package casework

import "caseline/internal/domain"

// OverallStatus derives a report's displayed status from its actions. The
// first matching rule wins; a report without actions shows its own status.
func OverallStatus(r domain.CaseReport, actions []domain.DisciplinaryAction) domain.CaseStatus {
	if len(actions) == 0 {
		return domain.CaseStatus(r.Status)
	}
	if anyAction(actions, func(a domain.DisciplinaryAction) bool { return a.Verdict != nil }) {
		return domain.CaseCompleted
	}
	if anyAction(actions, func(a domain.DisciplinaryAction) bool { return a.Status == domain.ActionAwaitingVerdict }) {
		return domain.CaseAwaitingVerdict
	}
	if anyAction(actions, func(a domain.DisciplinaryAction) bool {
		return a.Status == domain.ActionUnderInvestigation || hasText(a.InvestigationNotes)
	}) {
		return domain.CaseUnderInvestigation
	}
	if anyAction(actions, func(a domain.DisciplinaryAction) bool {
		return a.Status == domain.ActionExplanationSubmitted || hasText(a.EmployeeExplanation)
	}) {
		return domain.CaseExplanationSubmitted
	}
	if anyAction(actions, func(a domain.DisciplinaryAction) bool { return a.Status == domain.ActionExplanationRequested }) {
		return domain.CaseExplanationRequested
	}
	return domain.CaseActionIssued
}

func anyAction(actions []domain.DisciplinaryAction, pred func(domain.DisciplinaryAction) bool) bool {
	for _, a := range actions {
		if pred(a) {
			return true
		}
	}
	return false
}

var progressTable = map[domain.CaseStatus]int{
	domain.CaseReported:             10,
	domain.CaseUnderReview:          20,
	domain.CaseActionIssued:         30,
	domain.CaseExplanationRequested: 40,
	domain.CaseExplanationSubmitted: 60,
	domain.CaseUnderInvestigation:   70,
	domain.CaseAwaitingVerdict:      85,
	domain.CaseCompleted:            100,
	domain.CaseDismissed:            100,
}

// ProgressPercentage returns 0 for statuses outside the table.
func ProgressPercentage(s domain.CaseStatus) int {
	return progressTable[s]
}

var descriptions = map[domain.CaseStatus]string{
	domain.CaseReported:             "Report filed and awaiting HR review",
	domain.CaseUnderReview:          "Report is being reviewed by HR",
	domain.CaseDismissed:            "Report was dismissed",
	domain.CaseActionIssued:         "Disciplinary action issued",
	domain.CaseExplanationRequested: "Waiting for the employee's explanation",
	domain.CaseExplanationSubmitted: "Employee explanation received",
	domain.CaseUnderInvestigation:   "Case is under investigation",
	domain.CaseAwaitingVerdict:      "Investigation complete, awaiting verdict",
	domain.CaseCompleted:            "Verdict issued, case closed",
}

func Describe(s domain.CaseStatus) string {
	if d, ok := descriptions[s]; ok {
		return d
	}
	return "Unknown status"
}

// StatusView is the read-only projection served for display.
type StatusView struct {
	Status          domain.CaseStatus `json:"status"`
	ProgressPercent int               `json:"progress_percent"`
	Description     string            `json:"description"`
}

func ViewStatus(s domain.CaseStatus) StatusView {
	return StatusView{Status: s, ProgressPercent: ProgressPercentage(s), Description: Describe(s)}
}
