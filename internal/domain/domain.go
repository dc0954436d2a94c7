package domain

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ReportStatus is the status stored on a case report. The status shown to
// users is derived from the report's actions, see CaseStatus.
type ReportStatus string

const (
	ReportReported    ReportStatus = "reported"
	ReportUnderReview ReportStatus = "under_review"
	ReportDismissed   ReportStatus = "dismissed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportReported, ReportUnderReview, ReportDismissed:
		return true
	}
	return false
}

type ActionStatus string

const (
	ActionIssued               ActionStatus = "action_issued"
	ActionExplanationRequested ActionStatus = "explanation_requested"
	ActionExplanationSubmitted ActionStatus = "explanation_submitted"
	ActionUnderInvestigation   ActionStatus = "under_investigation"
	ActionAwaitingVerdict      ActionStatus = "awaiting_verdict"
	ActionCompleted            ActionStatus = "completed"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case ActionIssued, ActionExplanationRequested, ActionExplanationSubmitted,
		ActionUnderInvestigation, ActionAwaitingVerdict, ActionCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ActionStatus) Terminal() bool { return s == ActionCompleted }

type Verdict string

const (
	VerdictGuilty          Verdict = "guilty"
	VerdictDismissed       Verdict = "dismissed"
	VerdictNotGuilty       Verdict = "not_guilty"
	VerdictPartiallyGuilty Verdict = "partially_guilty"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictGuilty, VerdictDismissed, VerdictNotGuilty, VerdictPartiallyGuilty:
		return true
	}
	return false
}

// CaseStatus is the union of report and action statuses used for the
// derived overall status of a report.
type CaseStatus string

const (
	CaseReported             CaseStatus = "reported"
	CaseUnderReview          CaseStatus = "under_review"
	CaseDismissed            CaseStatus = "dismissed"
	CaseActionIssued         CaseStatus = "action_issued"
	CaseExplanationRequested CaseStatus = "explanation_requested"
	CaseExplanationSubmitted CaseStatus = "explanation_submitted"
	CaseUnderInvestigation   CaseStatus = "under_investigation"
	CaseAwaitingVerdict      CaseStatus = "awaiting_verdict"
	CaseCompleted            CaseStatus = "completed"
)

type Category struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	SeverityLevel    Severity  `json:"severity_level" enum:"low,medium,high,critical"`
	SuggestedActions []string  `json:"suggested_actions"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type CaseReport struct {
	ID                  string       `json:"id"`
	ReportNumber        string       `json:"report_number" example:"DR-2025-0007"`
	ReporterID          string       `json:"reporter_id,omitempty"`
	EmployeeID          string       `json:"employee_id"`
	CategoryID          string       `json:"category_id"`
	IncidentDate        time.Time    `json:"incident_date"`
	IncidentDescription string       `json:"incident_description"`
	EvidenceRefs        []string     `json:"evidence_refs"`
	Witnesses           []string     `json:"witnesses"`
	Priority            Priority     `json:"priority" enum:"low,medium,high"`
	Status              ReportStatus `json:"status" enum:"reported,under_review,dismissed"`
	ReviewedAt          *time.Time   `json:"reviewed_at,omitempty"`
	ReviewedBy          *string      `json:"reviewed_by,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

type DisciplinaryAction struct {
	ID                          string       `json:"id"`
	ActionNumber                string       `json:"action_number" example:"DA-2025-0003"`
	EmployeeID                  string       `json:"employee_id"`
	ReportID                    *string      `json:"report_id,omitempty"`
	InvestigatorID              *string      `json:"investigator_id,omitempty"`
	IssuedBy                    string       `json:"issued_by"`
	ActionType                  string       `json:"action_type"`
	ActionDetails               string       `json:"action_details,omitempty"`
	Status                      ActionStatus `json:"status" enum:"action_issued,explanation_requested,explanation_submitted,under_investigation,awaiting_verdict,completed"`
	EmployeeExplanation         string       `json:"employee_explanation,omitempty"`
	ExplanationSubmittedAt      *time.Time   `json:"explanation_submitted_at,omitempty"`
	InvestigationNotes          string       `json:"investigation_notes,omitempty"`
	InvestigationFindings       string       `json:"investigation_findings,omitempty"`
	InvestigationRecommendation string       `json:"investigation_recommendation,omitempty"`
	InvestigationCompletedAt    *time.Time   `json:"investigation_completed_at,omitempty"`
	Verdict                     *Verdict     `json:"verdict,omitempty"`
	VerdictDetails              string       `json:"verdict_details,omitempty"`
	VerdictIssuedAt             *time.Time   `json:"verdict_issued_at,omitempty"`
	EffectiveDate               *time.Time   `json:"effective_date,omitempty"`
	DueDate                     *time.Time   `json:"due_date,omitempty"`
	CreatedAt                   time.Time    `json:"created_at"`
	UpdatedAt                   time.Time    `json:"updated_at"`
}

// Event is one row of the append-only audit log.
type Event struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts"`
	Type       string    `json:"type"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id"`
	Payload    string    `json:"payload_json"`
}
