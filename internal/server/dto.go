package server

import (
	"encoding/json"
	"time"

	"caseline/internal/casework"
	"caseline/internal/domain"
	"caseline/internal/engine"
)

type DismissReportRequest struct {
	Reason string `json:"reason,omitempty" maxLength:"2000"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Source  string   `json:"source"`
}

// ReportResponse carries the stored report with its derived status.
type ReportResponse struct {
	domain.CaseReport
	OverallStatus   domain.CaseStatus `json:"overall_status"`
	ProgressPercent int               `json:"progress_percent"`
	StatusText      string            `json:"status_description"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedReports struct {
	Items []domain.CaseReport `json:"items"`
}

type paginatedActions struct {
	Items []engine.ActionView `json:"items"`
}

type categoryList struct {
	Items []domain.Category `json:"items"`
}

func reportResponse(rep domain.CaseReport, st engine.OverallStatus) ReportResponse {
	return ReportResponse{
		CaseReport:      rep,
		OverallStatus:   st.Status,
		ProgressPercent: st.ProgressPercent,
		StatusText:      st.Description,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS.Format(time.RFC3339Nano),
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func viewActions(e engine.Engine, items []domain.DisciplinaryAction) []engine.ActionView {
	res := make([]engine.ActionView, 0, len(items))
	for _, a := range items {
		res = append(res, e.ViewAction(a))
	}
	return res
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

type summaryBody struct {
	casework.ViolationSummary
	EmployeeID string `json:"employee_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}
