package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"caseline/internal/domain"
	"caseline/internal/repo"
)

const (
	KindCategory = "category"
	KindReport   = "report"
	KindAction   = "action"
)

const (
	CategoryCreated              = "category.created"
	CategoryUpdated              = "category.updated"
	ReportFiled                  = "report.filed"
	ReportReviewed               = "report.reviewed"
	ReportDismissed              = "report.dismissed"
	ActionIssued                 = "action.issued"
	ActionExplanationRequested   = "action.explanation_requested"
	ActionExplanationSubmitted   = "action.explanation_submitted"
	ActionInvestigatorAssigned   = "action.investigator_assigned"
	ActionInvestigationCompleted = "action.investigation_completed"
	ActionVerdictIssued          = "action.verdict_issued"
)

type Payload map[string]any

// Writer appends audit events through the store it is handed, so callers
// inside Store.Atomically get the event in the same transaction.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, s repo.Store, evtType, entityKind, entityID, actorID string, payload Payload) (domain.Event, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	evt := domain.Event{
		TS:         now().UTC(),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	id, err := s.AppendEvent(ctx, evt)
	if err != nil {
		return domain.Event{}, fmt.Errorf("append %s event: %w", evtType, err)
	}
	evt.ID = id
	return evt, nil
}
