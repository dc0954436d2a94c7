package repo

import (
	"context"
	"database/sql"
	"strings"

	"caseline/internal/domain"
)

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	// AfterID with Ascending reads forward from a cursor, used by relays.
	AfterID   int64
	Ascending bool
	// BeforeID pages backwards through the newest-first listing.
	BeforeID int64
	Limit    int
}

func (r Repo) AppendEvent(ctx context.Context, evt domain.Event) (int64, error) {
	payload := evt.Payload
	if payload == "" {
		payload = "{}"
	}
	res, err := r.q().ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		formatTS(evt.TS), evt.Type, evt.EntityKind, nullable(evt.EntityID), evt.ActorID, payload)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListEvents returns newest first unless Ascending is set.
func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.AfterID > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, f.AfterID)
	}
	if f.BeforeID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.BeforeID)
	}
	order := " ORDER BY id DESC"
	if f.Ascending {
		order = " ORDER BY id ASC"
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events` + where + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var ts string
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		if e.TS, err = parseTS(ts); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.q().QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}
