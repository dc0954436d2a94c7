package repo

import (
	"context"
	"fmt"
)

const (
	SequenceReport = "report"
	SequenceAction = "action"
)

var sequenceTables = map[string]string{
	SequenceReport: "case_reports",
	SequenceAction: "disciplinary_actions",
}

// NextSequence reserves the next per-year number for kind. The first
// reservation of a year starts after the rows already created that year;
// later reservations increment a counter row under SQLite's write lock.
// Reserved numbers are never handed out twice, gaps are allowed.
func (r Repo) NextSequence(ctx context.Context, kind string, year int) (int, error) {
	table, ok := sequenceTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown sequence kind %s", kind)
	}
	from, to := yearBounds(year)
	var seq int
	err := r.q().QueryRowContext(ctx, `INSERT INTO reference_sequences(kind,year,value)
VALUES (?,?,(SELECT COUNT(*) FROM `+table+` WHERE created_at >= ? AND created_at < ?)+1)
ON CONFLICT(kind,year) DO UPDATE SET value=value+1
RETURNING value`, kind, year, from, to).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("reserve %s sequence: %w", kind, err)
	}
	return seq, nil
}
