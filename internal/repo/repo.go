package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"caseline/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSequenceConflict means a reference number was already taken when
	// the row was inserted. The caller should reserve a new number and retry.
	ErrSequenceConflict = errors.New("reference number already in use")
	ErrConflict         = errors.New("already exists")
)

// Store is the persistence surface the engine depends on. Implementations
// must make Atomically all-or-nothing.
type Store interface {
	Atomically(ctx context.Context, fn func(Store) error) error

	NextSequence(ctx context.Context, kind string, year int) (int, error)

	InsertCategory(ctx context.Context, c domain.Category) error
	UpdateCategory(ctx context.Context, c domain.Category) error
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	ListCategories(ctx context.Context, f CategoryFilters) ([]domain.Category, error)

	InsertReport(ctx context.Context, r domain.CaseReport) error
	UpdateReport(ctx context.Context, r domain.CaseReport) error
	GetReport(ctx context.Context, id string) (domain.CaseReport, error)
	GetReportByNumber(ctx context.Context, number string) (domain.CaseReport, error)
	ListReports(ctx context.Context, f ReportFilters) ([]domain.CaseReport, error)
	CountReports(ctx context.Context, f ReportFilters) (int, error)

	InsertAction(ctx context.Context, a domain.DisciplinaryAction) error
	UpdateAction(ctx context.Context, a domain.DisciplinaryAction) error
	GetAction(ctx context.Context, id string) (domain.DisciplinaryAction, error)
	GetActionByNumber(ctx context.Context, number string) (domain.DisciplinaryAction, error)
	ListActions(ctx context.Context, f ActionFilters) ([]domain.DisciplinaryAction, error)
	CountActions(ctx context.Context, f ActionFilters) (int, error)

	AppendEvent(ctx context.Context, evt domain.Event) (int64, error)
	ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Repo is the SQLite Store.
type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

var _ Store = Repo{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// Atomically runs fn inside one transaction. Nested calls join the outer one.
func (r Repo) Atomically(ctx context.Context, fn func(Store) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(Repo{DB: r.DB, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func timePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalList(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// yearBounds returns the [from, to) created_at range for a calendar year.
func yearBounds(year int) (string, string) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return formatTS(from), formatTS(from.AddDate(1, 0, 0))
}
