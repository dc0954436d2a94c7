package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseline/internal/domain"
)

func mockRepo(t *testing.T) (Repo, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return Repo{DB: conn}, mock
}

func TestNextSequenceReturnsReservedValue(t *testing.T) {
	r, mock := mockRepo(t)
	mock.ExpectQuery(`INSERT INTO reference_sequences`).
		WithArgs(SequenceReport, 2025, "2025-01-01T00:00:00.000000000Z", "2026-01-01T00:00:00.000000000Z").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))

	seq, err := r.NextSequence(context.Background(), SequenceReport, 2025)
	require.NoError(t, err)
	assert.Equal(t, 7, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMapsUniqueViolations(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r, mock := mockRepo(t)
	mock.ExpectExec(`INSERT INTO case_reports`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: case_reports.report_number (2067)"))
	mock.ExpectExec(`INSERT INTO disciplinary_actions`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: disciplinary_actions.action_number (2067)"))
	mock.ExpectExec(`INSERT INTO categories`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: categories.name (2067)"))

	ctx := context.Background()
	err := r.InsertReport(ctx, domain.CaseReport{ID: "r", ReportNumber: "DR-2025-0001", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, ErrSequenceConflict)
	err = r.InsertAction(ctx, domain.DisciplinaryAction{ID: "a", ActionNumber: "DA-2025-0001", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, ErrSequenceConflict)
	err = r.InsertCategory(ctx, domain.Category{ID: "c", Name: "Tardiness", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicallyCommitsAndRollsBack(t *testing.T) {
	r, mock := mockRepo(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO events`).WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()
	var id int64
	err := r.Atomically(ctx, func(s Store) error {
		var err error
		id, err = s.AppendEvent(ctx, domain.Event{Type: "report.filed", EntityKind: "report", ActorID: "hr-1"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = r.Atomically(ctx, func(Store) error { return ErrNotFound })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	r, mock := mockRepo(t)
	mock.ExpectExec(`UPDATE disciplinary_actions`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := r.UpdateAction(context.Background(), domain.DisciplinaryAction{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSurfacesRowsAffectedError(t *testing.T) {
	r, mock := mockRepo(t)
	ctx := context.Background()
	driverErr := errors.New("rows affected unavailable")

	mock.ExpectExec(`UPDATE disciplinary_actions`).WillReturnResult(sqlmock.NewErrorResult(driverErr))
	err := r.UpdateAction(ctx, domain.DisciplinaryAction{ID: "act-1"})
	assert.ErrorIs(t, err, driverErr)

	mock.ExpectExec(`UPDATE case_reports`).WillReturnResult(sqlmock.NewErrorResult(driverErr))
	err = r.UpdateReport(ctx, domain.CaseReport{ID: "rep-1"})
	assert.ErrorIs(t, err, driverErr)

	mock.ExpectExec(`UPDATE categories`).WillReturnResult(sqlmock.NewErrorResult(driverErr))
	err = r.UpdateCategory(ctx, domain.Category{ID: "cat-1"})
	assert.ErrorIs(t, err, driverErr)

	assert.NoError(t, mock.ExpectationsWereMet())
}
