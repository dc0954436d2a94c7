package repo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

var t0 = time.Date(2025, 5, 2, 8, 30, 0, 0, time.UTC)

func setupRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn, nil)
	require.NoError(t, err)
	return repo.Repo{DB: conn}
}

func seedCategory(t *testing.T, r repo.Repo, id, name string, sev domain.Severity) domain.Category {
	t.Helper()
	c := domain.Category{ID: id, Name: name, SeverityLevel: sev, SuggestedActions: []string{"verbal_warning"}, IsActive: true, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, r.InsertCategory(context.Background(), c))
	return c
}

func newReport(n int, employee, category string, created time.Time) domain.CaseReport {
	return domain.CaseReport{
		ID:                  fmt.Sprintf("rep-%d", n),
		ReportNumber:        fmt.Sprintf("DR-%d-%04d", created.Year(), n),
		EmployeeID:          employee,
		CategoryID:          category,
		IncidentDate:        created.Add(-24 * time.Hour),
		IncidentDescription: "late arrival",
		Priority:            domain.PriorityMedium,
		Status:              domain.ReportReported,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
}

func TestCategoriesRoundTripAndFilters(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	seedCategory(t, r, "cat-1", "Tardiness", domain.SeverityLow)
	harassment := seedCategory(t, r, "cat-2", "Harassment", domain.SeverityCritical)

	err := r.InsertCategory(ctx, domain.Category{ID: "cat-3", Name: "Tardiness", SeverityLevel: domain.SeverityLow, CreatedAt: t0, UpdatedAt: t0})
	assert.ErrorIs(t, err, repo.ErrConflict)

	harassment.IsActive = false
	harassment.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, r.UpdateCategory(ctx, harassment))

	active, err := r.ListCategories(ctx, repo.CategoryFilters{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Tardiness", active[0].Name)
	assert.Equal(t, []string{"verbal_warning"}, active[0].SuggestedActions)

	critical, err := r.ListCategories(ctx, repo.CategoryFilters{Severity: domain.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.False(t, critical[0].IsActive)

	_, err = r.GetCategory(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, r.UpdateCategory(ctx, domain.Category{ID: "missing", Name: "x", SeverityLevel: domain.SeverityLow}), repo.ErrNotFound)
}

func TestReportRoundTripPreservesOptionalFields(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	seedCategory(t, r, "cat-1", "Tardiness", domain.SeverityLow)

	rep := newReport(1, "emp-1", "cat-1", t0)
	rep.EvidenceRefs = []string{"s3://evidence/1.png"}
	rep.Witnesses = []string{"emp-7", "emp-8"}
	require.NoError(t, r.InsertReport(ctx, rep))

	got, err := r.GetReportByNumber(ctx, "DR-2025-0001")
	require.NoError(t, err)
	assert.Equal(t, rep.Witnesses, got.Witnesses)
	assert.Equal(t, rep.EvidenceRefs, got.EvidenceRefs)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.Nil(t, got.ReviewedAt)

	reviewer := "hr-1"
	reviewedAt := t0.Add(time.Hour)
	got.Status = domain.ReportUnderReview
	got.ReviewedBy = &reviewer
	got.ReviewedAt = &reviewedAt
	got.UpdatedAt = reviewedAt
	require.NoError(t, r.UpdateReport(ctx, got))

	again, err := r.GetReport(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportUnderReview, again.Status)
	require.NotNil(t, again.ReviewedAt)
	assert.True(t, again.ReviewedAt.Equal(reviewedAt))
	assert.Equal(t, "hr-1", *again.ReviewedBy)
}

func TestDuplicateReportNumberIsSequenceConflict(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	seedCategory(t, r, "cat-1", "Tardiness", domain.SeverityLow)
	require.NoError(t, r.InsertReport(ctx, newReport(1, "emp-1", "cat-1", t0)))

	dup := newReport(1, "emp-2", "cat-1", t0)
	dup.ID = "rep-other"
	assert.ErrorIs(t, r.InsertReport(ctx, dup), repo.ErrSequenceConflict)
}

func TestNextSequenceSeedsFromExistingRows(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	seedCategory(t, r, "cat-1", "Tardiness", domain.SeverityLow)
	for i := 1; i <= 6; i++ {
		require.NoError(t, r.InsertReport(ctx, newReport(i, "emp-1", "cat-1", t0.Add(time.Duration(i)*time.Minute))))
	}
	old := newReport(99, "emp-1", "cat-1", time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, r.InsertReport(ctx, old))

	seq, err := r.NextSequence(ctx, repo.SequenceReport, 2025)
	require.NoError(t, err)
	assert.Equal(t, 7, seq)
	seq, err = r.NextSequence(ctx, repo.SequenceReport, 2025)
	require.NoError(t, err)
	assert.Equal(t, 8, seq)

	seq, err = r.NextSequence(ctx, repo.SequenceReport, 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
	seq, err = r.NextSequence(ctx, repo.SequenceAction, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	_, err = r.NextSequence(ctx, "invoice", 2025)
	assert.Error(t, err)
}

func TestReportCountFilters(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	seedCategory(t, r, "cat-1", "Tardiness", domain.SeverityLow)
	seedCategory(t, r, "cat-2", "Harassment", domain.SeverityHigh)
	reps := []domain.CaseReport{
		newReport(1, "emp-1", "cat-1", t0),
		newReport(2, "emp-1", "cat-1", t0.Add(time.Hour)),
		newReport(3, "emp-1", "cat-1", t0.Add(2*time.Hour)),
		newReport(4, "emp-1", "cat-2", t0.Add(3*time.Hour)),
		newReport(5, "emp-2", "cat-1", t0.Add(4*time.Hour)),
	}
	reps[0].Status = domain.ReportDismissed
	for _, rep := range reps {
		require.NoError(t, r.InsertReport(ctx, rep))
	}
	base := repo.ReportFilters{EmployeeID: "emp-1", CategoryID: "cat-1", ExcludeStatus: domain.ReportDismissed}
	n, err := r.CountReports(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	upTo := base
	upTo.CreatedAtOrBefore = reps[1].CreatedAt
	n, err = r.CountReports(ctx, upTo)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := r.ListReports(ctx, repo.ReportFilters{EmployeeID: "emp-1", Newest: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rep-4", list[0].ID)
}

func TestActionFiltersFollowLinkedReport(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	seedCategory(t, r, "cat-1", "Tardiness", domain.SeverityLow)
	seedCategory(t, r, "cat-2", "Harassment", domain.SeverityHigh)
	require.NoError(t, r.InsertReport(ctx, newReport(1, "emp-1", "cat-1", t0)))
	require.NoError(t, r.InsertReport(ctx, newReport(2, "emp-1", "cat-2", t0)))

	dismissed := domain.VerdictDismissed
	mk := func(n int, reportID *string) domain.DisciplinaryAction {
		return domain.DisciplinaryAction{
			ID: fmt.Sprintf("act-%d", n), ActionNumber: fmt.Sprintf("DA-2025-%04d", n), EmployeeID: "emp-1",
			ReportID: reportID, IssuedBy: "hr-1", ActionType: "written_warning", Status: domain.ActionIssued,
			CreatedAt: t0.Add(time.Duration(n) * time.Minute), UpdatedAt: t0,
		}
	}
	r1, r2 := "rep-1", "rep-2"
	a1 := mk(1, &r1)
	a2 := mk(2, &r1)
	a2.Status = domain.ActionCompleted
	a2.Verdict = &dismissed
	a3 := mk(3, &r2)
	a4 := mk(4, nil)
	due := t0.Add(-time.Hour)
	a4.DueDate = &due
	a4.Status = domain.ActionExplanationRequested
	for _, a := range []domain.DisciplinaryAction{a1, a2, a3, a4} {
		require.NoError(t, r.InsertAction(ctx, a))
	}

	n, err := r.CountActions(ctx, repo.ActionFilters{EmployeeID: "emp-1", CategoryID: "cat-1", ExcludeVerdict: domain.VerdictDismissed})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	overdue, err := r.ListActions(ctx, repo.ActionFilters{DueBefore: t0, WithoutExplanation: true, ExcludeStatus: domain.ActionCompleted})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "act-4", overdue[0].ID)
	assert.Nil(t, overdue[0].ReportID)

	got, err := r.GetActionByNumber(ctx, "DA-2025-0002")
	require.NoError(t, err)
	require.NotNil(t, got.Verdict)
	assert.Equal(t, domain.VerdictDismissed, *got.Verdict)

	forReport, err := r.ListActions(ctx, repo.ActionFilters{ReportID: "rep-1"})
	require.NoError(t, err)
	assert.Len(t, forReport, 2)
}

func TestCompletedActionRequiresVerdict(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	a := domain.DisciplinaryAction{ID: "act-1", ActionNumber: "DA-2025-0001", EmployeeID: "emp-1", IssuedBy: "hr-1",
		ActionType: "suspension", Status: domain.ActionCompleted, CreatedAt: t0, UpdatedAt: t0}
	assert.Error(t, r.InsertAction(ctx, a))
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	boom := errors.New("boom")
	err := r.Atomically(ctx, func(s repo.Store) error {
		if err := s.InsertCategory(ctx, domain.Category{ID: "cat-1", Name: "Tardiness", SeverityLevel: domain.SeverityLow, CreatedAt: t0, UpdatedAt: t0}); err != nil {
			return err
		}
		if _, err := s.AppendEvent(ctx, domain.Event{TS: t0, Type: "category.created", EntityKind: "category", EntityID: "cat-1", ActorID: "hr-1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	cats, err := r.ListCategories(ctx, repo.CategoryFilters{})
	require.NoError(t, err)
	assert.Empty(t, cats)
	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestEventsCursor(t *testing.T) {
	ctx := context.Background()
	r := setupRepo(t)
	for i := 0; i < 3; i++ {
		_, err := r.AppendEvent(ctx, domain.Event{TS: t0, Type: "report.filed", EntityKind: "report", EntityID: fmt.Sprintf("rep-%d", i), ActorID: "hr-1"})
		require.NoError(t, err)
	}
	newest, err := r.ListEvents(ctx, repo.EventFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "rep-2", newest[0].EntityID)
	assert.Equal(t, "{}", newest[0].Payload)

	after, err := r.ListEvents(ctx, repo.EventFilters{AfterID: 1, Ascending: true})
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "rep-1", after[0].EntityID)

	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)
}
