package engine_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"caseline/internal/casework"
	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/logger"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

type testEnv struct {
	Engine   engine.Engine
	Store    repo.Repo
	Ctx      context.Context
	Category domain.Category
	now      *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn, logger.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := repo.Repo{DB: conn}
	env := &testEnv{Store: store, Ctx: ctx}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	env.now = &now
	eng := engine.New(store, config.Default())
	eng.Log = logger.Discard()
	eng.Now = func() time.Time { return *env.now }
	env.Engine = eng
	if _, err := eng.SeedCategories(ctx, config.Default().Categories); err != nil {
		t.Fatalf("seed categories: %v", err)
	}
	cats, err := eng.ListActiveCategories(ctx)
	if err != nil || len(cats) == 0 {
		t.Fatalf("list categories: %v (%d)", err, len(cats))
	}
	env.Category = cats[0]
	return env
}

func (env *testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

func (env *testEnv) fileReport(t *testing.T, employeeID string) domain.CaseReport {
	t.Helper()
	rep, err := env.Engine.FileReport(env.Ctx, engine.FileReportInput{
		ReporterID:          "mgr-1",
		EmployeeID:          employeeID,
		CategoryID:          env.Category.ID,
		IncidentDate:        env.now.Add(-24 * time.Hour),
		IncidentDescription: "late to shift",
	})
	if err != nil {
		t.Fatalf("file report: %v", err)
	}
	return rep
}

func (env *testEnv) issueAction(t *testing.T, rep domain.CaseReport) domain.DisciplinaryAction {
	t.Helper()
	a, err := env.Engine.IssueAction(env.Ctx, engine.IssueActionInput{
		EmployeeID: rep.EmployeeID,
		ReportID:   rep.ReportNumber,
		IssuedBy:   "hr-1",
		ActionType: "written_warning",
	})
	if err != nil {
		t.Fatalf("issue action: %v", err)
	}
	return a
}

func TestFileReportNumbering(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 6; i++ {
		if _, err := env.Store.NextSequence(env.Ctx, repo.SequenceReport, 2025); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	rep := env.fileReport(t, "emp-1")
	if rep.ReportNumber != "DR-2025-0007" {
		t.Fatalf("expected DR-2025-0007, got %s", rep.ReportNumber)
	}
	if rep.Status != domain.ReportReported || rep.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults: %s %s", rep.Status, rep.Priority)
	}
	got, err := env.Engine.GetReport(env.Ctx, "DR-2025-0007")
	if err != nil || got.ID != rep.ID {
		t.Fatalf("lookup by number: %v", err)
	}
	a := env.issueAction(t, rep)
	if a.ActionNumber != "DA-2025-0001" {
		t.Fatalf("expected DA-2025-0001, got %s", a.ActionNumber)
	}
}

func TestFileReportValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.FileReport(env.Ctx, engine.FileReportInput{CategoryID: env.Category.ID})
	var ve casework.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = env.Engine.FileReport(env.Ctx, engine.FileReportInput{
		EmployeeID: "emp-1", CategoryID: "missing", IncidentDate: *env.now, IncidentDescription: "x",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	inactive := false
	if _, err := env.Engine.UpdateCategory(env.Ctx, env.Category.ID, engine.CategoryPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = env.Engine.FileReport(env.Ctx, engine.FileReportInput{
		EmployeeID: "emp-1", CategoryID: env.Category.ID, IncidentDate: *env.now, IncidentDescription: "x",
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected inactive category rejection, got %v", err)
	}
	n, _ := env.Store.CountReports(env.Ctx, repo.ReportFilters{})
	if n != 0 {
		t.Fatalf("expected nothing stored, got %d reports", n)
	}
}

func TestMarkReviewedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	rep := env.fileReport(t, "emp-1")
	first, err := env.Engine.MarkReviewed(env.Ctx, rep.ID, "hr-1")
	if err != nil || first.Status != domain.ReportUnderReview || first.ReviewedAt == nil {
		t.Fatalf("review: %v %+v", err, first)
	}
	env.advance(time.Hour)
	second, err := env.Engine.MarkReviewed(env.Ctx, rep.ID, "hr-2")
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if !second.ReviewedAt.Equal(*first.ReviewedAt) || *second.ReviewedBy != "hr-1" {
		t.Fatalf("review should not be overwritten: %+v", second)
	}
	evts, _ := env.Engine.ListEvents(env.Ctx, repo.EventFilters{EntityID: rep.ID, Type: "report.reviewed"})
	if len(evts) != 1 {
		t.Fatalf("expected one review event, got %d", len(evts))
	}
}

func TestActionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	rep := env.fileReport(t, "emp-1")
	a := env.issueAction(t, rep)
	ctx := env.Ctx

	a, err := env.Engine.RequestExplanation(ctx, a.ID, engine.RequestExplanationInput{})
	if err != nil || a.Status != domain.ActionExplanationRequested {
		t.Fatalf("request explanation: %v", err)
	}
	if want := env.now.Add(7 * 24 * time.Hour); !a.DueDate.Equal(want) {
		t.Fatalf("due date %v, want %v", a.DueDate, want)
	}
	a, err = env.Engine.SubmitExplanation(ctx, a.ActionNumber, engine.SubmitExplanationInput{Explanation: "bus was late"})
	if err != nil || a.Status != domain.ActionExplanationSubmitted {
		t.Fatalf("submit explanation: %v", err)
	}
	a, err = env.Engine.AssignInvestigator(ctx, a.ID, engine.AssignInvestigatorInput{InvestigatorID: "inv-1"})
	if err != nil || a.Status != domain.ActionExplanationSubmitted || a.InvestigatorID == nil {
		t.Fatalf("assign investigator: %v %+v", err, a)
	}
	a, err = env.Engine.CompleteInvestigation(ctx, a.ID, engine.CompleteInvestigationInput{Notes: "confirmed", Recommendation: "warning"})
	if err != nil || a.Status != domain.ActionAwaitingVerdict {
		t.Fatalf("complete investigation: %v", err)
	}
	st, err := env.Engine.GetOverallStatus(ctx, rep.ID)
	if err != nil || st.Status != domain.CaseAwaitingVerdict || st.ProgressPercent != 85 {
		t.Fatalf("overall status: %v %+v", err, st)
	}
	a, err = env.Engine.IssueVerdict(ctx, a.ID, engine.IssueVerdictInput{Verdict: "uphold"})
	if err != nil || a.Status != domain.ActionCompleted || *a.Verdict != domain.VerdictGuilty {
		t.Fatalf("issue verdict: %v", err)
	}
	st, _ = env.Engine.GetOverallStatus(ctx, rep.ReportNumber)
	if st.Status != domain.CaseCompleted || st.ProgressPercent != 100 {
		t.Fatalf("expected completed, got %+v", st)
	}
	evts, _ := env.Engine.ListEvents(ctx, repo.EventFilters{EntityID: a.ID})
	if len(evts) != 6 {
		t.Fatalf("expected 6 action events, got %d", len(evts))
	}
}

func TestGuardViolationLeavesActionUnchanged(t *testing.T) {
	env := newTestEnv(t)
	rep := env.fileReport(t, "emp-1")
	a := env.issueAction(t, rep)
	before, err := env.Engine.GetAction(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	eventsBefore, _ := env.Engine.ListEvents(env.Ctx, repo.EventFilters{})

	got, err := env.Engine.IssueVerdict(env.Ctx, a.ID, engine.IssueVerdictInput{Verdict: "guilty"})
	var gv casework.GuardViolation
	if !errors.As(err, &gv) || gv.Guard != casework.GuardCanIssueVerdict {
		t.Fatalf("expected guard violation, got %v", err)
	}
	if !reflect.DeepEqual(got, before) {
		t.Fatalf("caller should receive the current state")
	}
	// guard is evaluated before payload validation
	_, err = env.Engine.IssueVerdict(env.Ctx, a.ID, engine.IssueVerdictInput{Verdict: "bogus"})
	if !errors.As(err, &gv) {
		t.Fatalf("expected guard violation before validation, got %v", err)
	}
	after, _ := env.Engine.GetAction(env.Ctx, a.ID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("action changed after rejected transition:\n%+v\n%+v", before, after)
	}
	eventsAfter, _ := env.Engine.ListEvents(env.Ctx, repo.EventFilters{})
	if len(eventsAfter) != len(eventsBefore) {
		t.Fatalf("rejected transition appended events")
	}

	_, err = env.Engine.SubmitExplanation(env.Ctx, a.ID, engine.SubmitExplanationInput{Explanation: "  "})
	var ve casework.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for blank explanation, got %v", err)
	}
}

func TestDismissedReportExcludedFromCounts(t *testing.T) {
	env := newTestEnv(t)
	r1 := env.fileReport(t, "emp-1")
	env.advance(time.Minute)
	r2 := env.fileReport(t, "emp-1")
	env.advance(time.Minute)
	r3 := env.fileReport(t, "emp-1")

	sum, err := env.Engine.ReportViolationSummary(env.Ctx, r2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 3 || sum.Ordinal != "2nd" || !sum.IsRepeat {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.WarningMessage != "This is the 2nd violation for this employee in this category." {
		t.Fatalf("unexpected warning %q", sum.WarningMessage)
	}

	if _, err := env.Engine.DismissReport(env.Ctx, r1.ID, "hr-1", "duplicate"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	_, err = env.Engine.DismissReport(env.Ctx, r1.ID, "hr-1", "again")
	var gv casework.GuardViolation
	if !errors.As(err, &gv) {
		t.Fatalf("expected guard violation on second dismissal, got %v", err)
	}
	sum, _ = env.Engine.ReportViolationSummary(env.Ctx, r3.ID)
	if sum.Count != 2 || sum.Ordinal != "2nd" {
		t.Fatalf("dismissed report should not count: %+v", sum)
	}
	total, err := env.Engine.GetViolationSummary(env.Ctx, "emp-1", env.Category.ID)
	if err != nil || total.Count != 2 {
		t.Fatalf("employee summary: %v %+v", err, total)
	}
	_, err = env.Engine.IssueAction(env.Ctx, engine.IssueActionInput{
		EmployeeID: "emp-1", ReportID: r1.ID, IssuedBy: "hr-1", ActionType: "warning",
	})
	if !errors.As(err, &gv) {
		t.Fatalf("expected action against dismissed report to be refused, got %v", err)
	}
}

func TestActionViolationSummary(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.issueAction(t, env.fileReport(t, "emp-1"))
	env.advance(time.Minute)
	a2 := env.issueAction(t, env.fileReport(t, "emp-1"))

	sum, err := env.Engine.ActionViolationSummary(env.Ctx, a2.ActionNumber)
	if err != nil || sum.Count != 2 || sum.Ordinal != "2nd" {
		t.Fatalf("unexpected summary: %v %+v", err, sum)
	}
	sum, _ = env.Engine.ActionViolationSummary(env.Ctx, a1.ID)
	if sum.Ordinal != "1st" || !sum.IsRepeat {
		t.Fatalf("unexpected first summary %+v", sum)
	}
	loose, err := env.Engine.IssueAction(env.Ctx, engine.IssueActionInput{EmployeeID: "emp-1", IssuedBy: "hr-1", ActionType: "note"})
	if err != nil {
		t.Fatal(err)
	}
	sum, _ = env.Engine.ActionViolationSummary(env.Ctx, loose.ID)
	if sum.Count != 1 || sum.IsRepeat {
		t.Fatalf("unlinked action should stand alone: %+v", sum)
	}
}

func TestActionViolationSummarySkipsDismissedReports(t *testing.T) {
	env := newTestEnv(t)
	r1 := env.fileReport(t, "emp-1")
	a1 := env.issueAction(t, r1)
	env.advance(time.Minute)
	a2 := env.issueAction(t, env.fileReport(t, "emp-1"))

	if _, err := env.Engine.DismissReport(env.Ctx, r1.ID, "hr-1", "filed in error"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	sum, err := env.Engine.ActionViolationSummary(env.Ctx, a2.ID)
	if err != nil || sum.Count != 1 || sum.Ordinal != "1st" || sum.IsRepeat {
		t.Fatalf("action on dismissed report should not count: %v %+v", err, sum)
	}
	reportSum, _ := env.Engine.GetViolationSummary(env.Ctx, "emp-1", env.Category.ID)
	if reportSum.Count != sum.Count {
		t.Fatalf("action count %d disagrees with report count %d", sum.Count, reportSum.Count)
	}
	// the dismissed action still places itself
	sum, err = env.Engine.ActionViolationSummary(env.Ctx, a1.ID)
	if err != nil || sum.Count != 2 || sum.Ordinal != "1st" {
		t.Fatalf("unexpected summary for action on dismissed report: %v %+v", err, sum)
	}
}

func TestIssueActionEmployeeMismatch(t *testing.T) {
	env := newTestEnv(t)
	rep := env.fileReport(t, "emp-1")
	_, err := env.Engine.IssueAction(env.Ctx, engine.IssueActionInput{
		EmployeeID: "emp-2", ReportID: rep.ID, IssuedBy: "hr-1", ActionType: "warning",
	})
	var ve casework.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOverdueActions(t *testing.T) {
	env := newTestEnv(t)
	a := env.issueAction(t, env.fileReport(t, "emp-1"))
	if _, err := env.Engine.RequestExplanation(env.Ctx, a.ID, engine.RequestExplanationInput{}); err != nil {
		t.Fatal(err)
	}
	overdue, _ := env.Engine.ListOverdueActions(env.Ctx)
	if len(overdue) != 0 {
		t.Fatalf("nothing should be overdue yet")
	}
	env.advance(8 * 24 * time.Hour)
	overdue, err := env.Engine.ListOverdueActions(env.Ctx)
	if err != nil || len(overdue) != 1 {
		t.Fatalf("expected one overdue action: %v %d", err, len(overdue))
	}
	view := env.Engine.ViewAction(overdue[0])
	if !view.IsExplanationOverdue || !view.CanSubmitExplanation || view.CanIssueVerdict {
		t.Fatalf("unexpected view %+v", view)
	}
	if overdue[0].Status != domain.ActionExplanationRequested {
		t.Fatalf("overdue check must not transition")
	}
}

type recordingCache struct {
	mu          sync.Mutex
	entries     map[string]domain.CaseStatus
	gens        map[string]int64
	invalidated []string
	// beforeSet runs ahead of the generation check
	beforeSet func()
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]domain.CaseStatus{}, gens: map[string]int64{}}
}

func (c *recordingCache) Get(_ context.Context, id string) (domain.CaseStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[id]
	return s, ok, nil
}

func (c *recordingCache) Generation(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id], nil
}

func (c *recordingCache) Set(_ context.Context, id string, s domain.CaseStatus, gen int64) (bool, error) {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] != gen {
		return false, nil
	}
	c.entries[id] = s
	return true, nil
}

func (c *recordingCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[id]++
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestStatusCacheInvalidatedOnActionChange(t *testing.T) {
	env := newTestEnv(t)
	c := newRecordingCache()
	env.Engine.Cache = c
	rep := env.fileReport(t, "emp-1")
	st, _ := env.Engine.GetOverallStatus(env.Ctx, rep.ID)
	if st.Status != domain.CaseReported || c.entries[rep.ID] != domain.CaseReported {
		t.Fatalf("expected cached reported status, got %+v", st)
	}
	a := env.issueAction(t, rep)
	if _, ok := c.entries[rep.ID]; ok {
		t.Fatalf("issuing an action should invalidate the report status")
	}
	st, _ = env.Engine.GetOverallStatus(env.Ctx, rep.ID)
	if st.Status != domain.CaseActionIssued {
		t.Fatalf("expected action_issued, got %s", st.Status)
	}
	if _, err := env.Engine.RequestExplanation(env.Ctx, a.ID, engine.RequestExplanationInput{}); err != nil {
		t.Fatal(err)
	}
	st, _ = env.Engine.GetOverallStatus(env.Ctx, rep.ID)
	if st.Status != domain.CaseExplanationRequested {
		t.Fatalf("stale cached status %s", st.Status)
	}
	if len(c.invalidated) != 2 {
		t.Fatalf("expected 2 invalidations, got %v", c.invalidated)
	}
}

func TestStatusCacheSkipsWriteRacingActionChange(t *testing.T) {
	env := newTestEnv(t)
	c := newRecordingCache()
	env.Engine.Cache = c
	rep := env.fileReport(t, "emp-1")
	a := env.issueAction(t, rep)

	// the action moves after the status was derived but before it is cached
	c.beforeSet = func() {
		if _, err := env.Engine.RequestExplanation(env.Ctx, a.ID, engine.RequestExplanationInput{}); err != nil {
			t.Fatal(err)
		}
	}
	st, err := env.Engine.GetOverallStatus(env.Ctx, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != domain.CaseActionIssued {
		t.Fatalf("expected action_issued from the racing read, got %s", st.Status)
	}
	if _, ok := c.entries[rep.ID]; ok {
		t.Fatalf("status derived before the change must not be cached")
	}

	st, err = env.Engine.GetOverallStatus(env.Ctx, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != domain.CaseExplanationRequested {
		t.Fatalf("expected explanation_requested, got %s", st.Status)
	}
	if c.entries[rep.ID] != domain.CaseExplanationRequested {
		t.Fatalf("expected fresh status cached, got %q", c.entries[rep.ID])
	}
}

// conflictingStore reports the first n report inserts as number clashes.
type conflictingStore struct {
	repo.Store
	remaining *int
}

func (s conflictingStore) Atomically(ctx context.Context, fn func(repo.Store) error) error {
	return s.Store.Atomically(ctx, func(inner repo.Store) error {
		return fn(conflictingStore{Store: inner, remaining: s.remaining})
	})
}

func (s conflictingStore) InsertReport(ctx context.Context, rep domain.CaseReport) error {
	if *s.remaining > 0 {
		*s.remaining--
		return repo.ErrSequenceConflict
	}
	return s.Store.InsertReport(ctx, rep)
}

func TestFileReportRetriesTakenNumber(t *testing.T) {
	env := newTestEnv(t)
	remaining := 2
	env.Engine.Store = conflictingStore{Store: env.Store, remaining: &remaining}
	rep := env.fileReport(t, "emp-1")
	if rep.ReportNumber != "DR-2025-0003" {
		t.Fatalf("expected third reservation, got %s", rep.ReportNumber)
	}

	remaining = 3
	_, err := env.Engine.FileReport(env.Ctx, engine.FileReportInput{
		EmployeeID: "emp-1", CategoryID: env.Category.ID, IncidentDate: *env.now, IncidentDescription: "x",
	})
	if !errors.Is(err, repo.ErrSequenceConflict) {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
}

func TestConcurrentFilingAssignsUniqueNumbers(t *testing.T) {
	env := newTestEnv(t)
	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]bool{}
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := env.Engine.FileReport(env.Ctx, engine.FileReportInput{
				EmployeeID:          "emp-1",
				CategoryID:          env.Category.ID,
				IncidentDate:        time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
				IncidentDescription: "concurrent",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[rep.ReportNumber] = true
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("concurrent filing failed: %v", errs)
	}
	if len(numbers) != workers {
		t.Fatalf("expected %d unique numbers, got %d", workers, len(numbers))
	}
}
