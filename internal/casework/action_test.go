package casework_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseline/internal/casework"
	"caseline/internal/domain"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func issued() domain.DisciplinaryAction {
	return domain.DisciplinaryAction{
		ID:           "act-1",
		ActionNumber: "DA-2025-0001",
		EmployeeID:   "emp-1",
		IssuedBy:     "hr-1",
		ActionType:   "written_warning",
		Status:       domain.ActionIssued,
		CreatedAt:    now.Add(-time.Hour),
		UpdatedAt:    now.Add(-time.Hour),
	}
}

func ptr[T any](v T) *T { return &v }

func TestRequestExplanationDefaultsDueDate(t *testing.T) {
	a, err := casework.RequestExplanation(issued(), nil, now, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExplanationRequested, a.Status)
	require.NotNil(t, a.DueDate)
	assert.Equal(t, now.Add(7*24*time.Hour), *a.DueDate)

	due := now.Add(48 * time.Hour)
	a, err = casework.RequestExplanation(issued(), &due, now, 0)
	require.NoError(t, err)
	assert.Equal(t, due, *a.DueDate)
}

func TestRequestExplanationKeepsPriorText(t *testing.T) {
	a := issued()
	a.Status = domain.ActionExplanationSubmitted
	a.EmployeeExplanation = "I was late because of the train strike"
	next, err := casework.RequestExplanation(a, nil, now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, a.EmployeeExplanation, next.EmployeeExplanation)
	assert.Equal(t, now.Add(24*time.Hour), *next.DueDate)
}

func TestSubmitExplanationResubmissionGuard(t *testing.T) {
	a, err := casework.RequestExplanation(issued(), nil, now, 0)
	require.NoError(t, err)
	a, err = casework.SubmitExplanation(a, "first account", now)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExplanationSubmitted, a.Status)
	require.NotNil(t, a.ExplanationSubmittedAt)

	_, err = casework.SubmitExplanation(a, "second account", now)
	var gv casework.GuardViolation
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, casework.GuardCanSubmitExplanation, gv.Guard)

	a, err = casework.RequestExplanation(a, nil, now, 0)
	require.NoError(t, err)
	a, err = casework.SubmitExplanation(a, "second account", now)
	require.NoError(t, err)
	assert.Equal(t, "second account", a.EmployeeExplanation)
}

func TestSubmitExplanationFromUnderInvestigation(t *testing.T) {
	a := issued()
	a.Status = domain.ActionUnderInvestigation
	assert.True(t, casework.CanSubmitExplanation(a))

	a.EmployeeExplanation = "already on file"
	assert.False(t, casework.CanSubmitExplanation(a))
	_, err := casework.SubmitExplanation(a, "again", now)
	var gv casework.GuardViolation
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, "cannot submit explanation: explanation already finalized", gv.Error())
}

func TestSubmitExplanationRequiresText(t *testing.T) {
	_, err := casework.SubmitExplanation(issued(), "   ", now)
	var ve casework.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "explanation", ve.Fields[0].Field)
}

func TestAssignInvestigatorPreservesExplanationFlow(t *testing.T) {
	cases := []struct {
		from domain.ActionStatus
		want domain.ActionStatus
	}{
		{domain.ActionIssued, domain.ActionUnderInvestigation},
		{domain.ActionExplanationRequested, domain.ActionExplanationRequested},
		{domain.ActionExplanationSubmitted, domain.ActionExplanationSubmitted},
		{domain.ActionUnderInvestigation, domain.ActionUnderInvestigation},
	}
	for _, tc := range cases {
		t.Run(string(tc.from), func(t *testing.T) {
			a := issued()
			a.Status = tc.from
			next, err := casework.AssignInvestigator(a, "inv-9", now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, next.Status)
			assert.Equal(t, "inv-9", *next.InvestigatorID)
		})
	}
}

func TestCompleteInvestigationBlocksSecondRun(t *testing.T) {
	a, err := casework.CompleteInvestigation(issued(), "interviewed witnesses", "late three times", "final warning", now)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAwaitingVerdict, a.Status)
	require.NotNil(t, a.InvestigationCompletedAt)

	_, err = casework.CompleteInvestigation(a, "more notes", "", "", now)
	var gv casework.GuardViolation
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, casework.GuardCanInvestigate, gv.Guard)
}

func TestVerdictMapping(t *testing.T) {
	cases := map[string]domain.Verdict{
		"uphold":           domain.VerdictGuilty,
		"dismiss":          domain.VerdictDismissed,
		"not_guilty":       domain.VerdictNotGuilty,
		"partially_guilty": domain.VerdictPartiallyGuilty,
		"guilty":           domain.VerdictGuilty,
	}
	for input, want := range cases {
		t.Run(input, func(t *testing.T) {
			a := issued()
			a.Status = domain.ActionAwaitingVerdict
			next, err := casework.IssueVerdict(a, input, "details", now)
			require.NoError(t, err)
			require.NotNil(t, next.Verdict)
			assert.Equal(t, want, *next.Verdict)
			assert.Equal(t, domain.ActionCompleted, next.Status)
		})
	}

	a := issued()
	a.Status = domain.ActionAwaitingVerdict
	_, err := casework.IssueVerdict(a, "maybe", "", now)
	var ve casework.ValidationError
	require.ErrorAs(t, err, &ve)
}

type transition func(domain.DisciplinaryAction) (domain.DisciplinaryAction, error)

var transitions = map[string]transition{
	"request": func(a domain.DisciplinaryAction) (domain.DisciplinaryAction, error) {
		return casework.RequestExplanation(a, nil, now, 0)
	},
	"submit": func(a domain.DisciplinaryAction) (domain.DisciplinaryAction, error) {
		return casework.SubmitExplanation(a, "text", now)
	},
	"assign": func(a domain.DisciplinaryAction) (domain.DisciplinaryAction, error) {
		return casework.AssignInvestigator(a, "inv-1", now)
	},
	"complete": func(a domain.DisciplinaryAction) (domain.DisciplinaryAction, error) {
		return casework.CompleteInvestigation(a, "notes", "", "", now)
	},
	"verdict": func(a domain.DisciplinaryAction) (domain.DisciplinaryAction, error) {
		return casework.IssueVerdict(a, "uphold", "", now)
	},
}

func TestTerminalActionRejectsEverything(t *testing.T) {
	a := issued()
	a.Status = domain.ActionAwaitingVerdict
	a.InvestigationNotes = "notes"
	a, err := casework.IssueVerdict(a, "dismiss", "no evidence", now)
	require.NoError(t, err)

	for name, fn := range transitions {
		t.Run(name, func(t *testing.T) {
			before := a
			got, err := fn(a)
			var gv casework.GuardViolation
			require.ErrorAs(t, err, &gv)
			assert.True(t, reflect.DeepEqual(before, got), "action changed on rejected %s", name)
			assert.Equal(t, before, gv.Current)
		})
	}
}

func TestRejectedTransitionsLeaveActionUnchanged(t *testing.T) {
	states := []domain.DisciplinaryAction{issued()}
	withNotes := issued()
	withNotes.Status = domain.ActionUnderInvestigation
	withNotes.InvestigationNotes = "done"
	states = append(states, withNotes)
	submitted := issued()
	submitted.Status = domain.ActionExplanationSubmitted
	submitted.EmployeeExplanation = "text"
	submitted.ExplanationSubmittedAt = ptr(now)
	states = append(states, submitted)

	for _, s := range states {
		for name, fn := range transitions {
			got, err := fn(s)
			var gv casework.GuardViolation
			if !errors.As(err, &gv) {
				continue
			}
			assert.True(t, reflect.DeepEqual(s, got), "%s from %s mutated action", name, s.Status)
		}
	}
}

func TestIsExplanationOverdue(t *testing.T) {
	a := issued()
	assert.False(t, casework.IsExplanationOverdue(a, now))
	a.DueDate = ptr(now.Add(-time.Minute))
	assert.True(t, casework.IsExplanationOverdue(a, now))
	a.EmployeeExplanation = "sent"
	assert.False(t, casework.IsExplanationOverdue(a, now))
	a.EmployeeExplanation = ""
	a.DueDate = ptr(now.Add(time.Minute))
	assert.False(t, casework.IsExplanationOverdue(a, now))
}
