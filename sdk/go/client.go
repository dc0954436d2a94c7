package caselinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Caseline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Report represents the API report model (partial).
type Report struct {
	ID                  string `json:"id"`
	ReportNumber        string `json:"report_number"`
	EmployeeID          string `json:"employee_id"`
	CategoryID          string `json:"category_id"`
	ReporterID          string `json:"reporter_id"`
	IncidentDate        string `json:"incident_date"`
	IncidentDescription string `json:"incident_description"`
	Priority            string `json:"priority"`
	Status              string `json:"status"`
	OverallStatus       string `json:"overall_status,omitempty"`
	ProgressPercent     int    `json:"progress_percent,omitempty"`
}

// Action represents a disciplinary action with its derived flags.
type Action struct {
	ID                   string  `json:"id"`
	ActionNumber         string  `json:"action_number"`
	EmployeeID           string  `json:"employee_id"`
	ReportID             *string `json:"report_id,omitempty"`
	InvestigatorID       *string `json:"investigator_id,omitempty"`
	IssuedBy             string  `json:"issued_by"`
	ActionType           string  `json:"action_type"`
	Status               string  `json:"status"`
	Verdict              *string `json:"verdict,omitempty"`
	DueDate              *string `json:"due_date,omitempty"`
	IsExplanationOverdue bool    `json:"is_explanation_overdue"`
	CanSubmitExplanation bool    `json:"can_submit_explanation"`
	CanInvestigate       bool    `json:"can_investigate"`
	CanIssueVerdict      bool    `json:"can_issue_verdict"`
}

// Status is a report's derived overall status.
type Status struct {
	ReportID        string `json:"report_id"`
	ReportNumber    string `json:"report_number"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	Description     string `json:"description"`
}

// ViolationSummary is the count and ordinal of a violation.
type ViolationSummary struct {
	Count          int    `json:"count"`
	Ordinal        string `json:"ordinal"`
	IsRepeat       bool   `json:"is_repeat"`
	WarningMessage string `json:"warning_message,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// FileReportRequest is the body of POST /reports.
type FileReportRequest struct {
	EmployeeID          string    `json:"employee_id"`
	CategoryID          string    `json:"category_id"`
	IncidentDate        time.Time `json:"incident_date"`
	IncidentDescription string    `json:"incident_description"`
	EvidenceRefs        []string  `json:"evidence_refs,omitempty"`
	Witnesses           []string  `json:"witnesses,omitempty"`
	Priority            string    `json:"priority,omitempty"`
}

// IssueActionRequest is the body of POST /actions.
type IssueActionRequest struct {
	EmployeeID    string     `json:"employee_id"`
	ReportID      string     `json:"report_id,omitempty"`
	ActionType    string     `json:"action_type"`
	ActionDetails string     `json:"action_details,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}

// APIError wraps non-2xx responses. Code is the server's error code when
// the body carries the standard error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsGuardViolation reports whether err is a rejected workflow transition.
func IsGuardViolation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "guard_violation"
}

// FileReport files an incident report.
func (c *Client) FileReport(ctx context.Context, in FileReportRequest) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports", in, &resp)
	return resp, err
}

// GetReport fetches a report by id or DR number.
func (c *Client) GetReport(ctx context.Context, ref string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, "reports/"+url.PathEscape(ref), nil, &resp)
	return resp, err
}

// ReviewReport moves a report under review.
func (c *Client) ReviewReport(ctx context.Context, ref string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports/"+url.PathEscape(ref)+"/review", nil, &resp)
	return resp, err
}

// DismissReport dismisses a report.
func (c *Client) DismissReport(ctx context.Context, ref, reason string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports/"+url.PathEscape(ref)+"/dismiss", map[string]any{"reason": reason}, &resp)
	return resp, err
}

// OverallStatus returns the status derived from a report's actions.
func (c *Client) OverallStatus(ctx context.Context, ref string) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "reports/"+url.PathEscape(ref)+"/status", nil, &resp)
	return resp, err
}

// IssueAction issues a disciplinary action.
func (c *Client) IssueAction(ctx context.Context, in IssueActionRequest) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodPost, "actions", in, &resp)
	return resp, err
}

// GetAction fetches an action by id or DA number.
func (c *Client) GetAction(ctx context.Context, ref string) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodGet, "actions/"+url.PathEscape(ref), nil, &resp)
	return resp, err
}

// OverdueActions lists actions whose explanation is past due.
func (c *Client) OverdueActions(ctx context.Context) ([]Action, error) {
	var resp struct {
		Items []Action `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "actions/overdue", nil, &resp)
	return resp.Items, err
}

// RequestExplanation asks for the employee's explanation. A nil due date
// uses the server's configured window.
func (c *Client) RequestExplanation(ctx context.Context, ref string, due *time.Time) (Action, error) {
	body := map[string]any{}
	if due != nil {
		body["due_date"] = due.UTC().Format(time.RFC3339)
	}
	return c.transition(ctx, ref, "explanation-request", body)
}

func (c *Client) SubmitExplanation(ctx context.Context, ref, explanation string) (Action, error) {
	return c.transition(ctx, ref, "explanation", map[string]any{"explanation": explanation})
}

func (c *Client) AssignInvestigator(ctx context.Context, ref, investigatorID string) (Action, error) {
	return c.transition(ctx, ref, "investigator", map[string]any{"investigator_id": investigatorID})
}

func (c *Client) CompleteInvestigation(ctx context.Context, ref, notes, findings, recommendation string) (Action, error) {
	return c.transition(ctx, ref, "investigation", map[string]any{
		"notes":          notes,
		"findings":       findings,
		"recommendation": recommendation,
	})
}

func (c *Client) IssueVerdict(ctx context.Context, ref, verdict, details string) (Action, error) {
	return c.transition(ctx, ref, "verdict", map[string]any{"verdict": verdict, "details": details})
}

// EmployeeViolations counts an employee's non-dismissed reports in a category.
func (c *Client) EmployeeViolations(ctx context.Context, employeeID, categoryID string) (ViolationSummary, error) {
	var resp ViolationSummary
	endpoint := fmt.Sprintf("employees/%s/violations?category_id=%s", url.PathEscape(employeeID), url.QueryEscape(categoryID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, ref, step string, body any) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodPost, "actions/"+url.PathEscape(ref)+"/"+step, body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
