package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"caseline/internal/casework"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/metrics"
	"caseline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Metrics  *metrics.Metrics
	Log      logrus.FieldLogger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"guard_violation"`
	Message string         `json:"message" example:"cannot issue verdict: action is action_issued"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"guard\":\"can_issue_verdict\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type out[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *out[T] {
	return &out[T]{Body: v}
}

// New returns an HTTP handler exposing the Caseline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema failures are plain bad requests
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(log, cfg.Metrics))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.Handler())
	}
	hcfg := huma.DefaultConfig("Caseline API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCategories(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerViolations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	if cfg.Auth.AllowDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var gv casework.GuardViolation
	if errors.As(err, &gv) {
		return newAPIError(http.StatusConflict, "guard_violation", err.Error(), map[string]any{
			"operation": gv.Operation,
			"guard":     gv.Guard,
			"reason":    gv.Reason,
			"status":    gv.Status,
			"current":   gv.Current,
		})
	}
	var ve casework.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"fields": ve.Fields})
	}
	var nf engine.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": nf.Kind, "id": nf.ID})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrSequenceConflict):
		return newAPIError(http.StatusConflict, "sequence_conflict", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requestLogger logs one line per request and feeds the request metrics,
// labelled by route pattern so ids stay out of the label set.
func requestLogger(log logrus.FieldLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			m.Request(r.Method, route, strconv.Itoa(status), elapsed.Seconds())
			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": elapsed.Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if status >= http.StatusInternalServerError {
				entry.Error("request failed")
				return
			}
			entry.Info("request")
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Caseline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerCategories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List categories",
		Description: "Active categories by default. Unknown severity levels yield an empty list.",
	}, func(ctx context.Context, input *struct {
		All      bool   `query:"all" doc:"Include inactive categories"`
		Severity string `query:"severity"`
	}) (*out[categoryList], error) {
		var (
			items []domain.Category
			err   error
		)
		switch {
		case input.Severity != "":
			items, err = e.FilterBySeverity(ctx, domain.Severity(input.Severity))
		case input.All:
			items, err = e.ListCategories(ctx)
		default:
			items, err = e.ListActiveCategories(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return respond(categoryList{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create category",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body engine.CategoryInput `json:"body"`
	}) (*out[domain.Category], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := input.Body
		in.ActorID = actorID
		c, err := e.CreateCategory(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-category",
		Method:      http.MethodGet,
		Path:        "/categories/{category_id}",
		Summary:     "Get category",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CategoryID string `path:"category_id"`
	}) (*out[domain.Category], error) {
		c, err := e.FindCategory(ctx, input.CategoryID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-category",
		Method:      http.MethodPatch,
		Path:        "/categories/{category_id}",
		Summary:     "Update category",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		CategoryID string               `path:"category_id"`
		Body       engine.CategoryPatch `json:"body"`
	}) (*out[domain.Category], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		patch := input.Body
		patch.ActorID = actorID
		c, err := e.UpdateCategory(ctx, input.CategoryID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(c), nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "file-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "File an incident report",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body engine.FileReportInput `json:"body"`
	}) (*out[domain.CaseReport], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := input.Body
		in.ActorID = actorID
		if strings.TrimSpace(in.ReporterID) == "" {
			in.ReporterID = actorID
		}
		rep, err := e.FileReport(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports, newest first",
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		CategoryID string `query:"category_id"`
		Status     string `query:"status" enum:"reported,under_review,dismissed"`
		Limit      int    `query:"limit" default:"50"`
	}) (*out[paginatedReports], error) {
		items, err := e.ListReports(ctx, engine.ReportQuery{
			EmployeeID: input.EmployeeID,
			CategoryID: input.CategoryID,
			Status:     domain.ReportStatus(input.Status),
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedReports{Items: nonNilSlice(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{report}",
		Summary:     "Get report by id or DR number",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*out[ReportResponse], error) {
		rep, err := e.GetReport(ctx, input.Report)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.GetOverallStatus(ctx, rep.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(reportResponse(rep, st)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report-status",
		Method:      http.MethodGet,
		Path:        "/reports/{report}/status",
		Summary:     "Overall case status derived from the report's actions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*out[engine.OverallStatus], error) {
		st, err := e.GetOverallStatus(ctx, input.Report)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-report",
		Method:      http.MethodPost,
		Path:        "/reports/{report}/review",
		Summary:     "Mark report reviewed",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *reportPath) (*out[domain.CaseReport], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.MarkReviewed(ctx, input.Report, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dismiss-report",
		Method:      http.MethodPost,
		Path:        "/reports/{report}/dismiss",
		Summary:     "Dismiss report",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Report string                `path:"report"`
		Body   *DismissReportRequest `json:"body,omitempty" required:"false"`
	}) (*out[domain.CaseReport], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reason := ""
		if input.Body != nil {
			reason = input.Body.Reason
		}
		rep, err := e.DismissReport(ctx, input.Report, actorID, reason)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rep), nil
	})
}

type reportPath struct {
	Report string `path:"report" doc:"Report id or DR number"`
}

type actionPath struct {
	Action string `path:"action" doc:"Action id or DA number"`
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "issue-action",
		Method:        http.MethodPost,
		Path:          "/actions",
		Summary:       "Issue a disciplinary action",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body engine.IssueActionInput `json:"body"`
	}) (*out[engine.ActionView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := input.Body
		if strings.TrimSpace(in.IssuedBy) == "" {
			in.IssuedBy = actorID
		}
		a, err := e.IssueAction(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(e.ViewAction(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "List actions, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `query:"employee_id"`
		ReportID   string `query:"report_id" doc:"Report id or DR number"`
		CategoryID string `query:"category_id"`
		Status     string `query:"status"`
		Limit      int    `query:"limit" default:"50"`
	}) (*out[paginatedActions], error) {
		items, err := e.ListActions(ctx, engine.ActionQuery{
			EmployeeID: input.EmployeeID,
			ReportID:   input.ReportID,
			CategoryID: input.CategoryID,
			Status:     domain.ActionStatus(input.Status),
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedActions{Items: viewActions(e, items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overdue-actions",
		Method:      http.MethodGet,
		Path:        "/actions/overdue",
		Summary:     "Actions with an overdue explanation",
	}, func(ctx context.Context, _ *struct{}) (*out[paginatedActions], error) {
		items, err := e.ListOverdueActions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(paginatedActions{Items: viewActions(e, items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/actions/{action}",
		Summary:     "Get action by id or DA number",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *actionPath) (*out[engine.ActionView], error) {
		a, err := e.GetAction(ctx, input.Action)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(e.ViewAction(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-explanation",
		Method:      http.MethodPost,
		Path:        "/actions/{action}/explanation-request",
		Summary:     "Request an explanation from the employee",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Action string                          `path:"action"`
		Body   *engine.RequestExplanationInput `json:"body,omitempty" required:"false"`
	}) (*out[engine.ActionView], error) {
		var in engine.RequestExplanationInput
		if input.Body != nil {
			in = *input.Body
		}
		return runTransition(ctx, e, func(actorID string) (domain.DisciplinaryAction, error) {
			in.ActorID = actorID
			return e.RequestExplanation(ctx, input.Action, in)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-explanation",
		Method:      http.MethodPost,
		Path:        "/actions/{action}/explanation",
		Summary:     "Submit the employee's explanation",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Action string                        `path:"action"`
		Body   engine.SubmitExplanationInput `json:"body"`
	}) (*out[engine.ActionView], error) {
		return runTransition(ctx, e, func(actorID string) (domain.DisciplinaryAction, error) {
			in := input.Body
			in.ActorID = actorID
			return e.SubmitExplanation(ctx, input.Action, in)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-investigator",
		Method:      http.MethodPost,
		Path:        "/actions/{action}/investigator",
		Summary:     "Assign an investigator",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Action string                         `path:"action"`
		Body   engine.AssignInvestigatorInput `json:"body"`
	}) (*out[engine.ActionView], error) {
		return runTransition(ctx, e, func(actorID string) (domain.DisciplinaryAction, error) {
			in := input.Body
			in.ActorID = actorID
			return e.AssignInvestigator(ctx, input.Action, in)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-investigation",
		Method:      http.MethodPost,
		Path:        "/actions/{action}/investigation",
		Summary:     "Record investigation results",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Action string                            `path:"action"`
		Body   engine.CompleteInvestigationInput `json:"body"`
	}) (*out[engine.ActionView], error) {
		return runTransition(ctx, e, func(actorID string) (domain.DisciplinaryAction, error) {
			in := input.Body
			in.ActorID = actorID
			return e.CompleteInvestigation(ctx, input.Action, in)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-verdict",
		Method:      http.MethodPost,
		Path:        "/actions/{action}/verdict",
		Summary:     "Issue the verdict and close the action",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Action string                   `path:"action"`
		Body   engine.IssueVerdictInput `json:"body"`
	}) (*out[engine.ActionView], error) {
		return runTransition(ctx, e, func(actorID string) (domain.DisciplinaryAction, error) {
			in := input.Body
			in.ActorID = actorID
			return e.IssueVerdict(ctx, input.Action, in)
		})
	})
}

func runTransition(ctx context.Context, e engine.Engine, fn func(actorID string) (domain.DisciplinaryAction, error)) (*out[engine.ActionView], error) {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return nil, authErr
	}
	a, err := fn(actorID)
	if err != nil {
		return nil, handleError(err)
	}
	return respond(e.ViewAction(a)), nil
}

func registerViolations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "employee-violations",
		Method:      http.MethodGet,
		Path:        "/employees/{employee_id}/violations",
		Summary:     "Violation count for an employee in a category",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EmployeeID string `path:"employee_id"`
		CategoryID string `query:"category_id" required:"true"`
	}) (*out[summaryBody], error) {
		sum, err := e.GetViolationSummary(ctx, input.EmployeeID, input.CategoryID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(summaryBody{ViolationSummary: sum, EmployeeID: input.EmployeeID, CategoryID: input.CategoryID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-violations",
		Method:      http.MethodGet,
		Path:        "/reports/{report}/violations",
		Summary:     "Place the report among the employee's reports in its category",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*out[summaryBody], error) {
		sum, err := e.ReportViolationSummary(ctx, input.Report)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(summaryBody{ViolationSummary: sum}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "action-violations",
		Method:      http.MethodGet,
		Path:        "/actions/{action}/violations",
		Summary:     "Place the action among the employee's actions in its category",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *actionPath) (*out[summaryBody], error) {
		sum, err := e.ActionViolationSummary(ctx, input.Action)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(summaryBody{ViolationSummary: sum}), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"category,report,action"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*out[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			BeforeID:   cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return respond(resp), nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[WhoAmIResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return respond(WhoAmIResponse{ActorID: p.ActorID, Roles: nonNilSlice(p.Roles), Source: p.Source}), nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*out[DevLoginResponse], error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, input.Body.Roles, authCfg.TokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		authCfg.logger().WithField("actor_id", actor).Warn("issued dev token")
		return respond(DevLoginResponse{Token: token}), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
