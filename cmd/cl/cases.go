package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseline/internal/app"
	"caseline/internal/domain"
	"caseline/internal/engine"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "File and triage incident reports",
	}
	cmd.AddCommand(reportFileCmd())
	cmd.AddCommand(reportListCmd())
	cmd.AddCommand(reportShowCmd())
	cmd.AddCommand(reportReviewCmd())
	cmd.AddCommand(reportDismissCmd())
	cmd.AddCommand(reportStatusCmd())
	cmd.AddCommand(reportViolationsCmd())
	return cmd
}

func reportFileCmd() *cobra.Command {
	var in engine.FileReportInput
	var incident, priority string
	cmd := &cobra.Command{
		Use:   "file",
		Short: "File an incident report against an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(incident)
			if err != nil {
				return err
			}
			in.IncidentDate = date
			in.Priority = domain.Priority(priority)
			in.ActorID = viper.GetString("actor-id")
			if in.ReporterID == "" {
				in.ReporterID = in.ActorID
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.FileReport(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("Filed %s (%s) against %s\n", rep.ReportNumber, rep.ID, rep.EmployeeID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.EmployeeID, "employee", "", "employee id")
	cmd.Flags().StringVar(&in.CategoryID, "category", "", "category id")
	cmd.Flags().StringVar(&incident, "date", "", "incident date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&in.IncidentDescription, "description", "", "what happened")
	cmd.Flags().StringVar(&in.ReporterID, "reporter", "", "reporter id (defaults to --actor-id)")
	cmd.Flags().StringArrayVar(&in.EvidenceRefs, "evidence", nil, "evidence reference (repeatable)")
	cmd.Flags().StringArrayVar(&in.Witnesses, "witness", nil, "witness id (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high)")
	for _, f := range []string{"employee", "category", "date", "description"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func reportListCmd() *cobra.Command {
	var q engine.ReportQuery
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Status = domain.ReportStatus(status)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				reports, err := a.Engine.ListReports(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				tw := newTable("Number", "Employee", "Category", "Incident", "Priority", "Status")
				for _, r := range reports {
					tw.AppendRow(table.Row{r.ReportNumber, r.EmployeeID, r.CategoryID, r.IncidentDate.Format("2006-01-02"), r.Priority, r.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.EmployeeID, "employee", "", "employee filter")
	cmd.Flags().StringVar(&q.CategoryID, "category", "", "category filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (reported, under_review, dismissed)")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "max rows")
	return cmd
}

func reportShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <report>",
		Short: "Show a report by id or DR number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
}

func reportReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <report>",
		Short: "Mark a report under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.MarkReviewed(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printReportState(rep)
			})
		},
	}
}

func reportDismissCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "dismiss <report>",
		Short: "Dismiss a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.DismissReport(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printReportState(rep)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "dismissal reason")
	return cmd
}

func reportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <report>",
		Short: "Show the overall case status derived from the report's actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				st, err := a.Engine.GetOverallStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("%s: %s (%d%%)\n%s\n", st.ReportNumber, st.Status, st.ProgressPercent, st.Description)
				return nil
			})
		},
	}
}

func reportViolationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "violations <report>",
		Short: "Show the violation count and ordinal for a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				sum, err := a.Engine.ReportViolationSummary(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(sum)
			})
		},
	}
}

func printReportState(rep domain.CaseReport) error {
	if viper.GetBool("json") {
		return printJSON(rep)
	}
	fmt.Printf("%s is %s\n", rep.ReportNumber, rep.Status)
	return nil
}

func actionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Issue disciplinary actions and move them through their workflow",
	}
	cmd.AddCommand(actionIssueCmd())
	cmd.AddCommand(actionListCmd())
	cmd.AddCommand(actionShowCmd())
	cmd.AddCommand(actionOverdueCmd())
	cmd.AddCommand(actionRequestExplanationCmd())
	cmd.AddCommand(actionExplainCmd())
	cmd.AddCommand(actionAssignCmd())
	cmd.AddCommand(actionInvestigateCmd())
	cmd.AddCommand(actionVerdictCmd())
	cmd.AddCommand(actionViolationsCmd())
	return cmd
}

func actionIssueCmd() *cobra.Command {
	var in engine.IssueActionInput
	var effective, due string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a disciplinary action",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.EffectiveDate, err = optionalDate(effective); err != nil {
				return err
			}
			if in.DueDate, err = optionalDate(due); err != nil {
				return err
			}
			if in.IssuedBy == "" {
				in.IssuedBy = viper.GetString("actor-id")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				act, err := a.Engine.IssueAction(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a.Engine.ViewAction(act))
				}
				fmt.Printf("Issued %s (%s) to %s\n", act.ActionNumber, act.ID, act.EmployeeID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.EmployeeID, "employee", "", "employee id")
	cmd.Flags().StringVar(&in.ReportID, "report", "", "linked report id or DR number")
	cmd.Flags().StringVar(&in.IssuedBy, "issued-by", "", "issuer (defaults to --actor-id)")
	cmd.Flags().StringVar(&in.ActionType, "type", "", "action type, e.g. written_warning")
	cmd.Flags().StringVar(&in.ActionDetails, "details", "", "action details")
	cmd.Flags().StringVar(&effective, "effective", "", "effective date")
	cmd.Flags().StringVar(&due, "due", "", "explanation due date")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func actionListCmd() *cobra.Command {
	var q engine.ActionQuery
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Status = domain.ActionStatus(status)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListActions(ctx, q)
				if err != nil {
					return err
				}
				return printActions(a.Engine, items)
			})
		},
	}
	cmd.Flags().StringVar(&q.EmployeeID, "employee", "", "employee filter")
	cmd.Flags().StringVar(&q.ReportID, "report", "", "report filter (id or DR number)")
	cmd.Flags().StringVar(&q.CategoryID, "category", "", "category filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "max rows")
	return cmd
}

func actionOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List actions whose explanation is past due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListOverdueActions(ctx)
				if err != nil {
					return err
				}
				return printActions(a.Engine, items)
			})
		},
	}
}

func actionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <action>",
		Short: "Show an action by id or DA number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				act, err := a.Engine.GetAction(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(a.Engine.ViewAction(act))
			})
		},
	}
}

func actionRequestExplanationCmd() *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "request-explanation <action>",
		Short: "Ask the employee for a written explanation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := optionalDate(due)
			if err != nil {
				return err
			}
			return runTransition(cmd, func(ctx context.Context, e engine.Engine, actorID string) (domain.DisciplinaryAction, error) {
				return e.RequestExplanation(ctx, args[0], engine.RequestExplanationInput{DueDate: dueDate, ActorID: actorID})
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date (defaults to the configured window)")
	return cmd
}

func actionExplainCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "explain <action>",
		Short: "Record the employee's explanation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, func(ctx context.Context, e engine.Engine, actorID string) (domain.DisciplinaryAction, error) {
				return e.SubmitExplanation(ctx, args[0], engine.SubmitExplanationInput{Explanation: text, ActorID: actorID})
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "explanation text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func actionAssignCmd() *cobra.Command {
	var investigator string
	cmd := &cobra.Command{
		Use:   "assign <action>",
		Short: "Assign an investigator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, func(ctx context.Context, e engine.Engine, actorID string) (domain.DisciplinaryAction, error) {
				return e.AssignInvestigator(ctx, args[0], engine.AssignInvestigatorInput{InvestigatorID: investigator, ActorID: actorID})
			})
		},
	}
	cmd.Flags().StringVar(&investigator, "investigator", "", "investigator id")
	_ = cmd.MarkFlagRequired("investigator")
	return cmd
}

func actionInvestigateCmd() *cobra.Command {
	var in engine.CompleteInvestigationInput
	cmd := &cobra.Command{
		Use:   "investigate <action>",
		Short: "Complete the investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, func(ctx context.Context, e engine.Engine, actorID string) (domain.DisciplinaryAction, error) {
				in.ActorID = actorID
				return e.CompleteInvestigation(ctx, args[0], in)
			})
		},
	}
	cmd.Flags().StringVar(&in.Notes, "notes", "", "investigation notes")
	cmd.Flags().StringVar(&in.Findings, "findings", "", "findings")
	cmd.Flags().StringVar(&in.Recommendation, "recommendation", "", "recommendation")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func actionVerdictCmd() *cobra.Command {
	var verdict, details string
	cmd := &cobra.Command{
		Use:   "verdict <action>",
		Short: "Issue the final verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, func(ctx context.Context, e engine.Engine, actorID string) (domain.DisciplinaryAction, error) {
				return e.IssueVerdict(ctx, args[0], engine.IssueVerdictInput{Verdict: verdict, Details: details, ActorID: actorID})
			})
		},
	}
	cmd.Flags().StringVar(&verdict, "verdict", "", "uphold, dismiss, guilty, not_guilty or partially_guilty")
	cmd.Flags().StringVar(&details, "details", "", "verdict details")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func actionViolationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "violations <action>",
		Short: "Show the violation count and ordinal for an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				sum, err := a.Engine.ActionViolationSummary(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(sum)
			})
		},
	}
}

func runTransition(cmd *cobra.Command, fn func(context.Context, engine.Engine, string) (domain.DisciplinaryAction, error)) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
		act, err := fn(ctx, a.Engine, viper.GetString("actor-id"))
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(a.Engine.ViewAction(act))
		}
		fmt.Printf("%s is %s\n", act.ActionNumber, act.Status)
		return nil
	})
}

func printActions(e engine.Engine, items []domain.DisciplinaryAction) error {
	if viper.GetBool("json") {
		views := make([]engine.ActionView, 0, len(items))
		for _, a := range items {
			views = append(views, e.ViewAction(a))
		}
		return printJSON(views)
	}
	tw := newTable("Number", "Employee", "Type", "Status", "Due", "Flags")
	for _, a := range items {
		v := e.ViewAction(a)
		due := ""
		if a.DueDate != nil {
			due = a.DueDate.Format("2006-01-02")
		}
		var flags []string
		if v.IsExplanationOverdue {
			flags = append(flags, "overdue")
		}
		if v.CanIssueVerdict {
			flags = append(flags, "verdict-ready")
		}
		tw.AppendRow(table.Row{a.ActionNumber, a.EmployeeID, a.ActionType, a.Status, due, strings.Join(flags, ",")})
	}
	tw.Render()
	return nil
}
