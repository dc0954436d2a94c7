package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseline/internal/app"
	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/logger"
	"caseline/internal/repo"
	"caseline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Caseline CLI",
	Long: `Caseline runs the disciplinary case lifecycle for HR teams.
- Categories: the violation catalog with a severity and suggested actions.
- Reports: incidents filed against an employee, numbered DR-<year>-<seq>.
- Actions: formal actions (numbered DA-<year>-<seq>) that move through
  explanation -> investigation -> verdict.
- Status: a report's overall status is derived from its actions, never stored.
- Event log: every change is recorded, view with 'cl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CASELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded on events")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(violationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace and write caseline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cats, err := a.Engine.ListCategories(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Initialized %s with %d categories\n", db.Path(workspace), len(cats))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing caseline.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect caseline.yml",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate caseline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func categoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage violation categories",
	}
	cmd.AddCommand(categoryListCmd())
	cmd.AddCommand(categoryCreateCmd())
	cmd.AddCommand(categoryUpdateCmd())
	return cmd
}

func categoryListCmd() *cobra.Command {
	var all bool
	var severity string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				var (
					cats []domain.Category
					err  error
				)
				switch {
				case severity != "":
					cats, err = a.Engine.FilterBySeverity(ctx, domain.Severity(severity))
				case all:
					cats, err = a.Engine.ListCategories(ctx)
				default:
					cats, err = a.Engine.ListActiveCategories(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cats)
				}
				tw := newTable("ID", "Name", "Severity", "Active", "Suggested actions")
				for _, c := range cats {
					tw.AppendRow(table.Row{c.ID, c.Name, c.SeverityLevel, c.IsActive, strings.Join(c.SuggestedActions, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive categories")
	cmd.Flags().StringVar(&severity, "severity", "", "severity filter (low, medium, high, critical)")
	return cmd
}

func categoryCreateCmd() *cobra.Command {
	var in engine.CategoryInput
	var severity string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.SeverityLevel = domain.Severity(severity)
			in.ActorID = viper.GetString("actor-id")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.CreateCategory(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "category name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&severity, "severity", "", "severity (low, medium, high, critical)")
	cmd.Flags().StringArrayVar(&in.SuggestedActions, "suggest", nil, "suggested action (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("severity")
	return cmd
}

func categoryUpdateCmd() *cobra.Command {
	var name, description, severity string
	var suggest []string
	var active bool
	cmd := &cobra.Command{
		Use:   "update <category-id>",
		Short: "Update a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.CategoryPatch{ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("severity") {
				sev := domain.Severity(severity)
				patch.SeverityLevel = &sev
			}
			if cmd.Flags().Changed("suggest") {
				patch.SuggestedActions = suggest
			}
			if cmd.Flags().Changed("active") {
				patch.IsActive = &active
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.UpdateCategory(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "category name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&severity, "severity", "", "severity")
	cmd.Flags().StringArrayVar(&suggest, "suggest", nil, "suggested action (repeatable, replaces the list)")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func violationsCmd() *cobra.Command {
	var employeeID, categoryID string
	cmd := &cobra.Command{
		Use:   "violations",
		Short: "Count an employee's violations in a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				sum, err := a.Engine.GetViolationSummary(ctx, employeeID, categoryID)
				if err != nil {
					return err
				}
				return printJSON(sum)
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	cmd.Flags().StringVar(&categoryID, "category", "", "category id")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Engine.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor")
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS.Format(time.RFC3339), e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind (category, report, action)")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func tokenCmd() *cobra.Command {
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return errors.New("CASELINE_JWT_SECRET is required to sign tokens")
			}
			token, err := server.SignToken(secret, viper.GetString("actor-id"), roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&roles, "role", nil, "role claim (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func cliLogger() logrus.FieldLogger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	return logger.NewWithOutput("caseline-cli", os.Stderr, level)
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"), cliLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
