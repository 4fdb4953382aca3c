package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/migrate"
	"stageline/internal/repo"
	"stageline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Stageline CLI",
	Long: `Stageline tracks project delivery through a fixed three-stage pipeline:
data, then design, then dev. Each stage has an accountable head who records
an estimate, works the stage, and completes it with the real start/end.
Completion reports working hours (weekends and holidays excluded) and the
penalty against the head's own estimate, then hands the project to the next
team. Admins manage users, holidays, head assignments, and their own
informational schedule overlay.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STAGELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "act as this user (id or email)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(holidayCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())
}

// principalFor resolves the --as flag against the user directory.
// Bootstrapping the first admin is the one operation that skips this; see
// userCreateCmd.
func principalFor(ctx context.Context, r repo.Repo) (domain.Principal, error) {
	ref := viper.GetString("as")
	if ref == "" {
		return domain.Principal{}, fmt.Errorf("--as <id or email> is required")
	}
	u, err := r.GetUserByRef(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Principal{}, fmt.Errorf("no user %q", ref)
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if !u.Active {
		return domain.Principal{}, fmt.Errorf("user %s is deactivated", u.Email)
	}
	return u.Principal(), nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withPrincipal(ctx context.Context, fn func(context.Context, engine.Engine, domain.Principal) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		p, err := principalFor(ctx, e.Repo)
		if err != nil {
			return err
		}
		return fn(ctx, e, p)
	})
}

func parseTimeFlag(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q (want RFC3339, e.g. 2026-03-02T09:00:00Z)", v)
	}
	return &t, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("initialized %s\n", db.Path(workspace))
			return nil
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectMineCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var title, desc, dataHead, designHead, devHead string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				proj, err := e.CreateProject(ctx, p, engine.CreateProjectOptions{
					Title:       title,
					Description: desc,
					Heads: map[domain.Team]string{
						domain.TeamData:   dataHead,
						domain.TeamDesign: designHead,
						domain.TeamDev:    devHead,
					},
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	cmd.Flags().StringVar(&dataHead, "data-head", "", "data stage head (id or email)")
	cmd.Flags().StringVar(&designHead, "design-head", "", "design stage head (id or email)")
	cmd.Flags().StringVar(&devHead, "dev-head", "", "dev stage head (id or email)")
	return cmd
}

func renderProjectTable(page repo.ProjectPage) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Current", "Version"})
	for _, p := range page.Items {
		current := ""
		if p.CurrentTeam != nil {
			current = string(*p.CurrentTeam)
		}
		tw.AppendRow(table.Row{p.ID, p.Title, p.Status, current, p.Version})
	}
	tw.Render()
	fmt.Printf("page %d/%d (%d total)\n", page.Page, page.TotalPages, page.Total)
}

func projectListCmd() *cobra.Command {
	var status string
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all projects (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				res, err := e.ListAll(ctx, p, domain.ProjectStatus(status), page, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderProjectTable(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 10, "page size")
	return cmd
}

func projectMineCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List projects I created or head",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				res, err := e.ListMine(ctx, p, page, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderProjectTable(res)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 10, "page size")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project aggregate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				proj, err := e.GetByIDWithAccess(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if err := e.DeleteProject(ctx, p, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func stageCmd() *cobra.Command {
	stage := &cobra.Command{Use: "stage", Short: "Work a pipeline stage"}
	stage.AddCommand(stageEstimateCmd())
	stage.AddCommand(stageCompleteCmd())
	stage.AddCommand(stageAdminExpectedCmd())
	stage.AddCommand(stageHeadsCmd())
	return stage
}

func stageEstimateCmd() *cobra.Command {
	var team, start string
	var hours float64
	cmd := &cobra.Command{
		Use:   "estimate <project-id>",
		Short: "Record the head's estimate for the active stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				startAt, err := parseTimeFlag(start)
				if err != nil {
					return err
				}
				proj, err := e.SetEstimate(ctx, p, args[0], domain.Team(team), engine.EstimateOptions{
					Start: startAt,
					Hours: hours,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "stage team (data|design|dev)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().StringVar(&start, "start", "", "planned start (RFC3339, default now)")
	return cmd
}

func stageCompleteCmd() *cobra.Command {
	var team, start, end string
	cmd := &cobra.Command{
		Use:   "complete <project-id>",
		Short: "Complete the active stage and advance the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				startAt, err := parseTimeFlag(start)
				if err != nil {
					return err
				}
				endAt, err := parseTimeFlag(end)
				if err != nil {
					return err
				}
				if startAt == nil || endAt == nil {
					return fmt.Errorf("--start and --end are required")
				}
				proj, report, err := e.CompleteStage(ctx, p, args[0], domain.Team(team), *startAt, *endAt)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": proj, "report": report})
				}
				fmt.Printf("stage %s done: actual %.2fh (%dd %.2fh), expected %.2fh, penalty %.2fh\n",
					team, report.ActualHours, report.ActualParts.Days, report.ActualParts.Hours,
					report.ExpectedHours, report.PenaltyHours)
				fmt.Printf("project %s is now %s\n", proj.ID, proj.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "stage team (data|design|dev)")
	cmd.Flags().StringVar(&start, "start", "", "actual start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "actual end (RFC3339)")
	return cmd
}

func stageAdminExpectedCmd() *cobra.Command {
	var team, start string
	var days int
	var hours float64
	cmd := &cobra.Command{
		Use:   "admin-expected <project-id>",
		Short: "Set the admin schedule overlay (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				startAt, err := parseTimeFlag(start)
				if err != nil {
					return err
				}
				opts := engine.AdminExpectedOptions{Start: startAt}
				if cmd.Flags().Changed("days") {
					opts.Days = &days
				}
				if cmd.Flags().Changed("hours") {
					opts.Hours = &hours
				}
				proj, err := e.UpdateAdminExpected(ctx, p, args[0], domain.Team(team), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "stage team (data|design|dev)")
	cmd.Flags().StringVar(&start, "start", "", "expected start (RFC3339)")
	cmd.Flags().IntVar(&days, "days", 0, "expected whole days")
	cmd.Flags().Float64Var(&hours, "hours", 0, "expected remainder hours")
	return cmd
}

func stageHeadsCmd() *cobra.Command {
	var dataHead, designHead, devHead string
	cmd := &cobra.Command{
		Use:   "heads <project-id>",
		Short: "Reassign stage heads (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				heads := map[domain.Team]string{}
				if dataHead != "" {
					heads[domain.TeamData] = dataHead
				}
				if designHead != "" {
					heads[domain.TeamDesign] = designHead
				}
				if devHead != "" {
					heads[domain.TeamDev] = devHead
				}
				proj, err := e.UpdateHeads(ctx, p, args[0], heads)
				if err != nil {
					return err
				}
				return printJSONOrTable(proj)
			})
		},
	}
	cmd.Flags().StringVar(&dataHead, "data-head", "", "new data stage head (id or email)")
	cmd.Flags().StringVar(&designHead, "design-head", "", "new design stage head (id or email)")
	cmd.Flags().StringVar(&devHead, "dev-head", "", "new dev stage head (id or email)")
	return cmd
}

func noteCmd() *cobra.Command {
	note := &cobra.Command{Use: "note", Short: "Stage note threads"}
	note.AddCommand(noteAddCmd())
	note.AddCommand(noteListCmd())
	note.AddCommand(noteEditCmd())
	note.AddCommand(noteRmCmd())
	return note
}

func noteAddCmd() *cobra.Command {
	var team, text string
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a note to a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				n, err := e.AddNote(ctx, p, args[0], domain.Team(team), text)
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "stage team (data|design|dev)")
	cmd.Flags().StringVar(&text, "text", "", "note text")
	return cmd
}

func noteListCmd() *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a stage's notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				notes, err := e.ListNotes(ctx, p, args[0], domain.Team(team))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Author", "Created", "Text"})
				for _, n := range notes {
					tw.AppendRow(table.Row{n.ID, n.AuthorID, n.CreatedAt, n.Text})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "stage team (data|design|dev)")
	return cmd
}

func noteEditCmd() *cobra.Command {
	var team, id, text string
	cmd := &cobra.Command{
		Use:   "edit <project-id>",
		Short: "Edit a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				n, err := e.UpdateNote(ctx, p, args[0], domain.Team(team), id, text)
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "stage team (data|design|dev)")
	cmd.Flags().StringVar(&id, "id", "", "note id")
	cmd.Flags().StringVar(&text, "text", "", "new text")
	return cmd
}

func noteRmCmd() *cobra.Command {
	var team, id string
	cmd := &cobra.Command{
		Use:   "rm <project-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if err := e.DeleteNote(ctx, p, args[0], domain.Team(team), id); err != nil {
					return err
				}
				fmt.Println("deleted", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "stage team (data|design|dev)")
	cmd.Flags().StringVar(&id, "id", "", "note id")
	return cmd
}

func holidayCmd() *cobra.Command {
	hol := &cobra.Command{Use: "holiday", Short: "Manage the holiday calendar"}
	hol.AddCommand(holidayAddCmd())
	hol.AddCommand(holidayListCmd())
	hol.AddCommand(holidayUpdateCmd())
	return hol
}

func holidayAddCmd() *cobra.Command {
	var date, name, category string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Declare a holiday (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				h, err := e.AddHoliday(ctx, p, date, name, domain.HolidayCategory(category))
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&name, "name", "", "holiday name")
	cmd.Flags().StringVar(&category, "category", string(domain.HolidayCompany), "company or national")
	return cmd
}

func holidayListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List holidays",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				holidays, err := e.ListHolidays(ctx, p, all)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(holidays)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Date", "Name", "Category", "Active"})
				for _, h := range holidays {
					tw.AppendRow(table.Row{h.ID, h.Date, h.Name, h.Category, h.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled holidays")
	return cmd
}

func holidayUpdateCmd() *cobra.Command {
	var name, category, active string
	cmd := &cobra.Command{
		Use:   "update <holiday-id>",
		Short: "Update a holiday (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				opts := engine.HolidayUpdateOptions{}
				if name != "" {
					opts.Name = &name
				}
				if category != "" {
					c := domain.HolidayCategory(category)
					opts.Category = &c
				}
				if active != "" {
					b, err := strconv.ParseBool(active)
					if err != nil {
						return fmt.Errorf("invalid --active %q", active)
					}
					opts.Active = &b
				}
				h, err := e.UpdateHoliday(ctx, p, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&category, "category", "", "company or national")
	cmd.Flags().StringVar(&active, "active", "", "true or false")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage the user directory"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userUpdateCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var name, email, role string
	var bootstrap bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (admin; --bootstrap for the first admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var p domain.Principal
				if bootstrap {
					// An empty directory has no admin to act as; the first
					// admin vouches for itself.
					users, err := e.Repo.ListUsers(ctx)
					if err != nil {
						return err
					}
					if len(users) > 0 {
						return fmt.Errorf("--bootstrap only works on an empty directory")
					}
					p = domain.Principal{ID: "bootstrap", Role: domain.RoleAdmin, Active: true}
					role = string(domain.RoleAdmin)
				} else {
					var err error
					p, err = principalFor(ctx, e.Repo)
					if err != nil {
						return err
					}
				}
				u, err := e.CreateUser(ctx, p, name, email, domain.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", "", "admin, data_head, design_head or dev_head")
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "create the first admin in an empty directory")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				users, err := e.ListUsers(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var name, email, role, active string
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Update a user (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				opts := engine.UserUpdateOptions{}
				if name != "" {
					opts.Name = &name
				}
				if email != "" {
					opts.Email = &email
				}
				if role != "" {
					r := domain.Role(role)
					opts.Role = &r
				}
				if active != "" {
					b, err := strconv.ParseBool(active)
					if err != nil {
						return fmt.Errorf("invalid --active %q", active)
					}
					opts.Active = &b
				}
				u, err := e.UpdateUser(ctx, p, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringVar(&role, "role", "", "new role")
	cmd.Flags().StringVar(&active, "active", "", "true or false")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail the audit log (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrincipal(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				events, err := e.TailEvents(ctx, p, projectID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Project", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ProjectID, evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 20, "number of events")
	cmd.Flags().StringVar(&projectID, "project", "", "scope to one project")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("STAGELINE_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("a JWT secret is required: set auth.jwt_secret in stageline.yml or STAGELINE_JWT_SECRET")
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: secret, DevLogin: cfg.Auth.DevLogin},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Stageline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
