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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintboard/internal/actor"
	"sprintboard/internal/app"
	"sprintboard/internal/board"
	"sprintboard/internal/config"
	"sprintboard/internal/domain"
	"sprintboard/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var in engine.CreateProjectInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project (organization admins only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				p, err := env.Engine.CreateProject(ctx, currentActor(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.OrgID, "org", "", "organization (defaults to --org-id)")
	cmd.Flags().StringVar(&in.Name, "name", "", "project name")
	cmd.Flags().StringVar(&in.Key, "key", "", "short project key, e.g. WEB")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func projectListCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects of an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.ListProjects(ctx, currentActor(), orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Key", "Name", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Key, p.Name, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization (defaults to --org-id)")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its sprints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				p, err := env.Engine.GetProject(ctx, currentActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project with its sprints and issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Engine.DeleteProject(ctx, currentActor(), args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func memberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage organization members"}
	var orgID, role string
	add := &cobra.Command{
		Use:   "add <actor-id>",
		Short: "Grant a role in an organization. The first member of an organization needs no admin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if orgID == "" {
					orgID = currentActor().OrgID
				}
				m, err := env.Engine.AddMember(ctx, currentActor(), orgID, args[0], actor.NormalizeRole(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	add.Flags().StringVar(&orgID, "org", "", "organization (defaults to --org-id)")
	add.Flags().StringVar(&role, "role", "member", "admin or member")
	mem.AddCommand(add)
	return mem
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage user profiles"}
	var in engine.ProfileInput
	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create or refresh the caller's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				u, err := env.Engine.EnsureUser(ctx, currentActor(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	ensure.Flags().StringVar(&in.Name, "name", "", "display name")
	ensure.Flags().StringVar(&in.Email, "email", "", "email")
	ensure.Flags().StringVar(&in.ImageURL, "image-url", "", "avatar url")
	usr.AddCommand(ensure)
	return usr
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP API"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the caller; the key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				plain, key, err := env.Engine.CreateAPIKey(ctx, currentActor(), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "name": key.Name, "key": plain, "created_at": key.CreatedAt})
				}
				fmt.Println(plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	keys.AddCommand(create)
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the caller's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.ListAPIKeys(ctx, currentActor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke one of the caller's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Engine.RevokeAPIKey(ctx, currentActor(), args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	})
	return keys
}

func sprintCmd() *cobra.Command {
	spr := &cobra.Command{
		Use:   "sprint",
		Short: "Manage sprints",
		Long:  "Sprints move PLANNED -> ACTIVE -> COMPLETED. A sprint starts only inside its date window.",
	}
	spr.AddCommand(sprintCreateCmd())
	spr.AddCommand(sprintListCmd())
	spr.AddCommand(sprintTransitionCmd("start", "Start a planned sprint", domain.SprintActive))
	spr.AddCommand(sprintTransitionCmd("complete", "Complete an active sprint", domain.SprintCompleted))
	return spr
}

func sprintCreateCmd() *cobra.Command {
	var projectID string
	var in engine.CreateSprintInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a planned sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				s, err := env.Engine.CreateSprint(ctx, currentActor(), projectID, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&in.Name, "name", "", "sprint name")
	cmd.Flags().StringVar(&in.StartDate, "start", "", "start date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&in.EndDate, "end", "", "end date (YYYY-MM-DD or RFC3339)")
	for _, f := range []string{"project", "name", "start", "end"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func sprintListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sprints of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.ListSprints(ctx, currentActor(), projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				now := time.Now()
				tw := newTable(table.Row{"ID", "Name", "Status", "Start", "End", "Note"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.Status, s.StartDate, s.EndDate, board.StatusText(s, now)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func sprintTransitionCmd(use, short, target string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <sprint-id>",
		Short: short + " (organization admins only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				s, err := env.Engine.RequestTransition(ctx, currentActor(), args[0], target)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func issueCmd() *cobra.Command {
	iss := &cobra.Command{
		Use:   "issue",
		Short: "Manage issues",
		Long:  "Issues live in a column (TODO, IN_PROGRESS, IN_REVIEW, DONE) and are ordered inside it.",
	}
	iss.AddCommand(issueCreateCmd())
	iss.AddCommand(issueListCmd())
	iss.AddCommand(issueUpdateCmd())
	iss.AddCommand(issueDeleteCmd())
	iss.AddCommand(issueMoveCmd())
	iss.AddCommand(issueReorderCmd())
	return iss
}

func issueCreateCmd() *cobra.Command {
	var projectID string
	var in engine.CreateIssueInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an issue at the end of its column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				issue, err := env.Engine.CreateIssue(ctx, currentActor(), projectID, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(issue)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Status, "status", domain.StatusTodo, "column")
	cmd.Flags().StringVar(&in.Priority, "priority", domain.PriorityMedium, "LOW, MEDIUM, HIGH or URGENT")
	cmd.Flags().StringVar(&in.SprintID, "sprint", "", "sprint id (empty for backlog)")
	cmd.Flags().StringVar(&in.AssigneeID, "assignee", "", "assignee user id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func issueListCmd() *cobra.Command {
	var sprintID string
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the issues of a sprint, or the caller's issues with --mine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				var (
					items []domain.Issue
					err   error
				)
				switch {
				case mine:
					items, err = env.Engine.UserIssues(ctx, currentActor())
				case sprintID != "":
					items, err = env.Engine.ListSprintIssues(ctx, currentActor(), sprintID)
				default:
					return errors.New("--sprint or --mine is required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Order", "Priority", "Assignee"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Title, it.Status, it.Order, it.Priority, assigneeName(it)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sprintID, "sprint", "", "sprint id")
	cmd.Flags().BoolVar(&mine, "mine", false, "issues assigned to the caller")
	return cmd
}

func issueUpdateCmd() *cobra.Command {
	var title, description, status, priority, assignee string
	cmd := &cobra.Command{
		Use:   "update <issue-id>",
		Short: "Update issue fields. A new status appends the issue to that column.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in engine.UpdateIssueInput
			changed := func(name string, v *string) *string {
				if cmd.Flags().Changed(name) {
					return v
				}
				return nil
			}
			in.Title = changed("title", &title)
			in.Description = changed("description", &description)
			in.Status = changed("status", &status)
			in.Priority = changed("priority", &priority)
			in.AssigneeID = changed("assignee", &assignee)
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				issue, err := env.Engine.UpdateIssue(ctx, currentActor(), args[0], in)
				if err != nil {
					return err
				}
				return printJSONOrTable(issue)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "column")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id (empty to clear)")
	return cmd
}

func issueDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <issue-id>",
		Short: "Delete an issue (reporter or organization admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Engine.DeleteIssue(ctx, currentActor(), args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func issueMoveCmd() *cobra.Command {
	var to string
	var index int
	cmd := &cobra.Command{
		Use:   "move <issue-id>",
		Short: "Drag an issue to a column position on its sprint board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a := currentActor()
				issue, err := env.Engine.Repo.GetIssue(ctx, args[0])
				if err != nil {
					return err
				}
				if issue.SprintID == nil {
					return domain.Invalid("issue %s is not in a sprint", issue.ID)
				}
				s, err := env.Engine.GetSprint(ctx, a, *issue.SprintID)
				if err != nil {
					return err
				}
				items, err := env.Engine.ListSprintIssues(ctx, a, s.ID)
				if err != nil {
					return err
				}
				source, ok := positionOf(items, issue.ID)
				if !ok {
					return domain.NotFoundError{Kind: "issue", ID: issue.ID}
				}
				dest := board.Position{Status: source.Status, Index: index}
				if to != "" {
					dest.Status = strings.ToUpper(to)
				}
				session := board.NewSession(board.ReordererFunc(func(ctx context.Context, moves []domain.IssueMove) error {
					return env.Engine.Reorder(ctx, a, moves)
				}), s, items)
				if err := session.Drag(ctx, source, &dest); err != nil {
					if errors.Is(err, board.ErrNoop) {
						fmt.Println("nothing to move")
						return nil
					}
					return err
				}
				return renderBoard(s, session.Board(board.Filter{}))
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "destination column (defaults to the current one)")
	cmd.Flags().IntVar(&index, "index", 0, "destination position in the column, 0 is the top")
	return cmd
}

func issueReorderCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "reorder",
		Short: "Apply a raw reorder payload ([{issue_id,status,order}]) from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := os.Stdin
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var moves []domain.IssueMove
			if err := json.NewDecoder(in).Decode(&moves); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Engine.Reorder(ctx, currentActor(), moves); err != nil {
					return err
				}
				fmt.Printf("reordered %d issues\n", len(moves))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "payload file, - for stdin")
	return cmd
}

func boardCmd() *cobra.Command {
	brd := &cobra.Command{Use: "board", Short: "Sprint boards"}
	var f board.Filter
	var assignees string
	show := &cobra.Command{
		Use:   "show <sprint-id>",
		Short: "Show a sprint board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range strings.Split(assignees, ",") {
				if a = strings.TrimSpace(a); a != "" {
					f.Assignees = append(f.Assignees, a)
				}
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a := currentActor()
				s, err := env.Engine.GetSprint(ctx, a, args[0])
				if err != nil {
					return err
				}
				items, err := env.Engine.ListSprintIssues(ctx, a, s.ID)
				if err != nil {
					return err
				}
				return renderBoard(s, board.Project(items, f))
			})
		},
	}
	show.Flags().StringVar(&f.Search, "search", "", "title search")
	show.Flags().StringVar(&assignees, "assignee", "", "comma separated assignee ids")
	show.Flags().StringVar(&f.Priority, "priority", "", "priority")
	brd.AddCommand(show)
	return brd
}

func renderBoard(s domain.Sprint, b board.Board) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"sprint": s, "board": b})
	}
	title := fmt.Sprintf("%s [%s]", s.Name, s.Status)
	if note := board.StatusText(s, time.Now()); note != "" {
		title += " " + note
	}
	header := table.Row{}
	depth := 0
	for _, c := range b.Columns {
		header = append(header, fmt.Sprintf("%s (%d)", c.Status, len(c.Issues)))
		if len(c.Issues) > depth {
			depth = len(c.Issues)
		}
	}
	tw := newTable(header)
	tw.SetTitle(title)
	for i := 0; i < depth; i++ {
		row := table.Row{}
		for _, c := range b.Columns {
			cell := ""
			if i < len(c.Issues) {
				cell = c.Issues[i].Title
				if name := assigneeName(c.Issues[i]); name != "" {
					cell += " @" + name
				}
			}
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d of %d shown", b.Shown, b.Total)})
	tw.Render()
	return nil
}

// positionOf finds an issue's column and index on the unfiltered board.
func positionOf(items []domain.Issue, issueID string) (board.Position, bool) {
	for _, c := range board.Project(items, board.Filter{}).Columns {
		for i, it := range c.Issues {
			if it.ID == issueID {
				return board.Position{Status: c.Status, Index: i}, true
			}
		}
	}
	return board.Position{}, false
}

func assigneeName(it domain.Issue) string {
	if it.Assignee != nil && it.Assignee.Name != "" {
		return it.Assignee.Name
	}
	return deref(it.AssigneeID)
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every change, newest first: project and sprint lifecycle, issue edits and board reorders.",
	}
	var n int
	var projectID, evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if projectID != "" {
					if _, err := env.Engine.GetProject(ctx, currentActor(), projectID); err != nil {
						return err
					}
				}
				items, err := env.Engine.Repo.LatestEvents(ctx, n, 0, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "When", "Type", "Entity", "Actor", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&projectID, "project", "", "project id (all projects when empty)")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in sprintboard.yml in the workspace. Missing keys take their defaults.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := c.Encode()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate sprintboard.yml",
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
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default sprintboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	return cfg
}
