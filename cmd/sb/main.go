package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintboard/internal/actor"
	"sprintboard/internal/app"
	"sprintboard/internal/db"
)

var rootCmd = &cobra.Command{
	Use:   "sb",
	Short: "Sprintboard CLI",
	Long: `Sprintboard tracks projects, sprints and issues on a Kanban board.
Core concepts:
- Workspace: the directory holding sprintboard.yml and the .sprintboard database.
- Organization: owns projects. Actors act in an organization as admin or member.
- Sprint: a dated window that moves PLANNED -> ACTIVE -> COMPLETED. Only admins move it.
- Issue: a card in one of TODO, IN_PROGRESS, IN_REVIEW, DONE, ordered within its column.
- Board: the issues of a sprint grouped by column. It can only be rearranged while the sprint is ACTIVE.
- Event log: every change, view with 'sb log tail'.`,
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
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("org-id", "", "active organization")
	flags.String("org-role", "", "role in the active organization (admin or member)")
	flags.String("log-level", "", "log level (overrides sprintboard.yml)")
	flags.String("dsn", "", "database DSN (overrides sprintboard.yml)")
	for _, name := range []string{"workspace", "json", "actor-id", "org-id", "org-role", "log-level", "dsn"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func currentActor() actor.Actor {
	return actor.Actor{
		ID:    strings.TrimSpace(viper.GetString("actor-id")),
		OrgID: strings.TrimSpace(viper.GetString("org-id")),
		Role:  actor.NormalizeRole(viper.GetString("org-role")),
	}
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(ctx, viper.GetString("workspace"), app.Options{
		LogLevel: viper.GetString("log-level"),
		DSN:      viper.GetString("dsn"),
	})
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
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

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
