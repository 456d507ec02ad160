package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"okrline/internal/app"
	"okrline/internal/config"
	"okrline/internal/db"
	"okrline/internal/domain"
	"okrline/internal/engine"
	"okrline/internal/logger"
	"okrline/internal/repo"
	"okrline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "okr",
	Short: "okrline CLI",
	Long: `okrline keeps team objectives and their key results.
- Team: owns objectives; members get a role whose permissions gate every API call.
- Objective: title, description, status (ACTIVE, COMPLETED, ARCHIVED) and a date range.
- Key result: a measurable target under an objective, moved forward with 'okr kr progress'.
- Patch applies only the fields it knows and never touches key results; replace rewrites everything.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OKRLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("team", "t", "", "team slug")
	rootCmd.PersistentFlags().String("db-driver", "", "database driver (sqlite or postgres); overrides okrline.yml")
	rootCmd.PersistentFlags().String("db-dsn", "", "database DSN; overrides okrline.yml")
	for _, name := range []string{"workspace", "json", "team", "db-driver", "db-dsn"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(objectiveCmd())
	rootCmd.AddCommand(keyResultCmd())
	rootCmd.AddCommand(initiativeCmd())
	rootCmd.AddCommand(jiraCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage okrline.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default okrline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	c.AddCommand(initCmd, showCmd)
	return c
}

func teamCmd() *cobra.Command {
	c := &cobra.Command{Use: "team", Short: "Manage teams"}
	var slug, name, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a team owned by --owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := app.CreateTeam(ctx, e.Repo, slug, name, owner)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	create.Flags().StringVar(&slug, "slug", "", "team slug")
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&owner, "owner", "", "owner actor id")
	_ = create.MarkFlagRequired("slug")
	_ = create.MarkFlagRequired("owner")
	list := &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				teams, err := e.Repo.ListTeams(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				tw := newTable(table.Row{"Slug", "Name", "ID", "Created"})
				for _, t := range teams {
					tw.AppendRow(table.Row{t.Slug, t.Name, t.ID, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.AddCommand(create, list)
	return c
}

func memberCmd() *cobra.Command {
	c := &cobra.Command{Use: "member", Short: "Manage team members"}
	var actor, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or update a member of --team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := app.AddMember(ctx, e.Repo, e.Config, viper.GetString("team"), actor, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	add.Flags().StringVar(&actor, "actor", "", "actor id")
	add.Flags().StringVar(&role, "role", "", "role (defaults to rbac.default_role)")
	_ = add.MarkFlagRequired("actor")
	list := &cobra.Command{
		Use:   "list",
		Short: "List members of --team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				members, err := e.Repo.ListMembers(ctx, t.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := newTable(table.Row{"Actor", "Role", "Since"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ActorID, m.Role, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.AddCommand(add, list)
	return c
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := "okr_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "actorId": actor, "key": secret})
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "label")
	_ = create.MarkFlagRequired("actor")
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys of --actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	list.Flags().StringVar(&actor, "actor", "", "actor id")
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, revoke)
	return c
}

func objectiveCmd() *cobra.Command {
	c := &cobra.Command{Use: "objective", Aliases: []string{"obj"}, Short: "Manage objectives of --team"}
	c.AddCommand(objectiveListCmd(), objectiveShowCmd(), objectiveCreateCmd(), objectivePatchCmd(), objectiveReplaceCmd(), objectiveDeleteCmd())
	return c
}

func objectiveListCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objectives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				res, err := e.ListObjectives(ctx, t.ID, page, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"data": res.Items, "total": res.Total})
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Start", "End", "KRs"})
				for _, o := range res.Items {
					tw.AppendRow(table.Row{o.ID, o.Title, o.Status, o.StartDate, o.EndDate, len(o.KeyResults)})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "Total", res.Total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	return cmd
}

func objectiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an objective with its key results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				o, err := e.GetObjective(ctx, args[0], t.ID)
				if err != nil {
					return err
				}
				return printObjective(o)
			})
		},
	}
}

// objectiveFile is the on-disk shape accepted by create --file and replace.
type objectiveFile struct {
	Title       string          `json:"title" yaml:"title"`
	Description *string         `json:"description" yaml:"description"`
	Status      string          `json:"status" yaml:"status"`
	StartDate   string          `json:"startDate" yaml:"startDate"`
	EndDate     string          `json:"endDate" yaml:"endDate"`
	KeyResults  []keyResultFile `json:"keyResults" yaml:"keyResults"`
}

type keyResultFile struct {
	Title        string   `json:"title" yaml:"title"`
	TargetValue  *float64 `json:"targetValue" yaml:"targetValue"`
	CurrentValue *float64 `json:"currentValue" yaml:"currentValue"`
	Unit         *string  `json:"unit" yaml:"unit"`
	Status       string   `json:"status" yaml:"status"`
}

func (f objectiveFile) input() engine.ObjectiveInput {
	in := engine.ObjectiveInput{Title: f.Title, Status: f.Status, StartDate: f.StartDate, EndDate: f.EndDate}
	if f.Description != nil {
		in.Description = *f.Description
	}
	if f.KeyResults != nil {
		in.KeyResults = make([]engine.KeyResultInput, 0, len(f.KeyResults))
		for _, kr := range f.KeyResults {
			in.KeyResults = append(in.KeyResults, engine.KeyResultInput{
				Title:        kr.Title,
				TargetValue:  kr.TargetValue,
				CurrentValue: kr.CurrentValue,
				Unit:         kr.Unit,
				Status:       kr.Status,
			})
		}
	}
	return in
}

// readObjectiveFile parses YAML (a superset of JSON). "-" reads stdin.
func readObjectiveFile(path string) (objectiveFile, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return objectiveFile{}, err
	}
	var f objectiveFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return objectiveFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func objectiveCreateCmd() *cobra.Command {
	var f objectiveFile
	var description, file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an objective from flags or --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				parsed, err := readObjectiveFile(file)
				if err != nil {
					return err
				}
				f = parsed
			} else if cmd.Flags().Changed("description") {
				f.Description = &description
			}
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				o, err := e.CreateObjective(ctx, t.ID, f.input())
				if err != nil {
					return err
				}
				return printObjective(o)
			})
		},
	}
	cmd.Flags().StringVar(&f.Title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&f.Status, "status", "", "status (default ACTIVE)")
	cmd.Flags().StringVar(&f.StartDate, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.EndDate, "end", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON objective document, - for stdin")
	return cmd
}

func objectivePatchCmd() *cobra.Command {
	var title, description, status, start, end string
	cmd := &cobra.Command{
		Use:   "patch <id>",
		Short: "Update only the given fields of an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := changedFields(cmd, map[string]any{
				"title":       title,
				"description": description,
				"status":      status,
				"startDate":   start,
				"endDate":     end,
			}, map[string]string{"start": "startDate", "end": "endDate"})
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				o, err := e.PatchObjective(ctx, args[0], t.ID, body)
				if err != nil {
					return err
				}
				return printObjective(o)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	return cmd
}

func objectiveReplaceCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "replace <id>",
		Short: "Replace an objective from a document; keyResults, when present, replace all key results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readObjectiveFile(file)
			if err != nil {
				return err
			}
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				o, err := e.ReplaceObjective(ctx, args[0], t.ID, f.input())
				if err != nil {
					return err
				}
				return printObjective(o)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON objective document, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func objectiveDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an objective with its key results and initiatives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				return e.DeleteObjective(ctx, args[0], t.ID)
			})
		},
	}
}

func keyResultCmd() *cobra.Command {
	c := &cobra.Command{Use: "kr", Short: "Manage key results"}
	c.AddCommand(keyResultAddCmd(), keyResultPatchCmd(), keyResultProgressCmd(), keyResultDeleteCmd())
	return c
}

func keyResultAddCmd() *cobra.Command {
	var title, unit, status string
	var target, current float64
	cmd := &cobra.Command{
		Use:   "add <objective-id>",
		Short: "Append a key result to an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.KeyResultInput{Title: title, Status: status}
			if cmd.Flags().Changed("target") {
				in.TargetValue = &target
			}
			if cmd.Flags().Changed("current") {
				in.CurrentValue = &current
			}
			if unit != "" {
				in.Unit = &unit
			}
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				kr, err := e.CreateKeyResult(ctx, args[0], t.ID, in)
				if err != nil {
					return err
				}
				return printKeyResults([]domain.KeyResult{kr})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&target, "target", 0, "target value")
	cmd.Flags().Float64Var(&current, "current", 0, "current value")
	cmd.Flags().StringVar(&unit, "unit", "", "unit")
	cmd.Flags().StringVar(&status, "status", "", "status (default IN_PROGRESS)")
	return cmd
}

func keyResultPatchCmd() *cobra.Command {
	var title, unit, status string
	var target, current float64
	cmd := &cobra.Command{
		Use:   "patch <objective-id> <kr-id>",
		Short: "Update only the given fields of a key result; --unit '' clears the unit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := changedFields(cmd, map[string]any{
				"title":        title,
				"unit":         unit,
				"status":       status,
				"targetValue":  target,
				"currentValue": current,
			}, map[string]string{"target": "targetValue", "current": "currentValue"})
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				kr, err := e.PatchKeyResult(ctx, args[1], args[0], t.ID, body)
				if err != nil {
					return err
				}
				return printKeyResults([]domain.KeyResult{kr})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&target, "target", 0, "target value")
	cmd.Flags().Float64Var(&current, "current", 0, "current value")
	cmd.Flags().StringVar(&unit, "unit", "", "unit")
	cmd.Flags().StringVar(&status, "status", "", "status")
	return cmd
}

func keyResultProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <objective-id> <kr-id> <value>",
		Short: "Set the current value of a key result",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("value %q is not a number", args[2])
			}
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				kr, err := e.ReplaceKeyResultProgress(ctx, args[1], args[0], t.ID, value)
				if err != nil {
					return err
				}
				return printKeyResults([]domain.KeyResult{kr})
			})
		},
	}
}

func keyResultDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <objective-id> <kr-id>",
		Short: "Delete a key result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				return e.DeleteKeyResult(ctx, args[1], args[0], t.ID)
			})
		},
	}
}

func initiativeCmd() *cobra.Command {
	c := &cobra.Command{Use: "initiative", Short: "Manage initiatives"}
	var title, status string
	add := &cobra.Command{
		Use:   "add <objective-id>",
		Short: "Add an initiative to an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				item, err := e.CreateInitiative(ctx, args[0], t.ID, engine.InitiativeInput{Title: title, Status: status})
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "title")
	add.Flags().StringVar(&status, "status", "", "status (default PLANNED)")
	list := &cobra.Command{
		Use:   "list <objective-id>",
		Short: "List initiatives of an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				items, err := e.ListInitiatives(ctx, args[0], t.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Created"})
				for _, item := range items {
					tw.AppendRow(table.Row{item.ID, item.Title, item.Status, item.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.AddCommand(add, list)
	return c
}

func jiraCmd() *cobra.Command {
	c := &cobra.Command{Use: "jira", Short: "Link Jira issues to key results"}
	var url string
	link := &cobra.Command{
		Use:   "link <objective-id> <kr-id> <issue-key>",
		Short: "Link a Jira issue to a key result",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				l, err := e.AddJiraLink(ctx, args[0], args[1], t.ID, engine.JiraLinkInput{IssueKey: args[2], URL: url})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	link.Flags().StringVar(&url, "url", "", "issue URL")
	list := &cobra.Command{
		Use:   "list <objective-id> <kr-id>",
		Short: "List Jira issues linked to a key result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTeam(cmd.Context(), func(ctx context.Context, e engine.Engine, t domain.Team) error {
				links, err := e.ListJiraLinks(ctx, args[0], args[1], t.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(links)
				}
				tw := newTable(table.Row{"Issue", "URL", "Synced"})
				for _, l := range links {
					tw.AppendRow(table.Row{l.IssueKey, l.URL, l.SyncedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	c.AddCommand(link, list)
	return c
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if v := viper.GetString("log-level"); v != "" {
				level = v
			}
			log := logger.New("okrline", level)
			conn, e, err := app.Open(cmd.Context(), workspace, cfg, viper.GetString("db-driver"), viper.GetString("db-dsn"))
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				DevLogin:               devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("OKRLINE_JWT_SECRET is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", addr).Str("base_path", basePath).Bool("dev_login", devLogin).Msg("serving okrline API (OpenAPI at <base>/openapi.json, Swagger UI at /docs)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from okrline.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from okrline.yml)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login; never enable in production")
	cmd.Flags().String("log-level", "", "log level (default from okrline.yml)")
	_ = viper.BindPFlag("log-level", cmd.Flags().Lookup("log-level"))
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, e, err := app.Open(ctx, workspace, cfg, viper.GetString("db-driver"), viper.GetString("db-dsn"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func withTeam(ctx context.Context, fn func(context.Context, engine.Engine, domain.Team) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		t, err := app.ResolveTeam(ctx, e.Repo, viper.GetString("team"))
		if err != nil {
			return err
		}
		return fn(ctx, e, t)
	})
}

// changedFields keeps the values whose flags were set. rename maps flag names to body keys.
func changedFields(cmd *cobra.Command, values map[string]any, rename map[string]string) map[string]any {
	body := map[string]any{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key := f.Name
		if k, ok := rename[key]; ok {
			key = k
		}
		if v, ok := values[key]; ok {
			body[key] = v
		}
	})
	return body
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printObjective(o domain.Objective) error {
	if viper.GetBool("json") {
		return printJSON(o)
	}
	fmt.Printf("%s  %s [%s]\n", o.ID, o.Title, o.Status)
	fmt.Printf("%s -> %s\n", o.StartDate, o.EndDate)
	if o.Description != "" {
		fmt.Println(o.Description)
	}
	if len(o.KeyResults) == 0 {
		fmt.Println("No key results.")
		return nil
	}
	return printKeyResults(o.KeyResults)
}

func printKeyResults(krs []domain.KeyResult) error {
	if viper.GetBool("json") {
		if len(krs) == 1 {
			return printJSON(krs[0])
		}
		return printJSON(krs)
	}
	tw := newTable(table.Row{"ID", "Title", "Current", "Target", "Unit", "Status", "Jira"})
	for _, kr := range krs {
		unit := ""
		if kr.Unit != nil {
			unit = *kr.Unit
		}
		tw.AppendRow(table.Row{kr.ID, kr.Title, kr.CurrentValue, kr.TargetValue, unit, kr.Status, len(kr.JiraLinks)})
	}
	tw.Render()
	return nil
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
