package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"steward/internal/app"
	"steward/internal/config"
	"steward/internal/db"
	"steward/internal/domain"
	"steward/internal/engine"
	"steward/internal/phase"
	"steward/internal/repo"
	"steward/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Steward CLI",
	Long: `Steward governs long-running directives through a fixed phase lifecycle.
Concepts:
- Workspace: the .steward directory holding the database; config is stored in the DB and imported explicitly.
- Directive: a unit of governed work moving LEAD_APPROVAL -> PLAN_DESIGN -> EXEC_IMPLEMENTATION -> PLAN_VERIFICATION -> LEAD_FINAL_APPROVAL -> COMPLETED.
- Handoff: the structured record that closes a phase; seven content elements are required and scored before acceptance.
- Orchestrator: a directive whose progress rolls up from its children.
- Decision: a question for the authority actor; aged pending decisions get escalation flags, never auto-answers.
- Work queue: background verification tasks, claimed by priority then age; failed tasks stay failed until requeued.
- Event log: diary of changes, view with 'steward log tail'.`,
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
	viper.SetEnvPrefix("STEWARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(directiveCmd())
	rootCmd.AddCommand(handoffCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(escalateCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())
}

func directiveCmd() *cobra.Command {
	dir := &cobra.Command{Use: "directive", Short: "Manage directives"}
	dir.AddCommand(directiveCreateCmd())
	dir.AddCommand(directiveListCmd())
	dir.AddCommand(directiveShowCmd())
	dir.AddCommand(directiveTreeCmd())
	dir.AddCommand(directiveAbandonCmd())
	dir.AddCommand(directiveOverrideCompleteCmd())
	return dir
}

func directiveCreateCmd() *cobra.Command {
	var title, desc, kind, parent, category, key string
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create directive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.DirectiveCreateOptions{
					Key:         key,
					Title:       title,
					Description: desc,
					Kind:        kind,
					ParentID:    parent,
					Category:    category,
					ActorID:     viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				d, err := e.CreateDirective(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "directive title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&kind, "kind", "standalone", "standalone, orchestrator or child")
	cmd.Flags().StringVar(&parent, "parent", "", "parent directive id or key (child only)")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&key, "key", "", "explicit key (generated when empty)")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func directiveListCmd() *cobra.Command {
	var f repo.DirectiveFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List directives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDirectives(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Title", "Kind", "Phase", "Status", "Progress"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.Key, d.Title, d.Kind, d.Phase, d.Status, fmt.Sprintf("%d%%", d.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&f.Phase, "phase", "", "phase filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func directiveShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <directive>",
		Short: "Show a directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDirective(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func directiveTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <directive>",
		Short: "Show an orchestrator with its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDirective(ctx, args[0])
				if err != nil {
					return err
				}
				children, err := e.Repo.ListChildren(ctx, d.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"directive": d, "children": children})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Title", "Phase", "Status", "Progress"})
				tw.AppendRow(table.Row{d.Key, d.Title, d.Phase, d.Status, fmt.Sprintf("%d%%", d.Progress)})
				for _, c := range children {
					tw.AppendRow(table.Row{"  " + c.Key, c.Title, c.Phase, c.Status, fmt.Sprintf("%d%%", c.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func directiveAbandonCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abandon <directive>",
		Short: "Abandon a directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AbandonDirective(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the directive is abandoned")
	return cmd
}

func directiveOverrideCompleteCmd() *cobra.Command {
	var justification string
	cmd := &cobra.Command{
		Use:   "override-complete <directive>",
		Short: "Force-complete a directive past the progress gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.OverrideComplete(ctx, args[0], justification, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&justification, "justification", "", "mandatory audit justification")
	_ = cmd.MarkFlagRequired("justification")
	return cmd
}

func handoffCmd() *cobra.Command {
	h := &cobra.Command{Use: "handoff", Short: "Submit and inspect phase handoffs"}
	h.AddCommand(handoffSubmitCmd())
	h.AddCommand(handoffListCmd())
	return h
}

func handoffSubmitCmd() *cobra.Command {
	var handoffType, contentFile string
	var force bool
	var content domain.HandoffContent
	cmd := &cobra.Command{
		Use:   "submit <directive>",
		Short: "Submit a phase handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &content); err != nil {
					return fmt.Errorf("parse content file: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				h, err := e.SubmitHandoff(ctx, engine.HandoffSubmitOptions{
					DirectiveID: args[0],
					Type:        handoffType,
					Content:     content,
					Force:       force,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&handoffType, "type", "", "handoff type (LEAD-TO-PLAN, PLAN-TO-EXEC, EXEC-TO-PLAN, PLAN-TO-LEAD, LEAD-FINAL-APPROVAL)")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "JSON file with the seven content elements")
	cmd.Flags().StringVar(&content.ExecutiveSummary, "summary", "", "executive summary")
	cmd.Flags().StringVar(&content.DeliverablesManifest, "deliverables", "", "deliverables manifest")
	cmd.Flags().StringVar(&content.KeyDecisions, "decisions", "", "key decisions")
	cmd.Flags().StringVar(&content.KnownIssues, "issues", "", "known issues")
	cmd.Flags().StringVar(&content.ResourceUtilization, "resources", "", "resource utilization")
	cmd.Flags().StringVar(&content.ActionItems, "actions", "", "action items")
	cmd.Flags().StringVar(&content.CompletenessReport, "completeness", "", "completeness report")
	cmd.Flags().BoolVar(&force, "force", false, "accept despite failed content validation")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func handoffListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <directive>",
		Short: "List handoffs for a directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDirective(ctx, args[0])
				if err != nil {
					return err
				}
				items, err := e.Repo.ListHandoffs(ctx, d.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Type", "Status", "Score", "Passed", "From", "To", "Created"})
				for _, h := range items {
					tw.AppendRow(table.Row{h.Type, h.Status, h.ValidationScore, h.ValidationPassed, h.FromPhase, h.ToPhase, h.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <directive>",
		Short: "Derived progress report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.ComputeProgress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Phase", "Earned"})
				for _, p := range phase.Working() {
					tw.AppendRow(table.Row{p, rep.Breakdown[p]})
				}
				tw.AppendFooter(table.Row{"TOTAL", fmt.Sprintf("%d%%", rep.Percent)})
				tw.Render()
				for _, c := range rep.Children {
					fmt.Printf("child %s: %d%% (%s)\n", c.Key, c.Percent, c.Phase)
				}
				return nil
			})
		},
	}
	return cmd
}

func reconcileCmd() *cobra.Command {
	var remediate bool
	cmd := &cobra.Command{
		Use:   "reconcile <directive>",
		Short: "Audit stored progress against derived values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Reconcile(ctx, args[0], remediate, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
	cmd.Flags().BoolVar(&remediate, "remediate", false, "refresh stale cached scores")
	return cmd
}

func decisionCmd() *cobra.Command {
	dec := &cobra.Command{Use: "decision", Short: "Manage authority decisions"}
	dec.AddCommand(decisionCreateCmd())
	dec.AddCommand(decisionListCmd())
	dec.AddCommand(decisionResolveCmd())
	return dec
}

func decisionCreateCmd() *cobra.Command {
	var directive, title, desc string
	var blocking bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Raise a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDecision(ctx, engine.DecisionCreateOptions{
					DirectiveID: directive,
					Title:       title,
					Description: desc,
					Blocking:    blocking,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&directive, "directive", "", "directive id or key")
	cmd.Flags().StringVar(&title, "title", "", "decision title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().BoolVar(&blocking, "blocking", false, "blocks the directive until resolved")
	_ = cmd.MarkFlagRequired("directive")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func decisionListCmd() *cobra.Command {
	var directive, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.DecisionFilters{Status: status, Limit: limit}
				if directive != "" {
					d, err := e.Repo.GetDirective(ctx, directive)
					if err != nil {
						return err
					}
					f.DirectiveID = d.ID
				}
				items, err := e.Repo.ListDecisions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Blocking", "Urgent", "Created"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Title, d.Status, d.Blocking, d.RequiresUrgentReview, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&directive, "directive", "", "directive id or key")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func decisionResolveCmd() *cobra.Command {
	var verdict string
	cmd := &cobra.Command{
		Use:   "resolve <decision-id>",
		Short: "Record the authority verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.ResolveDecision(ctx, args[0], verdict, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&verdict, "verdict", "", "approved or rejected")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func escalateCmd() *cobra.Command {
	esc := &cobra.Command{Use: "escalate", Short: "Escalation monitor"}
	esc.AddCommand(escalateSweepCmd())
	return esc
}

func escalateSweepCmd() *cobra.Command {
	var timeoutHours int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Annotate aged pending decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.SweepOptions{DryRun: dryRun, ActorID: viper.GetString("actor-id")}
				if timeoutHours > 0 {
					opts.Timeout = time.Duration(timeoutHours) * time.Hour
				}
				res, err := e.SweepEscalations(ctx, opts)
				if err != nil {
					return err
				}
				for _, perr := range res.Errors {
					fmt.Fprintf(os.Stderr, "sweep: decision %s: %s\n", perr.DecisionID, perr.Error)
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().IntVar(&timeoutHours, "timeout-hours", 0, "override configured timeout")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func queueCmd() *cobra.Command {
	q := &cobra.Command{Use: "queue", Short: "Work queue"}
	q.AddCommand(queueRunCmd())
	q.AddCommand(queueAddCmd())
	q.AddCommand(queueListCmd())
	q.AddCommand(queueRequeueCmd())
	return q
}

func queueRunCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the work queue dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				disp := engine.NewDispatcher(e)
				if once {
					for {
						ran, err := disp.RunOnce(ctx)
						if err != nil {
							return err
						}
						if !ran {
							return nil
						}
					}
				}
				fmt.Printf("polling every %s, Ctrl-C to stop\n", disp.PollInterval)
				err := disp.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "drain pending tasks and exit")
	return cmd
}

func queueAddCmd() *cobra.Command {
	var directive, kind, payload string
	var priority int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enqueue a work task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.EnqueueWorkTask(ctx, directive, kind, priority, payload, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&directive, "directive", "", "directive id or key")
	cmd.Flags().StringVar(&kind, "kind", "", "task kind (progress.recompute, drift.audit)")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority, higher runs first")
	_ = cmd.MarkFlagRequired("directive")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func queueListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkTasks(ctx, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Status", "Priority", "Error", "Created"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Kind, t.Status, t.Priority, t.Error, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func queueRequeueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue <task-id>",
		Short: "Requeue a failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RequeueWorkTask(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				t, err := e.Repo.GetWorkTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var limit int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Latest audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Governance config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default steward.yml to the workspace",
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
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate and store config from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			cfg, err := a.ImportConfig(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Directive counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.CountDirectivesByStatus(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(counts)
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Steward API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8321", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine.Repo)
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
