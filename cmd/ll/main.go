package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"launchline/internal/app"
	"launchline/internal/config"
	"launchline/internal/cycle"
	"launchline/internal/db"
	"launchline/internal/domain"
	"launchline/internal/engine"
	"launchline/internal/ledger"
	"launchline/internal/migrate"
	"launchline/internal/repo"
	"launchline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ll",
	Short: "Launchline CLI",
	Long: `Launchline tracks listing operations across their lifecycle and keeps score.
Core concepts:
- Workspace: your .launchline directory with only the database; configs live in the DB and are imported explicitly.
- Store: the shop that owns assets, members, and goals.
- Assets: listings that flow pending -> active -> maintenance, with abandoned and trashed as exits.
- Playbooks: day-by-day operation scripts (standard, sprint3, sprint7); each day lists the tasks to evidence.
- Evidence: screenshots attached per task slot; a day only advances once every slot has proof.
- Credit: a per-member score moved by a deduplicated event ledger; claiming from the pool needs a minimum score.
- Goals: member commitments with deadlines, checked weekly and penalized when overdue.
- Event log: journal of changes, view with 'll log tail'.`,
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
	viper.SetEnvPrefix("LAUNCHLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("store", "", "store id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
}

func registerCommands() {
	rootCmd.AddCommand(storeCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(creditCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func storeCmd() *cobra.Command {
	st := &cobra.Command{Use: "store", Short: "Manage stores"}
	st.AddCommand(storeInitCmd())
	st.AddCommand(storeListCmd())
	st.AddCommand(storeShowCmd())
	st.AddCommand(storeUseCmd())
	st.AddCommand(storeRemoveCmd())
	return st
}

func storeRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a store and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !viper.GetBool("force") {
				return fmt.Errorf("removing a store deletes its members, assets and history; confirm with --force")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteStore(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Removed store %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func storeInitCmd() *cobra.Command {
	var id, kind, desc string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			if kind != "" {
				cfg.Store.Kind = kind
			}
			e := engine.New(conn, cfg)
			s, err := e.InitStore(cmd.Context(), id, kind, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(s)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "store id")
	cmd.Flags().StringVar(&kind, "kind", "", "store kind (mall, factory)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func storeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStores(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func storeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("store")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Store.ID
				}
				s, err := e.Repo.GetStore(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func storeUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current store for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID := strings.TrimSpace(args[0])
			if storeID == "" {
				return fmt.Errorf("store id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "LAUNCHLINE_STORE", storeID); err != nil {
				return err
			}
			fmt.Printf("Set LAUNCHLINE_STORE=%s in %s/.env\n", storeID, workspace)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect store config",
		Long:  "Config is the rulebook (stored in DB): store id/kind, the playbook catalog, and credit thresholds. Import from launchline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configGenerateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace launchline.yml",
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
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import store config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			storeID := cfg.Store.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if storeID == "" {
					storeID = e.Config.Store.ID
				}
				if err := e.Repo.UpsertStoreConfig(ctx, storeID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configGenerateCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a default launchline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(id)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "store id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store stats",
		Long:  "See the scoreboard for your store: asset counts by status, credit spread, and goal completion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				storeID := e.Config.Store.ID
				s, err := e.Repo.GetStore(ctx, storeID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountAssetsByStatus(ctx, storeID)
				if err != nil {
					return err
				}
				creditStats, err := e.Repo.MemberCreditStats(ctx, storeID)
				if err != nil {
					return err
				}
				total, completed, err := e.Repo.GoalCompletionStats(ctx, storeID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"store_id":     s.ID,
					"status":       s.Status,
					"asset_counts": counts,
					"credit":       creditStats,
					"goals":        map[string]int{"total": total, "completed": completed},
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Store: %s (%s)\n", s.ID, s.Status)
				fmt.Println("Assets:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Printf("Credit: members=%d min=%d max=%d avg=%.1f\n", creditStats.Members, creditStats.Min, creditStats.Max, creditStats.Avg)
				fmt.Printf("Goals: %d/%d completed\n", completed, total)
				return nil
			})
		},
	}
	return cmd
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
		Long:  "Members are the people running listings. Each carries a credit score moved by the ledger; the score gates pool claims and sets the displayed level.",
	}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberListCmd())
	m.AddCommand(memberShowCmd())
	m.AddCommand(memberUpdateCmd())
	m.AddCommand(memberRemoveCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var id, name, role, avatarURL, contact string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if id == "" {
					id = uuid.New().String()
				}
				now := time.Now().UTC().Format(time.RFC3339)
				m := domain.Member{
					ID:          id,
					StoreID:     e.Config.Store.ID,
					Name:        name,
					Role:        role,
					AvatarURL:   avatarURL,
					Contact:     contact,
					CreditScore: 100,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if m.Role == "" {
					m.Role = "operator"
				}
				if err := e.Repo.InsertMember(ctx, m); err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "member id (optional, random UUID if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "operator", "role (operator, manager)")
	cmd.Flags().StringVar(&avatarURL, "avatar-url", "", "avatar URL")
	cmd.Flags().StringVar(&contact, "contact", "", "contact info")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func memberListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members ranked by credit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				members, err := e.Repo.ListMembers(ctx, e.Config.Store.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Credit", "Level"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Role, m.CreditScore, coloredLevel(m.CreditScore)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func memberShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMember(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("%s (%s)\n", m.Name, m.ID)
				fmt.Printf("Role: %s\n", m.Role)
				fmt.Printf("Credit: %d %s\n", m.CreditScore, coloredLevel(m.CreditScore))
				return nil
			})
		},
	}
	return cmd
}

func memberUpdateCmd() *cobra.Command {
	var name, role, avatarURL, contact string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMember(ctx, id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					m.Name = name
				}
				if cmd.Flags().Changed("role") {
					m.Role = role
				}
				if cmd.Flags().Changed("avatar-url") {
					m.AvatarURL = avatarURL
				}
				if cmd.Flags().Changed("contact") {
					m.Contact = contact
				}
				m.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
				if err := e.Repo.UpdateMember(ctx, m); err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().StringVar(&avatarURL, "avatar-url", "", "avatar URL")
	cmd.Flags().StringVar(&contact, "contact", "", "contact info")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteMember(ctx, args[0])
			})
		},
	}
	return cmd
}

func assetCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "asset",
		Short: "Manage assets",
		Long:  "Assets are the listings. They sit in the pending pool until claimed, run through a playbook day by day with evidence per task, and end in maintenance, abandoned, or trashed.",
	}
	a.AddCommand(assetAddCmd())
	a.AddCommand(assetListCmd())
	a.AddCommand(assetShowCmd())
	a.AddCommand(assetClaimCmd())
	a.AddCommand(assetStrategyCmd())
	a.AddCommand(assetDayCmd())
	a.AddCommand(assetEvidenceCmd())
	a.AddCommand(assetAdvanceCmd())
	a.AddCommand(assetMaintainCmd())
	a.AddCommand(assetAbandonCmd())
	a.AddCommand(assetTrashCmd())
	a.AddCommand(assetRestoreCmd())
	a.AddCommand(assetPurgeCmd())
	a.AddCommand(assetLogCmd())
	return a
}

func assetAddCmd() *cobra.Command {
	var opts engine.AssetCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an asset in the pending pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.StoreID == "" {
					opts.StoreID = e.Config.Store.ID
				}
				a, err := e.CreateAsset(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "asset id (optional, deterministic UUID if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "listing title")
	cmd.Flags().StringVar(&opts.SKU, "sku", "", "SKU")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "playbook strategy")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func assetListCmd() *cobra.Command {
	var f repo.AssetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Status != "" && !domain.AssetStatus(f.Status).Valid() {
				return fmt.Errorf("unknown status %q", f.Status)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.StoreID == "" {
					f.StoreID = e.Config.Store.ID
				}
				assets, err := e.Repo.ListAssets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Strategy", "Day", "Operator"})
				for _, a := range assets {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, a.Strategy, a.DayIndex, a.OperatorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.OperatorID, "operator", "", "operator filter")
	cmd.Flags().StringVar(&f.Strategy, "strategy", "", "strategy filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func assetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an asset and its evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAsset(ctx, id)
				if err != nil {
					return err
				}
				slots, err := e.Repo.ListEvidence(ctx, a.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"asset": a, "evidence": slots})
				}
				if err := printJSONOrTable(a); err != nil {
					return err
				}
				if len(slots) > 0 {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Day", "Task", "Images", "Completed"})
					for _, s := range slots {
						completed := ""
						if s.CompletedAt != nil {
							completed = *s.CompletedAt
						}
						tw.AppendRow(table.Row{s.Day, s.TaskIndex, len(s.Images), completed})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	return cmd
}

func assetClaimCmd() *cobra.Command {
	var memberID string
	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim an asset from the public pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if memberID == "" {
				return fmt.Errorf("--member required")
			}
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Claim(ctx, id, memberID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "claiming member id")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func assetStrategyCmd() *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "strategy <id>",
		Short: "Set an asset's playbook strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strategy == "" {
				return fmt.Errorf("--strategy required")
			}
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetStrategy(ctx, id, strategy, viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "playbook strategy")
	_ = cmd.MarkFlagRequired("strategy")
	return cmd
}

func assetDayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day <id>",
		Short: "Show the current day's task board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				board, err := e.CurrentDay(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				fmt.Printf("Day %d\n", board.Day)
				for _, t := range board.Tasks {
					mark := " "
					if t.Satisfied {
						mark = "x"
					}
					fmt.Printf("  [%s] %d. %s (%d images)\n", mark, t.Index, t.Label, len(t.Images))
				}
				return nil
			})
		},
	}
	return cmd
}

func assetEvidenceCmd() *cobra.Command {
	ev := &cobra.Command{Use: "evidence", Short: "Manage task evidence"}
	ev.AddCommand(assetEvidenceAttachCmd())
	ev.AddCommand(assetEvidenceDetachCmd())
	return ev
}

func assetEvidenceAttachCmd() *cobra.Command {
	var opts engine.EvidenceOptions
	cmd := &cobra.Command{
		Use:   "attach <asset-id>",
		Short: "Attach evidence images to a task slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssetID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slot, err := e.AttachEvidence(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(slot)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Day, "day", 0, "playbook day")
	cmd.Flags().IntVar(&opts.TaskIndex, "task", 0, "task index within the day")
	cmd.Flags().StringArrayVar(&opts.Images, "image", []string{}, "image reference (repeatable)")
	_ = cmd.MarkFlagRequired("day")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func assetEvidenceDetachCmd() *cobra.Command {
	var day, taskIndex int
	var image string
	cmd := &cobra.Command{
		Use:   "detach <asset-id>",
		Short: "Detach an evidence image from a task slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slot, err := e.DetachEvidence(ctx, id, day, taskIndex, image, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(slot)
			})
		},
	}
	cmd.Flags().IntVar(&day, "day", 0, "playbook day")
	cmd.Flags().IntVar(&taskIndex, "task", 0, "task index within the day")
	cmd.Flags().StringVar(&image, "image", "", "image reference (empty clears the slot)")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}

func assetAdvanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Advance an asset to the next playbook day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AdvanceDay(ctx, id, viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetMaintainCmd() *cobra.Command {
	var opts engine.EarlyMaintainOptions
	cmd := &cobra.Command{
		Use:   "maintain <id>",
		Short: "Move an asset to maintenance early",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssetID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.EarlyMaintain(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.DailyOrders, "daily-orders", "", "current daily order count")
	cmd.Flags().StringVar(&opts.DailyProfit, "daily-profit", "", "current daily profit")
	_ = cmd.MarkFlagRequired("daily-orders")
	_ = cmd.MarkFlagRequired("daily-profit")
	return cmd
}

func assetAbandonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandon <id>",
		Short: "Abandon an active asset back to the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Abandon(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetTrashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash <id>",
		Short: "Move an asset to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Trash(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a trashed asset to the abandoned pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Restore(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <id>",
		Short: "Permanently delete a trashed asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Purge(ctx, id, viper.GetString("actor-id"), viper.GetBool("force"))
			})
		},
	}
	return cmd
}

func assetLogCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Asset operation log"}
	lg.AddCommand(assetLogAddCmd())
	lg.AddCommand(assetLogListCmd())
	return lg
}

func assetLogAddCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "add <asset-id>",
		Short: "Append an operator log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if body == "" {
				return fmt.Errorf("--body required")
			}
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.AppendLog(ctx, id, body, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "log text")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func assetLogListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <asset-id>",
		Short: "List an asset's log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.Repo.ListAssetLogs(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(logs)
			})
		},
	}
	return cmd
}

func goalCmd() *cobra.Command {
	g := &cobra.Command{
		Use:   "goal",
		Short: "Manage goals",
		Long:  "Goals are member commitments with deadlines. Completing one on time earns credit, finishing late costs a little, and the evaluator penalizes overdue and under-planned weeks.",
	}
	g.AddCommand(goalAddCmd())
	g.AddCommand(goalListCmd())
	g.AddCommand(goalShowCmd())
	g.AddCommand(goalCompleteCmd())
	g.AddCommand(goalRemoveCmd())
	g.AddCommand(goalEvaluateCmd())
	return g
}

func goalAddCmd() *cobra.Command {
	var opts engine.GoalCreateOptions
	var priority string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Plan a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.Priority = domain.GoalPriority(priority)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.StoreID == "" {
					opts.StoreID = e.Config.Store.ID
				}
				g, err := e.CreateGoal(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "goal id (optional)")
	cmd.Flags().StringVar(&opts.MemberID, "member", "", "member id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "goal title")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority (low, medium, high)")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func goalListCmd() *cobra.Command {
	var f repo.GoalFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.StoreID == "" {
					f.StoreID = e.Config.Store.ID
				}
				goals, err := e.Repo.ListGoals(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Member", "Title", "Deadline", "Priority", "Done"})
				for _, g := range goals {
					done := ""
					if g.CompletedAt != nil {
						done = *g.CompletedAt
					}
					tw.AppendRow(table.Row{g.ID, g.MemberID, g.Title, g.Deadline, g.Priority, done})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.MemberID, "member", "", "member filter")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "only open goals")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func goalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.Repo.GetGoal(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	return cmd
}

func goalCompleteCmd() *cobra.Command {
	var opts engine.GoalCompleteOptions
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a goal with a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.CompleteGoal(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Note, "note", "", "completion note")
	cmd.Flags().StringArrayVar(&opts.Evidence, "evidence", []string{}, "evidence reference (repeatable)")
	_ = cmd.MarkFlagRequired("note")
	return cmd
}

func goalRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteGoal(ctx, args[0])
			})
		},
	}
	return cmd
}

func goalEvaluateCmd() *cobra.Command {
	var grain string
	var offset int
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the periodic goal checks",
		Long:  "Scores the selected window: flags members under the weekly planning minimum and buckets overdue goals for escalating penalties. Safe to rerun; the ledger deduplicates per window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.EvaluateGoals(ctx, engine.EvaluateOptions{
					StoreID: e.Config.Store.ID,
					Grain:   cycle.Grain(grain),
					Offset:  offset,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Window: %s .. %s\n", report.WindowStart, report.WindowEnd)
				for _, s := range report.Short {
					fmt.Printf("  short: %s planned %d of %d\n", s.MemberID, s.Count, s.Required)
				}
				for _, o := range report.Overdue {
					fmt.Printf("  overdue: goal %s (member %s) %d days, bucket %d\n", o.GoalID, o.MemberID, o.DaysOverdue, o.Bucket)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&grain, "grain", "week", "window grain (week, month)")
	cmd.Flags().IntVar(&offset, "offset", 0, "window offset (0 current, -1 previous)")
	return cmd
}

func creditCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "credit",
		Short: "Credit ledger",
		Long:  "The ledger records every score change with its reason. Each event kind settles at most once per member, correlation, and cycle.",
	}
	c.AddCommand(creditHistoryCmd())
	c.AddCommand(creditAdjustCmd())
	return c
}

func creditHistoryCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history <member-id>",
		Short: "Show a member's ledger, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, err := e.Repo.ListCreditRecords(ctx, memberID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Kind", "Points", "Score", "Reason"})
				for _, rec := range records {
					tw.AppendRow(table.Row{rec.TS, rec.Kind, coloredPoints(rec.Points), rec.NewScore, rec.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of records")
	return cmd
}

func creditAdjustCmd() *cobra.Command {
	var change int
	var reason string
	cmd := &cobra.Command{
		Use:   "adjust <member-id>",
		Short: "Manually adjust a member's score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason required")
			}
			memberID := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMember(ctx, memberID)
				if err != nil {
					return err
				}
				rec, err := ledger.New(e.DB).Adjust(ctx, m.StoreID, m.ID, change, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().IntVar(&change, "change", 0, "points to add (negative to deduct)")
	cmd.Flags().StringVar(&reason, "reason", "", "adjustment reason")
	_ = cmd.MarkFlagRequired("change")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The journal of everything that happened: lifecycle moves, evidence, goals, and credit settlement.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n, intervalSec int
	var follow bool
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Store.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if err := printJSONOrTable(events); err != nil {
					return err
				}
				if !follow {
					return nil
				}
				return followEvents(ctx, e, intervalSec)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new events")
	cmd.Flags().IntVar(&intervalSec, "interval", 2, "poll interval in seconds with --follow")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func followEvents(ctx context.Context, e engine.Engine, intervalSec int) error {
	if intervalSec <= 0 {
		intervalSec = 2
	}
	cursor, err := e.Repo.LatestEventID(ctx, e.Config.Store.ID)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		batch, err := e.Repo.EventsAfter(ctx, 100, cursor, e.Config.Store.ID)
		if err != nil {
			return err
		}
		for _, evt := range batch {
			if viper.GetBool("json") {
				if err := printJSON(evt); err != nil {
					return err
				}
			} else {
				fmt.Printf("%s  %-24s %s/%s  by %s\n", evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID)
			}
			cursor = evt.ID
		}
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveStoreAndConfig(cmd.Context(), workspace, viper.GetString("store"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("LAUNCHLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyHeader,
				Logger:                 charmlog.NewWithOptions(os.Stderr, charmlog.Options{Prefix: "server"}),
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("LAUNCHLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Launchline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			secret := "llk_" + hex.EncodeToString(raw)
			key := domain.APIKey{
				ID:        uuid.New().String(),
				ActorID:   actorID,
				Name:      name,
				KeyHash:   repo.HashAPIKey(secret),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("Key %s for %s\n", key.ID, key.ActorID)
				fmt.Printf("Secret (save it now, it is not stored): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- helpers ---

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
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveStoreAndConfig(ctx, workspace, viper.GetString("store"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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

func coloredLevel(score int) string {
	level := domain.CreditLevel(score)
	switch level {
	case "danger":
		return color.RedString(level)
	case "normal":
		return color.YellowString(level)
	case "ace":
		return color.New(color.FgGreen, color.Bold).Sprint(level)
	default:
		return color.GreenString(level)
	}
}

func coloredPoints(points int) string {
	if points < 0 {
		return color.RedString("%d", points)
	}
	return color.GreenString("+%d", points)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
