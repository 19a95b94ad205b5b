package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"goalkeeper/internal/app"
	"goalkeeper/internal/config"
	"goalkeeper/internal/domain"
	"goalkeeper/internal/logging"
	"goalkeeper/internal/server"
	"goalkeeper/internal/ui"
	goalkeepersdk "goalkeeper/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "gk",
	Short: "Goalkeeper goal board",
	Long: `Goalkeeper keeps a short list of goals split into pending and completed.
- Board: run 'gk' on its own to open the interactive board; it redraws on every change.
- Goals: free text plus a completed flag; blank text is ignored.
- Server: 'gk serve' exposes the same list over HTTP with a live change stream.
- Remote: add, done, rm, ls and log talk to a running server (--server).
Goals live in memory only and are gone when the process exits.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBoard(cmd.Context())
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
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GOALKEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "directory holding goalkeeper.yml")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "server URL for remote commands")
	rootCmd.PersistentFlags().String("token", "", "bearer token for remote commands")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colors")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(doneCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(lsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
}

func boardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open the interactive goal board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(cmd.Context())
		},
	}
}

func runBoard(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withApp(cfg, func(a *app.App) error {
		s := &ui.Session{
			Store:  a.Store,
			In:     os.Stdin,
			Out:    os.Stdout,
			Color:  useColor(),
			Prompt: "> ",
		}
		err := s.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the goal list over HTTP. Goals are kept in memory for the lifetime of the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return withApp(cfg, func(a *app.App) error {
				return serve(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func serve(ctx context.Context, a *app.App) error {
	cfg := a.Config
	handler, err := server.New(server.Config{
		App:      a,
		BasePath: cfg.Server.BasePath,
		Auth:     server.AuthConfig{TokenSecret: cfg.Server.TokenSecret},
		Log:      a.Log,
	})
	if err != nil {
		return err
	}
	if len(cfg.Webhooks) > 0 {
		go server.NewWebhookDispatcher(a.Journal, cfg.Webhooks, a.Log).Run(ctx)
	}
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.Log.Info().
		Str("addr", cfg.Server.Addr).
		Str("base_path", cfg.Server.BasePath).
		Bool("auth", cfg.Server.TokenSecret != "").
		Bool("journal", a.Journal != nil).
		Int("webhooks", len(cfg.Webhooks)).
		Msg("serving goalkeeper API")
	fmt.Printf("Serving Goalkeeper API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
		cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Add a goal on a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			g, added, err := c.AddGoal(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"added": added, "goal": g})
			}
			if !added {
				fmt.Println("nothing added: goal text is blank")
				return nil
			}
			fmt.Printf("added %s: %s\n", g.ID, g.Text)
			return nil
		},
	}
}

func doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <ref>",
		Short: "Toggle a goal between pending and completed",
		Long:  "<ref> is a board label (p1, c2), a row number counting pending rows then completed rows, or a goal id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			id, err := resolveRemote(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			g, changed, err := c.ToggleGoal(cmd.Context(), id)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"changed": changed, "goal": g})
			}
			if !changed {
				fmt.Printf("no goal %s\n", id)
				return nil
			}
			state := "pending"
			if g.Completed {
				state = "completed"
			}
			fmt.Printf("%s is now %s\n", g.ID, state)
			return nil
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <ref>",
		Short: "Remove a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			id, err := resolveRemote(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			if err := c.RemoveGoal(cmd.Context(), id); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"removed": id})
			}
			fmt.Printf("removed %s\n", id)
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "Show the board of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			b, err := c.ListGoals(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(b)
			}
			ui.Board{Out: os.Stdout, Color: useColor()}.Render(toPartition(b))
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Change journal",
		Long:  "Every add, removal, and toggle the server has seen since it started.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var kind, goalID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			page, err := c.ListEvents(cmd.Context(), goalkeepersdk.EventQuery{Kind: kind, GoalID: goalID, Limit: n})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(page.Items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Seq", "Time", "Kind", "Goal ID", "Text"})
			for _, evt := range page.Items {
				text, _ := evt.Goal["text"].(string)
				tw.AppendRow(table.Row{evt.Seq, evt.TS, evt.Kind, evt.GoalID, text})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of changes")
	cmd.Flags().StringVar(&kind, "kind", "", "change kind filter (added, removed, toggled)")
	cmd.Flags().StringVar(&goalID, "goal-id", "", "goal id filter")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the server",
		Long:  "Signs a token with server.token_secret (or GOALKEEPER_TOKEN_SECRET).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := server.IssueToken(cfg.Server.TokenSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "subject": subject})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 never expires)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect goalkeeper.yml",
		Long:  "goalkeeper.yml sets the id scheme, server address, journal, logging, and webhooks. Every key is optional.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config (secrets omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate goalkeeper.yml",
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
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default goalkeeper.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.DefaultTemplate), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	if err := loadDotEnv(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if secret := viper.GetString("token-secret"); secret != "" {
		cfg.Server.TokenSecret = secret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports GOALKEEPER_* settings from <workspace>/.env without
// overriding variables already set in the environment.
func loadDotEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func withApp(cfg *config.Config, fn func(*app.App) error) error {
	log, err := logging.FromConfig(os.Stderr, cfg)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close app")
		}
	}()
	return fn(a)
}

func newClient() (*goalkeepersdk.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	c := goalkeepersdk.New(viper.GetString("server"))
	c.BasePath = cfg.Server.BasePath
	c.Token = viper.GetString("token")
	return c, nil
}

// resolveRemote maps a board label or row number to a goal id using the
// server's current board. Anything else is passed through as an id.
func resolveRemote(ctx context.Context, c *goalkeepersdk.Client, ref string) (string, error) {
	b, err := c.ListGoals(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := ui.Resolve(toPartition(b), ref); ok {
		return id, nil
	}
	return ref, nil
}

func toPartition(b goalkeepersdk.Board) domain.Partition {
	convert := func(items []goalkeepersdk.Goal) []domain.Goal {
		out := make([]domain.Goal, 0, len(items))
		for _, g := range items {
			out = append(out, domain.Goal{ID: g.ID, Text: g.Text, Completed: g.Completed, CreatedAt: g.CreatedAt})
		}
		return out
	}
	return domain.Partition{Pending: convert(b.Pending), Completed: convert(b.Completed)}
}

func useColor() bool {
	if viper.GetBool("no-color") {
		return false
	}
	_, noColor := os.LookupEnv("NO_COLOR")
	return !noColor
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
