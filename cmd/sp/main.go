package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storypoints/internal/app"
	"storypoints/internal/config"
	"storypoints/internal/db"
	"storypoints/internal/engine"
	"storypoints/internal/logger"
	"storypoints/internal/migrate"
	"storypoints/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "Story points for kanban boards",
	Long: `sp sums story point estimates written inside kanban cards.

A card is estimated when its text holds exactly one fenced block tagged "est"
with a line like "SP: 3". Cards without such a block are unestimated; cards
with several blocks or an unreadable number are invalid and get highlighted.

Each column shows its total and how many cards are estimated. Columns listed
under columns.ignored are disabled, and columns under
columns.excluded_from_board_total keep their own total but stay out of the
board total. Boards live in the .storypoints workspace database; per-board
config is stored there too and imported explicitly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(viper.GetString("log-level"), viper.GetBool("log-json"))
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STORYPOINTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("board", "b", "", "board id (defaults to storypoints.yml or the only board)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON instead of console text")
	for _, name := range []string{"workspace", "json", "actor-id", "board", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(columnCmd())
	rootCmd.AddCommand(cardCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// withStore opens the workspace database without picking a board. The
// engine falls back to the workspace config file, if any.
func withStore(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		return err
	}
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, fileCfg))
}

// withEngine is withStore plus board resolution; e.Config is the active
// board's stored config. A missing board is an error.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withStore(ctx, func(ctx context.Context, e engine.Engine) error {
		_, cfg, err := app.ResolveBoard(ctx, viper.GetString("workspace"), viper.GetString("board"), e)
		if err != nil {
			return err
		}
		e.Config = cfg
		return fn(logger.WithBoard(ctx, cfg.Board.ID), e)
	})
}

// withBoard is withEngine for commands that add to a board; a named board
// that does not exist yet is created first.
func withBoard(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withStore(ctx, func(ctx context.Context, e engine.Engine) error {
		_, cfg, err := app.ResolveBoardAndConfig(ctx, viper.GetString("workspace"), viper.GetString("board"), actorID(), e)
		if err != nil {
			return err
		}
		e.Config = cfg
		return fn(logger.WithBoard(ctx, cfg.Board.ID), e)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withStore(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e.Repo)
	})
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

// printRows renders a table unless --json is set, in which case v is
// printed instead.
func printRows(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
	return nil
}

func actorID() string {
	return viper.GetString("actor-id")
}
