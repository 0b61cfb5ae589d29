package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storypoints/internal/boardfile"
	"storypoints/internal/config"
	"storypoints/internal/engine"
	"storypoints/internal/repo"
)

func boardCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "board",
		Short: "Manage boards",
		Long:  "A board is an ordered list of columns, each holding an ordered list of cards.",
	}
	b.AddCommand(boardCreateCmd())
	b.AddCommand(boardListCmd())
	b.AddCommand(boardShowCmd())
	b.AddCommand(boardImportCmd())
	b.AddCommand(boardExportCmd())
	b.AddCommand(boardRemoveCmd())
	return b
}

func boardCreateCmd() *cobra.Command {
	var id, name, cfgPath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			if cfgPath != "" {
				loaded, err := config.FromFile(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if cfg == nil && e.Config != nil {
					copied := *e.Config
					cfg = &copied
				}
				if cfg != nil && id != "" {
					cfg.Board.ID = id
				}
				b, err := e.CreateBoard(ctx, engine.BoardCreateOptions{ID: id, Name: name, Config: cfg, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "board id (generated from the name when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config to store with the board")
	return cmd
}

func boardRemoveCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:     "rm",
		Aliases: []string{"delete"},
		Short:   "Delete a board with its columns and cards",
		Long:    "The board's events stay in the log.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteBoard(ctx, id, actorID()); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": id})
				}
				fmt.Println("deleted", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "board id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func boardListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBoards(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, b := range items {
					rows = append(rows, table.Row{b.ID, b.Name, b.CreatedAt})
				}
				return printRows(items, table.Row{"ID", "Name", "Created"}, rows)
			})
		},
	}
	return cmd
}

func boardShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a board with its columns and cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.Snapshot(ctx, e.Config.Board.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				rows := []table.Row{}
				for i, col := range snap.Columns {
					name := col.Name
					if name == "" {
						name = fmt.Sprintf("#%d", i+1)
					}
					if len(col.Cards) == 0 {
						rows = append(rows, table.Row{name, col.ID, "", ""})
					}
					for _, c := range col.Cards {
						rows = append(rows, table.Row{name, col.ID, c.ID, c.Title})
					}
				}
				fmt.Printf("%s (%s)\n", snap.Board.Name, snap.Board.ID)
				return printRows(snap, table.Row{"Column", "Column ID", "Card", "Title"}, rows)
			})
		},
	}
	return cmd
}

func boardImportCmd() *cobra.Command {
	var filePath, cfgPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a board's columns and cards with a YAML board file",
		Long:  "Creates the board when it does not exist. Card ids in the file are ignored; fresh ids are assigned.",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := boardfile.Load(filePath)
			if err != nil {
				return err
			}
			if override := viper.GetString("board"); override != "" {
				snap.Board.ID = override
			}
			if snap.Board.ID == "" {
				return fmt.Errorf("board id required; set board.id in the file or use --board")
			}
			var cfg *config.Config
			if cfgPath != "" {
				if cfg, err = config.FromFile(cfgPath); err != nil {
					return err
				}
				cfg.Board.ID = snap.Board.ID
			}
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				imported, err := e.ImportSnapshot(ctx, snap, cfg, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(imported)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML board file")
	cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config to store with the board")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func boardExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the board as a YAML board file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.Snapshot(ctx, e.Config.Board.ID)
				if err != nil {
					return err
				}
				data, err := boardfile.Marshal(snap)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = os.Stdout.Write(data)
					return err
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (stdout when empty)")
	return cmd
}

func columnCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "column",
		Short: "Manage columns",
	}
	c.AddCommand(columnAddCmd())
	return c
}

func columnAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a column to the board",
		Long:  "Columns may be unnamed; unnamed columns are always counted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				col, err := e.AddColumn(ctx, engine.ColumnCreateOptions{BoardID: e.Config.Board.ID, Name: name, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(col)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "column name")
	return cmd
}

func cardCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "card",
		Short: "Manage cards",
		Long: "Card content is free text. Put the estimate in a fenced block:\n\n" +
			"  ```est\n  SP: 3\n  ```",
	}
	c.AddCommand(cardAddCmd())
	c.AddCommand(cardUpdateCmd())
	c.AddCommand(cardMoveCmd())
	c.AddCommand(cardRemoveCmd())
	return c
}

// readContent returns --content, or the file named by --content-file ("-"
// for stdin). ok is false when neither flag was given.
func readContent(cmd *cobra.Command, content, contentFile string) (string, bool, error) {
	if contentFile != "" {
		var data []byte
		var err error
		if contentFile == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(contentFile)
		}
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	}
	if cmd.Flags().Changed("content") {
		return content, true, nil
	}
	return "", false, nil
}

func cardAddCmd() *cobra.Command {
	var columnID, title, content, contentFile string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a card to a column",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _, err := readContent(cmd, content, contentFile)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				card, err := e.AddCard(ctx, engine.CardCreateOptions{ColumnID: columnID, Title: title, Content: text, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(card)
			})
		},
	}
	cmd.Flags().StringVar(&columnID, "column", "", "column id")
	cmd.Flags().StringVar(&title, "title", "", "card title")
	cmd.Flags().StringVar(&content, "content", "", "card text")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read card text from a file (- for stdin)")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func cardUpdateCmd() *cobra.Command {
	var id, title, content, contentFile string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Edit a card",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.CardUpdateOptions{ID: id, ActorID: actorID()}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			text, ok, err := readContent(cmd, content, contentFile)
			if err != nil {
				return err
			}
			if ok {
				opts.Content = &text
			}
			if opts.Title == nil && opts.Content == nil {
				return fmt.Errorf("nothing to update; use --title, --content or --content-file")
			}
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				card, err := e.UpdateCard(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(card)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "card id")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&content, "content", "", "new card text")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read card text from a file (- for stdin)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cardMoveCmd() *cobra.Command {
	var id, columnID string
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a card to the end of another column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				card, err := e.MoveCard(ctx, id, columnID, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(card)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "card id")
	cmd.Flags().StringVar(&columnID, "column", "", "target column id")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func cardRemoveCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:     "rm",
		Aliases: []string{"delete"},
		Short:   "Delete a card",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteCard(ctx, id, actorID()); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": id})
				}
				fmt.Println("deleted", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "card id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
