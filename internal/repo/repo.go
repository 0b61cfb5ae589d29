package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storypoints/internal/config"
	"storypoints/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) InsertBoardTx(ctx context.Context, tx *sql.Tx, b domain.Board) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO boards(id,name,created_at) VALUES (?,?,?)`, b.ID, b.Name, b.CreatedAt)
	return err
}

func (r Repo) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	return getBoard(ctx, r.DB, id)
}

func (r Repo) GetBoardTx(ctx context.Context, tx *sql.Tx, id string) (domain.Board, error) {
	return getBoard(ctx, tx, id)
}

func getBoard(ctx context.Context, q execer, id string) (domain.Board, error) {
	var b domain.Board
	err := q.QueryRowContext(ctx, `SELECT id,name,created_at FROM boards WHERE id=?`, id).Scan(&b.ID, &b.Name, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM boards ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Board{}
	for rows.Next() {
		var b domain.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// SingleBoard returns the only board in the database.
func (r Repo) SingleBoard(ctx context.Context) (domain.Board, error) {
	boards, err := r.ListBoards(ctx)
	if err != nil {
		return domain.Board{}, err
	}
	if len(boards) == 0 {
		return domain.Board{}, ErrNotFound
	}
	if len(boards) > 1 {
		return domain.Board{}, fmt.Errorf("multiple boards exist; specify --board")
	}
	return boards[0], nil
}

// DeleteBoardTx removes a board; its config, columns and cards cascade.
// Events are kept.
func (r Repo) DeleteBoardTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertBoardConfigTx(ctx context.Context, tx *sql.Tx, boardID string, cfg *config.Config) error {
	return upsertBoardConfig(ctx, tx, boardID, cfg)
}

func upsertBoardConfig(ctx context.Context, q execer, boardID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Board.ID = boardID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = q.ExecContext(ctx, `INSERT INTO board_configs(board_id,config_yaml,updated_at) VALUES (?,?,?)
ON CONFLICT(board_id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`, boardID, string(payload), now)
	return err
}

func (r Repo) GetBoardConfig(ctx context.Context, boardID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM board_configs WHERE board_id=?`, boardID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg, err := config.FromYAML([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("stored config for board %s: %w", boardID, err)
	}
	return cfg, nil
}

// Snapshot reads a whole board in column then card order. It reads inside
// one transaction so a concurrent edit cannot tear the view.
func (r Repo) Snapshot(ctx context.Context, boardID string) (domain.Snapshot, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()

	board, err := getBoard(ctx, tx, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	cols, err := listColumns(ctx, tx, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{Board: board, Columns: make([]domain.ColumnSnapshot, 0, len(cols))}
	index := map[string]int{}
	for i, c := range cols {
		index[c.ID] = i
		snap.Columns = append(snap.Columns, domain.ColumnSnapshot{Column: c, Cards: []domain.Card{}})
	}
	rows, err := tx.QueryContext(ctx, `SELECT c.id,c.column_id,c.position,COALESCE(c.title,''),c.content,c.created_at,c.updated_at
FROM cards c JOIN board_columns col ON col.id=c.column_id
WHERE col.board_id=? ORDER BY col.position, c.position, c.created_at`, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return domain.Snapshot{}, err
		}
		i := index[card.ColumnID]
		snap.Columns[i].Cards = append(snap.Columns[i].Cards, card)
	}
	return snap, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
