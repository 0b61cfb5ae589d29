package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"storypoints/internal/config"
	"storypoints/internal/domain"
	"storypoints/internal/estimate"
	"storypoints/internal/events"
	"storypoints/internal/logger"
	"storypoints/internal/repo"
)

// Snapshot reads the current state of a board. repo.ErrNotFound means the
// board does not exist and no cycle should run.
func (e Engine) Snapshot(ctx context.Context, boardID string) (domain.Snapshot, error) {
	return e.Repo.Snapshot(ctx, boardID)
}

// Estimate computes the estimate state of a board without recording
// anything.
func (e Engine) Estimate(ctx context.Context, boardID string) (estimate.Result, error) {
	snap, err := e.Snapshot(ctx, boardID)
	if err != nil {
		return estimate.Result{}, err
	}
	cfg, err := e.BoardConfig(ctx, boardID)
	if err != nil {
		return estimate.Result{}, err
	}
	return estimate.Compute(snap, cfg.EstimateOptions()), nil
}

// Refresh runs one cycle: snapshot, compute, and a board.refresh event
// with the totals. Nothing from the cycle is read back by later cycles.
func (e Engine) Refresh(ctx context.Context, boardID, actorID string) (estimate.Result, error) {
	res, err := e.Estimate(ctx, boardID)
	if err != nil {
		return estimate.Result{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return estimate.Result{}, err
	}
	defer tx.Rollback()
	if err := e.events().Append(ctx, tx, events.BoardRefresh, boardID, events.KindBoard, boardID, actorID, refreshPayload(res)); err != nil {
		return estimate.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return estimate.Result{}, err
	}
	log := logger.Get(ctx).Debug().Str("board_id", boardID).Int("columns", len(res.Columns))
	if res.Board != nil {
		log = log.Float64("total_story_points", res.Board.TotalStoryPoints)
	}
	log.Msg("board refreshed")
	return res, nil
}

func refreshPayload(res estimate.Result) events.Payload {
	var estimated, invalid, cards int
	for _, col := range res.Columns {
		if col.Summary == nil {
			continue
		}
		estimated += col.Summary.EstimatedCount
		cards += col.Summary.TotalCount
		for _, c := range col.Cards {
			if c.Classification.Status == estimate.StatusInvalid {
				invalid++
			}
		}
	}
	payload := events.Payload{
		"columns":   len(res.Columns),
		"cards":     cards,
		"estimated": estimated,
		"invalid":   invalid,
	}
	if res.Board != nil {
		payload["total_story_points"] = res.Board.TotalStoryPoints
		payload["excluded_columns"] = res.Board.ExcludedColumnNames
	}
	return payload
}

// ImportSnapshot replaces the columns and cards of snap.Board.ID with the
// ones in snap, creating the board if needed. Columns and cards always get
// fresh ids so files imported into several boards cannot collide.
func (e Engine) ImportSnapshot(ctx context.Context, snap domain.Snapshot, cfg *config.Config, actorID string) (domain.Snapshot, error) {
	boardID := strings.TrimSpace(snap.Board.ID)
	if boardID == "" {
		return domain.Snapshot{}, errors.New("board id is required")
	}
	name := snap.Board.Name
	if name == "" {
		name = boardID
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()

	board, err := e.Repo.GetBoardTx(ctx, tx, boardID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Snapshot{}, err
	}
	if errors.Is(err, repo.ErrNotFound) {
		board = domain.Board{ID: boardID, Name: name, CreatedAt: now}
		if err := e.Repo.InsertBoardTx(ctx, tx, board); err != nil {
			return domain.Snapshot{}, fmt.Errorf("insert board: %w", err)
		}
		if cfg == nil {
			cfg = config.Default(boardID)
		}
	}
	if cfg != nil {
		if err := e.Repo.UpsertBoardConfigTx(ctx, tx, boardID, cfg); err != nil {
			return domain.Snapshot{}, fmt.Errorf("store board config: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM board_columns WHERE board_id=?`, boardID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("clear columns: %w", err)
	}
	out := domain.Snapshot{Board: board, Columns: make([]domain.ColumnSnapshot, 0, len(snap.Columns))}
	var cardCount int
	for i, cs := range snap.Columns {
		col := domain.Column{ID: uuid.NewString(), BoardID: boardID, Name: strings.TrimSpace(cs.Name), Position: i, CreatedAt: now}
		if err := e.Repo.InsertColumnTx(ctx, tx, col); err != nil {
			return domain.Snapshot{}, fmt.Errorf("insert column %d: %w", i, err)
		}
		stored := domain.ColumnSnapshot{Column: col, Cards: make([]domain.Card, 0, len(cs.Cards))}
		for j, c := range cs.Cards {
			card := domain.Card{ID: uuid.NewString(), ColumnID: col.ID, Position: j, Title: c.Title, Content: c.Content, CreatedAt: now, UpdatedAt: now}
			if err := e.Repo.InsertCardTx(ctx, tx, card); err != nil {
				return domain.Snapshot{}, fmt.Errorf("insert card %d of column %d: %w", j, i, err)
			}
			stored.Cards = append(stored.Cards, card)
			cardCount++
		}
		out.Columns = append(out.Columns, stored)
	}
	if err := e.events().Append(ctx, tx, events.BoardImport, boardID, events.KindBoard, boardID, actorID, events.Payload{"columns": len(out.Columns), "cards": cardCount}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return out, nil
}
