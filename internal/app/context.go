package app

import (
	"context"
	"errors"
	"fmt"

	"storypoints/internal/config"
	"storypoints/internal/engine"
	"storypoints/internal/repo"
)

// ResolveBoard picks the active board and returns its stored config. It
// prefers the override, then the board named in the workspace config file,
// then the only board in the database. A named board that does not exist
// yields repo.ErrNotFound; nothing is created.
func ResolveBoard(ctx context.Context, workspace, boardOverride string, e engine.Engine) (string, *config.Config, error) {
	boardID, _, err := pickBoard(ctx, workspace, boardOverride, e)
	if err != nil {
		return "", nil, err
	}
	if _, err := e.Repo.GetBoard(ctx, boardID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", nil, fmt.Errorf("board %s: %w", boardID, err)
		}
		return "", nil, err
	}
	return storedConfig(ctx, boardID, e)
}

// ResolveBoardAndConfig is ResolveBoard for commands that add to a board: a
// board named by the override or the file that does not exist yet is
// created, seeded with the file's config.
func ResolveBoardAndConfig(ctx context.Context, workspace, boardOverride, actorID string, e engine.Engine) (string, *config.Config, error) {
	boardID, fileCfg, err := pickBoard(ctx, workspace, boardOverride, e)
	if err != nil {
		return "", nil, err
	}
	if _, err := e.Repo.GetBoard(ctx, boardID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		seed := config.Default(boardID)
		if fileCfg != nil {
			copied := *fileCfg
			copied.Board.ID = boardID
			seed = &copied
		}
		if _, err := e.CreateBoard(ctx, engine.BoardCreateOptions{ID: boardID, Config: seed, ActorID: actorID}); err != nil {
			return "", nil, fmt.Errorf("create board: %w", err)
		}
	}
	return storedConfig(ctx, boardID, e)
}

func pickBoard(ctx context.Context, workspace, boardOverride string, e engine.Engine) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	boardID := boardOverride
	if boardID == "" && fileCfg != nil {
		boardID = fileCfg.Board.ID
	}
	if boardID == "" {
		b, err := e.Repo.SingleBoard(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("board not specified; use --board")
			}
			return "", nil, err
		}
		boardID = b.ID
	}
	return boardID, fileCfg, nil
}

func storedConfig(ctx context.Context, boardID string, e engine.Engine) (string, *config.Config, error) {
	cfg, err := e.BoardConfig(ctx, boardID)
	if err != nil {
		return "", nil, err
	}
	cfg.Board.ID = boardID
	return boardID, cfg, nil
}
