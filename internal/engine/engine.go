package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storypoints/internal/config"
	"storypoints/internal/domain"
	"storypoints/internal/events"
	"storypoints/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	// Config is used for boards that have no stored config of their own.
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// BoardCreateOptions are parameters for creating a board.
type BoardCreateOptions struct {
	ID      string
	Name    string
	Config  *config.Config
	ActorID string
}

func (e Engine) CreateBoard(ctx context.Context, opts BoardCreateOptions) (domain.Board, error) {
	opts.ID = strings.TrimSpace(opts.ID)
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.ID == "" && opts.Name == "" {
		return domain.Board{}, errors.New("board id or name is required")
	}
	now := e.timestamp()
	if opts.ID == "" {
		opts.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.Name+"|"+now)).String()
	}
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default(opts.ID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Board{}, err
	}
	defer tx.Rollback()
	b := domain.Board{ID: opts.ID, Name: opts.Name, CreatedAt: now}
	if err := e.Repo.InsertBoardTx(ctx, tx, b); err != nil {
		return domain.Board{}, fmt.Errorf("insert board: %w", err)
	}
	if err := e.Repo.UpsertBoardConfigTx(ctx, tx, b.ID, cfg); err != nil {
		return domain.Board{}, fmt.Errorf("insert board config: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.BoardCreate, b.ID, events.KindBoard, b.ID, opts.ActorID, events.Payload{"name": b.Name}); err != nil {
		return domain.Board{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

// ImportBoardConfig validates cfg and stores it for the board.
func (e Engine) ImportBoardConfig(ctx context.Context, boardID string, cfg *config.Config, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetBoardTx(ctx, tx, boardID); err != nil {
		return err
	}
	if err := e.Repo.UpsertBoardConfigTx(ctx, tx, boardID, cfg); err != nil {
		return err
	}
	if err := e.events().Append(ctx, tx, events.ConfigImport, boardID, events.KindBoard, boardID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// BoardConfig returns the stored config of a board, falling back to the
// engine config and then to defaults.
func (e Engine) BoardConfig(ctx context.Context, boardID string) (*config.Config, error) {
	cfg, err := e.Repo.GetBoardConfig(ctx, boardID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if e.Config != nil {
		copied := *e.Config
		copied.Board.ID = boardID
		return &copied, nil
	}
	return config.Default(boardID), nil
}

// ColumnCreateOptions are parameters for adding a column.
type ColumnCreateOptions struct {
	ID      string
	BoardID string
	Name    string
	ActorID string
}

func (e Engine) AddColumn(ctx context.Context, opts ColumnCreateOptions) (domain.Column, error) {
	if opts.BoardID == "" {
		return domain.Column{}, errors.New("board is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Column{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetBoardTx(ctx, tx, opts.BoardID); err != nil {
		return domain.Column{}, err
	}
	pos, err := e.Repo.NextColumnPosition(ctx, tx, opts.BoardID)
	if err != nil {
		return domain.Column{}, err
	}
	c := domain.Column{
		ID:        opts.ID,
		BoardID:   opts.BoardID,
		Name:      strings.TrimSpace(opts.Name),
		Position:  pos,
		CreatedAt: e.timestamp(),
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := e.Repo.InsertColumnTx(ctx, tx, c); err != nil {
		return domain.Column{}, fmt.Errorf("insert column: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.ColumnCreate, c.BoardID, events.KindColumn, c.ID, opts.ActorID, events.Payload{"name": c.Name, "position": c.Position}); err != nil {
		return domain.Column{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Column{}, err
	}
	return c, nil
}

// CardCreateOptions are parameters for adding a card.
type CardCreateOptions struct {
	ID       string
	ColumnID string
	Title    string
	Content  string
	ActorID  string
}

func (e Engine) AddCard(ctx context.Context, opts CardCreateOptions) (domain.Card, error) {
	if opts.ColumnID == "" {
		return domain.Card{}, errors.New("column is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Card{}, err
	}
	defer tx.Rollback()
	col, err := e.Repo.GetColumnTx(ctx, tx, opts.ColumnID)
	if err != nil {
		return domain.Card{}, err
	}
	pos, err := e.Repo.NextCardPosition(ctx, tx, col.ID)
	if err != nil {
		return domain.Card{}, err
	}
	now := e.timestamp()
	c := domain.Card{
		ID:        opts.ID,
		ColumnID:  col.ID,
		Position:  pos,
		Title:     opts.Title,
		Content:   opts.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := e.Repo.InsertCardTx(ctx, tx, c); err != nil {
		return domain.Card{}, fmt.Errorf("insert card: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.CardCreate, col.BoardID, events.KindCard, c.ID, opts.ActorID, events.Payload{"column_id": col.ID}); err != nil {
		return domain.Card{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Card{}, err
	}
	return c, nil
}

// CardUpdateOptions carries the fields to change; nil leaves a field as is.
type CardUpdateOptions struct {
	ID       string
	Title    *string
	Content  *string
	ColumnID *string
	ActorID  string
}

func (e Engine) UpdateCard(ctx context.Context, opts CardUpdateOptions) (domain.Card, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Card{}, err
	}
	defer tx.Rollback()
	card, err := e.Repo.GetCardTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Card{}, err
	}
	from, err := e.Repo.GetColumnTx(ctx, tx, card.ColumnID)
	if err != nil {
		return domain.Card{}, err
	}
	evtType := events.CardUpdate
	payload := events.Payload{}
	if opts.Title != nil {
		card.Title = *opts.Title
		payload["title"] = true
	}
	if opts.Content != nil {
		card.Content = *opts.Content
		payload["content"] = true
	}
	if opts.ColumnID != nil && *opts.ColumnID != card.ColumnID {
		to, err := e.Repo.GetColumnTx(ctx, tx, *opts.ColumnID)
		if err != nil {
			return domain.Card{}, err
		}
		if to.BoardID != from.BoardID {
			return domain.Card{}, fmt.Errorf("invalid move: column %s is on another board", to.ID)
		}
		pos, err := e.Repo.NextCardPosition(ctx, tx, to.ID)
		if err != nil {
			return domain.Card{}, err
		}
		card.ColumnID = to.ID
		card.Position = pos
		evtType = events.CardMove
		payload["from"] = from.ID
		payload["to"] = to.ID
	}
	card.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateCardTx(ctx, tx, card); err != nil {
		return domain.Card{}, err
	}
	if err := e.events().Append(ctx, tx, evtType, from.BoardID, events.KindCard, card.ID, opts.ActorID, payload); err != nil {
		return domain.Card{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// MoveCard appends the card to the end of another column on the same board.
func (e Engine) MoveCard(ctx context.Context, id, columnID, actorID string) (domain.Card, error) {
	if columnID == "" {
		return domain.Card{}, errors.New("target column is required")
	}
	return e.UpdateCard(ctx, CardUpdateOptions{ID: id, ColumnID: &columnID, ActorID: actorID})
}

// DeleteBoard removes a board with everything on it. Its events stay in the
// log.
func (e Engine) DeleteBoard(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteBoardTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.events().Append(ctx, tx, events.BoardDelete, id, events.KindBoard, id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteCard(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	card, err := e.Repo.GetCardTx(ctx, tx, id)
	if err != nil {
		return err
	}
	col, err := e.Repo.GetColumnTx(ctx, tx, card.ColumnID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteCardTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.events().Append(ctx, tx, events.CardDelete, col.BoardID, events.KindCard, id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
