package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storypoints/internal/config"
	"storypoints/internal/db"
	"storypoints/internal/domain"
	"storypoints/internal/engine"
	"storypoints/internal/estimate"
	"storypoints/internal/events"
	"storypoints/internal/migrate"
	"storypoints/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("board-1")
	cfg.Columns.Ignored = []string{"Inbox"}
	cfg.Columns.ExcludedFromBoardTotal = []string{"Backlog"}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateBoard(ctx, engine.BoardCreateOptions{ID: "board-1", Name: "Sprint", Config: cfg, ActorID: "tester"}); err != nil {
		t.Fatalf("create board: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) column(t *testing.T, name string) domain.Column {
	t.Helper()
	c, err := env.Engine.AddColumn(env.Ctx, engine.ColumnCreateOptions{BoardID: "board-1", Name: name, ActorID: "tester"})
	if err != nil {
		t.Fatalf("add column %s: %v", name, err)
	}
	return c
}

func (env testEnv) card(t *testing.T, columnID, content string) domain.Card {
	t.Helper()
	c, err := env.Engine.AddCard(env.Ctx, engine.CardCreateOptions{ColumnID: columnID, Title: "card", Content: content, ActorID: "tester"})
	if err != nil {
		t.Fatalf("add card: %v", err)
	}
	return c
}

func est(points string) string {
	return "```est\nSP: " + points + "\n```"
}

func TestRefreshComputesBoardState(t *testing.T) {
	env := newTestEnv(t)
	backlog := env.column(t, "Backlog")
	todo := env.column(t, "Todo")
	inbox := env.column(t, "Inbox")
	done := env.column(t, "Done")
	env.card(t, backlog.ID, est("3"))
	env.card(t, backlog.ID, est("2"))
	env.card(t, backlog.ID, "no estimate")
	env.card(t, todo.ID, est("5"))
	env.card(t, inbox.ID, est("40"))
	env.card(t, done.ID, est("4"))
	env.card(t, done.ID, est("3"))
	bad := env.card(t, done.ID, est("1")+"\n"+est("2"))

	res, err := env.Engine.Refresh(env.Ctx, "board-1", "tester")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(res.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(res.Columns))
	}
	if got := *res.Columns[0].Summary; got != (estimate.ColumnSummary{TotalStoryPoints: 5, EstimatedCount: 2, TotalCount: 3}) {
		t.Fatalf("backlog summary = %+v", got)
	}
	if !res.Columns[2].Disabled() {
		t.Fatalf("inbox should be disabled")
	}
	if res.Board == nil || res.Board.TotalStoryPoints != 12 {
		t.Fatalf("board total = %+v", res.Board)
	}
	if len(res.Board.ExcludedColumnNames) != 2 || res.Board.ExcludedColumnNames[0] != "Backlog" || res.Board.ExcludedColumnNames[1] != "Inbox" {
		t.Fatalf("excluded = %v", res.Board.ExcludedColumnNames)
	}
	last := res.Columns[3].Cards[2]
	if last.CardID != bad.ID || last.Highlight != estimate.HighlightInvalid {
		t.Fatalf("expected invalid highlight on %s, got %+v", bad.ID, last)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, repo.EventFilter{BoardID: "board-1", Type: events.BoardRefresh})
	if err != nil || len(evts) != 1 {
		t.Fatalf("refresh event: %v %v", evts, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(evts[0].Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["total_story_points"] != 12.0 || payload["invalid"] != 1.0 {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	todo := env.column(t, "Todo")
	env.card(t, todo.ID, est("1"))
	env.card(t, todo.ID, "plain")
	first, err := env.Engine.Refresh(env.Ctx, "board-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.Refresh(env.Ctx, "board-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if *first.Columns[0].Summary != *second.Columns[0].Summary || first.Board.TotalStoryPoints != second.Board.TotalStoryPoints {
		t.Fatalf("results drifted: %+v vs %+v", first, second)
	}
}

func TestRefreshFollowsEdits(t *testing.T) {
	env := newTestEnv(t)
	todo := env.column(t, "Todo")
	done := env.column(t, "Done")
	c := env.card(t, todo.ID, est("3"))
	content := est("8")
	if _, err := env.Engine.UpdateCard(env.Ctx, engine.CardUpdateOptions{ID: c.ID, Content: &content, ActorID: "tester"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	res, err := env.Engine.Estimate(env.Ctx, "board-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Columns[0].Summary.TotalStoryPoints != 8 {
		t.Fatalf("expected 8 after edit, got %v", res.Columns[0].Summary.TotalStoryPoints)
	}
	if _, err := env.Engine.MoveCard(env.Ctx, c.ID, done.ID, "tester"); err != nil {
		t.Fatalf("move: %v", err)
	}
	res, _ = env.Engine.Estimate(env.Ctx, "board-1")
	if res.Columns[0].Summary.TotalCount != 0 || res.Columns[1].Summary.TotalStoryPoints != 8 {
		t.Fatalf("move not reflected: %+v", res.Columns)
	}
	if err := env.Engine.DeleteCard(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	res, _ = env.Engine.Estimate(env.Ctx, "board-1")
	if res.Board.TotalStoryPoints != 0 {
		t.Fatalf("delete not reflected: %+v", res.Board)
	}
}

func TestRefreshMissingBoard(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Refresh(env.Ctx, "nope", "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteBoardStopsRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.card(t, env.column(t, "Todo").ID, est("3"))
	if err := env.Engine.DeleteBoard(env.Ctx, "board-1", "tester"); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	if _, err := env.Engine.Refresh(env.Ctx, "board-1", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := env.Engine.DeleteBoard(env.Ctx, "board-1", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	items, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, repo.EventFilter{BoardID: "board-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Type != events.BoardDelete {
		t.Fatalf("expected board.delete event, got %+v", items)
	}
}

func TestMoveAcrossBoardsRejected(t *testing.T) {
	env := newTestEnv(t)
	todo := env.column(t, "Todo")
	c := env.card(t, todo.ID, "x")
	if _, err := env.Engine.CreateBoard(env.Ctx, engine.BoardCreateOptions{ID: "other", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	foreign, err := env.Engine.AddColumn(env.Ctx, engine.ColumnCreateOptions{BoardID: "other", Name: "Todo"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MoveCard(env.Ctx, c.ID, foreign.ID, ""); err == nil {
		t.Fatalf("expected cross-board move to fail")
	}
}

func TestImportSnapshotReplacesBoard(t *testing.T) {
	env := newTestEnv(t)
	env.card(t, env.column(t, "Old").ID, est("99"))
	snap := domain.Snapshot{
		Board: domain.Board{ID: "board-1"},
		Columns: []domain.ColumnSnapshot{
			{Column: domain.Column{Name: "Todo"}, Cards: []domain.Card{{Content: est("2")}, {Content: est("3")}}},
			{Column: domain.Column{}, Cards: []domain.Card{{Content: est("1")}}},
		},
	}
	if _, err := env.Engine.ImportSnapshot(env.Ctx, snap, nil, "tester"); err != nil {
		t.Fatalf("import: %v", err)
	}
	res, err := env.Engine.Estimate(env.Ctx, "board-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Columns) != 2 || res.Board.TotalStoryPoints != 6 {
		t.Fatalf("unexpected state after import: %+v", res)
	}
	if res.Columns[1].Name != "" || res.Columns[1].Policy != estimate.PolicyCounted {
		t.Fatalf("unnamed column should be counted: %+v", res.Columns[1])
	}
	// stored config survives a re-import without one
	cfg, err := env.Engine.BoardConfig(env.Ctx, "board-1")
	if err != nil || len(cfg.Columns.Ignored) != 1 {
		t.Fatalf("config lost: %+v %v", cfg, err)
	}
}

func TestImportSnapshotCreatesBoard(t *testing.T) {
	env := newTestEnv(t)
	snap := domain.Snapshot{Board: domain.Board{ID: "fresh", Name: "Fresh"}}
	if _, err := env.Engine.ImportSnapshot(env.Ctx, snap, nil, "tester"); err != nil {
		t.Fatalf("import: %v", err)
	}
	b, err := env.Engine.Repo.GetBoard(env.Ctx, "fresh")
	if err != nil || b.Name != "Fresh" {
		t.Fatalf("board not created: %+v %v", b, err)
	}
	cfg, err := env.Engine.BoardConfig(env.Ctx, "fresh")
	if err != nil || cfg.Board.ID != "fresh" || !cfg.Display.ShowBoardTotal {
		t.Fatalf("default config not stored: %+v %v", cfg, err)
	}
}

func TestImportBoardConfig(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default("board-1")
	cfg.Display.ShowBoardTotal = false
	if err := env.Engine.ImportBoardConfig(env.Ctx, "board-1", cfg, "tester"); err != nil {
		t.Fatalf("import config: %v", err)
	}
	res, err := env.Engine.Estimate(env.Ctx, "board-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Board != nil {
		t.Fatalf("board total should be hidden")
	}
	if err := env.Engine.ImportBoardConfig(env.Ctx, "missing", cfg, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
