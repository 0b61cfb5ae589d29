package storypointssdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"storypoints/internal/config"
	"storypoints/internal/db"
	"storypoints/internal/engine"
	"storypoints/internal/migrate"
	"storypoints/internal/server"
)

func newTestAPI(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default("sprint"))
	_, err = e.CreateBoard(context.Background(), engine.BoardCreateOptions{ID: "sprint"})
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func TestClientRoundTrip(t *testing.T) {
	srv, e := newTestAPI(t)
	ctx := context.Background()
	col, err := e.AddColumn(ctx, engine.ColumnCreateOptions{BoardID: "sprint", Name: "Todo"})
	require.NoError(t, err)
	_, err = e.AddCard(ctx, engine.CardCreateOptions{ColumnID: col.ID, Content: "```est\nSP: 2.5\n```"})
	require.NoError(t, err)
	_, err = e.AddCard(ctx, engine.CardCreateOptions{ColumnID: col.ID, Content: "todo"})
	require.NoError(t, err)

	c := New(srv.URL, "sprint")
	c.ActorID = "sdk"

	boards, err := c.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	require.Equal(t, "sprint", boards[0].ID)

	res, err := c.Estimates(ctx)
	require.NoError(t, err)
	require.Len(t, res.Columns, 1)
	require.Equal(t, ColumnSummary{TotalStoryPoints: 2.5, EstimatedCount: 1, TotalCount: 2}, *res.Columns[0].Summary)
	require.Equal(t, "unestimated", res.Columns[0].Cards[1].Highlight)
	require.NotNil(t, res.Board)
	require.Equal(t, 2.5, res.Board.TotalStoryPoints)

	refreshed, err := c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, res, refreshed)
}

func TestClientNotFound(t *testing.T) {
	srv, _ := newTestAPI(t)
	_, err := New(srv.URL, "missing").Refresh(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "not_found", apiErr.Code)
}
