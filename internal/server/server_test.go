package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"storypoints/internal/config"
	"storypoints/internal/db"
	"storypoints/internal/domain"
	"storypoints/internal/engine"
	"storypoints/internal/estimate"
	"storypoints/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("board-1")
	cfg.Columns.Ignored = []string{"Inbox"}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.CreateBoard(context.Background(), engine.BoardCreateOptions{ID: "board-1", Name: "Sprint", Config: cfg, ActorID: "tester"}); err != nil {
		t.Fatalf("create board: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func est(points string) string {
	return "```est\nSP: " + points + "\n```"
}

func TestBoardLifecycleAndEstimates(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/boards/board-1"

	res, data := doJSON(t, client, http.MethodPost, base+"/columns", map[string]any{"name": "Todo"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create column status %d: %s", res.StatusCode, string(data))
	}
	var todo domain.Column
	if err := json.Unmarshal(data, &todo); err != nil {
		t.Fatalf("unmarshal column: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/columns", map[string]any{"name": "Inbox"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create inbox status %d: %s", res.StatusCode, string(data))
	}
	var inbox domain.Column
	_ = json.Unmarshal(data, &inbox)

	var cardIDs []string
	for _, content := range []string{est("3"), est("5"), "no estimate"} {
		res, data := doJSON(t, client, http.MethodPost, base+"/columns/"+todo.ID+"/cards", map[string]any{"content": content}, map[string]string{"X-Actor-Id": "alice"})
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create card status %d: %s", res.StatusCode, string(data))
		}
		var c domain.Card
		_ = json.Unmarshal(data, &c)
		cardIDs = append(cardIDs, c.ID)
	}
	doJSON(t, client, http.MethodPost, base+"/columns/"+inbox.ID+"/cards", map[string]any{"content": est("40")}, nil)

	res, data = doJSON(t, client, http.MethodGet, base+"/estimates", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("estimates status %d: %s", res.StatusCode, string(data))
	}
	var result estimate.Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0].Summary == nil {
		t.Fatalf("unexpected columns: %s", string(data))
	}
	if got := *result.Columns[0].Summary; got != (estimate.ColumnSummary{TotalStoryPoints: 8, EstimatedCount: 2, TotalCount: 3}) {
		t.Fatalf("todo summary = %+v", got)
	}
	if result.Columns[1].Summary != nil || result.Board == nil || result.Board.TotalStoryPoints != 8 {
		t.Fatalf("inbox should be disabled and board total 8: %s", string(data))
	}

	content := "```est\nSP: -1\n```"
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/cards/"+cardIDs[0], map[string]any{"content": content}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update card status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/cards/"+cardIDs[2], nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete card status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/refresh", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d: %s", res.StatusCode, string(data))
	}
	result = estimate.Result{}
	_ = json.Unmarshal(data, &result)
	if got := *result.Columns[0].Summary; got != (estimate.ColumnSummary{TotalStoryPoints: 5, EstimatedCount: 1, TotalCount: 2}) {
		t.Fatalf("todo summary after edits = %+v", got)
	}
	if result.Columns[0].Cards[0].Highlight != estimate.HighlightInvalid {
		t.Fatalf("negative estimate should be highlighted: %+v", result.Columns[0].Cards[0])
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?type=board.refresh", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts paginatedEvents
	_ = json.Unmarshal(data, &evts)
	if len(evts.Items) != 1 || evts.Items[0].Payload["total_story_points"] != 5.0 {
		t.Fatalf("unexpected refresh events: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?entity_kind=card&limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("card events status %d: %s", res.StatusCode, string(data))
	}
	evts = paginatedEvents{}
	_ = json.Unmarshal(data, &evts)
	if len(evts.Items) != 2 || evts.NextCursor == "" {
		t.Fatalf("expected a second page: %s", string(data))
	}
}

func TestGetBoardSnapshot(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards/board-1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get board status %d: %s", res.StatusCode, string(data))
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Board.Name != "Sprint" || snap.Columns == nil {
		t.Fatalf("unexpected snapshot: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list boards status %d: %s", res.StatusCode, string(data))
	}
	var boards []domain.Board
	_ = json.Unmarshal(data, &boards)
	if len(boards) != 1 || boards[0].ID != "board-1" {
		t.Fatalf("unexpected boards: %s", string(data))
	}
}

func TestDeleteBoard(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/boards/board-1", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete board status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards/board-1/refresh", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/boards/board-1", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIConcurrentFetch(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	bodies := make(chan []byte, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			bodies <- data
		}()
	}
	wg.Wait()
	close(bodies)
	var first []byte
	for data := range bodies {
		if first == nil {
			first = data
			continue
		}
		if !bytes.Equal(first, data) {
			t.Fatalf("openapi documents differ")
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(first, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Fatalf("openapi without paths: %s", string(first))
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards/missing/estimates", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected error code: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards", map[string]any{}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty board, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards", map[string]any{"id": "board-1"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate board, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards/board-1/events?cursor=abc", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d %s", res.StatusCode, string(data))
	}
}

func TestCardOnForeignColumnRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	ctx := context.Background()
	if _, err := srv.Engine.CreateBoard(ctx, engine.BoardCreateOptions{ID: "other"}); err != nil {
		t.Fatalf("create board: %v", err)
	}
	col, err := srv.Engine.AddColumn(ctx, engine.ColumnCreateOptions{BoardID: "other", Name: "Todo"})
	if err != nil {
		t.Fatalf("add column: %v", err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards/board-1/columns/"+col.ID+"/cards", map[string]any{"content": "x"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should stay open, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d %s", res.StatusCode, string(data))
	}

	token, err := IssueToken(secret, "bob", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + token}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/boards/board-1/refresh", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("refresh with token status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/boards/board-1/events?type=board.refresh", nil, auth)
	var evts paginatedEvents
	_ = json.Unmarshal(data, &evts)
	if res.StatusCode != http.StatusOK || len(evts.Items) != 1 || evts.Items[0].ActorID != "bob" {
		t.Fatalf("refresh should be attributed to the token subject: %d %s", res.StatusCode, string(data))
	}
}
