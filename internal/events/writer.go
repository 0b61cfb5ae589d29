package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	BoardCreate  = "board.create"
	BoardImport  = "board.import"
	BoardDelete  = "board.delete"
	BoardRefresh = "board.refresh"
	ConfigImport = "board.config.import"
	ColumnCreate = "column.create"
	CardCreate   = "card.create"
	CardUpdate   = "card.update"
	CardMove     = "card.move"
	CardDelete   = "card.delete"
)

// Entity kinds.
const (
	KindBoard  = "board"
	KindColumn = "column"
	KindCard   = "card"
)

const DefaultActor = "local-user"

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Append records an event inside tx so it commits with the change it
// describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, boardID, entityKind, entityID, actorID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if actorID == "" {
		actorID = DefaultActor
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	data := []byte("{}")
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,board_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(boardID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
