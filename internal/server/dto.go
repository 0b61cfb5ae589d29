package server

import (
	"encoding/json"

	"storypoints/internal/domain"
)

// Request payloads

type CreateBoardRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type CreateColumnRequest struct {
	Name string `json:"name,omitempty" doc:"Empty names are allowed and always counted"`
}

type CreateCardRequest struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

type UpdateCardRequest struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	ColumnID *string `json:"column_id,omitempty" doc:"Move the card to the end of this column"`
}

// Responses

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	BoardID    string         `json:"board_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		BoardID:    e.BoardID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// snapshotResponse makes sure empty lists encode as [] rather than null.
func snapshotResponse(s domain.Snapshot) domain.Snapshot {
	s.Columns = nonNilSlice(s.Columns)
	for i := range s.Columns {
		s.Columns[i].Cards = nonNilSlice(s.Columns[i].Cards)
	}
	return s
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
