package domain

type Board struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	CreatedAt string `json:"created_at" yaml:"-" format:"date-time"`
}

// Column is a board lane. Name may be empty when the board has no header
// for it; columns are identified by position, not name.
type Column struct {
	ID        string `json:"id" yaml:"id,omitempty"`
	BoardID   string `json:"board_id" yaml:"-"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Position  int    `json:"position" yaml:"-"`
	CreatedAt string `json:"created_at" yaml:"-" format:"date-time"`
}

type Card struct {
	ID        string `json:"id" yaml:"id,omitempty"`
	ColumnID  string `json:"column_id" yaml:"-"`
	Position  int    `json:"position" yaml:"-"`
	Title     string `json:"title" yaml:"title,omitempty"`
	Content   string `json:"content" yaml:"content"`
	CreatedAt string `json:"created_at" yaml:"-" format:"date-time"`
	UpdatedAt string `json:"updated_at" yaml:"-" format:"date-time"`
}

// ColumnSnapshot is a column with its cards in board order.
type ColumnSnapshot struct {
	Column `yaml:",inline"`
	Cards  []Card `json:"cards" yaml:"cards"`
}

// Snapshot is a read-only view of a whole board taken at one instant.
type Snapshot struct {
	Board   Board            `json:"board" yaml:"board"`
	Columns []ColumnSnapshot `json:"columns" yaml:"columns"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	BoardID    string `json:"board_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
