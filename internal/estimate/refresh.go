package estimate

import (
	"storypoints/internal/domain"
)

// Options is the already-validated configuration a refresh runs with.
type Options struct {
	Tag                    string
	Marker                 string
	HighlightUnestimated   bool
	ShowBoardTotal         bool
	IgnoredColumns         []string
	ExcludedFromBoardTotal []string
}

// ColumnResult is what a renderer shows for one column. Summary is nil when
// the column is ignored, which renders as the "disabled" placeholder.
type ColumnResult struct {
	Index    int            `json:"index"`
	ColumnID string         `json:"column_id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Policy   Policy         `json:"policy" enum:"counted,excluded_from_board_total,ignored"`
	Summary  *ColumnSummary `json:"summary,omitempty"`
	Cards    []CardResult   `json:"cards"`
}

func (c ColumnResult) Disabled() bool { return c.Summary == nil }

// Result is the complete output of one refresh cycle.
type Result struct {
	BoardID string         `json:"board_id"`
	Columns []ColumnResult `json:"columns"`
	Board   *BoardSummary  `json:"board,omitempty"`
}

// Compute derives the whole board state from a snapshot. It holds no state
// between calls, so calling it twice on the same snapshot gives equal
// results.
func Compute(snap domain.Snapshot, opts Options) Result {
	classifier := NewClassifier(opts.Tag, opts.Marker)
	res := Result{
		BoardID: snap.Board.ID,
		Columns: make([]ColumnResult, 0, len(snap.Columns)),
	}
	boardCols := make([]BoardColumn, 0, len(snap.Columns))
	for i, col := range snap.Columns {
		policy := ResolvePolicy(col.Name, opts)
		cr := ColumnResult{
			Index:    i,
			ColumnID: col.ID,
			Name:     col.Name,
			Policy:   policy,
			Cards:    []CardResult{},
		}
		if policy != PolicyIgnored {
			sum, cards := AggregateColumn(classifier, col.Cards, opts.HighlightUnestimated)
			cr.Summary = &sum
			cr.Cards = cards
		}
		res.Columns = append(res.Columns, cr)
		boardCols = append(boardCols, BoardColumn{Name: col.Name, Policy: policy, Summary: cr.Summary})
	}
	if opts.ShowBoardTotal {
		board := AggregateBoard(boardCols)
		res.Board = &board
	}
	return res
}
