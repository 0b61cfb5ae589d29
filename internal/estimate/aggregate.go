package estimate

import (
	"storypoints/internal/domain"
)

// Policy decides how a column takes part in the totals.
type Policy string

const (
	PolicyCounted                Policy = "counted"
	PolicyExcludedFromBoardTotal Policy = "excluded_from_board_total"
	PolicyIgnored                Policy = "ignored"
)

// Highlight is the visual state a renderer should give a card.
type Highlight string

const (
	HighlightNone        Highlight = ""
	HighlightUnestimated Highlight = "unestimated"
	HighlightInvalid     Highlight = "invalid"
)

type ColumnSummary struct {
	TotalStoryPoints float64 `json:"total_story_points"`
	EstimatedCount   int     `json:"estimated_count"`
	TotalCount       int     `json:"total_count"`
}

type CardResult struct {
	CardID         string         `json:"card_id,omitempty"`
	Classification Classification `json:"classification"`
	Highlight      Highlight      `json:"highlight,omitempty"`
}

type BoardSummary struct {
	TotalStoryPoints    float64  `json:"total_story_points"`
	ExcludedColumnNames []string `json:"excluded_column_names"`
}

// ResolvePolicy matches a column name against the configured lists by exact
// equality. Unnamed columns are always counted.
func ResolvePolicy(name string, opts Options) Policy {
	if name == "" {
		return PolicyCounted
	}
	if contains(opts.IgnoredColumns, name) {
		return PolicyIgnored
	}
	if contains(opts.ExcludedFromBoardTotal, name) {
		return PolicyExcludedFromBoardTotal
	}
	return PolicyCounted
}

// AggregateColumn classifies every card and folds the estimated ones into a
// summary. The returned annotations line up with cards by index.
func AggregateColumn(c *Classifier, cards []domain.Card, highlightUnestimated bool) (ColumnSummary, []CardResult) {
	sum := ColumnSummary{TotalCount: len(cards)}
	results := make([]CardResult, 0, len(cards))
	for _, card := range cards {
		cl := c.Classify(card.Content)
		res := CardResult{CardID: card.ID, Classification: cl}
		switch cl.Status {
		case StatusEstimated:
			sum.TotalStoryPoints += cl.Value
			sum.EstimatedCount++
		case StatusInvalid:
			res.Highlight = HighlightInvalid
		case StatusUnestimated:
			if highlightUnestimated {
				res.Highlight = HighlightUnestimated
			}
		}
		results = append(results, res)
	}
	return sum, results
}

// BoardColumn is the per-column input of AggregateBoard. Summary is nil for
// ignored columns.
type BoardColumn struct {
	Name    string
	Policy  Policy
	Summary *ColumnSummary
}

// AggregateBoard sums counted columns and lists the names left out of the
// total, de-duplicated in order of first appearance.
func AggregateBoard(columns []BoardColumn) BoardSummary {
	board := BoardSummary{ExcludedColumnNames: []string{}}
	seen := map[string]bool{}
	for _, col := range columns {
		switch col.Policy {
		case PolicyCounted:
			if col.Summary != nil {
				board.TotalStoryPoints += col.Summary.TotalStoryPoints
			}
		case PolicyIgnored, PolicyExcludedFromBoardTotal:
			if !seen[col.Name] {
				seen[col.Name] = true
				board.ExcludedColumnNames = append(board.ExcludedColumnNames, col.Name)
			}
		}
	}
	return board
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
