// Package render turns refresh results into text for terminals.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"storypoints/internal/estimate"
)

// Points formats a story point value without trailing zeros.
func Points(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ColumnLine is the summary shown under a column header.
func ColumnLine(col estimate.ColumnResult) string {
	if col.Disabled() {
		return "Story Points: disabled"
	}
	s := col.Summary
	return fmt.Sprintf("Story Points: %s (Estimated: %d/%d)", Points(s.TotalStoryPoints), s.EstimatedCount, s.TotalCount)
}

// BoardLine is the board-wide summary. It is empty when the board total is
// turned off.
func BoardLine(b *estimate.BoardSummary) string {
	if b == nil {
		return ""
	}
	line := "Board total: " + Points(b.TotalStoryPoints)
	if len(b.ExcludedColumnNames) > 0 {
		line += " (ignored: " + strings.Join(b.ExcludedColumnNames, ", ") + ")"
	}
	return line
}

func columnName(col estimate.ColumnResult) string {
	if col.Name == "" {
		return fmt.Sprintf("#%d", col.Index+1)
	}
	return col.Name
}

// Summary writes one line per column and then the board line.
func Summary(w io.Writer, res estimate.Result) {
	for _, col := range res.Columns {
		fmt.Fprintf(w, "%-20s %s\n", columnName(col), ColumnLine(col))
	}
	if line := BoardLine(res.Board); line != "" {
		fmt.Fprintln(w, line)
	}
}

// Table writes one row per column followed by the highlighted cards.
func Table(w io.Writer, res estimate.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Column", "Policy", "Story Points", "Estimated", "Cards"})
	for _, col := range res.Columns {
		if col.Disabled() {
			t.AppendRow(table.Row{columnName(col), col.Policy, "disabled", "-", "-"})
			continue
		}
		s := col.Summary
		t.AppendRow(table.Row{columnName(col), col.Policy, Points(s.TotalStoryPoints), s.EstimatedCount, s.TotalCount})
	}
	if res.Board != nil {
		t.AppendFooter(table.Row{"Board", "", Points(res.Board.TotalStoryPoints), "", ""})
	}
	t.Render()
	if res.Board != nil && len(res.Board.ExcludedColumnNames) > 0 {
		fmt.Fprintf(w, "ignored: %s\n", strings.Join(res.Board.ExcludedColumnNames, ", "))
	}

	hl := table.NewWriter()
	hl.SetOutputMirror(w)
	hl.SetStyle(table.StyleLight)
	hl.AppendHeader(table.Row{"Column", "Card", "State", "Detail"})
	var rows int
	for _, col := range res.Columns {
		for _, c := range col.Cards {
			if c.Highlight == estimate.HighlightNone {
				continue
			}
			state := string(c.Highlight)
			if c.Highlight == estimate.HighlightInvalid {
				state = text.FgRed.Sprint(state)
			} else {
				state = text.FgYellow.Sprint(state)
			}
			detail := c.Classification.Detail
			if detail == "" {
				detail = string(c.Classification.Reason)
			}
			hl.AppendRow(table.Row{columnName(col), c.CardID, state, detail})
			rows++
		}
	}
	if rows > 0 {
		hl.Render()
	}
}
