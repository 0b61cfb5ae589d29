// Package boardfile reads board snapshots from YAML files.
//
// A board file looks like:
//
//	board:
//	  id: sprint-12
//	  name: Sprint 12
//	columns:
//	  - name: Todo
//	    cards:
//	      - title: Login page
//	        content: |
//	          ```est
//	          SP: 3
//	          ```
//	  - cards: []   # unnamed column
package boardfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"storypoints/internal/domain"
	"storypoints/internal/repo"
)

// Parse decodes a snapshot. Unknown keys are rejected. Cards and columns
// without ids get positional ones so results can point at them.
func Parse(data []byte) (domain.Snapshot, error) {
	var snap domain.Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
		return domain.Snapshot{}, fmt.Errorf("invalid board yaml: %w", err)
	}
	for i := range snap.Columns {
		col := &snap.Columns[i]
		col.Position = i
		if col.ID == "" {
			col.ID = fmt.Sprintf("col-%d", i+1)
		}
		for j := range col.Cards {
			card := &col.Cards[j]
			card.ColumnID = col.ID
			card.Position = j
			if card.ID == "" {
				card.ID = fmt.Sprintf("%s-card-%d", col.ID, j+1)
			}
		}
	}
	return snap, nil
}

// Load reads path. A missing file reports repo.ErrNotFound, the same way a
// missing board does in the store.
func Load(path string) (domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Snapshot{}, fmt.Errorf("board file %s: %w", path, repo.ErrNotFound)
		}
		return domain.Snapshot{}, err
	}
	return Parse(data)
}

// Marshal writes a snapshot in the same layout Parse reads.
func Marshal(snap domain.Snapshot) ([]byte, error) {
	return yaml.Marshal(snap)
}
