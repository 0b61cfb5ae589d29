package repo

import (
	"context"
	"database/sql"

	"storypoints/internal/domain"
)

func (r Repo) InsertColumnTx(ctx context.Context, tx *sql.Tx, c domain.Column) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO board_columns(id,board_id,name,position,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.BoardID, nullable(c.Name), c.Position, c.CreatedAt)
	return err
}

func (r Repo) GetColumn(ctx context.Context, id string) (domain.Column, error) {
	return getColumn(ctx, r.DB, id)
}

func (r Repo) GetColumnTx(ctx context.Context, tx *sql.Tx, id string) (domain.Column, error) {
	return getColumn(ctx, tx, id)
}

func getColumn(ctx context.Context, q execer, id string) (domain.Column, error) {
	var c domain.Column
	err := q.QueryRowContext(ctx, `SELECT id,board_id,COALESCE(name,''),position,created_at FROM board_columns WHERE id=?`, id).
		Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func listColumns(ctx context.Context, q execer, boardID string) ([]domain.Column, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,board_id,COALESCE(name,''),position,created_at FROM board_columns WHERE board_id=? ORDER BY position, created_at`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Column{}
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// NextColumnPosition returns the position after the last column of a board.
func (r Repo) NextColumnPosition(ctx context.Context, tx *sql.Tx, boardID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1,0) FROM board_columns WHERE board_id=?`, boardID).Scan(&pos)
	return pos, err
}

// NextCardPosition returns the position after the last card of a column.
func (r Repo) NextCardPosition(ctx context.Context, tx *sql.Tx, columnID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1,0) FROM cards WHERE column_id=?`, columnID).Scan(&pos)
	return pos, err
}

func (r Repo) InsertCardTx(ctx context.Context, tx *sql.Tx, c domain.Card) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cards(id,column_id,position,title,content,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.ColumnID, c.Position, nullable(c.Title), c.Content, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) UpdateCardTx(ctx context.Context, tx *sql.Tx, c domain.Card) error {
	res, err := tx.ExecContext(ctx, `UPDATE cards SET column_id=?,position=?,title=?,content=?,updated_at=? WHERE id=?`,
		c.ColumnID, c.Position, nullable(c.Title), c.Content, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCardTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCard(ctx context.Context, id string) (domain.Card, error) {
	return getCard(ctx, r.DB, id)
}

func (r Repo) GetCardTx(ctx context.Context, tx *sql.Tx, id string) (domain.Card, error) {
	return getCard(ctx, tx, id)
}

func getCard(ctx context.Context, q execer, id string) (domain.Card, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,column_id,position,COALESCE(title,''),content,created_at,updated_at FROM cards WHERE id=?`, id)
	if err != nil {
		return domain.Card{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Card{}, err
		}
		return domain.Card{}, ErrNotFound
	}
	return scanCard(rows)
}

func scanCard(rows *sql.Rows) (domain.Card, error) {
	var c domain.Card
	err := rows.Scan(&c.ID, &c.ColumnID, &c.Position, &c.Title, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
