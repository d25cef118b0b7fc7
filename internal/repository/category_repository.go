package repository

import (
	"context"
	"database/sql"

	"github.com/ticketforge/mint-engine/internal/model"
)

// CategoryRepo reads ticket category inventories.
type CategoryRepo struct{ db *sql.DB }

func NewCategoryRepo(db *sql.DB) *CategoryRepo { return &CategoryRepo{db: db} }

// Search returns the categories with the given id.  An unknown id yields an
// empty slice and nil error.
func (r *CategoryRepo) Search(ctx context.Context, id string) ([]model.CategoryInventory, error) {
	const q = `SELECT id, group_id, category_name, seats, reserved, created_at, updated_at
               FROM categories WHERE id = ?`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CategoryInventory
	for rows.Next() {
		var c model.CategoryInventory
		if err := rows.Scan(&c.ID, &c.GroupID, &c.CategoryName, &c.Seats, &c.Reserved, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
