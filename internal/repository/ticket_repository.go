package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ticketforge/mint-engine/internal/model"
)

// TicketRepo persists predicted tickets.
type TicketRepo struct{ db *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// CreateMany inserts tickets in a single transaction.  Ticket ids are
// derived from their inputs, so inserting an existing ticket again is a
// no-op.
func (r *TicketRepo) CreateMany(ctx context.Context, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	const ins = `INSERT INTO tickets (id, owner, category_id, group_id, authorization_id, status, transaction_hash)
                 VALUES (?, ?, ?, ?, ?, ?, ?)
                 ON DUPLICATE KEY UPDATE id = id`
	stmt, err := tx.PrepareContext(ctx, ins)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range tickets {
		var hash sql.NullString
		if t.TransactionHash != nil {
			hash = sql.NullString{String: *t.TransactionHash, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, t.ID, t.Owner, t.CategoryID, t.GroupID, t.AuthorizationID, t.Status, hash); err != nil {
			return fmt.Errorf("ticket %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// Update applies patch to ticket id.  ErrNotFound is returned when the
// ticket does not exist.
func (r *TicketRepo) Update(ctx context.Context, id string, patch model.TicketPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.TransactionHash != nil {
		sets = append(sets, "transaction_hash = ?")
		args = append(args, *patch.TransactionHash)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if len(sets) == 0 {
		return nil
	}
	q := `UPDATE tickets SET ` + strings.Join(sets, ", ") + `, updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, append(args, id)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	return nil
}
