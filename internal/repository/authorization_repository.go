package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ticketforge/mint-engine/internal/model"
)

// AuthorizationRepo persists signed mint authorizations.  Rows are never
// deleted: cancellation, dispatch and consumption are flags.
type AuthorizationRepo struct{ db *sql.DB }

func NewAuthorizationRepo(db *sql.DB) *AuthorizationRepo { return &AuthorizationRepo{db: db} }

const authorizationColumns = `id, granter, grantee, mode, codes, selectors, args, signature, readable_signature,
       cancelled, dispatched, consumed, user_expiration, be_expiration, created_at, updated_at`

// Search returns the records matching key exactly.
func (r *AuthorizationRepo) Search(ctx context.Context, key model.AuthorizationKey) ([]model.AuthorizationRecord, error) {
	q := `SELECT ` + authorizationColumns + `
          FROM authorizations WHERE id = ? AND mode = ? AND granter = ? AND grantee = ?`
	rows, err := r.db.QueryContext(ctx, q, key.ID, key.Mode, key.Granter, key.Grantee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuthorizationRecord
	for rows.Next() {
		var (
			a   model.AuthorizationRecord
			sig sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Granter, &a.Grantee, &a.Mode, &a.Codes, &a.Selectors, &a.Args, &sig,
			&a.ReadableSignature, &a.Cancelled, &a.Dispatched, &a.Consumed,
			&a.UserExpiration, &a.BeExpiration, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if sig.Valid {
			a.Signature = &sig.String
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies patch to the record identified by key.  It returns
// ErrNotFound when no row matches and nil without touching the database when
// the patch is empty.
func (r *AuthorizationRepo) Update(ctx context.Context, key model.AuthorizationKey, patch model.AuthorizationPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.ClearSignature {
		sets = append(sets, "signature = NULL")
	}
	if patch.Cancelled != nil {
		sets = append(sets, "cancelled = ?")
		args = append(args, *patch.Cancelled)
	}
	if patch.Dispatched != nil {
		sets = append(sets, "dispatched = ?")
		args = append(args, *patch.Dispatched)
	}
	if len(sets) == 0 {
		return nil
	}
	q := `UPDATE authorizations SET ` + strings.Join(sets, ", ") + `, updated_at = NOW()
          WHERE id = ? AND mode = ? AND granter = ? AND grantee = ?`
	args = append(args, key.ID, key.Mode, key.Granter, key.Grantee)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("authorization %s: %w", key.ID, ErrNotFound)
	}
	return nil
}

// Count returns the number of authorizations still holding a seat of the
// category identified by q.Selector.
func (r *AuthorizationRepo) Count(ctx context.Context, q model.OutstandingQuery) (int64, error) {
	const sel = `SELECT COUNT(*) FROM authorizations
                 WHERE selectors = ? AND cancelled = 0 AND consumed = 0 AND dispatched = 0 AND be_expiration > ?`
	var n int64
	if err := r.db.QueryRowContext(ctx, sel, q.Selector, q.Now).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateMany inserts records in a single transaction.  A duplicate key
// rolls the whole batch back and returns ErrConflict.
func (r *AuthorizationRepo) CreateMany(ctx context.Context, records []model.AuthorizationRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	const ins = `INSERT INTO authorizations
                 (id, granter, grantee, mode, codes, selectors, args, signature, readable_signature,
                  cancelled, dispatched, consumed, user_expiration, be_expiration)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, ins)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range records {
		var sig sql.NullString
		if a.Signature != nil {
			sig = sql.NullString{String: *a.Signature, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.Granter, a.Grantee, a.Mode, a.Codes, a.Selectors, a.Args,
			sig, a.ReadableSignature, a.UserExpiration, a.BeExpiration); err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("authorization %s: %w", a.ID, ErrConflict)
			}
			return err
		}
	}
	return tx.Commit()
}
