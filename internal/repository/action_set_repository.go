package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ticketforge/mint-engine/internal/model"
)

// ActionSetRepo stores multi step workflows.  The actions column holds the
// JSON array of model.Action.
type ActionSetRepo struct{ db *sql.DB }

func NewActionSetRepo(db *sql.DB) *ActionSetRepo { return &ActionSetRepo{db: db} }

// Search returns the action sets with the given id.
func (r *ActionSetRepo) Search(ctx context.Context, id string) ([]model.ActionSet, error) {
	const q = `SELECT id, name, owner, current_action, current_status, actions, created_at, updated_at
               FROM action_sets WHERE id = ?`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ActionSet
	for rows.Next() {
		s, err := scanActionSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActionSet(row rowScanner) (model.ActionSet, error) {
	var (
		s   model.ActionSet
		raw []byte
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Owner, &s.CurrentAction, &s.CurrentStatus, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return s, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.Actions); err != nil {
			return s, fmt.Errorf("action set %s: decode actions: %w", s.ID, err)
		}
	}
	return s, nil
}

// UpdateAction sets the status and data of action step and moves the set's
// cursor onto it.
func (r *ActionSetRepo) UpdateAction(ctx context.Context, id string, step int, patch model.ActionPatch) error {
	data, err := json.Marshal(patch.Data)
	if err != nil {
		return fmt.Errorf("action set %s: encode data: %w", id, err)
	}
	return r.mutate(ctx, id, step, func(a *model.Action) {
		a.Status = patch.Status
		a.Data = data
	}, patch.Status)
}

// ErrorStep marks action step as failed with code and a JSON payload.
func (r *ActionSetRepo) ErrorStep(ctx context.Context, id, code string, payload any, step int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("action set %s: encode error: %w", id, err)
	}
	return r.mutate(ctx, id, step, func(a *model.Action) {
		a.Status = model.ActionError
		a.ErrorCode = code
		a.Error = raw
	}, model.ActionError)
}

// mutate applies fn to action step under a row lock.
func (r *ActionSetRepo) mutate(ctx context.Context, id string, step int, fn func(*model.Action), status model.ActionStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	const sel = `SELECT id, name, owner, current_action, current_status, actions, created_at, updated_at
                 FROM action_sets WHERE id = ? FOR UPDATE`
	s, err := scanActionSet(tx.QueryRowContext(ctx, sel, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("action set %s: %w", id, ErrNotFound)
		}
		return err
	}
	if step < 0 || step >= len(s.Actions) {
		return fmt.Errorf("action set %s: step %d out of %d: %w", id, step, len(s.Actions), ErrConflict)
	}
	fn(&s.Actions[step])

	raw, err := json.Marshal(s.Actions)
	if err != nil {
		return err
	}
	const upd = `UPDATE action_sets SET actions = ?, current_action = ?, current_status = ?, updated_at = NOW() WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, raw, step, status, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Build creates an action set from template owned by owner, seeded with
// payload as the data of its single action, and returns its id.  A
// dispatched set starts in progress so processors pick it up; otherwise it
// waits.
func (r *ActionSetRepo) Build(ctx context.Context, template, owner string, payload any, dispatch bool) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("build %s: encode payload: %w", template, err)
	}
	status := model.ActionWaiting
	if dispatch {
		status = model.ActionInProgress
	}
	actions, err := json.Marshal([]model.Action{{Name: template, Type: "event", Status: status, Data: data}})
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	const ins = `INSERT INTO action_sets (id, name, owner, current_action, current_status, actions) VALUES (?, ?, ?, 0, ?, ?)`
	if _, err := r.db.ExecContext(ctx, ins, id, template, owner, status, actions); err != nil {
		if isDuplicate(err) {
			return "", fmt.Errorf("action set %s: %w", id, ErrConflict)
		}
		return "", err
	}
	return id, nil
}
