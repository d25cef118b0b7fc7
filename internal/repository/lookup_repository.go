package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ticketforge/mint-engine/internal/model"
)

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// FindByAddress fetches an active user by wallet address, case insensitive.
func (r *UserRepo) FindByAddress(ctx context.Context, address string) (model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id,address,email,is_active,created_at,updated_at FROM users WHERE address=? AND is_active=1 LIMIT 1",
		strings.ToLower(strings.TrimSpace(address))).Scan(&u.ID, &u.Address, &u.Email, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", address, ErrNotFound)
	}
	return u, err
}

type CurrencyRepo struct{ db *sql.DB }

func NewCurrencyRepo(db *sql.DB) *CurrencyRepo { return &CurrencyRepo{db: db} }

// Get fetches a registered currency by name.
func (r *CurrencyRepo) Get(ctx context.Context, name string) (model.Currency, error) {
	var c model.Currency
	err := r.db.QueryRowContext(ctx,
		"SELECT name,type,address,decimals FROM currencies WHERE name=? LIMIT 1",
		name).Scan(&c.Name, &c.Type, &c.Address, &c.Decimals)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("currency %s: %w", name, ErrNotFound)
	}
	return c, err
}

type GroupRepo struct{ db *sql.DB }

func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

// ControllerOf returns the controller address of a ticket group.
func (r *GroupRepo) ControllerOf(ctx context.Context, groupID string) (string, error) {
	var controller string
	err := r.db.QueryRowContext(ctx,
		"SELECT controller FROM `groups` WHERE id=? LIMIT 1",
		strings.ToLower(groupID)).Scan(&controller)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	return controller, err
}
