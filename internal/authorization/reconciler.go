package authorization

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ticketforge/mint-engine/internal/clock"
	"github.com/ticketforge/mint-engine/internal/codec"
	"github.com/ticketforge/mint-engine/internal/model"
)

type CategoryStore interface {
	Search(ctx context.Context, id string) ([]model.CategoryInventory, error)
}

type AuthorizationStore interface {
	Search(ctx context.Context, key model.AuthorizationKey) ([]model.AuthorizationRecord, error)
	Update(ctx context.Context, key model.AuthorizationKey, patch model.AuthorizationPatch) error
	Count(ctx context.Context, q model.OutstandingQuery) (int64, error)
}

type Validator interface {
	ValidateTicketAuthorizations(ctx context.Context, req model.AuthorizationRequest) ([]model.AuthorizedTicketMintingFormat, error)
}

type ActionSetStore interface {
	UpdateAction(ctx context.Context, id string, step int, patch model.ActionPatch) error
	ErrorStep(ctx context.Context, id, code string, payload any, step int) error
}

// Locker serializes reconciliations touching the same categories.  The
// returned function releases every lock taken.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// Outcome tells how a reconciliation ended when it did not fail.
type Outcome string

const (
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeIssued      Outcome = "issued"
	OutcomeNoSeatsLeft Outcome = "no_seats_left"
)

// Request is one reconciliation of a cart's authorizations.  Old is nil
// when the cart never held authorizations.
type Request struct {
	ActionSetID       string
	StepIndex         int
	Requested         []model.TicketMintingFormat
	Old               []model.AuthorizedTicketMintingFormat
	Prices            []model.Price
	Fees              []string
	CommitType        string
	Expiration        time.Duration
	SignatureReadable bool
	Grantee           string
}

type Result struct {
	Outcome        Outcome
	Authorizations []model.AuthorizedTicketMintingFormat
	Shortfalls     []Shortfall
	// Freed counts, per category, the seats credited back by cancelled
	// authorizations.
	Freed map[string]int64
}

type Reconciler struct {
	categories     CategoryStore
	authorizations AuthorizationStore
	validator      Validator
	actionSets     ActionSetStore
	clock          clock.Clock
	locker         Locker
	logger         *slog.Logger
}

type ReconcilerOption func(*Reconciler)

// WithLocker holds per category locks between the outstanding count and the
// creation of the new authorizations.
func WithLocker(l Locker) ReconcilerOption {
	return func(r *Reconciler) { r.locker = l }
}

func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewReconciler(categories CategoryStore, authorizations AuthorizationStore, validator Validator, actionSets ActionSetStore, clk clock.Clock, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		categories:     categories,
		authorizations: authorizations,
		validator:      validator,
		actionSets:     actionSets,
		clock:          clk,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile replaces the authorizations of a cart by the requested set.
//
// Resubmitting the same (category, price) pairs is a no-op.  Otherwise the
// previous authorizations are cancelled, their seats credited back to their
// categories, and new ones are issued if every requested category still has
// enough seats.  An exhausted category is not an error: it is reported on the
// action set and returned as OutcomeNoSeatsLeft, with nothing cancelled.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (Result, error) {
	ledger := NewLedger()
	for _, id := range categoryIDs(req.Requested, req.Old) {
		found, err := r.categories.Search(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrCategoryNotFound, id, err)
		}
		if len(found) == 0 {
			return Result{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
		}
		ledger.Track(found[0])
	}

	if req.Old != nil && model.SameRequests(req.Requested, req.Old) {
		r.logger.Info("authorizations unchanged", "actionSetID", req.ActionSetID, "count", len(req.Old))
		return Result{Outcome: OutcomeUnchanged, Authorizations: req.Old}, nil
	}

	now := r.clock.Now()
	previous, err := r.loadPrevious(ctx, req.Old, now, ledger)
	if err != nil {
		return Result{}, err
	}
	for _, t := range req.Requested {
		ledger.Request(t.CategoryID)
	}

	requested := ledger.RequestedCategories()
	if r.locker != nil && len(requested) > 0 {
		unlock, err := r.locker.Lock(ctx, requested...)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrSeatLockFailed, err)
		}
		defer unlock()
	}

	for _, id := range requested {
		category, _ := ledger.Category(id)
		selector, err := codec.Selector(category.GroupID, category.CategoryName)
		if err != nil {
			return Result{}, fmt.Errorf("selector of category %s: %w", id, err)
		}
		n, err := r.authorizations.Count(ctx, model.OutstandingQuery{Selector: selector, Now: now})
		if err != nil {
			return Result{}, fmt.Errorf("%w: category %s: %v", ErrAuthorizationCountFailed, id, err)
		}
		ledger.SetOutstanding(id, n)
	}

	// Previous authorizations are cancelled only once the new request fits,
	// so a cart that runs out of seats keeps the ones it already holds.
	if shortfalls := ledger.Shortfalls(); len(shortfalls) > 0 {
		if err := r.actionSets.ErrorStep(ctx, req.ActionSetID, ErrorCodeNoSeatsLeft, map[string]any{}, req.StepIndex); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrActionSetUpdateFailed, req.ActionSetID, err)
		}
		r.logger.Info("no seats left", "actionSetID", req.ActionSetID, "shortfalls", shortfalls)
		return Result{Outcome: OutcomeNoSeatsLeft, Shortfalls: shortfalls, Freed: ledger.FreedByCategory()}, nil
	}

	for _, rec := range previous {
		key := model.AuthorizationKey{ID: rec.ID, Mode: model.ModeMint, Granter: rec.Granter, Grantee: rec.Grantee}
		patch := model.AuthorizationPatch{ClearSignature: true, Cancelled: model.Bool(true)}
		if err := r.authorizations.Update(ctx, key, patch); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrCancelUpdateFailed, rec.ID, err)
		}
	}

	authorized, err := r.validator.ValidateTicketAuthorizations(ctx, model.AuthorizationRequest{
		Requested:         req.Requested,
		Prices:            req.Prices,
		Fees:              req.Fees,
		Expiration:        req.Expiration,
		Grantee:           req.Grantee,
		SignatureReadable: req.SignatureReadable,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAuthorizationCreationFailed, err)
	}

	err = r.actionSets.UpdateAction(ctx, req.ActionSetID, req.StepIndex, model.ActionPatch{
		Status: model.ActionComplete,
		Data: model.CartAuthorizationsData{
			Authorizations: authorized,
			CommitType:     req.CommitType,
			Total:          req.Prices,
			Fees:           req.Fees,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrActionSetUpdateFailed, req.ActionSetID, err)
	}

	r.logger.Info("authorizations issued", "actionSetID", req.ActionSetID, "issued", len(authorized), "cancelled", len(previous))
	return Result{Outcome: OutcomeIssued, Authorizations: authorized, Freed: ledger.FreedByCategory()}, nil
}

// loadPrevious fetches the records behind old and checks that all of them
// can be cancelled before anything is written.  Records still holding a seat
// free it in the ledger.  Records already cancelled are skipped.
func (r *Reconciler) loadPrevious(ctx context.Context, old []model.AuthorizedTicketMintingFormat, now time.Time, ledger *Ledger) ([]model.AuthorizationRecord, error) {
	var out []model.AuthorizationRecord
	for _, o := range old {
		key := model.AuthorizationKey{ID: o.AuthorizationID, Mode: model.ModeMint, Granter: o.Granter, Grantee: o.Grantee}
		found, err := r.authorizations.Search(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("search authorization %s: %w", o.AuthorizationID, err)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrAuthorizationNotFound, o.AuthorizationID)
		}
		rec := found[0]
		if !rec.Cancellable() {
			return nil, fmt.Errorf("%w: %s", ErrCannotCancelPublicSignature, rec.ID)
		}
		if rec.Cancelled {
			continue
		}
		if rec.Outstanding(now) {
			ledger.Free(o.CategoryID)
		}
		out = append(out, rec)
	}
	return out, nil
}

func categoryIDs(requested []model.TicketMintingFormat, old []model.AuthorizedTicketMintingFormat) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, t := range requested {
		add(t.CategoryID)
	}
	for _, t := range old {
		add(t.CategoryID)
	}
	return ids
}
