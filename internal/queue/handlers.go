package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ticketforge/mint-engine/internal/authorization"
	"github.com/ticketforge/mint-engine/internal/minting"
	"github.com/ticketforge/mint-engine/internal/model"
)

type Reconciler interface {
	Reconcile(ctx context.Context, req authorization.Request) (authorization.Result, error)
}

type Composer interface {
	BuildMintingSequence(ctx context.Context, cartID, checkoutID, gemOrderID string) ([]model.CartTransaction, error)
}

type Callbacks interface {
	OnTicketMintingTransactionConfirmation(ctx context.Context, txHash string, payload model.CallbackPayload) (minting.CallbackReport, error)
	OnTicketMintingTransactionFailure(ctx context.Context, txHash string, payload model.CallbackPayload) (minting.CallbackReport, error)
}

type ActionSets interface {
	Search(ctx context.Context, id string) ([]model.ActionSet, error)
}

type EventPublisher interface {
	PublishTxSequenceBuilt(ctx context.Context, ev TxSequenceBuiltEvent) error
}

// Handlers runs the engine's asynq jobs.
type Handlers struct {
	reconciler Reconciler
	composer   Composer
	callbacks  Callbacks
	actionSets ActionSets
	publisher  EventPublisher
	logger     *slog.Logger
	now        func() string
}

func NewHandlers(reconciler Reconciler, composer Composer, callbacks Callbacks, actionSets ActionSets, publisher EventPublisher, logger *slog.Logger, now func() string) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		reconciler: reconciler,
		composer:   composer,
		callbacks:  callbacks,
		actionSets: actionSets,
		publisher:  publisher,
		logger:     logger,
		now:        now,
	}
}

// Register binds every task type to its handler.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReconcileAuthorizations, h.HandleReconcile)
	mux.HandleFunc(TypeBuildMintingSequence, h.HandleBuildSequence)
	mux.HandleFunc(TypeMintingConfirmed, h.HandleMintingConfirmed)
	mux.HandleFunc(TypeMintingFailed, h.HandleMintingFailed)
}

func decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("%s: decode payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// skip marks err as final so asynq archives the task instead of retrying.
func skip(err error) error {
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

func (h *Handlers) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := decode(t, &p); err != nil {
		return err
	}
	old, err := h.previous(ctx, p.ActionSetID, p.Step)
	if err != nil {
		return err
	}

	res, err := h.reconciler.Reconcile(ctx, authorization.Request{
		ActionSetID:       p.ActionSetID,
		StepIndex:         p.Step,
		Requested:         p.Requested,
		Old:               old,
		Prices:            p.Prices,
		Fees:              p.Fees,
		CommitType:        p.CommitType,
		Expiration:        p.Expiration(),
		SignatureReadable: p.SignatureReadable,
		Grantee:           p.Grantee,
	})
	if err != nil {
		if errors.Is(err, authorization.ErrCannotCancelPublicSignature) ||
			errors.Is(err, authorization.ErrCategoryNotFound) ||
			errors.Is(err, authorization.ErrAuthorizationNotFound) {
			return skip(err)
		}
		return err
	}
	h.logger.Info("reconcile done", "actionSetID", p.ActionSetID, "outcome", res.Outcome, "authorizations", len(res.Authorizations))
	return nil
}

// previous returns the authorizations the cart step currently holds, or nil
// when it never completed.
func (h *Handlers) previous(ctx context.Context, id string, step int) ([]model.AuthorizedTicketMintingFormat, error) {
	sets, err := h.actionSets.Search(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch action set %s: %w", id, err)
	}
	if len(sets) == 0 {
		return nil, skip(fmt.Errorf("action set %s not found", id))
	}
	if step < 0 || step >= len(sets[0].Actions) {
		return nil, skip(fmt.Errorf("action set %s has no step %d", id, step))
	}
	action := sets[0].Actions[step]
	if action.Status != model.ActionComplete || len(action.Data) == 0 {
		return nil, nil
	}
	var data model.CartAuthorizationsData
	if err := json.Unmarshal(action.Data, &data); err != nil {
		return nil, skip(fmt.Errorf("action set %s step %d: %v", id, step, err))
	}
	if len(data.Authorizations) == 0 {
		return nil, nil
	}
	return data.Authorizations, nil
}

// terminalBuild lists composer failures a retry cannot fix.
var terminalBuild = []error{
	minting.ErrInvalidScope,
	minting.ErrCartNotFound,
	minting.ErrInvalidCart,
	minting.ErrCheckoutNotFound,
	minting.ErrInvalidCheckout,
	minting.ErrGemOrderMismatch,
	minting.ErrEmptyCart,
	minting.ErrMultipleCurrenciesNotAllowed,
	minting.ErrOnlyT721TokenAllowed,
	minting.ErrInvalidTotal,
	minting.ErrInvalidCurrencyType,
	minting.ErrMismatchedExpirations,
	minting.ErrAuthorizationNotUsable,
	minting.ErrUserNotFound,
}

func (h *Handlers) HandleBuildSequence(ctx context.Context, t *asynq.Task) error {
	var p BuildSequencePayload
	if err := decode(t, &p); err != nil {
		return err
	}
	txs, err := h.composer.BuildMintingSequence(ctx, p.CartID, p.CheckoutID, p.GemOrderID)
	if err != nil {
		for _, target := range terminalBuild {
			if errors.Is(err, target) {
				return skip(err)
			}
		}
		return err
	}

	ev := TxSequenceBuiltEvent{
		CartID:       p.CartID,
		CheckoutID:   p.CheckoutID,
		GemOrderID:   p.GemOrderID,
		Transactions: txs,
		BuiltAt:      h.now(),
	}
	// The sequence is stored; a lost notification must not rebuild it.
	if err := h.publisher.PublishTxSequenceBuilt(ctx, ev); err != nil {
		h.logger.Warn("tx sequence built event not published", "cartID", p.CartID, "error", err)
	}
	return nil
}

func (h *Handlers) HandleMintingConfirmed(ctx context.Context, t *asynq.Task) error {
	var p CallbackTaskPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	_, err := h.callbacks.OnTicketMintingTransactionConfirmation(ctx, p.TxHash, p.Data)
	return err
}

func (h *Handlers) HandleMintingFailed(ctx context.Context, t *asynq.Task) error {
	var p CallbackTaskPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	_, err := h.callbacks.OnTicketMintingTransactionFailure(ctx, p.TxHash, p.Data)
	return err
}
