package minting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ticketforge/mint-engine/internal/chain"
	"github.com/ticketforge/mint-engine/internal/codec"
	"github.com/ticketforge/mint-engine/internal/model"
	"github.com/ticketforge/mint-engine/internal/repository"
)

// Job names of the callbacks attached to mint transactions.
const (
	JobTicketMintingConfirmation = "minting:on_confirm"
	JobTicketMintingFailure      = "minting:on_failure"
)

type ScopeSource interface {
	Scope() string
}

type ScopeResolver interface {
	GetScopeContracts(ctx context.Context, scope string) (model.ScopeContracts, error)
}

type ActionSetStore interface {
	Search(ctx context.Context, id string) ([]model.ActionSet, error)
	Build(ctx context.Context, template, owner string, payload any, dispatch bool) (string, error)
}

type AuthorizationStore interface {
	Search(ctx context.Context, key model.AuthorizationKey) ([]model.AuthorizationRecord, error)
	Update(ctx context.Context, key model.AuthorizationKey, patch model.AuthorizationPatch) error
}

type TokenController interface {
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	EncodeApprove(spender string, amount *big.Int) ([]byte, error)
}

type MintController interface {
	EncodeMint(call chain.MintCall) ([]byte, error)
}

type CurrencyStore interface {
	Get(ctx context.Context, name string) (model.Currency, error)
}

type GroupControllers interface {
	ControllerOf(ctx context.Context, groupID string) (string, error)
}

type TicketPredictor interface {
	PredictTickets(ctx context.Context, inputs []model.PredictionInput) ([]model.Ticket, error)
}

type UserDirectory interface {
	FindByAddress(ctx context.Context, address string) (model.User, error)
}

// Deps are the collaborators of a Composer.
type Deps struct {
	Scope          ScopeSource
	Scopes         ScopeResolver
	ActionSets     ActionSetStore
	Authorizations AuthorizationStore
	Token          TokenController
	Mint           MintController
	Currencies     CurrencyStore
	Groups         GroupControllers
	Tickets        TicketPredictor
	Users          UserDirectory
	Logger         *slog.Logger
}

// Composer turns a confirmed cart into the on-chain transactions that pay
// for and mint its tickets.
type Composer struct {
	Deps
}

func NewComposer(deps Deps) *Composer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Composer{Deps: deps}
}

type cartAuthorization struct {
	format model.AuthorizedTicketMintingFormat
	record model.AuthorizationRecord
}

// BuildMintingSequence assembles [approve?, mint] for a cart, marks its
// authorizations dispatched and persists the sequence on a new tx sequence
// processor owned by the buyer.
//
// Ticket identifiers are predicted before the buyer is resolved; a missing
// user therefore leaves predicted tickets behind.
func (c *Composer) BuildMintingSequence(ctx context.Context, cartID, checkoutID, gemOrderID string) ([]model.CartTransaction, error) {
	contracts, err := c.Scopes.GetScopeContracts(ctx, c.Scope.Scope())
	if err != nil {
		if errors.Is(err, chain.ErrScopeNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidScope, c.Scope.Scope())
		}
		return nil, fmt.Errorf("resolve scope %s: %w", c.Scope.Scope(), err)
	}

	var cart model.CartAuthorizationsData
	if err := c.loadAction(ctx, cartID, model.ActionCartAuthorizations, &cart, ErrCartNotFound, ErrInvalidCart); err != nil {
		return nil, err
	}
	var checkout model.CheckoutResolveData
	if err := c.loadAction(ctx, checkoutID, model.ActionCheckoutResolve, &checkout, ErrCheckoutNotFound, ErrInvalidCheckout); err != nil {
		return nil, err
	}
	if gemOrderID != checkout.Stripe.GemOrderID {
		return nil, fmt.Errorf("%w: %s", ErrGemOrderMismatch, gemOrderID)
	}
	if len(cart.Authorizations) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCart, cartID)
	}

	amount, err := cartAmount(cart.Total)
	if err != nil {
		return nil, err
	}

	auths, expiration, err := c.loadAuthorizations(ctx, cart.Authorizations)
	if err != nil {
		return nil, err
	}

	currency, err := c.Currencies.Get(ctx, model.PlatformToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCurrencyNotFound, model.PlatformToken, err)
	}
	if currency.Type != model.CurrencyTypeERC20 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCurrencyType, currency.Type)
	}

	var txs []model.CartTransaction
	approve, err := c.approval(ctx, currency.Address, contracts.TokenController, checkout.BuyerAddress, amount)
	if err != nil {
		return nil, err
	}
	if approve != nil {
		txs = append(txs, *approve)
	}

	controllers, err := c.controllers(ctx, auths)
	if err != nil {
		return nil, err
	}

	inputs := make([]model.PredictionInput, len(auths))
	for i, a := range auths {
		inputs[i] = model.PredictionInput{
			Buyer:           checkout.BuyerAddress,
			CategoryID:      a.format.CategoryID,
			AuthorizationID: a.format.AuthorizationID,
			GroupID:         a.format.GroupID,
		}
	}
	tickets, err := c.Tickets.PredictTickets(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTicketPredictionFailed, err)
	}

	user, err := c.Users.FindByAddress(ctx, checkout.BuyerAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUserNotFound, checkout.BuyerAddress, err)
	}

	if err := c.dispatch(ctx, auths); err != nil {
		return nil, err
	}

	call := chain.MintCall{
		Owner:       checkout.BuyerAddress,
		Currency:    currency.Address,
		Amount:      amount,
		Expiration:  expiration,
		Controllers: controllers,
	}
	for _, a := range auths {
		call.Codes = append(call.Codes, a.record.Codes)
		call.Args = append(call.Args, a.record.Args)
		var sig []byte
		if a.record.Signature != nil {
			sig = common.FromHex(*a.record.Signature)
		}
		call.Signatures = append(call.Signatures, sig)
	}
	data, err := c.Mint.EncodeMint(call)
	if err != nil {
		c.release(ctx, auths)
		return nil, fmt.Errorf("%w: %v", ErrMintEncodingFailed, err)
	}

	payload := model.CallbackPayload{
		Tickets:        make([]string, len(tickets)),
		Authorizations: make([]model.AuthorizationRef, len(auths)),
	}
	for i, t := range tickets {
		payload.Tickets[i] = t.ID
	}
	for i, a := range auths {
		payload.Authorizations[i] = model.AuthorizationRef{ID: a.record.ID, Granter: a.record.Granter, Grantee: a.record.Grantee}
	}
	txs = append(txs, model.CartTransaction{
		From:      checkout.BuyerAddress,
		To:        contracts.MintController,
		Data:      hexutil.Encode(data),
		Value:     "0",
		OnConfirm: &model.Callback{Kind: model.CallbackConfirm, JobName: JobTicketMintingConfirmation, Payload: payload},
		OnFailure: &model.Callback{Kind: model.CallbackFailure, JobName: JobTicketMintingFailure, Payload: payload},
	})

	_, err = c.ActionSets.Build(ctx, model.TemplateTxSequence, user.ID, model.TxSequenceData{
		CartID:       cartID,
		CheckoutID:   checkoutID,
		GemOrderID:   gemOrderID,
		Transactions: txs,
	}, true)
	if err != nil {
		c.release(ctx, auths)
		return nil, fmt.Errorf("%w: %v", ErrTxSequenceBuildFailed, err)
	}

	c.Logger.Info("minting sequence built", "cartID", cartID, "checkoutID", checkoutID, "tickets", len(tickets), "transactions", len(txs))
	return txs, nil
}

// loadAction decodes the data of the completed action name of action set id
// into dst.
func (c *Composer) loadAction(ctx context.Context, id, name string, dst any, notFound, invalid error) error {
	sets, err := c.ActionSets.Search(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", notFound, id)
		}
		return fmt.Errorf("fetch action set %s: %w", id, err)
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	idx := sets[0].Find(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", invalid, id)
	}
	action := sets[0].Actions[idx]
	if action.Status != model.ActionComplete || len(action.Data) == 0 {
		return fmt.Errorf("%w: %s", invalid, id)
	}
	if err := json.Unmarshal(action.Data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", invalid, id, err)
	}
	return nil
}

// cartAmount validates the cart total and returns the amount to pay.  An
// empty total is a free cart.
func cartAmount(total []model.Price) (*big.Int, error) {
	switch {
	case len(total) == 0:
		return new(big.Int), nil
	case len(total) > 1:
		return nil, ErrMultipleCurrenciesNotAllowed
	case total[0].Currency != model.PlatformToken:
		return nil, fmt.Errorf("%w: got %s", ErrOnlyT721TokenAllowed, total[0].Currency)
	}
	amount, ok := total[0].Amount()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTotal, total[0].Value)
	}
	return amount, nil
}

// loadAuthorizations fetches every record of the cart and returns their
// common expiration.  Records already cancelled, consumed or dispatched are
// refused.
func (c *Composer) loadAuthorizations(ctx context.Context, formats []model.AuthorizedTicketMintingFormat) ([]cartAuthorization, int64, error) {
	out := make([]cartAuthorization, 0, len(formats))
	var expiration int64
	for i, f := range formats {
		key := model.AuthorizationKey{ID: f.AuthorizationID, Mode: model.ModeMint, Granter: f.Granter, Grantee: f.Grantee}
		found, err := c.Authorizations.Search(ctx, key)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrAuthorizationFetchFailed, f.AuthorizationID, err)
		}
		if len(found) == 0 {
			return nil, 0, fmt.Errorf("%w: %s: not found", ErrAuthorizationFetchFailed, f.AuthorizationID)
		}
		if flag := unusable(found[0]); flag != "" {
			return nil, 0, fmt.Errorf("%w: %s is %s", ErrAuthorizationNotUsable, f.AuthorizationID, flag)
		}
		args, err := codec.DecodeArgs(found[0].Args)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrAuthorizationFetchFailed, f.AuthorizationID, err)
		}
		if i == 0 {
			expiration = args.Expiration
		} else if args.Expiration != expiration {
			return nil, 0, fmt.Errorf("%w: %d and %d", ErrMismatchedExpirations, expiration, args.Expiration)
		}
		out = append(out, cartAuthorization{format: f, record: found[0]})
	}
	return out, expiration, nil
}

// approval returns the approve transaction the buyer needs on token, or nil
// when the allowance granted to spender already covers amount.
func (c *Composer) approval(ctx context.Context, token, spender, buyer string, amount *big.Int) (*model.CartTransaction, error) {
	if amount.Sign() == 0 {
		return nil, nil
	}
	allowance, err := c.Token.Allowance(ctx, token, buyer, spender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllowanceFetchFailed, err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil, nil
	}
	data, err := c.Token.EncodeApprove(spender, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenApprovalEncodingFailed, err)
	}
	return &model.CartTransaction{
		From:  buyer,
		To:    token,
		Data:  hexutil.Encode(data),
		Value: "0",
	}, nil
}

func unusable(r model.AuthorizationRecord) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Consumed:
		return "consumed"
	case r.Dispatched:
		return "dispatched"
	}
	return ""
}

// dispatch marks every authorization dispatched.  On failure the ones
// already marked are released.
func (c *Composer) dispatch(ctx context.Context, auths []cartAuthorization) error {
	for i, a := range auths {
		if err := c.Authorizations.Update(ctx, a.key(), model.AuthorizationPatch{Dispatched: model.Bool(true)}); err != nil {
			c.release(ctx, auths[:i])
			return fmt.Errorf("%w: %s: %v", ErrAuthorizationDispatchUpdateFailed, a.record.ID, err)
		}
	}
	return nil
}

// release clears the dispatched flag so a retried build can use the
// authorizations again.  A record that cannot be released stays dispatched
// and the retry stops on ErrAuthorizationNotUsable.
func (c *Composer) release(ctx context.Context, auths []cartAuthorization) {
	for _, a := range auths {
		if err := c.Authorizations.Update(ctx, a.key(), model.AuthorizationPatch{Dispatched: model.Bool(false)}); err != nil {
			c.Logger.Error("release authorization", "authorizationID", a.record.ID, "error", err)
		}
	}
}

func (a cartAuthorization) key() model.AuthorizationKey {
	return model.AuthorizationKey{ID: a.record.ID, Mode: model.ModeMint, Granter: a.record.Granter, Grantee: a.record.Grantee}
}

// controllers resolves the group controller of every authorization, once
// per group.
func (c *Composer) controllers(ctx context.Context, auths []cartAuthorization) ([]string, error) {
	byGroup := make(map[string]string)
	out := make([]string, len(auths))
	for i, a := range auths {
		group := a.format.GroupID
		ctrl, ok := byGroup[group]
		if !ok {
			var err error
			ctrl, err = c.Groups.ControllerOf(ctx, group)
			if err != nil {
				return nil, fmt.Errorf("%w: group %s: %v", ErrControllerResolutionFailed, group, err)
			}
			byGroup[group] = ctrl
		}
		out[i] = ctrl
	}
	return out, nil
}
