package minting

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ticketforge/mint-engine/internal/chain"
	"github.com/ticketforge/mint-engine/internal/codec"
	"github.com/ticketforge/mint-engine/internal/model"
	"github.com/ticketforge/mint-engine/internal/repository"
)

const (
	testGroup = "0x0a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20212223242526272829"
	buyer     = "0x00000000000000000000000000000000000000b2"
	tokenCtrl = "0x00000000000000000000000000000000000000a1"
	t721Addr  = "0x00000000000000000000000000000000000000d4"
	mintCtrl  = "0x00000000000000000000000000000000000000c3"
	expiresAt = int64(1735732800)
)

type fixture struct {
	actionSets *fakeActionSets
	auths      *fakeAuthorizations
	token      *fakeToken
	mint       *fakeMint
	currencies *fakeCurrencies
	groups     *fakeGroups
	predictor  *fakePredictor
	users      *fakeUsers
	scopes     *fakeScopes
	svc        *Composer
}

func record(t *testing.T, id string, expiration int64) model.AuthorizationRecord {
	t.Helper()
	category, _ := codec.ToB32("vip")
	prices, err := codec.EncodePrices([]codec.PriceEntry{{Value: big.NewInt(100), Fee: big.NewInt(0)}})
	if err != nil {
		t.Fatalf("encode prices: %v", err)
	}
	code := codec.CodeFor(id)
	args, err := codec.ToArgsFormat(prices, testGroup, category, code, expiration)
	if err != nil {
		t.Fatalf("encode args: %v", err)
	}
	codes, _ := codec.ToCodesFormat(code)
	sig := "0x0102"
	return model.AuthorizationRecord{
		ID:        id,
		Granter:   "0xgranter",
		Grantee:   buyer,
		Mode:      model.ModeMint,
		Codes:     codes,
		Args:      args,
		Signature: &sig,
	}
}

func cartEntry(id string) model.AuthorizedTicketMintingFormat {
	return model.AuthorizedTicketMintingFormat{
		CategoryID:      "cat-x",
		Price:           model.Price{Currency: model.PlatformToken, Value: "150"},
		AuthorizationID: id,
		GroupID:         testGroup,
		CategoryName:    "vip",
		Granter:         "0xgranter",
		Grantee:         buyer,
		Expiration:      time.Unix(expiresAt, 0).UTC(),
	}
}

func newFixture(t *testing.T, total []model.Price, records ...model.AuthorizationRecord) *fixture {
	t.Helper()
	cart := model.CartAuthorizationsData{CommitType: "stripe", Total: total}
	byID := make(map[string]model.AuthorizationRecord)
	for _, r := range records {
		cart.Authorizations = append(cart.Authorizations, cartEntry(r.ID))
		byID[r.ID] = r
	}
	checkout := model.CheckoutResolveData{
		BuyerAddress: buyer,
		Stripe:       model.StripeData{PaymentIntentID: "pi_1", GemOrderID: "gem-1"},
	}

	f := &fixture{
		actionSets: &fakeActionSets{sets: map[string]model.ActionSet{
			"cart-1":     actionSet("cart-1", model.ActionCartAuthorizations, cart),
			"checkout-1": actionSet("checkout-1", model.ActionCheckoutResolve, checkout),
		}},
		auths:      &fakeAuthorizations{records: byID},
		token:      &fakeToken{allowance: big.NewInt(0)},
		mint:       &fakeMint{},
		currencies: &fakeCurrencies{currency: model.Currency{Name: model.PlatformToken, Type: model.CurrencyTypeERC20, Address: t721Addr}},
		groups:     &fakeGroups{},
		predictor:  &fakePredictor{},
		users:      &fakeUsers{user: model.User{ID: "user-1", Address: buyer}},
		scopes:     &fakeScopes{contracts: model.ScopeContracts{TokenController: tokenCtrl, MintController: mintCtrl}},
	}
	f.svc = NewComposer(Deps{
		Scope:          staticScope("ticketforge"),
		Scopes:         f.scopes,
		ActionSets:     f.actionSets,
		Authorizations: f.auths,
		Token:          f.token,
		Mint:           f.mint,
		Currencies:     f.currencies,
		Groups:         f.groups,
		Tickets:        f.predictor,
		Users:          f.users,
	})
	return f
}

func t721(v string) []model.Price {
	return []model.Price{{Currency: model.PlatformToken, Value: v}}
}

func (f *fixture) build() ([]model.CartTransaction, error) {
	return f.svc.BuildMintingSequence(context.Background(), "cart-1", "checkout-1", "gem-1")
}

func TestBuildMintingSequence_WithApproval(t *testing.T) {
	t.Parallel()

	f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt), record(t, "auth-2", expiresAt))
	f.token.allowance = big.NewInt(299)

	txs, err := f.build()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected approve and mint, got %d transactions", len(txs))
	}
	approve, mint := txs[0], txs[1]
	if approve.To != t721Addr || approve.From != buyer || approve.OnConfirm != nil || approve.Data != "0x095ea7b3" {
		t.Fatalf("unexpected approve transaction %+v", approve)
	}
	if len(f.token.approvals) != 1 || f.token.approvals[0].Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected approval of the cart total, got %v", f.token.approvals)
	}
	if f.token.token != t721Addr || f.token.spender != tokenCtrl || f.token.approvedFor[0] != tokenCtrl {
		t.Fatalf("expected allowance on the registered token for the token controller, got token %s spender %s approved %v",
			f.token.token, f.token.spender, f.token.approvedFor)
	}
	if mint.To != mintCtrl || mint.Data != "0xabcd" || mint.Value != "0" {
		t.Fatalf("unexpected mint transaction %+v", mint)
	}

	if mint.OnConfirm == nil || mint.OnFailure == nil {
		t.Fatalf("expected both callbacks on the mint transaction")
	}
	if mint.OnConfirm.Kind != model.CallbackConfirm || mint.OnConfirm.JobName != JobTicketMintingConfirmation {
		t.Fatalf("unexpected confirm callback %+v", mint.OnConfirm)
	}
	if mint.OnFailure.Kind != model.CallbackFailure || mint.OnFailure.JobName != JobTicketMintingFailure {
		t.Fatalf("unexpected failure callback %+v", mint.OnFailure)
	}
	p := mint.OnFailure.Payload
	if len(p.Tickets) != 2 || p.Tickets[0] != "ticket-0" || p.Tickets[1] != "ticket-1" {
		t.Fatalf("expected predicted ticket ids, got %v", p.Tickets)
	}
	if len(p.Authorizations) != 2 || p.Authorizations[1] != (model.AuthorizationRef{ID: "auth-2", Granter: "0xgranter", Grantee: buyer}) {
		t.Fatalf("unexpected authorization refs %v", p.Authorizations)
	}

	if len(f.mint.calls) != 1 {
		t.Fatalf("expected one mint encoding, got %d", len(f.mint.calls))
	}
	call := f.mint.calls[0]
	if call.Expiration != expiresAt || call.Amount.Cmp(big.NewInt(300)) != 0 || call.Currency != t721Addr || call.Owner != buyer {
		t.Fatalf("unexpected mint call %+v", call)
	}
	if len(call.Controllers) != 2 || len(call.Codes) != 2 || len(call.Args) != 2 || len(call.Signatures[0]) != 2 {
		t.Fatalf("expected one controller, code, args and signature per ticket, got %+v", call)
	}
	if len(f.groups.calls) != 1 {
		t.Fatalf("expected group controller resolved once per group, got %d", len(f.groups.calls))
	}

	if len(f.auths.updates) != 2 {
		t.Fatalf("expected every authorization dispatched, got %d", len(f.auths.updates))
	}
	for _, p := range f.auths.patches {
		if p.Dispatched == nil || !*p.Dispatched || p.Cancelled != nil {
			t.Fatalf("unexpected dispatch patch %+v", p)
		}
	}

	if len(f.actionSets.builds) != 1 {
		t.Fatalf("expected one tx sequence build, got %d", len(f.actionSets.builds))
	}
	b := f.actionSets.builds[0]
	data, ok := b.payload.(model.TxSequenceData)
	if b.template != model.TemplateTxSequence || b.owner != "user-1" || !b.dispatch || !ok {
		t.Fatalf("unexpected build %+v", b)
	}
	if data.GemOrderID != "gem-1" || len(data.Transactions) != 2 {
		t.Fatalf("unexpected tx sequence payload %+v", data)
	}
}

func TestBuildMintingSequence_AllowanceCovered(t *testing.T) {
	t.Parallel()

	for _, allowance := range []int64{300, 1000} {
		f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt))
		f.token.allowance = big.NewInt(allowance)

		txs, err := f.build()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(txs) != 1 || txs[0].To != mintCtrl {
			t.Fatalf("allowance %d: expected mint only, got %+v", allowance, txs)
		}
		if len(f.token.approvals) != 0 {
			t.Fatalf("expected no approval encoding")
		}
	}
}

func TestBuildMintingSequence_FreeCartSkipsAllowance(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, record(t, "auth-1", expiresAt))
	txs, err := f.build()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(txs) != 1 || f.token.allowanceCalls != 0 {
		t.Fatalf("expected mint only without allowance read, got %d txs and %d reads", len(txs), f.token.allowanceCalls)
	}
	if f.mint.calls[0].Amount.Sign() != 0 {
		t.Fatalf("expected zero amount, got %v", f.mint.calls[0].Amount)
	}
}

func TestBuildMintingSequence_MismatchedExpirations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt), record(t, "auth-2", expiresAt+60))

	_, err := f.build()
	if !errors.Is(err, ErrMismatchedExpirations) {
		t.Fatalf("expected ErrMismatchedExpirations, got %v", err)
	}
	if f.token.allowanceCalls != 0 || len(f.mint.calls) != 0 {
		t.Fatalf("expected no chain calls")
	}
	if len(f.auths.updates) != 0 || len(f.predictor.calls) != 0 || len(f.actionSets.builds) != 0 {
		t.Fatalf("expected nothing dispatched, predicted or built")
	}
}

func TestBuildMintingSequence_UserResolvedAfterPrediction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt))
	f.users.err = repository.ErrNotFound

	_, err := f.build()
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), buyer) {
		t.Fatalf("expected buyer address in error, got %v", err)
	}
	// Tickets are predicted before the buyer lookup and stay behind.
	if len(f.predictor.calls) != 1 {
		t.Fatalf("expected prediction before user resolution, got %d calls", len(f.predictor.calls))
	}
	if len(f.auths.updates) != 0 || len(f.actionSets.builds) != 0 {
		t.Fatalf("expected no dispatch and no build")
	}
}

func TestBuildMintingSequence_Failures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	cases := []struct {
		name  string
		total []model.Price
		setup func(f *fixture)
		gem   string
		want  error
	}{
		{
			name:  "unknown scope",
			setup: func(f *fixture) { f.scopes.err = chain.ErrScopeNotFound },
			want:  ErrInvalidScope,
		},
		{
			name:  "missing cart",
			setup: func(f *fixture) { delete(f.actionSets.sets, "cart-1") },
			want:  ErrCartNotFound,
		},
		{
			name:  "cart store reports not found",
			setup: func(f *fixture) { f.actionSets.searchErr = repository.ErrNotFound },
			want:  ErrCartNotFound,
		},
		{
			name: "cart without authorizations step",
			setup: func(f *fixture) {
				f.actionSets.sets["cart-1"] = actionSet("cart-1", "@cart/other", struct{}{})
			},
			want: ErrInvalidCart,
		},
		{
			name:  "missing checkout",
			setup: func(f *fixture) { delete(f.actionSets.sets, "checkout-1") },
			want:  ErrCheckoutNotFound,
		},
		{
			name: "gem order mismatch",
			gem:  "gem-2",
			want: ErrGemOrderMismatch,
		},
		{
			name:  "multiple currencies",
			total: []model.Price{{Currency: model.PlatformToken, Value: "1"}, {Currency: "eur", Value: "1"}},
			want:  ErrMultipleCurrenciesNotAllowed,
		},
		{
			name:  "wrong currency",
			total: []model.Price{{Currency: "eur", Value: "1"}},
			want:  ErrOnlyT721TokenAllowed,
		},
		{
			name:  "authorization missing",
			setup: func(f *fixture) { delete(f.auths.records, "auth-1") },
			want:  ErrAuthorizationFetchFailed,
		},
		{
			name:  "authorization search error",
			setup: func(f *fixture) { f.auths.searchErr = boom },
			want:  ErrAuthorizationFetchFailed,
		},
		{
			name:  "authorization cancelled",
			setup: func(f *fixture) { setFlag(f, "auth-1", func(r *model.AuthorizationRecord) { r.Cancelled = true }) },
			want:  ErrAuthorizationNotUsable,
		},
		{
			name:  "allowance read error",
			setup: func(f *fixture) { f.token.allowanceErr = boom },
			want:  ErrAllowanceFetchFailed,
		},
		{
			name:  "approve encoding revert",
			setup: func(f *fixture) { f.token.approveErr = errors.New("execution reverted: paused") },
			want:  ErrTokenApprovalEncodingFailed,
		},
		{
			name:  "currency not registered",
			setup: func(f *fixture) { f.currencies.err = repository.ErrNotFound },
			want:  ErrCurrencyNotFound,
		},
		{
			name:  "currency not erc20",
			setup: func(f *fixture) { f.currencies.currency.Type = "erc721" },
			want:  ErrInvalidCurrencyType,
		},
		{
			name:  "controller resolution error",
			setup: func(f *fixture) { f.groups.err = boom },
			want:  ErrControllerResolutionFailed,
		},
		{
			name:  "prediction error",
			setup: func(f *fixture) { f.predictor.err = boom },
			want:  ErrTicketPredictionFailed,
		},
		{
			name:  "dispatch update error",
			setup: func(f *fixture) { f.auths.updateErr = boom },
			want:  ErrAuthorizationDispatchUpdateFailed,
		},
		{
			name:  "mint encoding error",
			setup: func(f *fixture) { f.mint.err = boom },
			want:  ErrMintEncodingFailed,
		},
		{
			name:  "tx sequence build error",
			setup: func(f *fixture) { f.actionSets.buildErr = boom },
			want:  ErrTxSequenceBuildFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total := tc.total
			if total == nil {
				total = t721("300")
			}
			f := newFixture(t, total, record(t, "auth-1", expiresAt))
			if tc.setup != nil {
				tc.setup(f)
			}
			gem := tc.gem
			if gem == "" {
				gem = "gem-1"
			}
			_, err := f.svc.BuildMintingSequence(context.Background(), "cart-1", "checkout-1", gem)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBuildMintingSequence_RevertReasonKept(t *testing.T) {
	t.Parallel()

	f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt))
	f.token.approveErr = errors.New("execution reverted: paused")

	_, err := f.build()
	if err == nil || !strings.Contains(err.Error(), "execution reverted: paused") {
		t.Fatalf("expected revert reason in error, got %v", err)
	}
}

func setFlag(f *fixture, id string, set func(r *model.AuthorizationRecord)) {
	r := f.auths.records[id]
	set(&r)
	f.auths.records[id] = r
}

func TestBuildMintingSequence_UnusableAuthorization(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		set  func(r *model.AuthorizationRecord)
	}{
		{"dispatched", func(r *model.AuthorizationRecord) { r.Dispatched = true }},
		{"cancelled", func(r *model.AuthorizationRecord) { r.Cancelled = true }},
		{"consumed", func(r *model.AuthorizationRecord) { r.Consumed = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt), record(t, "auth-2", expiresAt))
			setFlag(f, "auth-2", tc.set)

			_, err := f.build()
			if !errors.Is(err, ErrAuthorizationNotUsable) {
				t.Fatalf("expected ErrAuthorizationNotUsable, got %v", err)
			}
			if !strings.Contains(err.Error(), "auth-2 is "+tc.name) {
				t.Fatalf("expected record and state in error, got %v", err)
			}
			if f.token.allowanceCalls != 0 || len(f.mint.calls) != 0 {
				t.Fatalf("expected no chain calls")
			}
			if len(f.auths.updates) != 0 || len(f.predictor.calls) != 0 || len(f.actionSets.builds) != 0 {
				t.Fatalf("expected nothing dispatched, predicted or built")
			}
		})
	}
}

func TestBuildMintingSequence_RetryAfterBuildFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt), record(t, "auth-2", expiresAt))
	f.actionSets.buildErr = errors.New("connection reset")

	if _, err := f.build(); !errors.Is(err, ErrTxSequenceBuildFailed) {
		t.Fatalf("expected ErrTxSequenceBuildFailed, got %v", err)
	}
	for id, r := range f.auths.records {
		if r.Dispatched {
			t.Fatalf("expected %s released after the failed build", id)
		}
	}

	f.actionSets.buildErr = nil
	txs, err := f.build()
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(txs) != 2 || len(f.actionSets.builds) != 1 {
		t.Fatalf("expected one sequence built on retry, got %d txs and %d builds", len(txs), len(f.actionSets.builds))
	}
	for id, r := range f.auths.records {
		if !r.Dispatched {
			t.Fatalf("expected %s dispatched after the retry", id)
		}
	}

	if _, err := f.build(); !errors.Is(err, ErrAuthorizationNotUsable) {
		t.Fatalf("expected a second build of the same cart to be refused, got %v", err)
	}
}

func TestBuildMintingSequence_PartialDispatchReleased(t *testing.T) {
	t.Parallel()

	f := newFixture(t, t721("300"), record(t, "auth-1", expiresAt), record(t, "auth-2", expiresAt))
	f.auths.updateErr = errors.New("deadlock")
	f.auths.failOn = "auth-2"

	if _, err := f.build(); !errors.Is(err, ErrAuthorizationDispatchUpdateFailed) {
		t.Fatalf("expected ErrAuthorizationDispatchUpdateFailed, got %v", err)
	}
	if f.auths.records["auth-1"].Dispatched {
		t.Fatalf("expected auth-1 released")
	}
	if len(f.mint.calls) != 0 || len(f.actionSets.builds) != 0 {
		t.Fatalf("expected no mint encoding and no build")
	}
}
