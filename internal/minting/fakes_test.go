package minting

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ticketforge/mint-engine/internal/chain"
	"github.com/ticketforge/mint-engine/internal/model"
)

type staticScope string

func (s staticScope) Scope() string { return string(s) }

type fakeScopes struct {
	contracts model.ScopeContracts
	err       error
}

func (f *fakeScopes) GetScopeContracts(_ context.Context, scope string) (model.ScopeContracts, error) {
	if f.err != nil {
		return model.ScopeContracts{}, f.err
	}
	c := f.contracts
	c.Scope = scope
	return c, nil
}

type buildCall struct {
	template string
	owner    string
	payload  any
	dispatch bool
}

type fakeActionSets struct {
	sets      map[string]model.ActionSet
	searchErr error
	buildErr  error
	builds    []buildCall
}

func (f *fakeActionSets) Search(_ context.Context, id string) ([]model.ActionSet, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	s, ok := f.sets[id]
	if !ok {
		return nil, nil
	}
	return []model.ActionSet{s}, nil
}

func (f *fakeActionSets) Build(_ context.Context, template, owner string, payload any, dispatch bool) (string, error) {
	if f.buildErr != nil {
		return "", f.buildErr
	}
	f.builds = append(f.builds, buildCall{template: template, owner: owner, payload: payload, dispatch: dispatch})
	return "txseq-1", nil
}

func actionSet(id, name string, data any) model.ActionSet {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return model.ActionSet{
		ID:      id,
		Actions: []model.Action{{Name: name, Status: model.ActionComplete, Data: raw}},
	}
}

type fakeAuthorizations struct {
	records   map[string]model.AuthorizationRecord
	searchErr error
	updateErr error
	failOn    string
	updates   []model.AuthorizationKey
	patches   []model.AuthorizationPatch
}

func (f *fakeAuthorizations) Search(_ context.Context, key model.AuthorizationKey) ([]model.AuthorizationRecord, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	r, ok := f.records[key.ID]
	if !ok {
		return nil, nil
	}
	return []model.AuthorizationRecord{r}, nil
}

func (f *fakeAuthorizations) Update(_ context.Context, key model.AuthorizationKey, patch model.AuthorizationPatch) error {
	if f.updateErr != nil && (f.failOn == "" || f.failOn == key.ID) {
		return f.updateErr
	}
	f.updates = append(f.updates, key)
	f.patches = append(f.patches, patch)
	if r, ok := f.records[key.ID]; ok && patch.Dispatched != nil {
		r.Dispatched = *patch.Dispatched
		f.records[key.ID] = r
	}
	return nil
}

type fakeToken struct {
	allowance      *big.Int
	allowanceErr   error
	approveErr     error
	allowanceCalls int
	token          string
	spender        string
	approvals      []*big.Int
	approvedFor    []string
}

func (f *fakeToken) Allowance(_ context.Context, token, _, spender string) (*big.Int, error) {
	f.allowanceCalls++
	f.token, f.spender = token, spender
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	return f.allowance, nil
}

func (f *fakeToken) EncodeApprove(spender string, amount *big.Int) ([]byte, error) {
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	f.approvals = append(f.approvals, amount)
	f.approvedFor = append(f.approvedFor, spender)
	return []byte{0x09, 0x5e, 0xa7, 0xb3}, nil
}

type fakeMint struct {
	calls []chain.MintCall
	err   error
}

func (f *fakeMint) EncodeMint(c chain.MintCall) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, c)
	return []byte{0xab, 0xcd}, nil
}

type fakeCurrencies struct {
	currency model.Currency
	err      error
}

func (f *fakeCurrencies) Get(_ context.Context, _ string) (model.Currency, error) {
	return f.currency, f.err
}

type fakeGroups struct {
	calls []string
	err   error
}

func (f *fakeGroups) ControllerOf(_ context.Context, groupID string) (string, error) {
	f.calls = append(f.calls, groupID)
	if f.err != nil {
		return "", f.err
	}
	return "0xcontroller-" + groupID[:6], nil
}

type fakePredictor struct {
	calls [][]model.PredictionInput
	err   error
}

func (f *fakePredictor) PredictTickets(_ context.Context, inputs []model.PredictionInput) ([]model.Ticket, error) {
	f.calls = append(f.calls, inputs)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Ticket, len(inputs))
	for i, in := range inputs {
		out[i] = model.Ticket{ID: fmt.Sprintf("ticket-%d", i), AuthorizationID: in.AuthorizationID, Status: model.TicketMinting}
	}
	return out, nil
}

type fakeUsers struct {
	user model.User
	err  error
}

func (f *fakeUsers) FindByAddress(_ context.Context, _ string) (model.User, error) {
	return f.user, f.err
}

type fakeTickets struct {
	failOn  string
	err     error
	updates map[string]model.TicketPatch
	order   []string
}

func (f *fakeTickets) Update(_ context.Context, id string, patch model.TicketPatch) error {
	if f.err != nil && f.failOn == id {
		return f.err
	}
	if f.updates == nil {
		f.updates = make(map[string]model.TicketPatch)
	}
	f.updates[id] = patch
	f.order = append(f.order, id)
	return nil
}
