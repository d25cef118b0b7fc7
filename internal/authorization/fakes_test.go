package authorization

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ticketforge/mint-engine/internal/model"
)

type fakeCategories struct {
	byID  map[string]model.CategoryInventory
	err   error
	calls []string
}

func newFakeCategories(categories ...model.CategoryInventory) *fakeCategories {
	f := &fakeCategories{byID: make(map[string]model.CategoryInventory)}
	for _, c := range categories {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeCategories) Search(_ context.Context, id string) ([]model.CategoryInventory, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return []model.CategoryInventory{c}, nil
}

type authUpdate struct {
	key   model.AuthorizationKey
	patch model.AuthorizationPatch
}

type fakeAuthorizations struct {
	records      map[string]model.AuthorizationRecord
	counts       map[string]int64
	searchErr    error
	updateErr    error
	countErr     error
	searches     []model.AuthorizationKey
	updates      []authUpdate
	countQueries []model.OutstandingQuery
}

func newFakeAuthorizations(records ...model.AuthorizationRecord) *fakeAuthorizations {
	f := &fakeAuthorizations{
		records: make(map[string]model.AuthorizationRecord),
		counts:  make(map[string]int64),
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeAuthorizations) setCount(selector []byte, n int64) {
	f.counts[hex.EncodeToString(selector)] = n
}

func (f *fakeAuthorizations) Search(_ context.Context, key model.AuthorizationKey) ([]model.AuthorizationRecord, error) {
	f.searches = append(f.searches, key)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	r, ok := f.records[key.ID]
	if !ok || r.Granter != key.Granter || r.Grantee != key.Grantee || r.Mode != key.Mode {
		return nil, nil
	}
	return []model.AuthorizationRecord{r}, nil
}

func (f *fakeAuthorizations) Update(_ context.Context, key model.AuthorizationKey, patch model.AuthorizationPatch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, authUpdate{key: key, patch: patch})
	r := f.records[key.ID]
	if patch.ClearSignature {
		r.Signature = nil
	}
	if patch.Cancelled != nil {
		r.Cancelled = *patch.Cancelled
	}
	if patch.Dispatched != nil {
		r.Dispatched = *patch.Dispatched
	}
	f.records[key.ID] = r
	return nil
}

func (f *fakeAuthorizations) Count(_ context.Context, q model.OutstandingQuery) (int64, error) {
	f.countQueries = append(f.countQueries, q)
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[hex.EncodeToString(q.Selector)], nil
}

type fakeValidator struct {
	calls []model.AuthorizationRequest
	err   error
}

func (f *fakeValidator) ValidateTicketAuthorizations(_ context.Context, req model.AuthorizationRequest) ([]model.AuthorizedTicketMintingFormat, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.AuthorizedTicketMintingFormat, len(req.Requested))
	for i, t := range req.Requested {
		out[i] = model.AuthorizedTicketMintingFormat{
			CategoryID:      t.CategoryID,
			Price:           t.Price,
			AuthorizationID: fmt.Sprintf("new-%d", i),
			Granter:         "0xgranter",
			Grantee:         req.Grantee,
		}
	}
	return out, nil
}

type actionUpdate struct {
	id    string
	step  int
	patch model.ActionPatch
}

type errorStepCall struct {
	id      string
	code    string
	payload any
	step    int
}

type fakeActionSets struct {
	updates    []actionUpdate
	errorSteps []errorStepCall
	updateErr  error
	errorErr   error
}

func (f *fakeActionSets) UpdateAction(_ context.Context, id string, step int, patch model.ActionPatch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, actionUpdate{id: id, step: step, patch: patch})
	return nil
}

func (f *fakeActionSets) ErrorStep(_ context.Context, id, code string, payload any, step int) error {
	if f.errorErr != nil {
		return f.errorErr
	}
	f.errorSteps = append(f.errorSteps, errorStepCall{id: id, code: code, payload: payload, step: step})
	return nil
}

type fakeLocker struct {
	locked   [][]string
	released int
	err      error
}

func (f *fakeLocker) Lock(_ context.Context, keys ...string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, keys)
	return func() { f.released++ }, nil
}
