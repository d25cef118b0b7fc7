package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ticketforge/mint-engine/internal/model"
)

// ScopeRegistry resolves deployment scopes through the registry contract.
type ScopeRegistry struct {
	caller   ContractCaller
	registry common.Address
}

func NewScopeRegistry(caller ContractCaller, registry string) (*ScopeRegistry, error) {
	addr, err := Address(registry)
	if err != nil {
		return nil, err
	}
	return &ScopeRegistry{caller: caller, registry: addr}, nil
}

// GetScopeContracts returns the controllers bound to scope.  ErrScopeNotFound
// is returned when the registry does not know the scope.
func (r *ScopeRegistry) GetScopeContracts(ctx context.Context, scope string) (model.ScopeContracts, error) {
	out, err := call(ctx, r.caller, parsedScopeRegistry, r.registry, "getScope", scope)
	if err != nil {
		return model.ScopeContracts{}, fmt.Errorf("getScope %q: %w", scope, err)
	}
	if len(out) != 3 {
		return model.ScopeContracts{}, ErrUnexpectedData
	}
	exists, ok1 := out[0].(bool)
	token, ok2 := out[1].(common.Address)
	mint, ok3 := out[2].(common.Address)
	if !ok1 || !ok2 || !ok3 {
		return model.ScopeContracts{}, ErrUnexpectedData
	}
	if !exists {
		return model.ScopeContracts{}, fmt.Errorf("%w: %q", ErrScopeNotFound, scope)
	}
	return model.ScopeContracts{
		Scope:           scope,
		TokenController: token.Hex(),
		MintController:  mint.Hex(),
	}, nil
}
