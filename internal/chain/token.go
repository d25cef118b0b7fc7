package chain

import (
	"context"
	"fmt"
	"math/big"
)

// Token is the ERC-20 side of the token controller.
type Token struct {
	caller ContractCaller
}

func NewToken(caller ContractCaller) *Token { return &Token{caller: caller} }

// Allowance returns how much spender may still pull from owner on token.
func (t *Token) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	tokenAddr, err := Address(token)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := Address(owner)
	if err != nil {
		return nil, err
	}
	spenderAddr, err := Address(spender)
	if err != nil {
		return nil, err
	}
	out, err := call(ctx, t.caller, parsedToken, tokenAddr, "allowance", ownerAddr, spenderAddr)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	if len(out) != 1 {
		return nil, ErrUnexpectedData
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, ErrUnexpectedData
	}
	return v, nil
}

// EncodeApprove returns the calldata of approve(spender, amount).
func (t *Token) EncodeApprove(spender string, amount *big.Int) ([]byte, error) {
	spenderAddr, err := Address(spender)
	if err != nil {
		return nil, err
	}
	return parsedToken.Pack("approve", spenderAddr, amount)
}
