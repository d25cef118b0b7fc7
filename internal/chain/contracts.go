// Package chain wraps the contracts the mint engine talks to.  Reads go
// through a ContractCaller (an *ethclient.Client in production); writes are
// only encoded here and broadcast by the tx sequence processor.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAddress = errors.New("chain: invalid address")
	ErrScopeNotFound  = errors.New("chain: scope does not exist")
	ErrUnexpectedData = errors.New("chain: unexpected return data")
)

// ContractCaller executes read only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const tokenABI = `[
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const mintControllerABI = `[
  {"type":"function","name":"mint","stateMutability":"nonpayable",
   "inputs":[
     {"name":"owner","type":"address"},
     {"name":"currency","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"expiration","type":"uint256"},
     {"name":"controllers","type":"address[]"},
     {"name":"codes","type":"bytes[]"},
     {"name":"args","type":"bytes[]"},
     {"name":"signatures","type":"bytes[]"}],
   "outputs":[]}
]`

const scopeRegistryABI = `[
  {"type":"function","name":"getScope","stateMutability":"view",
   "inputs":[{"name":"name","type":"string"}],
   "outputs":[
     {"name":"exists","type":"bool"},
     {"name":"tokenController","type":"address"},
     {"name":"mintController","type":"address"}]}
]`

var (
	parsedToken          = mustParse(tokenABI)
	parsedMintController = mustParse(mintControllerABI)
	parsedScopeRegistry  = mustParse(scopeRegistryABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Address parses a hex address.
func Address(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func call(ctx context.Context, caller ContractCaller, parsed abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return parsed.Unpack(method, out)
}
