package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MintCall holds the arguments of the mint controller's mint method.  The
// slices are parallel, one entry per ticket.
type MintCall struct {
	Owner       string
	Currency    string
	Amount      *big.Int
	Expiration  int64
	Controllers []string
	Codes       [][]byte
	Args        [][]byte
	Signatures  [][]byte
}

type MintController struct{}

func NewMintController() *MintController { return &MintController{} }

// EncodeMint returns the calldata of mint(...).
func (MintController) EncodeMint(c MintCall) ([]byte, error) {
	n := len(c.Controllers)
	if len(c.Codes) != n || len(c.Args) != n || len(c.Signatures) != n {
		return nil, fmt.Errorf("mint: %d controllers, %d codes, %d args, %d signatures", n, len(c.Codes), len(c.Args), len(c.Signatures))
	}
	owner, err := Address(c.Owner)
	if err != nil {
		return nil, err
	}
	currency, err := Address(c.Currency)
	if err != nil {
		return nil, err
	}
	controllers := make([]common.Address, n)
	for i, s := range c.Controllers {
		if controllers[i], err = Address(s); err != nil {
			return nil, err
		}
	}
	amount := c.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return parsedMintController.Pack("mint", owner, currency, amount, big.NewInt(c.Expiration), controllers, c.Codes, c.Args, c.Signatures)
}
