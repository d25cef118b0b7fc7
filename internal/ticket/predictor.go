// Package ticket predicts the identifiers of tickets before their mint
// transaction lands, so callbacks can refer to them.
package ticket

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ticketforge/mint-engine/internal/codec"
	"github.com/ticketforge/mint-engine/internal/model"
)

type Store interface {
	CreateMany(ctx context.Context, tickets []model.Ticket) error
}

type Predictor struct {
	store Store
}

func NewPredictor(store Store) *Predictor { return &Predictor{store: store} }

// ID derives the identifier of the ticket minted for in.  Addresses and
// group ids are lower cased first so casing never changes the result.
func ID(in model.PredictionInput) string {
	sum := codec.Keccak256(
		[]byte(strings.ToLower(in.Buyer)),
		[]byte(in.CategoryID),
		[]byte(in.AuthorizationID),
		[]byte(strings.ToLower(in.GroupID)),
	)
	return hexutil.Encode(sum)
}

// PredictTickets persists one minting ticket per input and returns them in
// input order.
func (p *Predictor) PredictTickets(ctx context.Context, inputs []model.PredictionInput) ([]model.Ticket, error) {
	tickets := make([]model.Ticket, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		id := ID(in)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("ticket: duplicate prediction for authorization %s", in.AuthorizationID)
		}
		seen[id] = struct{}{}
		tickets[i] = model.Ticket{
			ID:              id,
			Owner:           in.Buyer,
			CategoryID:      in.CategoryID,
			GroupID:         in.GroupID,
			AuthorizationID: in.AuthorizationID,
			Status:          model.TicketMinting,
		}
	}
	if err := p.store.CreateMany(ctx, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}
