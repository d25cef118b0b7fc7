// Package queue carries the engine's background work: asynq jobs that run
// reconciliations, build minting sequences and apply chain callbacks, plus
// the RabbitMQ plumbing that connects the engine to the transaction relayer.
package queue

import "github.com/ticketforge/mint-engine/internal/model"

// TxSequenceBuiltEvent is published once a minting sequence has been stored,
// so the relayer can ask the buyer to sign it.
type TxSequenceBuiltEvent struct {
	CartID       string                  `json:"cart_id"`
	CheckoutID   string                  `json:"checkout_id"`
	GemOrderID   string                  `json:"gem_order_id"`
	Transactions []model.CartTransaction `json:"transactions"`
	BuiltAt      string                  `json:"built_at"`
}

// Chain outcomes reported by the relayer.
const (
	TxConfirmed = "confirmed"
	TxFailed    = "failed"
	TxReverted  = "reverted"
)

// TxStatusEvent is consumed from the relayer when a transaction with a
// callback reaches a final state.
type TxStatusEvent struct {
	TxHash   string          `json:"tx_hash"`
	Status   string          `json:"status"`
	Callback *model.Callback `json:"callback"`
}
