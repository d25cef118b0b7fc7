package model

import (
	"encoding/json"
	"time"
)

// ActionStatus is the state of one step of an action set.
type ActionStatus string

const (
	ActionWaiting    ActionStatus = "waiting"
	ActionInProgress ActionStatus = "in progress"
	ActionComplete   ActionStatus = "complete"
	ActionError      ActionStatus = "error"
)

// Well known action and template names.
const (
	ActionCartAuthorizations = "@cart/authorizations"
	ActionCheckoutResolve    = "@checkout/resolve"
	TemplateTxSequence       = "@txseq/processor"
)

// Action is a single step of an action set.  Data and Error hold JSON
// documents whose shape depends on the action name.
type Action struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Status    ActionStatus    `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
}

// ActionSet is a multi step workflow record (cart, checkout, tx sequence).
type ActionSet struct {
	ID            string       // action_sets.id
	Name          string       // action_sets.name
	Owner         string       // action_sets.owner
	CurrentAction int          // action_sets.current_action
	CurrentStatus ActionStatus // action_sets.current_status
	Actions       []Action     // action_sets.actions (JSON)
	CreatedAt     time.Time    // action_sets.created_at
	UpdatedAt     time.Time    // action_sets.updated_at
}

// Find returns the index of the first action named name, or -1.
func (s ActionSet) Find(name string) int {
	for i, a := range s.Actions {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// ActionPatch replaces the status and data of one action.
type ActionPatch struct {
	Status ActionStatus
	Data   any
}

// CartAuthorizationsData is the payload of a completed @cart/authorizations
// action.
type CartAuthorizationsData struct {
	Authorizations []AuthorizedTicketMintingFormat `json:"authorizations"`
	CommitType     string                          `json:"commit_type"`
	Total          []Price                         `json:"total"`
	Fees           []string                        `json:"fees"`
}

// StripeData links a checkout to its payment.
type StripeData struct {
	PaymentIntentID string `json:"payment_intent_id"`
	GemOrderID      string `json:"gem_order_id"`
}

// CheckoutResolveData is the payload of a completed @checkout/resolve action.
type CheckoutResolveData struct {
	BuyerAddress string     `json:"buyer_address"`
	Stripe       StripeData `json:"stripe"`
}

// TxSequenceData is the payload a tx sequence processor is built with.
type TxSequenceData struct {
	CartID       string            `json:"cart_id"`
	CheckoutID   string            `json:"checkout_id"`
	GemOrderID   string            `json:"gem_order_id"`
	Transactions []CartTransaction `json:"transactions"`
}
