package model

import (
	"math/big"
	"time"
)

// Price is an amount of a currency, encoded as a base 10 integer string in
// the currency's smallest unit.
type Price struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// Amount parses Value.  An empty or malformed value is reported as false.
func (p Price) Amount() (*big.Int, bool) {
	if p.Value == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(p.Value, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// Equal compares two prices by currency and numeric value.
func (p Price) Equal(o Price) bool {
	if p.Currency != o.Currency {
		return false
	}
	a, okA := p.Amount()
	b, okB := o.Amount()
	if !okA || !okB {
		return p.Value == o.Value
	}
	return a.Cmp(b) == 0
}

// TicketMintingFormat is one unauthorized ticket request of a cart.
type TicketMintingFormat struct {
	CategoryID string `json:"category_id"`
	Price      Price  `json:"price"`
}

// AuthorizedTicketMintingFormat is a ticket request backed by an issued
// authorization.
type AuthorizedTicketMintingFormat struct {
	CategoryID        string    `json:"category_id"`
	Price             Price     `json:"price"`
	AuthorizationID   string    `json:"authorization_id"`
	GroupID           string    `json:"group_id"`
	CategoryName      string    `json:"category_name"`
	Granter           string    `json:"granter"`
	Grantee           string    `json:"grantee"`
	GranterController string    `json:"granter_controller"`
	Expiration        time.Time `json:"expiration"`
}

// Request strips the authorization part.
func (a AuthorizedTicketMintingFormat) Request() TicketMintingFormat {
	return TicketMintingFormat{CategoryID: a.CategoryID, Price: a.Price}
}

// SameRequests reports whether old carries the same (category, price) pairs
// as requested, in the same order.
func SameRequests(requested []TicketMintingFormat, old []AuthorizedTicketMintingFormat) bool {
	if len(requested) != len(old) {
		return false
	}
	for i := range requested {
		if requested[i].CategoryID != old[i].CategoryID || !requested[i].Price.Equal(old[i].Price) {
			return false
		}
	}
	return true
}

// AuthorizationRequest is what the validator needs to issue authorizations
// for a cart.  Expiration is counted from issuance.
type AuthorizationRequest struct {
	Requested         []TicketMintingFormat
	Prices            []Price
	Fees              []string
	Expiration        time.Duration
	Grantee           string
	SignatureReadable bool
}
