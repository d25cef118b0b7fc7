package model

import "time"

// ModeMint is the only authorization mode handled by the mint engine.
const ModeMint = "mint"

// AuthorizationRecord is a signed, time bounded permission allowing the
// grantee to mint one ticket of a category from the granter.
//
// A record whose signature has been handed out (Signature set and
// ReadableSignature true) must never be cancelled; it has to expire.
// Dispatched records were consumed by a mint transaction sequence.
type AuthorizationRecord struct {
	ID                string    // authorizations.id
	Granter           string    // authorizations.granter
	Grantee           string    // authorizations.grantee
	Mode              string    // authorizations.mode
	Codes             []byte    // authorizations.codes
	Selectors         []byte    // authorizations.selectors
	Args              []byte    // authorizations.args
	Signature         *string   // authorizations.signature (nullable)
	ReadableSignature bool      // authorizations.readable_signature
	Cancelled         bool      // authorizations.cancelled
	Dispatched        bool      // authorizations.dispatched
	Consumed          bool      // authorizations.consumed
	UserExpiration    time.Time // authorizations.user_expiration
	BeExpiration      time.Time // authorizations.be_expiration
	CreatedAt         time.Time // authorizations.created_at
	UpdatedAt         time.Time // authorizations.updated_at
}

// Cancellable reports whether the engine may soft delete the record.
func (a AuthorizationRecord) Cancellable() bool {
	return !(a.Signature != nil && a.ReadableSignature)
}

// Outstanding reports whether the record still holds a seat at instant now.
func (a AuthorizationRecord) Outstanding(now time.Time) bool {
	return !a.Cancelled && !a.Consumed && !a.Dispatched && a.BeExpiration.After(now)
}

// AuthorizationKey is the unique key of an authorization record.
type AuthorizationKey struct {
	ID      string
	Mode    string
	Granter string
	Grantee string
}

// AuthorizationPatch lists the columns an update may touch.  Nil fields are
// left unchanged.  ClearSignature sets the signature column to NULL.
type AuthorizationPatch struct {
	ClearSignature bool
	Cancelled      *bool
	Dispatched     *bool
}

// OutstandingQuery selects the authorizations that still hold a seat of a
// category: matching selector, not cancelled, not consumed, not dispatched
// and with a backend expiration after Now.
type OutstandingQuery struct {
	Selector []byte
	Now      time.Time
}

// Bool returns a pointer to b, for patches.
func Bool(b bool) *bool { return &b }
