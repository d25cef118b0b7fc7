package minting

import "errors"

var (
	ErrInvalidScope                      = errors.New("invalid scope")
	ErrCartNotFound                      = errors.New("cart not found")
	ErrInvalidCart                       = errors.New("cart has no completed authorizations step")
	ErrCheckoutNotFound                  = errors.New("checkout not found")
	ErrInvalidCheckout                   = errors.New("checkout has no completed resolve step")
	ErrGemOrderMismatch                  = errors.New("gem order does not match checkout")
	ErrEmptyCart                         = errors.New("cart holds no authorizations")
	ErrMultipleCurrenciesNotAllowed      = errors.New("multiple currencies not allowed")
	ErrOnlyT721TokenAllowed              = errors.New("only T721Token allowed")
	ErrInvalidTotal                      = errors.New("invalid cart total")
	ErrAllowanceFetchFailed              = errors.New("allowance fetch failed")
	ErrTokenApprovalEncodingFailed       = errors.New("token approval encoding failed")
	ErrCurrencyNotFound                  = errors.New("currency not found")
	ErrInvalidCurrencyType               = errors.New("invalid currency type")
	ErrAuthorizationFetchFailed          = errors.New("authorization fetch failed")
	ErrAuthorizationNotUsable            = errors.New("authorization already cancelled, consumed or dispatched")
	ErrMismatchedExpirations             = errors.New("authorizations have mismatched expirations")
	ErrControllerResolutionFailed        = errors.New("group controller resolution failed")
	ErrTicketPredictionFailed            = errors.New("ticket prediction failed")
	ErrUserNotFound                      = errors.New("user not found")
	ErrAuthorizationDispatchUpdateFailed = errors.New("authorization dispatch update failed")
	ErrMintEncodingFailed                = errors.New("mint encoding failed")
	ErrTxSequenceBuildFailed             = errors.New("tx sequence build failed")
	ErrTicketUpdateFailed                = errors.New("ticket update failed")
	ErrAuthorizationUpdateFailed         = errors.New("authorization update failed")
)
