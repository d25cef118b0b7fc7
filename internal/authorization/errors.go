package authorization

import "errors"

var (
	ErrCategoryNotFound            = errors.New("category not found")
	ErrAuthorizationNotFound       = errors.New("authorization not found")
	ErrCannotCancelPublicSignature = errors.New("cannot cancel authorization with a readable signature")
	ErrCancelUpdateFailed          = errors.New("authorization cancel update failed")
	ErrAuthorizationCountFailed    = errors.New("outstanding authorization count failed")
	ErrAuthorizationCreationFailed = errors.New("authorization creation failed")
	ErrActionSetUpdateFailed       = errors.New("action set update failed")
	ErrSeatLockFailed              = errors.New("seat lock failed")
)

// ErrorCodeNoSeatsLeft is the action set error code of an exhausted category.
const ErrorCodeNoSeatsLeft = "no_seats_left"
