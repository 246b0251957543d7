package orders

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrGateway              = errors.New("payment gateway error")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrPaymentPending       = errors.New("payment not settled yet")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrPendingNotFound      = errors.New("pending order not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("delivery status must move forward one step")
	ErrConfirmationMismatch = errors.New("provider confirmation does not match pending order")
)
