package command

import "errors"

// Domain errors returned by BankCommandService and BankQueryService. Each
// maps to one application status code at the HTTP edge.
var (
	ErrUnknownUser       = errors.New("unknown user")
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrAlreadyExists     = errors.New("user already exists")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownRecipient  = errors.New("unknown recipient")
	ErrOverpayment       = errors.New("payment exceeds debt")

	// ErrTransient means the ledger stayed contended or unreachable after
	// every retry. Nothing was committed.
	ErrTransient = errors.New("temporarily unavailable, try again")
)

// resultLabel names err for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, ErrBadCredentials):
		return "bad_credentials"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUnknownRecipient):
		return "unknown_recipient"
	case errors.Is(err, ErrOverpayment):
		return "overpayment"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
