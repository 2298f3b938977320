package events

import (
	"time"

	"github.com/eaglebank/bank-service/shared/models"
)

// Event types
const (
	AccountRegistered = "account.registered"
	LedgerCommitted   = "ledger.committed"
)

// Stream names
const (
	BankEventsStream = "bank.events"
)

// Operation names carried in LedgerCommittedEvent.
const (
	OpRegister  = "register"
	OpDeposit   = "deposit"
	OpTransfer  = "transfer"
	OpTakeLoan  = "take_loan"
	OpRepayLoan = "repay_loan"
)

// Base event structure
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type AccountRegisteredEvent struct {
	Username string `json:"username"`
}

// LedgerCommittedEvent describes one successful atomic commit. Accounts
// holds the committed state of every account touched, reserve included.
type LedgerCommittedEvent struct {
	Operation string                `json:"operation"`
	Username  string                `json:"username"`
	To        string                `json:"to,omitempty"`
	Amount    int64                 `json:"amount"`
	Fee       int64                 `json:"fee"`
	Accounts  []models.AccountState `json:"accounts"`
}
