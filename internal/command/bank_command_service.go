package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/eaglebank/bank-service/internal/credentials"
	"github.com/eaglebank/bank-service/internal/ledger"
	"github.com/eaglebank/bank-service/internal/metrics"
	"github.com/eaglebank/bank-service/shared/cqrs"
	"github.com/eaglebank/bank-service/shared/events"
	"github.com/eaglebank/bank-service/shared/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFee          = 1
	DefaultReserveID    = "BANK"
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 10 * time.Millisecond
)

// EventPublisher is satisfied by *events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

type Options struct {
	Fee          int64
	ReserveID    string
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       logrus.FieldLogger
}

// BankCommandService runs every balance-changing operation. Credentials are
// checked first, with no ledger lock held; every rule that depends on a
// balance is evaluated inside the ledger's commit section so concurrent
// operations cannot both pass a check that only one of them may pass.
type BankCommandService struct {
	ledger    ledger.Ledger
	creds     credentials.Store
	publisher EventPublisher

	fee        int64
	reserve    string
	maxRetries int
	backoff    time.Duration
	log        logrus.FieldLogger
}

// NewBankCommandService wires the processor. publisher may be nil.
func NewBankCommandService(l ledger.Ledger, creds credentials.Store, publisher EventPublisher, opts Options) *BankCommandService {
	if opts.Fee < 0 {
		opts.Fee = DefaultFee
	}
	if opts.ReserveID == "" {
		opts.ReserveID = DefaultReserveID
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &BankCommandService{
		ledger:     l,
		creds:      creds,
		publisher:  publisher,
		fee:        opts.Fee,
		reserve:    opts.ReserveID,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		log:        opts.Logger.WithField("component", "processor"),
	}
}

func (s *BankCommandService) Register(ctx context.Context, cmd cqrs.RegisterCommand) (err error) {
	defer s.observe(events.OpRegister, time.Now(), &err)

	if cmd.Username == s.reserve {
		return ErrAlreadyExists
	}
	exists, err := s.creds.Exists(ctx, cmd.Username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if exists {
		return ErrAlreadyExists
	}

	// The ledger decides who wins a registration race.
	if _, err := s.ledger.Create(ctx, cmd.Username); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			return ErrAlreadyExists
		}
		return s.ledgerError(err)
	}
	if err := s.creds.Register(ctx, cmd.Username, cmd.Secret); err != nil {
		s.undoCreate(ctx, cmd.Username)
		if errors.Is(err, credentials.ErrAlreadyRegistered) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	s.publish(ctx, events.AccountRegistered, events.AccountRegisteredEvent{Username: cmd.Username})
	s.log.WithField("username", cmd.Username).Info("account registered")
	return nil
}

// undoCreate drops an account whose credentials could not be stored so the
// username can be registered again.
func (s *BankCommandService) undoCreate(ctx context.Context, username string) {
	if err := s.ledger.Remove(context.WithoutCancel(ctx), username); err != nil {
		s.log.WithError(err).WithField("username", username).
			Error("ledger account created but credentials were not stored")
	}
}

// Deposit credits amount minus the fee to the caller and the fee to the
// reserve.
func (s *BankCommandService) Deposit(ctx context.Context, cmd cqrs.DepositCommand) (_ *models.Balance, err error) {
	defer s.observe(events.OpDeposit, time.Now(), &err)

	if err := s.Authenticate(ctx, cmd.Username, cmd.Secret); err != nil {
		return nil, err
	}
	if cmd.Amount <= s.fee {
		return nil, fmt.Errorf("%w: deposit must exceed the fee of %d", ErrInvalidAmount, s.fee)
	}

	mutations := map[string]ledger.Mutation{
		cmd.Username: credit(cmd.Amount - s.fee),
		s.reserve:    credit(s.fee),
	}
	committed, err := s.commit(ctx, events.OpDeposit, mutations)
	if err != nil {
		return nil, err
	}
	s.publishCommit(ctx, events.OpDeposit, cmd.Username, "", cmd.Amount, s.fee, committed)
	return toBalance(committed[cmd.Username]), nil
}

// Transfer moves amount to cmd.To and the fee to the reserve. The payer must
// cover both.
func (s *BankCommandService) Transfer(ctx context.Context, cmd cqrs.TransferCommand) (_ *models.Balance, err error) {
	defer s.observe(events.OpTransfer, time.Now(), &err)

	if err := s.Authenticate(ctx, cmd.Username, cmd.Secret); err != nil {
		return nil, err
	}
	if cmd.Amount <= 0 {
		return nil, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidAmount)
	}
	if cmd.To == cmd.Username {
		return nil, fmt.Errorf("%w: cannot transfer to yourself", ErrInvalidAmount)
	}

	if cmd.Amount > math.MaxInt64-s.fee {
		return nil, fmt.Errorf("%w: transfer amount too large", ErrInvalidAmount)
	}

	total := cmd.Amount + s.fee
	mutations := map[string]ledger.Mutation{
		cmd.Username: func(a ledger.Account) (ledger.Account, error) {
			if a.Balance < total {
				return a, fmt.Errorf("%w: balance %d cannot cover %d", ErrInsufficientFunds, a.Balance, total)
			}
			a.Balance -= total
			return a, nil
		},
	}
	if cmd.To == s.reserve {
		mutations[s.reserve] = credit(cmd.Amount + s.fee)
	} else {
		mutations[cmd.To] = credit(cmd.Amount)
		mutations[s.reserve] = credit(s.fee)
	}

	committed, err := s.commit(ctx, events.OpTransfer, mutations)
	if err != nil {
		var nf *ledger.NotFoundError
		if errors.As(err, &nf) && nf.ID == cmd.To {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, cmd.To)
		}
		return nil, err
	}
	s.publishCommit(ctx, events.OpTransfer, cmd.Username, cmd.To, cmd.Amount, s.fee, committed)
	return toBalance(committed[cmd.Username]), nil
}

// TakeLoan mints amount into the caller's balance and records it as debt.
func (s *BankCommandService) TakeLoan(ctx context.Context, cmd cqrs.TakeLoanCommand) (_ *models.Balance, err error) {
	defer s.observe(events.OpTakeLoan, time.Now(), &err)

	if err := s.Authenticate(ctx, cmd.Username, cmd.Secret); err != nil {
		return nil, err
	}
	if cmd.Amount <= 0 {
		return nil, fmt.Errorf("%w: loan amount must be positive", ErrInvalidAmount)
	}

	committed, err := s.commit(ctx, events.OpTakeLoan, map[string]ledger.Mutation{
		cmd.Username: func(a ledger.Account) (ledger.Account, error) {
			if a.Balance > math.MaxInt64-cmd.Amount || a.Debt > math.MaxInt64-cmd.Amount {
				return a, fmt.Errorf("%w: loan would overflow the account", ErrInvalidAmount)
			}
			a.Balance += cmd.Amount
			a.Debt += cmd.Amount
			return a, nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.publishCommit(ctx, events.OpTakeLoan, cmd.Username, "", cmd.Amount, 0, committed)
	return toBalance(committed[cmd.Username]), nil
}

// RepayLoan burns amount from the caller's balance and debt.
func (s *BankCommandService) RepayLoan(ctx context.Context, cmd cqrs.RepayLoanCommand) (_ *models.Balance, err error) {
	defer s.observe(events.OpRepayLoan, time.Now(), &err)

	if err := s.Authenticate(ctx, cmd.Username, cmd.Secret); err != nil {
		return nil, err
	}

	committed, err := s.commit(ctx, events.OpRepayLoan, map[string]ledger.Mutation{
		cmd.Username: func(a ledger.Account) (ledger.Account, error) {
			if cmd.Amount <= 0 || cmd.Amount > a.Balance {
				return a, fmt.Errorf("%w: balance %d cannot pay %d", ErrInsufficientFunds, a.Balance, cmd.Amount)
			}
			if cmd.Amount > a.Debt {
				return a, fmt.Errorf("%w: debt is %d", ErrOverpayment, a.Debt)
			}
			a.Balance -= cmd.Amount
			a.Debt -= cmd.Amount
			return a, nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.publishCommit(ctx, events.OpRepayLoan, cmd.Username, "", cmd.Amount, 0, committed)
	return toBalance(committed[cmd.Username]), nil
}

// Authenticate resolves username and checks secret against the credential
// store. The reserve account has no credentials and never authenticates.
func (s *BankCommandService) Authenticate(ctx context.Context, username, secret string) error {
	return Authenticate(ctx, s.creds, s.reserve, username, secret)
}

// Authenticate is shared with the query side.
func Authenticate(ctx context.Context, creds credentials.Store, reserveID, username, secret string) error {
	if username == reserveID {
		return fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	exists, err := creds.Exists(ctx, username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	ok, err := creds.Verify(ctx, username, secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if !ok {
		return ErrBadCredentials
	}
	return nil
}

// commit applies mutations, redoing the whole step while the ledger reports
// a conflict or an outage. Mutations are pure so re-running them against
// fresher state is safe.
func (s *BankCommandService) commit(ctx context.Context, op string, mutations map[string]ledger.Mutation) (map[string]ledger.Account, error) {
	for attempt := 0; ; attempt++ {
		committed, err := s.ledger.ApplyAtomic(ctx, mutations)
		if err == nil {
			return committed, nil
		}

		reason := retryReason(err)
		if reason == "" {
			return nil, s.ledgerError(err)
		}
		if attempt >= s.maxRetries {
			s.log.WithError(err).WithFields(logrus.Fields{
				"operation": op,
				"attempts":  attempt + 1,
			}).Warn("giving up on ledger commit")
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}

		metrics.RecordRetry(op, reason)
		s.log.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt + 1,
		}).Warn("retrying ledger commit")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		}
	}
}

func retryReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrConflict):
		return "conflict"
	case errors.Is(err, ledger.ErrUnavailable):
		return "unavailable"
	default:
		return ""
	}
}

// ledgerError translates ledger failures that reach the caller. Domain
// errors raised inside mutations pass through unchanged.
func (s *BankCommandService) ledgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrUnknownUser, err)
	case errors.Is(err, ledger.ErrUnavailable), errors.Is(err, ledger.ErrConflict):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	default:
		return err
	}
}

func (s *BankCommandService) publishCommit(ctx context.Context, op, username, to string, amount, fee int64, committed map[string]ledger.Account) {
	states := make([]models.AccountState, 0, len(committed))
	for _, id := range ledger.LockOrder(keys(committed), s.reserve) {
		acct := committed[id]
		states = append(states, models.AccountState{
			Username: acct.ID,
			Balance:  acct.Balance,
			Debt:     acct.Debt,
			Version:  acct.Version,
		})
	}
	s.log.WithFields(logrus.Fields{
		"operation": op,
		"username":  username,
		"to":        to,
		"amount":    amount,
	}).Debug("ledger commit")
	s.publish(ctx, events.LedgerCommitted, events.LedgerCommittedEvent{
		Operation: op,
		Username:  username,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Accounts:  states,
	})
}

// publish is best effort: the commit already happened.
func (s *BankCommandService) publish(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.BankEventsStream, eventType, data); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("failed to publish event")
	}
}

func (s *BankCommandService) observe(op string, start time.Time, err *error) {
	metrics.RecordOperation(op, resultLabel(*err), time.Since(start))
}

// credit adds n (never negative) to the balance, refusing any amount the
// balance cannot hold.
func credit(n int64) ledger.Mutation {
	return func(a ledger.Account) (ledger.Account, error) {
		if a.Balance > math.MaxInt64-n {
			return a, fmt.Errorf("%w: balance of %s cannot hold %d more", ErrInvalidAmount, a.ID, n)
		}
		a.Balance += n
		return a, nil
	}
}

func keys(accounts map[string]ledger.Account) []string {
	out := make([]string, 0, len(accounts))
	for id := range accounts {
		out = append(out, id)
	}
	return out
}

func toBalance(a ledger.Account) *models.Balance {
	return &models.Balance{Username: a.ID, Balance: a.Balance, Debt: a.Debt}
}
