package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/eaglebank/bank-service/internal/command"
	"github.com/eaglebank/bank-service/internal/credentials"
	"github.com/eaglebank/bank-service/internal/ledger"
	"github.com/eaglebank/bank-service/internal/repository"
	"github.com/eaglebank/bank-service/shared/cqrs"
	"github.com/eaglebank/bank-service/shared/models"
)

type BankQueryService struct {
	ledger  ledger.Ledger
	creds   credentials.Store
	views   *repository.AccountViewRepository
	reserve string
}

func NewBankQueryService(l ledger.Ledger, creds credentials.Store, views *repository.AccountViewRepository, reserveID string) *BankQueryService {
	return &BankQueryService{ledger: l, creds: creds, views: views, reserve: reserveID}
}

// BalanceCheck authenticates the owner and reads the committed balance and
// debt straight from the ledger, never from the projection.
func (s *BankQueryService) BalanceCheck(ctx context.Context, q cqrs.BalanceCheckQuery) (*models.Balance, error) {
	if err := command.Authenticate(ctx, s.creds, s.reserve, q.Username, q.Secret); err != nil {
		return nil, err
	}
	acct, err := s.ledger.Get(ctx, q.Username)
	if err != nil {
		return nil, translate(err)
	}
	return &models.Balance{Username: acct.ID, Balance: acct.Balance, Debt: acct.Debt}, nil
}

func (s *BankQueryService) GetAccountView(ctx context.Context, q cqrs.GetAccountViewQuery) (*models.AccountView, error) {
	view, err := s.views.GetByUsername(ctx, q.Username)
	if err != nil {
		return nil, translate(err)
	}
	return view, nil
}

func (s *BankQueryService) ListAccountViews(ctx context.Context, q cqrs.ListAccountViewsQuery) ([]models.AccountView, error) {
	views, err := s.views.List(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return views, nil
}

// Reserve returns the fee-collecting account's view.
func (s *BankQueryService) Reserve(ctx context.Context) (*models.AccountView, error) {
	return s.GetAccountView(ctx, cqrs.GetAccountViewQuery{Username: s.reserve})
}

func translate(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fmt.Errorf("%w: %w", command.ErrUnknownUser, err)
	case errors.Is(err, ledger.ErrUnavailable):
		return fmt.Errorf("%w: %v", command.ErrTransient, err)
	default:
		return err
	}
}
