package cqrs

// BalanceCheckQuery reads an account's balance and debt after
// authenticating the owner.
type BalanceCheckQuery struct {
	Username string
	Secret   string
}

// GetAccountViewQuery fetches the admin projection of one account.
type GetAccountViewQuery struct {
	Username string
}

// ListAccountViewsQuery fetches the admin projection of every account.
type ListAccountViewsQuery struct{}
