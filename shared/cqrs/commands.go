package cqrs

type RegisterCommand struct {
	Username string
	Secret   string
}

type DepositCommand struct {
	Username string
	Secret   string
	Amount   int64
}

type TransferCommand struct {
	Username string
	Secret   string
	To       string
	Amount   int64
}

type TakeLoanCommand struct {
	Username string
	Secret   string
	Amount   int64
}

type RepayLoanCommand struct {
	Username string
	Secret   string
	Amount   int64
}
