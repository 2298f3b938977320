package models

// Balance is the result of a balance check.
type Balance struct {
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Debt     int64  `json:"debt"`
}

// AccountState is the committed state of one account as carried in events.
type AccountState struct {
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Debt     int64  `json:"debt"`
	Version  int64  `json:"version"`
}
