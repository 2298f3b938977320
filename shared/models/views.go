package models

import "time"

// AccountView is the read-optimised projection of an account served by the
// admin API. Reserve marks the fee-collecting account.
type AccountView struct {
	Username  string    `json:"username"`
	Balance   int64     `json:"balance"`
	Debt      int64     `json:"debt"`
	Version   int64     `json:"version"`
	Reserve   bool      `json:"reserve"`
	UpdatedAt time.Time `json:"updatedTimestamp"`
}
