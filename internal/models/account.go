// Package models defines data structures and domain types.
package models

import "time"

// Account is a paying user of the typer. The balance is only ever mutated
// through ledger operations.
type Account struct {
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin"`
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Credits      int64     `json:"credits"`
	IsActive     bool      `json:"isActive"`
}

// Clone returns a copy of the account.
func (a *Account) Clone() Account {
	return *a
}

// CanAfford reports whether the balance covers the given number of credits.
func (a *Account) CanAfford(credits int64) bool {
	return a.Credits >= credits
}

// SavedSession is the persisted login of the desktop client.
type SavedSession struct {
	SavedAt time.Time `json:"savedAt"`
	Token   string    `json:"token"`
	Email   string    `json:"email"`
	Credits int64     `json:"credits"`
}

// Valid reports whether the saved session carries enough data to be restored.
func (s *SavedSession) Valid() bool {
	return s != nil && s.Token != "" && s.Email != ""
}
