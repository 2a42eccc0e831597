package models

import "time"

// TransactionKind is the business reason for a balance change.
type TransactionKind string

const (
	KindSignupBonus TransactionKind = "signup_bonus"
	KindPurchase    TransactionKind = "purchase"
	KindUsage       TransactionKind = "usage"
	KindRefund      TransactionKind = "refund"
)

// Valid reports whether k is a known transaction kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindSignupBonus, KindPurchase, KindUsage, KindRefund:
		return true
	}
	return false
}

// Label returns a short human readable label for the kind.
func (k TransactionKind) Label() string {
	switch k {
	case KindSignupBonus:
		return "Signup bonus"
	case KindPurchase:
		return "Purchase"
	case KindUsage:
		return "Usage"
	case KindRefund:
		return "Refund"
	default:
		return "Unknown"
	}
}

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusPending   TransactionStatus = "pending"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is an immutable ledger entry. Delta is signed: negative for
// usage, positive for bonuses, purchases and refunds.
type Transaction struct {
	Timestamp  time.Time         `json:"timestamp"`
	ID         string            `json:"id"`
	AccountID  string            `json:"accountId"`
	Kind       TransactionKind   `json:"kind"`
	PaymentRef string            `json:"paymentRef,omitempty"`
	Status     TransactionStatus `json:"status"`
	Delta      int64             `json:"delta"`
	AmountPaid float64           `json:"amountPaid,omitempty"`
}

// UsageRecord links delivered characters to the credits spent on them.
// Every record is paired with exactly one usage transaction.
type UsageRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	ID              string    `json:"id"`
	AccountID       string    `json:"accountId"`
	SessionID       string    `json:"sessionId,omitempty"`
	TransactionID   string    `json:"transactionId"`
	CharactersTyped int64     `json:"charactersTyped"`
	CreditsUsed     int64     `json:"creditsUsed"`
}
