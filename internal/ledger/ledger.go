// Package ledger owns account balances. Every balance change is paired with
// an append-only transaction entry inside one database transaction, so the
// sum of completed deltas always equals the stored balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codepaste/typer/internal/db"
	"github.com/codepaste/typer/internal/logger"
	"github.com/codepaste/typer/internal/models"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// Usage describes the characters a debit pays for.
type Usage struct {
	Characters int64
	SessionID  string
}

// Metadata is attached to credit transactions.
type Metadata struct {
	AmountPaid float64
	PaymentRef string
}

// Ledger performs balance mutations against the account store.
type Ledger struct {
	db               *db.DB
	freeTrialCredits int64
}

// New creates a ledger. freeTrialCredits is granted to every new account.
func New(database *db.DB, freeTrialCredits int64) *Ledger {
	return &Ledger{
		db:               database,
		freeTrialCredits: freeTrialCredits,
	}
}

// CreditsRequired converts a character count into credits: one credit per
// ratio characters, rounded up. A ratio below 1 is treated as 1.
func CreditsRequired(chars int64, ratio int) int64 {
	if chars <= 0 {
		return 0
	}
	r := int64(ratio)
	if r < 1 {
		r = 1
	}
	return (chars + r - 1) / r
}

// Open creates an account holding the free trial balance together with
// its signup_bonus transaction.
func (l *Ledger) Open(ctx context.Context, email, passwordHash string) (*models.Account, error) {
	acc := &models.Account{
		Email:        email,
		PasswordHash: passwordHash,
		Credits:      l.freeTrialCredits,
		IsActive:     true,
	}

	err := l.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.CreateAccount(ctx, acc); err != nil {
			return err
		}
		if l.freeTrialCredits == 0 {
			return nil
		}
		return tx.AppendTransaction(ctx, &models.Transaction{
			AccountID: acc.ID,
			Kind:      models.KindSignupBonus,
			Delta:     l.freeTrialCredits,
			Timestamp: acc.CreatedAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open account: %w", err)
	}

	logger.Info("account opened", "account", acc.ID, "credits", acc.Credits)
	return acc, nil
}

// Debit atomically subtracts amount from the balance and records the usage
// transaction and usage record that explain it. When the balance does not
// cover amount nothing is written and an *InsufficientCreditsError is
// returned.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount int64, usage Usage) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := l.db.WithTx(ctx, func(tx *db.Tx) error {
		ok, err := tx.DebitBalance(ctx, accountID, amount)
		if err != nil {
			return err
		}

		acc, err := tx.FindByID(ctx, accountID)
		if errors.Is(err, db.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		if !ok {
			return &InsufficientCreditsError{Required: amount, Available: acc.Credits}
		}

		txn := &models.Transaction{
			AccountID: accountID,
			Kind:      models.KindUsage,
			Delta:     -amount,
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}

		if err := tx.AppendUsageRecord(ctx, &models.UsageRecord{
			AccountID:       accountID,
			CharactersTyped: usage.Characters,
			CreditsUsed:     amount,
			SessionID:       usage.SessionID,
			TransactionID:   txn.ID,
			Timestamp:       txn.Timestamp,
		}); err != nil {
			return err
		}

		balance = acc.Credits
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("debit applied", "account", accountID, "amount", amount, "session", usage.SessionID, "balance", balance)
	return balance, nil
}

// Credit adds amount to the balance and appends a transaction of the given
// kind. Purchase references are single use; a repeated one fails with
// db.ErrDuplicateRef.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount int64, kind models.TransactionKind, meta Metadata) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if kind == models.KindUsage || !kind.Valid() {
		return 0, fmt.Errorf("cannot credit with kind %q", kind)
	}

	var balance int64
	err := l.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.AddBalance(ctx, accountID, amount); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		if err := tx.AppendTransaction(ctx, &models.Transaction{
			AccountID:  accountID,
			Kind:       kind,
			Delta:      amount,
			AmountPaid: meta.AmountPaid,
			PaymentRef: meta.PaymentRef,
		}); err != nil {
			return err
		}

		acc, err := tx.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		balance = acc.Credits
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("credit applied", "account", accountID, "kind", kind, "amount", amount, "balance", balance)
	return balance, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	acc, err := l.db.FindByID(ctx, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return acc.Credits, nil
}

// Transactions returns the newest transactions, all of them when limit <= 0.
func (l *Ledger) Transactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	return l.db.ListTransactions(ctx, accountID, limit)
}

// UsageStats aggregates the account's usage records.
func (l *Ledger) UsageStats(ctx context.Context, accountID string) (models.UsageStats, error) {
	return l.db.AggregateUsage(ctx, accountID)
}

// DailyUsage returns one entry per day for the last days days.
func (l *Ledger) DailyUsage(ctx context.Context, accountID string, days int) ([]models.DailyUsage, error) {
	rows, err := l.db.DailyUsage(ctx, accountID, days)
	if err != nil {
		return nil, err
	}
	return models.FillDays(rows, days, timeNow()), nil
}

// Reconcile checks that the balance equals the sum of completed deltas and
// that every usage record is paired with its usage transaction.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) error {
	balance, err := l.Balance(ctx, accountID)
	if err != nil {
		return err
	}

	sum, err := l.db.SumCompletedDeltas(ctx, accountID)
	if err != nil {
		return err
	}
	if sum != balance {
		return fmt.Errorf("%w: balance %d, transactions sum to %d", ErrLedgerMismatch, balance, sum)
	}

	unpaired, err := l.db.CountUnpairedUsage(ctx, accountID)
	if err != nil {
		return err
	}
	if unpaired != 0 {
		return fmt.Errorf("%w: %d unpaired usage entries", ErrLedgerMismatch, unpaired)
	}
	return nil
}
