package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codepaste/typer/internal/logger"
	"github.com/codepaste/typer/internal/models"
)

// Tx is an account store transaction. Every write made through it becomes
// visible together on commit or not at all.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a database transaction. The transaction commits when
// fn returns nil and rolls back otherwise. fn must not use db directly: the
// pool holds a single connection, which the transaction owns until it ends.
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			logger.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateAccount inserts a new account.
func (t *Tx) CreateAccount(ctx context.Context, acc *models.Account) error {
	return createAccount(ctx, t.tx, acc)
}

// FindByID returns the account with the given id.
func (t *Tx) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return findAccount(ctx, t.tx, "id = ?", id)
}

// SetBalance overwrites the stored balance.
func (t *Tx) SetBalance(ctx context.Context, id string, credits int64) error {
	return setBalance(ctx, t.tx, id, credits)
}

// DebitBalance subtracts amount from the balance only when the balance
// covers it. The check and the write are one statement, so two concurrent
// debits can never both pass against the same credits. It reports whether
// the row was updated.
func (t *Tx) DebitBalance(ctx context.Context, id string, amount int64) (bool, error) {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET credits = credits - ? WHERE id = ? AND credits >= ?",
		amount, id, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit balance: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// AddBalance adds amount to the balance.
func (t *Tx) AddBalance(ctx context.Context, id string, amount int64) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET credits = credits + ? WHERE id = ?", amount, id)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return expectRow(result)
}

// AppendTransaction appends an entry to the transaction log.
func (t *Tx) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	return appendTransaction(ctx, t.tx, txn)
}

// AppendUsageRecord appends an entry to the usage log.
func (t *Tx) AppendUsageRecord(ctx context.Context, r *models.UsageRecord) error {
	return appendUsageRecord(ctx, t.tx, r)
}
