package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/codepaste/typer/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NormalizeEmail trims and lower-cases an address before it is stored or
// looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount inserts a new account. ID and CreatedAt are filled in when
// empty. A second account with the same email fails with ErrDuplicateEmail.
func (db *DB) CreateAccount(ctx context.Context, acc *models.Account) error {
	return createAccount(ctx, db, acc)
}

// FindByEmail returns the account registered with email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return findAccount(ctx, db, "email = ?", NormalizeEmail(email))
}

// FindByID returns the account with the given id.
func (db *DB) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return findAccount(ctx, db, "id = ?", id)
}

// SetBalance overwrites the stored balance. Ledger code never calls this
// directly; it exists for administrative corrections.
func (db *DB) SetBalance(ctx context.Context, id string, credits int64) error {
	return setBalance(ctx, db, id, credits)
}

// TouchLastLogin records a successful login.
func (db *DB) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := db.ExecContext(ctx,
		"UPDATE accounts SET last_login = ? WHERE id = ?",
		at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return expectRow(result)
}

// AppendTransaction appends an entry to the transaction log.
func (db *DB) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	return appendTransaction(ctx, db, t)
}

// AppendUsageRecord appends an entry to the usage log.
func (db *DB) AppendUsageRecord(ctx context.Context, r *models.UsageRecord) error {
	return appendUsageRecord(ctx, db, r)
}

// ListTransactions returns the most recent transactions of an account.
func (db *DB) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, account_id, kind, delta, amount_paid, payment_ref, status, timestamp
		FROM transactions
		WHERE account_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, accountID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var amount sql.NullFloat64
		var ref sql.NullString

		err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.Kind,
			&t.Delta,
			&amount,
			&ref,
			&t.Status,
			&t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		t.AmountPaid = amount.Float64
		t.PaymentRef = ref.String
		txns = append(txns, t)
	}

	return txns, rows.Err()
}

// ListUsageRecords returns the most recent usage records of an account.
func (db *DB) ListUsageRecords(ctx context.Context, accountID string, limit int) ([]models.UsageRecord, error) {
	query := `
		SELECT id, account_id, characters_typed, credits_used, session_id, transaction_id, timestamp
		FROM usage_records
		WHERE account_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, accountID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var sessID sql.NullString

		err := rows.Scan(
			&r.ID,
			&r.AccountID,
			&r.CharactersTyped,
			&r.CreditsUsed,
			&sessID,
			&r.TransactionID,
			&r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}

		r.SessionID = sessID.String
		records = append(records, r)
	}

	return records, rows.Err()
}

// AggregateUsage sums the usage records of an account.
func (db *DB) AggregateUsage(ctx context.Context, accountID string) (models.UsageStats, error) {
	query := `
		SELECT
			COALESCE(SUM(characters_typed), 0),
			COALESCE(SUM(credits_used), 0),
			COUNT(*)
		FROM usage_records
		WHERE account_id = ?
	`

	var stats models.UsageStats
	err := db.QueryRowContext(ctx, query, accountID).Scan(
		&stats.TotalCharacters,
		&stats.TotalCreditsUsed,
		&stats.SessionCount,
	)
	if err != nil {
		return models.UsageStats{}, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return stats, nil
}

// DailyUsage returns per-day usage totals for the last days days. Days
// without usage are omitted; models.FillDays expands them.
func (db *DB) DailyUsage(ctx context.Context, accountID string, days int) ([]models.DailyUsage, error) {
	query := `
		SELECT
			date(timestamp) as day,
			COALESCE(SUM(characters_typed), 0),
			COALESCE(SUM(credits_used), 0),
			COUNT(*)
		FROM usage_records
		WHERE account_id = ? AND timestamp >= datetime('now', ?)
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := db.QueryContext(ctx, query, accountID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.DailyUsage
	for rows.Next() {
		var d models.DailyUsage
		var day string

		if err := rows.Scan(&day, &d.Characters, &d.Credits, &d.Sessions); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}

		d.Day, err = time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse day %q: %w", day, err)
		}
		out = append(out, d)
	}

	return out, rows.Err()
}

// SumCompletedDeltas returns the sum of all completed transaction deltas of
// an account.
func (db *DB) SumCompletedDeltas(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(delta), 0) FROM transactions WHERE account_id = ? AND status = 'completed'",
		accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

// CountUnpairedUsage counts usage records without a matching usage
// transaction plus completed usage transactions without a usage record.
func (db *DB) CountUnpairedUsage(ctx context.Context, accountID string) (int64, error) {
	query := `
		SELECT
			(SELECT COUNT(*)
			 FROM usage_records u
			 LEFT JOIN transactions t ON t.id = u.transaction_id
			 WHERE u.account_id = ?
			   AND (t.id IS NULL OR t.kind != 'usage' OR t.delta != -u.credits_used))
			+
			(SELECT COUNT(*)
			 FROM transactions t
			 LEFT JOIN usage_records u ON u.transaction_id = t.id
			 WHERE t.account_id = ? AND t.kind = 'usage' AND t.status = 'completed'
			   AND u.id IS NULL)
	`

	var n int64
	if err := db.QueryRowContext(ctx, query, accountID, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unpaired usage: %w", err)
	}
	return n, nil
}

func createAccount(ctx context.Context, q querier, acc *models.Account) error {
	acc.Email = NormalizeEmail(acc.Email)
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, credits, created_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		acc.ID,
		acc.Email,
		acc.PasswordHash,
		acc.Credits,
		acc.CreatedAt.UTC().Format(timeLayout),
		acc.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err, "accounts.email") {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, acc.Email)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func findAccount(ctx context.Context, q querier, where string, arg any) (*models.Account, error) {
	query := `
		SELECT id, email, password_hash, credits, created_at, last_login, is_active
		FROM accounts
		WHERE ` + where

	var acc models.Account
	var lastLogin sql.NullTime

	err := q.QueryRowContext(ctx, query, arg).Scan(
		&acc.ID,
		&acc.Email,
		&acc.PasswordHash,
		&acc.Credits,
		&acc.CreatedAt,
		&lastLogin,
		&acc.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	if lastLogin.Valid {
		acc.LastLogin = lastLogin.Time
	}
	return &acc, nil
}

func setBalance(ctx context.Context, q querier, id string, credits int64) error {
	result, err := q.ExecContext(ctx, "UPDATE accounts SET credits = ? WHERE id = ?", credits, id)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return expectRow(result)
}

func appendTransaction(ctx context.Context, q querier, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = models.StatusCompleted
	}

	query := `
		INSERT INTO transactions (
			id, account_id, kind, delta, amount_paid, payment_ref, status, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		t.ID,
		t.AccountID,
		string(t.Kind),
		t.Delta,
		nullFloat(t.AmountPaid),
		nullString(t.PaymentRef),
		string(t.Status),
		t.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err, "transactions.payment_ref") {
			return fmt.Errorf("%w: %s", ErrDuplicateRef, t.PaymentRef)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func appendUsageRecord(ctx context.Context, q querier, r *models.UsageRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO usage_records (
			id, account_id, characters_typed, credits_used, session_id, transaction_id, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		r.ID,
		r.AccountID,
		r.CharactersTyped,
		r.CreditsUsed,
		nullString(r.SessionID),
		r.TransactionID,
		r.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on
// the named table column.
func isUniqueViolation(err error, column string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// The low byte is the primary result code, extended codes add the kind
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), column)
}

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// nullString converts an empty string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullFloat converts a zero amount to sql.NullFloat64.
func nullFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
