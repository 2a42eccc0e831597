package db

import (
	"context"
	"fmt"
)

// FixLegacyTimeFormats fixes timestamp formats in the database.
// modernc.org/sqlite stores a bound time.Time with its String() layout,
// which SQLite's date functions cannot parse. Rows written that way are
// truncated to "YYYY-MM-DD HH:MM:SS".
func (db *DB) FixLegacyTimeFormats() error {
	queries := []string{
		`UPDATE transactions
		 SET timestamp = SUBSTR(timestamp, 1, 19)
		 WHERE length(timestamp) > 19 AND timestamp LIKE '% UTC'`,

		`UPDATE usage_records
		 SET timestamp = SUBSTR(timestamp, 1, 19)
		 WHERE length(timestamp) > 19 AND timestamp LIKE '% UTC'`,

		`UPDATE accounts
		 SET last_login = SUBSTR(last_login, 1, 19)
		 WHERE length(last_login) > 19 AND last_login LIKE '% UTC'`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("failed to fix legacy time formats: %w", err)
		}
	}

	return nil
}
