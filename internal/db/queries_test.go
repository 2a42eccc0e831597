package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codepaste/typer/internal/models"
)

func createTestAccount(t *testing.T, db *DB, email string, credits int64) *models.Account {
	t.Helper()
	acc := &models.Account{
		Email:        email,
		PasswordHash: "hash",
		Credits:      credits,
		IsActive:     true,
	}
	if err := db.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

func TestCreateAccount(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	acc := createTestAccount(t, db, "  Test@Example.com ", 2000)

	if acc.ID == "" {
		t.Error("CreateAccount() should set ID")
	}
	if acc.Email != "test@example.com" {
		t.Errorf("Email = %q, want normalized address", acc.Email)
	}
	if acc.CreatedAt.IsZero() {
		t.Error("CreateAccount() should set CreatedAt")
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	createTestAccount(t, db, "dup@example.com", 0)

	err := db.CreateAccount(context.Background(), &models.Account{
		Email:        "DUP@example.com",
		PasswordHash: "other",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("CreateAccount() error = %v, want ErrDuplicateEmail", err)
	}
}

func TestFindByEmail(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	created := createTestAccount(t, db, "find@example.com", 150)

	acc, err := db.FindByEmail(ctx, "FIND@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() failed: %v", err)
	}
	if acc.ID != created.ID {
		t.Errorf("ID = %q, want %q", acc.ID, created.ID)
	}
	if acc.Credits != 150 {
		t.Errorf("Credits = %d, want 150", acc.Credits)
	}
	if !acc.IsActive {
		t.Error("IsActive should be true")
	}
	if !acc.LastLogin.IsZero() {
		t.Error("LastLogin should be zero before any login")
	}

	if _, err := db.FindByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByEmail(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFindByID(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	created := createTestAccount(t, db, "id@example.com", 10)

	acc, err := db.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if acc.Email != "id@example.com" {
		t.Errorf("Email = %q", acc.Email)
	}

	if _, err := db.FindByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID(nope) error = %v, want ErrNotFound", err)
	}
}

func TestSetBalance(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "set@example.com", 10)

	if err := db.SetBalance(ctx, acc.ID, 75); err != nil {
		t.Fatalf("SetBalance() failed: %v", err)
	}
	got, _ := db.FindByID(ctx, acc.ID)
	if got.Credits != 75 {
		t.Errorf("Credits = %d, want 75", got.Credits)
	}

	if err := db.SetBalance(ctx, acc.ID, -1); err == nil {
		t.Error("SetBalance() with a negative balance should violate the CHECK constraint")
	}
	if err := db.SetBalance(ctx, "nope", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetBalance(nope) error = %v, want ErrNotFound", err)
	}
}

func TestTouchLastLogin(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "login@example.com", 0)
	at := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)

	if err := db.TouchLastLogin(ctx, acc.ID, at); err != nil {
		t.Fatalf("TouchLastLogin() failed: %v", err)
	}

	got, err := db.FindByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if !got.LastLogin.Equal(at) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, at)
	}
}

func TestAppendAndListTransactions(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "tx@example.com", 0)
	base := time.Now().UTC().Add(-time.Hour)

	entries := []*models.Transaction{
		{AccountID: acc.ID, Kind: models.KindSignupBonus, Delta: 2000, Timestamp: base},
		{AccountID: acc.ID, Kind: models.KindPurchase, Delta: 1000, AmountPaid: 10, PaymentRef: "CP-1", Timestamp: base.Add(time.Minute)},
		{AccountID: acc.ID, Kind: models.KindUsage, Delta: -42, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := db.AppendTransaction(ctx, e); err != nil {
			t.Fatalf("AppendTransaction() failed: %v", err)
		}
		if e.ID == "" {
			t.Error("AppendTransaction() should set ID")
		}
		if e.Status != models.StatusCompleted {
			t.Errorf("Status = %q, want completed", e.Status)
		}
	}

	txns, err := db.ListTransactions(ctx, acc.ID, 0)
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("len = %d, want 3", len(txns))
	}
	if txns[0].Kind != models.KindUsage {
		t.Errorf("newest kind = %q, want usage", txns[0].Kind)
	}
	if txns[1].PaymentRef != "CP-1" || txns[1].AmountPaid != 10 {
		t.Errorf("purchase = %+v", txns[1])
	}

	limited, err := db.ListTransactions(ctx, acc.ID, 2)
	if err != nil {
		t.Fatalf("ListTransactions(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len = %d, want 2", len(limited))
	}

	sum, err := db.SumCompletedDeltas(ctx, acc.ID)
	if err != nil {
		t.Fatalf("SumCompletedDeltas() failed: %v", err)
	}
	if sum != 2958 {
		t.Errorf("sum = %d, want 2958", sum)
	}
}

func TestAppendTransaction_DuplicatePaymentRef(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "ref@example.com", 0)
	first := &models.Transaction{AccountID: acc.ID, Kind: models.KindPurchase, Delta: 1000, PaymentRef: "CP-ABC"}
	if err := db.AppendTransaction(ctx, first); err != nil {
		t.Fatalf("AppendTransaction() failed: %v", err)
	}

	second := &models.Transaction{AccountID: acc.ID, Kind: models.KindPurchase, Delta: 1000, PaymentRef: "CP-ABC"}
	if err := db.AppendTransaction(ctx, second); !errors.Is(err, ErrDuplicateRef) {
		t.Errorf("AppendTransaction() error = %v, want ErrDuplicateRef", err)
	}

	// Refunds may quote the purchase reference
	refund := &models.Transaction{AccountID: acc.ID, Kind: models.KindRefund, Delta: 5, PaymentRef: "CP-ABC"}
	if err := db.AppendTransaction(ctx, refund); err != nil {
		t.Errorf("refund with purchase ref failed: %v", err)
	}
}

func TestAppendTransaction_InvalidKind(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	acc := createTestAccount(t, db, "kind@example.com", 0)
	err := db.AppendTransaction(context.Background(), &models.Transaction{
		AccountID: acc.ID,
		Kind:      models.TransactionKind("gift"),
		Delta:     1,
	})
	if err == nil {
		t.Error("AppendTransaction() should reject unknown kinds")
	}
}

func TestUsageRecords(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "usage@example.com", 0)

	for i, chars := range []int64{120, 30} {
		txn := &models.Transaction{AccountID: acc.ID, Kind: models.KindUsage, Delta: -chars}
		if err := db.AppendTransaction(ctx, txn); err != nil {
			t.Fatalf("AppendTransaction() failed: %v", err)
		}
		rec := &models.UsageRecord{
			AccountID:       acc.ID,
			CharactersTyped: chars,
			CreditsUsed:     chars,
			SessionID:       []string{"s1", ""}[i],
			TransactionID:   txn.ID,
		}
		if err := db.AppendUsageRecord(ctx, rec); err != nil {
			t.Fatalf("AppendUsageRecord() failed: %v", err)
		}
	}

	records, err := db.ListUsageRecords(ctx, acc.ID, 10)
	if err != nil {
		t.Fatalf("ListUsageRecords() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}

	stats, err := db.AggregateUsage(ctx, acc.ID)
	if err != nil {
		t.Fatalf("AggregateUsage() failed: %v", err)
	}
	want := models.UsageStats{TotalCharacters: 150, TotalCreditsUsed: 150, SessionCount: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	daily, err := db.DailyUsage(ctx, acc.ID, 7)
	if err != nil {
		t.Fatalf("DailyUsage() failed: %v", err)
	}
	if len(daily) != 1 || daily[0].Characters != 150 || daily[0].Sessions != 2 {
		t.Errorf("daily = %+v", daily)
	}

	unpaired, err := db.CountUnpairedUsage(ctx, acc.ID)
	if err != nil {
		t.Fatalf("CountUnpairedUsage() failed: %v", err)
	}
	if unpaired != 0 {
		t.Errorf("unpaired = %d, want 0", unpaired)
	}
}

func TestUsageRecord_OneRecordPerTransaction(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "pair@example.com", 0)
	txn := &models.Transaction{AccountID: acc.ID, Kind: models.KindUsage, Delta: -5}
	if err := db.AppendTransaction(ctx, txn); err != nil {
		t.Fatalf("AppendTransaction() failed: %v", err)
	}

	rec := &models.UsageRecord{AccountID: acc.ID, CharactersTyped: 5, CreditsUsed: 5, TransactionID: txn.ID}
	if err := db.AppendUsageRecord(ctx, rec); err != nil {
		t.Fatalf("AppendUsageRecord() failed: %v", err)
	}

	dup := &models.UsageRecord{AccountID: acc.ID, CharactersTyped: 5, CreditsUsed: 5, TransactionID: txn.ID}
	if err := db.AppendUsageRecord(ctx, dup); err == nil {
		t.Error("second record for the same transaction should fail")
	}

	orphan := &models.UsageRecord{AccountID: acc.ID, CharactersTyped: 1, CreditsUsed: 1, TransactionID: "missing"}
	if err := db.AppendUsageRecord(ctx, orphan); err == nil {
		t.Error("record referencing a missing transaction should fail")
	}
}

func TestCountUnpairedUsage(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "unpaired@example.com", 0)

	// usage transaction without a record
	if err := db.AppendTransaction(ctx, &models.Transaction{AccountID: acc.ID, Kind: models.KindUsage, Delta: -3}); err != nil {
		t.Fatalf("AppendTransaction() failed: %v", err)
	}

	// record whose delta does not match
	txn := &models.Transaction{AccountID: acc.ID, Kind: models.KindUsage, Delta: -9}
	if err := db.AppendTransaction(ctx, txn); err != nil {
		t.Fatalf("AppendTransaction() failed: %v", err)
	}
	rec := &models.UsageRecord{AccountID: acc.ID, CharactersTyped: 10, CreditsUsed: 10, TransactionID: txn.ID}
	if err := db.AppendUsageRecord(ctx, rec); err != nil {
		t.Fatalf("AppendUsageRecord() failed: %v", err)
	}

	n, err := db.CountUnpairedUsage(ctx, acc.ID)
	if err != nil {
		t.Fatalf("CountUnpairedUsage() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("unpaired = %d, want 2", n)
	}
}

func TestWithTx(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	acc := createTestAccount(t, db, "wtx@example.com", 100)

	t.Run("Commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *Tx) error {
			ok, err := tx.DebitBalance(ctx, acc.ID, 40)
			if err != nil {
				return err
			}
			if !ok {
				t.Error("DebitBalance(40) should apply")
			}
			return tx.AppendTransaction(ctx, &models.Transaction{AccountID: acc.ID, Kind: models.KindUsage, Delta: -40})
		})
		if err != nil {
			t.Fatalf("WithTx() failed: %v", err)
		}

		got, _ := db.FindByID(ctx, acc.ID)
		if got.Credits != 60 {
			t.Errorf("Credits = %d, want 60", got.Credits)
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *Tx) error {
			if err := tx.AddBalance(ctx, acc.ID, 500); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want boom", err)
		}

		got, _ := db.FindByID(ctx, acc.ID)
		if got.Credits != 60 {
			t.Errorf("Credits = %d after rollback, want 60", got.Credits)
		}
	})

	t.Run("InsufficientDebit", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *Tx) error {
			ok, err := tx.DebitBalance(ctx, acc.ID, 61)
			if err != nil {
				return err
			}
			if ok {
				t.Error("DebitBalance(61) should not apply to a balance of 60")
			}
			current, err := tx.FindByID(ctx, acc.ID)
			if err != nil {
				return err
			}
			if current.Credits != 60 {
				t.Errorf("Credits = %d, want 60", current.Credits)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithTx() failed: %v", err)
		}
	})

	t.Run("AddBalanceMissingAccount", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *Tx) error {
			return tx.AddBalance(ctx, "missing", 1)
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("AddBalance(missing) error = %v, want ErrNotFound", err)
		}
	})
}
