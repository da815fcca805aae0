// Package sqlite is the SQLite backend for accounts and FAQs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/faq"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DatabaseFile is the file name created inside the data directory.
const DatabaseFile = "quickfaqs.db"

var (
	_ entitlement.Store = (*Store)(nil)
	_ faq.Repository    = (*Store)(nil)
)

// Store implements entitlement.Store and faq.Repository on one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database in dir and applies the schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, DatabaseFile)
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; every conditional update is a single statement on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates tables and indexes that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id                 TEXT PRIMARY KEY,
		email              TEXT NOT NULL UNIQUE,
		name               TEXT NOT NULL DEFAULT '',
		password_hash      TEXT NOT NULL DEFAULT '',
		tier               TEXT NOT NULL DEFAULT 'free',
		credits            INTEGER NOT NULL DEFAULT 3 CHECK (credits >= 0),
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		tier_revision      INTEGER NOT NULL DEFAULT 0,
		created_at         INTEGER NOT NULL,
		updated_at         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_tier ON accounts(tier);
	CREATE INDEX IF NOT EXISTS idx_accounts_stripe_customer_id ON accounts(stripe_customer_id);

	CREATE TABLE IF NOT EXISTS faqs (
		id              TEXT PRIMARY KEY,
		account_id      TEXT NOT NULL,
		company_name    TEXT NOT NULL,
		product_details TEXT NOT NULL DEFAULT '',
		generated_faq   TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_faqs_account_created ON faqs(account_id, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	// Databases created before refunds were pinned to a tier revision.
	return s.ensureColumn(ctx, "accounts", "tier_revision", "INTEGER NOT NULL DEFAULT 0")
}

func (s *Store) ensureColumn(ctx context.Context, table, column, definition string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` `+definition); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

// Ping checks database connectivity (used by the readiness check).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const accountColumns = `id, email, name, password_hash, tier, credits,
		stripe_customer_id, tier_revision, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, a *entitlement.Account) error {
	if a == nil {
		return entitlement.ErrNilAccount
	}
	a.ApplyDefaults(s.now())
	if !a.Tier.Valid() {
		return entitlement.ErrInvalidTier
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Name, a.PasswordHash, string(a.Tier), a.Credits,
		a.StripeCustomerID, a.TierRevision, a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return entitlement.ErrAccountExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*entitlement.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID)
	return scanAccount(row)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*entitlement.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`,
		entitlement.NormalizeEmail(email))
	return scanAccount(row)
}

func (s *Store) GetAccountByStripeCustomer(ctx context.Context, customerID string) (*entitlement.Account, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, entitlement.ErrAccountNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+`
		FROM accounts WHERE stripe_customer_id = ?
		ORDER BY updated_at DESC LIMIT 1`, customerID)
	return scanAccount(row)
}

func (s *Store) SetTier(ctx context.Context, accountID string, tier entitlement.Tier, credits int64) (*entitlement.Account, error) {
	if !tier.Valid() || credits < 0 {
		return nil, entitlement.ErrInvalidTier
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts SET tier = ?, credits = ?, tier_revision = tier_revision + 1, updated_at = ?
		WHERE id = ?
		RETURNING `+accountColumns,
		string(tier), credits, s.now().Unix(), accountID)
	return scanAccount(row)
}

func (s *Store) LinkStripeCustomer(ctx context.Context, accountID, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID, s.now().Unix(), accountID)
	if err != nil {
		return fmt.Errorf("link stripe customer: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return entitlement.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DecrementCreditIfPositive(ctx context.Context, accountID string) (entitlement.Debit, error) {
	var debit entitlement.Debit
	err := s.db.QueryRowContext(ctx, `
		UPDATE accounts SET credits = credits - 1, updated_at = ?
		WHERE id = ? AND tier != ? AND credits > 0
		RETURNING credits, tier_revision`,
		s.now().Unix(), accountID, string(entitlement.TierPremium),
	).Scan(&debit.Remaining, &debit.Revision)
	if err == nil {
		return debit, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return entitlement.Debit{}, fmt.Errorf("decrement credit: %w", err)
	}
	remaining, err := s.classifyMiss(ctx, accountID, entitlement.ErrNoCreditsRemaining)
	return entitlement.Debit{Remaining: remaining}, err
}

func (s *Store) RestoreCredit(ctx context.Context, accountID string, revision int64) (int64, error) {
	var remaining int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE accounts SET credits = credits + 1, updated_at = ?
		WHERE id = ? AND tier != ? AND tier_revision = ?
		RETURNING credits`,
		s.now().Unix(), accountID, string(entitlement.TierPremium), revision,
	).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("restore credit: %w", err)
	}
	return s.classifyMiss(ctx, accountID, entitlement.ErrTierChanged)
}

// classifyMiss explains why a guarded update matched no row. It reads after
// the fact and never feeds a write.
func (s *Store) classifyMiss(ctx context.Context, accountID string, fallback error) (int64, error) {
	var tier string
	var credits int64
	err := s.db.QueryRowContext(ctx, `SELECT tier, credits FROM accounts WHERE id = ?`, accountID).
		Scan(&tier, &credits)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, entitlement.ErrAccountNotFound
	case err != nil:
		return 0, fmt.Errorf("read account: %w", err)
	case !entitlement.Tier(tier).Metered():
		return credits, entitlement.ErrUnmetered
	default:
		return 0, fallback
	}
}

func (s *Store) ListAccounts(ctx context.Context, opts entitlement.ListOptions) ([]*entitlement.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if opts.Tier != "" {
		query += ` WHERE tier = ?`
		args = append(args, string(opts.Tier))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*entitlement.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CountByTier returns a map of tier -> count.
func (s *Store) CountByTier(ctx context.Context) (map[entitlement.Tier]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM accounts GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("count accounts by tier: %w", err)
	}
	defer rows.Close()

	counts := make(map[entitlement.Tier]int)
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[entitlement.Tier(tier)] = count
	}
	return counts, rows.Err()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*entitlement.Account, error) {
	var a entitlement.Account
	var tier string
	var createdAt, updatedAt int64

	err := s.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &tier, &a.Credits,
		&a.StripeCustomerID, &a.TierRevision, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Tier = entitlement.Tier(tier)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
