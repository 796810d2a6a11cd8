package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famcircle/famcircle/internal/wallet"
)

//go:embed schema.sql
var schemaSQL string

// pgCheckViolation is the SQLSTATE raised when a balance update trips the
// CHECK (balance_cents >= 0) constraint.
const pgCheckViolation = "23514"

const defaultListLimit = 50

// PostgresStore persists wallets and ledgers in PostgreSQL. Each mutating
// method runs inside a single transaction with FOR UPDATE row locks, taken
// in a stable order to avoid deadlocks.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the wallet and ledger tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const selectFamilyWallet = `SELECT id, family_id, balance_cents, created_at, updated_at
        FROM family_wallets WHERE family_id = $1`

// GetOrCreateFamilyWallet returns the family's pooled wallet, inserting a
// zero-balance row on first use. A concurrent creator wins the unique
// constraint race; either way the row is re-read.
func (s *PostgresStore) GetOrCreateFamilyWallet(ctx context.Context, familyID int64) (wallet.FamilyWallet, error) {
	w, err := scanFamilyWallet(s.db.QueryRow(ctx, selectFamilyWallet, familyID))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return wallet.FamilyWallet{}, err
	}

	if _, err := s.db.Exec(ctx, `INSERT INTO family_wallets (family_id) VALUES ($1)
        ON CONFLICT (family_id) DO NOTHING`, familyID); err != nil {
		return wallet.FamilyWallet{}, err
	}
	return scanFamilyWallet(s.db.QueryRow(ctx, selectFamilyWallet, familyID))
}

const selectUserWallet = `SELECT id, family_id, user_id, balance_cents, created_at, updated_at
        FROM user_wallets WHERE family_id = $1 AND user_id = $2`

// GetOrCreateUserWallet returns the member's wallet within the family,
// inserting a zero-balance row on first use.
func (s *PostgresStore) GetOrCreateUserWallet(ctx context.Context, familyID int64, userID string) (wallet.UserWallet, error) {
	w, err := scanUserWallet(s.db.QueryRow(ctx, selectUserWallet, familyID, userID))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return wallet.UserWallet{}, err
	}

	if _, err := s.db.Exec(ctx, `INSERT INTO user_wallets (family_id, user_id) VALUES ($1, $2)
        ON CONFLICT (family_id, user_id) DO NOTHING`, familyID, userID); err != nil {
		return wallet.UserWallet{}, err
	}
	return scanUserWallet(s.db.QueryRow(ctx, selectUserWallet, familyID, userID))
}

// CreateLedger validates and persists a balanced ledger with its entries.
// Referenced wallet rows are locked first, sufficiency of every internal
// debit is asserted under those locks, and a COMPLETED ledger is applied
// before the transaction commits.
func (s *PostgresStore) CreateLedger(ctx context.Context, input CreateLedger) (Ledger, error) {
	if err := input.validate(); err != nil {
		return Ledger{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Ledger{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	famBalances, userBalances, err := lockEntryWallets(ctx, tx, input.Entries)
	if err != nil {
		return Ledger{}, err
	}

	famDebits := make(map[int64]int64)
	userDebits := make(map[int64]int64)
	for _, e := range input.Entries {
		if e.Direction != Debit {
			continue
		}
		switch e.AccountType {
		case AccountFamily:
			famDebits[e.FamilyWalletID] += e.AmountCents
		case AccountUser:
			userDebits[e.UserWalletID] += e.AmountCents
		}
	}
	for _, id := range sortedKeys(famDebits) {
		if err := AssertSufficientBalance(famBalances[id], famDebits[id], input.Type.debitContext()); err != nil {
			return Ledger{}, err
		}
	}
	for _, id := range sortedKeys(userDebits) {
		if err := AssertSufficientBalance(userBalances[id], userDebits[id], input.Type.debitContext()); err != nil {
			return Ledger{}, err
		}
	}

	ledID := uuid.New()
	now := time.Now().UTC()
	var metadata any
	if len(input.Metadata) > 0 {
		metadata = input.Metadata
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ledgers
        (id, family_id, type, status, amount_cents, currency, description,
         reference_type, reference_id, metadata, initiated_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		ledID, input.FamilyID, input.Type, input.Status, input.AmountCents,
		input.currencyOrDefault(), input.Description, input.ReferenceType,
		input.ReferenceID, metadata, input.InitiatedBy, now); err != nil {
		return Ledger{}, err
	}

	for i, e := range input.Entries {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries
            (id, ledger_id, ord, account_type, direction, amount_cents,
             family_wallet_id, user_wallet_id, external_account_id, memo)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), ledID, i, e.AccountType, e.Direction, e.AmountCents,
			nullInt64(e.FamilyWalletID), nullInt64(e.UserWalletID),
			nullString(e.ExternalAccountID), e.Memo); err != nil {
			return Ledger{}, err
		}
	}

	if input.Status == StatusCompleted {
		if err := applyEntriesTx(ctx, tx, ledID); err != nil {
			return Ledger{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Ledger{}, err
	}

	return s.GetLedger(ctx, ledID.String())
}

// ApplyEntries applies any not-yet-applied entries of the ledger. Entries of
// a FAILED ledger are never applied; already-applied entries are skipped.
func (s *PostgresStore) ApplyEntries(ctx context.Context, ledgerID string) error {
	lid, err := parseLedgerID(ledgerID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	status, err := lockLedgerStatus(ctx, tx, lid)
	if err != nil {
		return err
	}
	if status == StatusFailed {
		return nil
	}
	if err := applyEntriesTx(ctx, tx, lid); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkStatus drives the PENDING -> COMPLETED/FAILED transition. Completing
// applies the pending entries in the same transaction; failing stamps
// unapplied entries with an explanatory memo.
func (s *PostgresStore) MarkStatus(ctx context.Context, ledgerID string, status Status) (Ledger, error) {
	lid, err := parseLedgerID(ledgerID)
	if err != nil {
		return Ledger{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Ledger{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := lockLedgerStatus(ctx, tx, lid)
	if err != nil {
		return Ledger{}, err
	}

	noop, err := checkTransition(current, status)
	if err != nil {
		return Ledger{}, err
	}
	if !noop {
		if _, err := tx.Exec(ctx, `UPDATE ledgers SET status = $2, updated_at = now()
            WHERE id = $1`, lid, status); err != nil {
			return Ledger{}, err
		}
		switch status {
		case StatusCompleted:
			if err := applyEntriesTx(ctx, tx, lid); err != nil {
				return Ledger{}, err
			}
		case StatusFailed:
			if _, err := tx.Exec(ctx, `UPDATE ledger_entries
                SET memo = CASE WHEN memo = '' THEN $2 ELSE memo || ' (' || $2 || ')' END
                WHERE ledger_id = $1 AND applied = FALSE`, lid, failedMemo); err != nil {
				return Ledger{}, err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return Ledger{}, err
		}
	}

	return s.GetLedger(ctx, ledgerID)
}

// SetExternalID records the settlement rail's transfer handle on a ledger.
func (s *PostgresStore) SetExternalID(ctx context.Context, ledgerID, externalID string) error {
	lid, err := parseLedgerID(ledgerID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `UPDATE ledgers SET external_id = $2, updated_at = now()
        WHERE id = $1`, lid, externalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
	}
	return nil
}

// GetLedger fetches a ledger header with its entries in posting order.
func (s *PostgresStore) GetLedger(ctx context.Context, ledgerID string) (Ledger, error) {
	lid, err := parseLedgerID(ledgerID)
	if err != nil {
		return Ledger{}, err
	}

	row := s.db.QueryRow(ctx, `SELECT id, family_id, type, status, amount_cents, currency,
        description, reference_type, reference_id, external_id, metadata, initiated_by,
        created_at, updated_at FROM ledgers WHERE id = $1`, lid)
	led, err := scanLedger(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ledger{}, fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
		}
		return Ledger{}, err
	}

	rows, err := s.db.Query(ctx, `SELECT id, ledger_id, account_type, direction, amount_cents,
        family_wallet_id, user_wallet_id, external_account_id, memo, applied
        FROM ledger_entries WHERE ledger_id = $1 ORDER BY ord`, lid)
	if err != nil {
		return Ledger{}, err
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return Ledger{}, err
		}
		led.Entries = append(led.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return Ledger{}, err
	}
	return led, nil
}

// ListLedgers returns the family's ledger headers, newest first.
func (s *PostgresStore) ListLedgers(ctx context.Context, familyID int64, limit int) ([]Ledger, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.Query(ctx, `SELECT id, family_id, type, status, amount_cents, currency,
        description, reference_type, reference_id, external_id, metadata, initiated_by,
        created_at, updated_at FROM ledgers WHERE family_id = $1
        ORDER BY created_at DESC, id LIMIT $2`, familyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ledger
	for rows.Next() {
		led, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, led)
	}
	return out, rows.Err()
}

// applyEntriesTx applies every unapplied entry of the ledger inside the
// caller's transaction: +amount for credits, -amount for debits, EXTERNAL
// legs untouched, and each processed entry flagged applied. An update that
// would overdraw a wallet trips the CHECK constraint and aborts the
// transaction.
func applyEntriesTx(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID) error {
	rows, err := tx.Query(ctx, `SELECT id, account_type, direction, amount_cents,
        family_wallet_id, user_wallet_id FROM ledger_entries
        WHERE ledger_id = $1 AND applied = FALSE ORDER BY ord`, ledgerID)
	if err != nil {
		return err
	}

	type pending struct {
		id          uuid.UUID
		accountType AccountType
		delta       int64
		familyID    *int64
		userID      *int64
	}
	var entries []pending
	for rows.Next() {
		var p pending
		var direction Direction
		var amount int64
		if err := rows.Scan(&p.id, &p.accountType, &direction, &amount, &p.familyID, &p.userID); err != nil {
			rows.Close()
			return err
		}
		p.delta = amount
		if direction == Debit {
			p.delta = -amount
		}
		entries = append(entries, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	applied := make([]uuid.UUID, 0, len(entries))
	for _, p := range entries {
		switch p.accountType {
		case AccountFamily:
			tag, err := tx.Exec(ctx, `UPDATE family_wallets
                SET balance_cents = balance_cents + $1, updated_at = now()
                WHERE id = $2`, p.delta, p.familyID)
			if err != nil {
				return mapOverdraw(err, ledgerID)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: family wallet %d", ErrNotFound, *p.familyID)
			}
		case AccountUser:
			tag, err := tx.Exec(ctx, `UPDATE user_wallets
                SET balance_cents = balance_cents + $1, updated_at = now()
                WHERE id = $2`, p.delta, p.userID)
			if err != nil {
				return mapOverdraw(err, ledgerID)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: user wallet %d", ErrNotFound, *p.userID)
			}
		}
		applied = append(applied, p.id)
	}

	if len(applied) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE ledger_entries SET applied = TRUE
            WHERE id = ANY($1)`, applied); err != nil {
			return err
		}
	}
	return nil
}

// lockEntryWallets takes FOR UPDATE locks on every wallet row referenced by
// the entries, family wallets first, each group in ascending id order so
// concurrent ledgers cannot deadlock. It returns the locked balances.
func lockEntryWallets(ctx context.Context, tx pgx.Tx, entries []EntryInput) (map[int64]int64, map[int64]int64, error) {
	famIDs := make(map[int64]struct{})
	userIDs := make(map[int64]struct{})
	for _, e := range entries {
		switch e.AccountType {
		case AccountFamily:
			famIDs[e.FamilyWalletID] = struct{}{}
		case AccountUser:
			userIDs[e.UserWalletID] = struct{}{}
		}
	}

	famBalances := make(map[int64]int64, len(famIDs))
	for _, id := range sortedSet(famIDs) {
		var balance int64
		err := tx.QueryRow(ctx, `SELECT balance_cents FROM family_wallets
            WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, fmt.Errorf("%w: family wallet %d", ErrNotFound, id)
			}
			return nil, nil, err
		}
		famBalances[id] = balance
	}

	userBalances := make(map[int64]int64, len(userIDs))
	for _, id := range sortedSet(userIDs) {
		var balance int64
		err := tx.QueryRow(ctx, `SELECT balance_cents FROM user_wallets
            WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, fmt.Errorf("%w: user wallet %d", ErrNotFound, id)
			}
			return nil, nil, err
		}
		userBalances[id] = balance
	}

	return famBalances, userBalances, nil
}

func lockLedgerStatus(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID) (Status, error) {
	var status Status
	err := tx.QueryRow(ctx, `SELECT status FROM ledgers WHERE id = $1 FOR UPDATE`, ledgerID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
		}
		return "", err
	}
	return status, nil
}

func parseLedgerID(ledgerID string) (uuid.UUID, error) {
	lid, err := uuid.Parse(ledgerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
	}
	return lid, nil
}

func mapOverdraw(err error, ledgerID uuid.UUID) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return fmt.Errorf("%w: applying ledger %s would overdraw a wallet", ErrInsufficientBalance, ledgerID)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFamilyWallet(row rowScanner) (wallet.FamilyWallet, error) {
	var w wallet.FamilyWallet
	if err := row.Scan(&w.ID, &w.FamilyID, &w.BalanceCents, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return wallet.FamilyWallet{}, err
	}
	return w, nil
}

func scanUserWallet(row rowScanner) (wallet.UserWallet, error) {
	var w wallet.UserWallet
	if err := row.Scan(&w.ID, &w.FamilyID, &w.UserID, &w.BalanceCents, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return wallet.UserWallet{}, err
	}
	return w, nil
}

func scanLedger(row rowScanner) (Ledger, error) {
	var led Ledger
	var id uuid.UUID
	if err := row.Scan(&id, &led.FamilyID, &led.Type, &led.Status, &led.AmountCents,
		&led.Currency, &led.Description, &led.ReferenceType, &led.ReferenceID,
		&led.ExternalID, &led.Metadata, &led.InitiatedBy, &led.CreatedAt, &led.UpdatedAt); err != nil {
		return Ledger{}, err
	}
	led.ID = id.String()
	led.CreatedAt = led.CreatedAt.UTC()
	led.UpdatedAt = led.UpdatedAt.UTC()
	return led, nil
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var id, ledgerID uuid.UUID
	var familyWalletID, userWalletID *int64
	var externalAccountID *string
	if err := row.Scan(&id, &ledgerID, &e.AccountType, &e.Direction, &e.AmountCents,
		&familyWalletID, &userWalletID, &externalAccountID, &e.Memo, &e.Applied); err != nil {
		return Entry{}, err
	}
	e.ID = id.String()
	e.LedgerID = ledgerID.String()
	if familyWalletID != nil {
		e.FamilyWalletID = *familyWalletID
	}
	if userWalletID != nil {
		e.UserWalletID = *userWalletID
	}
	if externalAccountID != nil {
		e.ExternalAccountID = *externalAccountID
	}
	return e, nil
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func sortedKeys(m map[int64]int64) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedSet(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
