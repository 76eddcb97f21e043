package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type TransactionStore struct {
	db DBTX
}

func NewTransactionStore(db DBTX) *TransactionStore {
	return &TransactionStore{db: db}
}

// TxFilter narrows List. Zero values match everything.
type TxFilter struct {
	Type   model.TransactionType
	Status model.TransactionStatus
	UserID int64
	Limit  int
}

const transactionCols = `id, type, status, amount, campaign_amount, regular_amount, from_user_id, to_user_id,
	campaign_id, voucher_id, reference, description, created_at, decided_at, decided_by`

func scanTransaction(sc scanner) (*model.Transaction, error) {
	var t model.Transaction
	var from, to, campaignID, voucherID, decidedBy sql.NullInt64
	var reference sql.NullString
	var decidedAt sql.NullTime
	err := sc.Scan(&t.ID, &t.Type, &t.Status, &t.Amount, &t.CampaignAmount, &t.RegularAmount, &from, &to,
		&campaignID, &voucherID, &reference, &t.Description, &t.CreatedAt, &decidedAt, &decidedBy)
	if err != nil {
		return nil, err
	}
	t.FromUserID = int64Ptr(from)
	t.ToUserID = int64Ptr(to)
	t.CampaignID = int64Ptr(campaignID)
	t.VoucherID = int64Ptr(voucherID)
	t.DecidedBy = int64Ptr(decidedBy)
	t.DecidedAt = timePtr(decidedAt)
	if reference.Valid {
		t.Reference = &reference.String
	}
	return &t, nil
}

// Create appends a ledger entry and returns it with its id.
func (s *TransactionStore) Create(ctx context.Context, t model.Transaction) (*model.Transaction, error) {
	if !t.Type.Valid() {
		return nil, fmt.Errorf("insert transaction: unknown type %q", t.Type)
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("insert transaction: unknown status %q", t.Status)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (type, status, amount, campaign_amount, regular_amount, from_user_id,
		     to_user_id, campaign_id, voucher_id, reference, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Type, t.Status, t.Amount, t.CampaignAmount, t.RegularAmount, nullInt64(t.FromUserID),
		nullInt64(t.ToUserID), nullInt64(t.CampaignID), nullInt64(t.VoucherID), nullString(t.Reference),
		t.Description, t.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TransactionStore) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *TransactionStore) GetByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE reference = ?`, reference))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return t, nil
}

// List returns transactions matching f, newest first.
func (s *TransactionStore) List(ctx context.Context, f TxFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionCols + ` FROM transactions WHERE 1 = 1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.UserID != 0 {
		query += ` AND (from_user_id = ? OR to_user_id = ?)`
		args = append(args, f.UserID, f.UserID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// Decide moves a pending transaction to status. It returns ErrConflict when
// the transaction is no longer pending.
func (s *TransactionStore) Decide(ctx context.Context, id int64, status model.TransactionStatus, decidedBy int64, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, decided_at = ?, decided_by = ? WHERE id = ? AND status = ?`,
		status, now.UTC(), decidedBy, id, model.TxPending,
	)
	if err != nil {
		return fmt.Errorf("decide transaction: %w", err)
	}
	return expectOne(result, "decide transaction")
}
