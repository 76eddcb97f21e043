package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type PurchaseStore struct {
	db DBTX
}

func NewPurchaseStore(db DBTX) *PurchaseStore {
	return &PurchaseStore{db: db}
}

const purchaseCols = `p.id, p.voucher_id, v.title, p.owner_id, p.purchased_by, p.transaction_id, p.status,
	p.purchased_at, p.assigned_at, p.redeemed_at`

const purchaseFrom = ` FROM purchases p JOIN vouchers v ON v.id = p.voucher_id`

func scanPurchase(sc scanner) (*model.Purchase, error) {
	var p model.Purchase
	var assignedAt, redeemedAt sql.NullTime
	err := sc.Scan(&p.ID, &p.VoucherID, &p.VoucherTitle, &p.OwnerID, &p.PurchasedBy, &p.TransactionID,
		&p.Status, &p.PurchasedAt, &assignedAt, &redeemedAt)
	if err != nil {
		return nil, err
	}
	p.AssignedAt = timePtr(assignedAt)
	p.RedeemedAt = timePtr(redeemedAt)
	return &p, nil
}

// Create inserts one purchased unit. The caller supplies the id.
func (s *PurchaseStore) Create(ctx context.Context, p model.Purchase) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (id, voucher_id, owner_id, purchased_by, transaction_id, status, purchased_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.VoucherID, p.OwnerID, p.PurchasedBy, p.TransactionID, model.PurchaseOwned, p.PurchasedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (s *PurchaseStore) GetByID(ctx context.Context, id string) (*model.Purchase, error) {
	p, err := scanPurchase(s.db.QueryRowContext(ctx, `SELECT `+purchaseCols+purchaseFrom+` WHERE p.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

// ListByOwner returns the purchases a user currently holds, newest first.
func (s *PurchaseStore) ListByOwner(ctx context.Context, ownerID int64) ([]model.Purchase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+purchaseCols+purchaseFrom+` WHERE p.owner_id = ? ORDER BY p.purchased_at DESC, p.id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

// MarkRedeemed marks an owned or assigned purchase as used. It returns
// ErrConflict when the purchase is not held by ownerID or is already used.
func (s *PurchaseStore) MarkRedeemed(ctx context.Context, id string, ownerID int64, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE purchases SET status = ?, redeemed_at = ?
		 WHERE id = ? AND owner_id = ? AND status IN (?, ?)`,
		model.PurchaseRedeemed, now.UTC(), id, ownerID, model.PurchaseOwned, model.PurchaseAssigned,
	)
	if err != nil {
		return fmt.Errorf("redeem purchase: %w", err)
	}
	return expectOne(result, "redeem purchase")
}

// Assign hands an owned purchase from ownerID to another user. It returns
// ErrConflict when the purchase is not an owned unit of ownerID.
func (s *PurchaseStore) Assign(ctx context.Context, id string, ownerID, toUserID int64, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE purchases SET owner_id = ?, status = ?, assigned_at = ?
		 WHERE id = ? AND owner_id = ? AND status = ?`,
		toUserID, model.PurchaseAssigned, now.UTC(), id, ownerID, model.PurchaseOwned,
	)
	if err != nil {
		return fmt.Errorf("assign purchase: %w", err)
	}
	return expectOne(result, "assign purchase")
}
