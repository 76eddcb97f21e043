package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type VoucherStore struct {
	db DBTX
}

func NewVoucherStore(db DBTX) *VoucherStore {
	return &VoucherStore{db: db}
}

// VoucherInput holds the editable voucher fields.
type VoucherInput struct {
	Title         string
	Description   string
	Category      string
	Brand         string
	CoinValue     int64
	Quantity      int64
	ExpiryDate    *time.Time
	IsActive      bool
	Featured      bool
	ImageURL      string
	OriginalPrice string
	CreatedBy     *int64
}

const voucherCols = `id, title, description, category, brand, coin_value, quantity, initial_quantity,
	expiry_date, is_active, featured, image_url, original_price, created_by, created_at, updated_at`

func scanVoucher(sc scanner) (*model.Voucher, error) {
	var v model.Voucher
	var expiry sql.NullTime
	var active, featured int
	var createdBy sql.NullInt64
	err := sc.Scan(&v.ID, &v.Title, &v.Description, &v.Category, &v.Brand, &v.CoinValue, &v.Quantity,
		&v.InitialQuantity, &expiry, &active, &featured, &v.ImageURL, &v.OriginalPrice, &createdBy,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.ExpiryDate = timePtr(expiry)
	v.IsActive = active != 0
	v.Featured = featured != 0
	v.CreatedBy = int64Ptr(createdBy)
	return &v, nil
}

func (s *VoucherStore) Create(ctx context.Context, in VoucherInput) (*model.Voucher, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO vouchers (title, description, category, brand, coin_value, quantity, initial_quantity,
		     expiry_date, is_active, featured, image_url, original_price, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Description, in.Category, in.Brand, in.CoinValue, in.Quantity, in.Quantity,
		nullTime(in.ExpiryDate), boolInt(in.IsActive), boolInt(in.Featured), in.ImageURL, in.OriginalPrice,
		nullInt64(in.CreatedBy), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert voucher: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *VoucherStore) GetByID(ctx context.Context, id int64) (*model.Voucher, error) {
	v, err := scanVoucher(s.db.QueryRowContext(ctx, `SELECT `+voucherCols+` FROM vouchers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	return v, nil
}

// List returns every voucher, newest first.
func (s *VoucherStore) List(ctx context.Context) ([]model.Voucher, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+voucherCols+` FROM vouchers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()
	return scanVouchers(rows)
}

// ListActive returns the purchasable catalog: active, in stock and not past
// its expiry date. Featured vouchers come first.
func (s *VoucherStore) ListActive(ctx context.Context, now time.Time) ([]model.Voucher, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+voucherCols+` FROM vouchers
		 WHERE is_active = 1 AND quantity > 0 AND (expiry_date IS NULL OR expiry_date >= ?)
		 ORDER BY featured DESC, title ASC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list active vouchers: %w", err)
	}
	defer rows.Close()
	return scanVouchers(rows)
}

// Update replaces the editable fields. Raising the quantity above the
// original stock raises initial_quantity with it.
func (s *VoucherStore) Update(ctx context.Context, id int64, in VoucherInput) (*model.Voucher, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vouchers SET title = ?, description = ?, category = ?, brand = ?, coin_value = ?,
		     quantity = ?, initial_quantity = MAX(initial_quantity, ?), expiry_date = ?, is_active = ?,
		     featured = ?, image_url = ?, original_price = ?, updated_at = ?
		 WHERE id = ?`,
		in.Title, in.Description, in.Category, in.Brand, in.CoinValue, in.Quantity, in.Quantity,
		nullTime(in.ExpiryDate), boolInt(in.IsActive), boolInt(in.Featured), in.ImageURL, in.OriginalPrice,
		time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update voucher: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *VoucherStore) Deactivate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vouchers SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate voucher: %w", err)
	}
	return nil
}

func (s *VoucherStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vouchers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	return nil
}

// Decrement takes qty units from an active voucher only if enough remain. It
// returns ErrConflict otherwise.
func (s *VoucherStore) Decrement(ctx context.Context, id, qty int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE vouchers SET quantity = quantity - ?, updated_at = ?
		 WHERE id = ? AND is_active = 1 AND quantity >= ?`,
		qty, time.Now().UTC(), id, qty,
	)
	if err != nil {
		return fmt.Errorf("decrement voucher: %w", err)
	}
	return expectOne(result, "decrement voucher")
}

func (s *VoucherStore) HasPurchases(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases WHERE voucher_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count voucher purchases: %w", err)
	}
	return n > 0, nil
}

func scanVouchers(rows *sql.Rows) ([]model.Voucher, error) {
	var vouchers []model.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, rows.Err()
}
