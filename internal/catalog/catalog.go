// Package catalog reads voucher catalogs from YAML and imports them into the
// voucher inventory.
package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dukerupert/coinvault/internal/store"
)

// File is the on-disk catalog layout.
type File struct {
	Vouchers []Entry `yaml:"vouchers"`
}

type Entry struct {
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	Category      string `yaml:"category"`
	Brand         string `yaml:"brand"`
	CoinValue     int64  `yaml:"coin_value"`
	Quantity      int64  `yaml:"quantity"`
	ExpiryDate    string `yaml:"expiry_date"`
	Featured      bool   `yaml:"featured"`
	ImageURL      string `yaml:"image_url"`
	OriginalPrice string `yaml:"original_price"`
	Inactive      bool   `yaml:"inactive"`
}

// Parse decodes and validates a catalog. Expiry dates use YYYY-MM-DD.
func Parse(r io.Reader) ([]store.VoucherInput, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	inputs := make([]store.VoucherInput, 0, len(f.Vouchers))
	for i, e := range f.Vouchers {
		in, err := e.input()
		if err != nil {
			return nil, fmt.Errorf("voucher %d (%q): %w", i+1, e.Title, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (e Entry) input() (store.VoucherInput, error) {
	if strings.TrimSpace(e.Title) == "" {
		return store.VoucherInput{}, fmt.Errorf("title is required")
	}
	if e.CoinValue <= 0 {
		return store.VoucherInput{}, fmt.Errorf("coin_value must be positive")
	}
	if e.Quantity < 0 {
		return store.VoucherInput{}, fmt.Errorf("quantity must not be negative")
	}
	in := store.VoucherInput{
		Title:         strings.TrimSpace(e.Title),
		Description:   e.Description,
		Category:      e.Category,
		Brand:         e.Brand,
		CoinValue:     e.CoinValue,
		Quantity:      e.Quantity,
		IsActive:      !e.Inactive,
		Featured:      e.Featured,
		ImageURL:      e.ImageURL,
		OriginalPrice: e.OriginalPrice,
	}
	if e.ExpiryDate != "" {
		t, err := time.Parse(time.DateOnly, e.ExpiryDate)
		if err != nil {
			return store.VoucherInput{}, fmt.Errorf("expiry_date: %w", err)
		}
		// Vouchers stay valid through the whole expiry day.
		t = t.Add(24*time.Hour - time.Second)
		in.ExpiryDate = &t
	}
	return in, nil
}

// Result reports what Import did.
type Result struct {
	Created int
	Skipped int
}

// Import creates every voucher whose title is not already in the catalog.
func Import(ctx context.Context, db store.DBTX, inputs []store.VoucherInput, createdBy *int64) (Result, error) {
	vouchers := store.NewVoucherStore(db)
	existing, err := vouchers.List(ctx)
	if err != nil {
		return Result{}, err
	}
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[strings.ToLower(v.Title)] = true
	}

	var res Result
	for _, in := range inputs {
		key := strings.ToLower(in.Title)
		if seen[key] {
			res.Skipped++
			continue
		}
		in.CreatedBy = createdBy
		if _, err := vouchers.Create(ctx, in); err != nil {
			return res, fmt.Errorf("create voucher %q: %w", in.Title, err)
		}
		seen[key] = true
		res.Created++
	}
	return res, nil
}
