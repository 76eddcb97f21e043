package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type CompanyStore struct {
	db DBTX
}

func NewCompanyStore(db DBTX) *CompanyStore {
	return &CompanyStore{db: db}
}

const companyCols = `id, name, created_at`

func scanCompany(sc scanner) (*model.Company, error) {
	var c model.Company
	if err := sc.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CompanyStore) Create(ctx context.Context, name string) (*model.Company, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert company: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *CompanyStore) GetByID(ctx context.Context, id int64) (*model.Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyCols+` FROM companies WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

func (s *CompanyStore) GetByName(ctx context.Context, name string) (*model.Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx, `SELECT `+companyCols+` FROM companies WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company by name: %w", err)
	}
	return c, nil
}

func (s *CompanyStore) List(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+companyCols+` FROM companies ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}
