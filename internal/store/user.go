package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

// NewUser holds the fields for creating an account. Balances start at zero.
type NewUser struct {
	CompanyID    *int64
	Email        string
	Name         string
	Role         model.Role
	Department   string
	PasswordHash string
}

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var companyID sql.NullInt64
	err := sc.Scan(&u.ID, &companyID, &u.Email, &u.Name, &u.Role, &u.Department,
		&u.PasswordHash, &u.RegularBalance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.CompanyID = int64Ptr(companyID)
	return &u, nil
}

const userCols = `id, company_id, email, name, role, department, password_hash, regular_balance, created_at, updated_at`

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) Create(ctx context.Context, nu NewUser) (*model.User, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (company_id, email, name, role, department, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(nu.CompanyID), NormalizeEmail(nu.Email), nu.Name, nu.Role, nu.Department, nu.PasswordHash, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// FirstSuperadmin returns the oldest superadmin, the treasury that approved
// coin requests are paid from.
func (s *UserStore) FirstSuperadmin(ctx context.Context) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE role = ? ORDER BY id ASC LIMIT 1`, model.RoleSuperadmin))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get superadmin: %w", err)
	}
	return u, nil
}

// ListEmployees returns the employees of a company, optionally limited to one
// department.
func (s *UserStore) ListEmployees(ctx context.Context, companyID int64, department string) ([]model.User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE company_id = ? AND role = ?`
	args := []any{companyID, model.RoleEmployee}
	if department != "" {
		query += ` AND department = ?`
		args = append(args, department)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListByIDs returns the users with the given ids, ordered by id. Unknown ids
// are skipped.
func (s *UserStore) ListByIDs(ctx context.Context, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id IN (`+placeholders+`) ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users by id: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *UserStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Credit adds amount to the user's regular balance.
func (s *UserStore) Credit(ctx context.Context, id, amount int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET regular_balance = regular_balance + ?, updated_at = ? WHERE id = ?`,
		amount, time.Now().UTC(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("credit user: %w", err)
	}
	if err := expectOne(result, "credit user"); err != nil {
		return 0, err
	}
	return s.Balance(ctx, id)
}

// Debit subtracts amount from the regular balance only if the balance covers
// it. It returns ErrConflict otherwise.
func (s *UserStore) Debit(ctx context.Context, id, amount int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET regular_balance = regular_balance - ?, updated_at = ?
		 WHERE id = ? AND regular_balance >= ?`,
		amount, time.Now().UTC(), id, amount,
	)
	if err != nil {
		return 0, fmt.Errorf("debit user: %w", err)
	}
	if err := expectOne(result, "debit user"); err != nil {
		return 0, err
	}
	return s.Balance(ctx, id)
}

func (s *UserStore) Balance(ctx context.Context, id int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT regular_balance FROM users WHERE id = ?`, id).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
