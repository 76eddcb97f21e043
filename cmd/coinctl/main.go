// Command coinctl runs one-off administrative tasks against a coinvault
// database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/catalog"
	"github.com/dukerupert/coinvault/internal/config"
	"github.com/dukerupert/coinvault/internal/database"
	"github.com/dukerupert/coinvault/internal/events"
	"github.com/dukerupert/coinvault/internal/logging"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/snapshot"
	"github.com/dukerupert/coinvault/internal/store"
	"github.com/dukerupert/coinvault/internal/treasury"
)

const usage = `usage: coinctl <command> [flags]

commands:
  seed      create a superadmin and import a YAML voucher catalog
  mint      mint coins into a user's regular balance
  snapshot  upload one encrypted database snapshot
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer db.Close()

	args := os.Args[2:]
	switch os.Args[1] {
	case "seed":
		err = runSeed(ctx, db, args, os.Stdout)
	case "mint":
		err = runMint(ctx, db, logger, args, os.Stdout)
	case "snapshot":
		err = runSnapshot(ctx, cfg, db, logger, os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func runSeed(ctx context.Context, db *sql.DB, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	catalogPath := fs.String("catalog", "", "YAML voucher catalog to import")
	adminEmail := fs.String("admin-email", "", "superadmin email")
	adminPassword := fs.String("admin-password", "", "superadmin password")
	adminName := fs.String("admin-name", "Platform Admin", "superadmin display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var createdBy *int64
	if *adminEmail != "" {
		admin, created, err := ensureSuperadmin(ctx, db, *adminEmail, *adminName, *adminPassword)
		if err != nil {
			return err
		}
		createdBy = &admin.ID
		if created {
			fmt.Fprintf(out, "created superadmin %s (id %d)\n", admin.Email, admin.ID)
		} else {
			fmt.Fprintf(out, "superadmin %s already exists\n", admin.Email)
		}
	}

	if *catalogPath != "" {
		f, err := os.Open(*catalogPath)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close()
		inputs, err := catalog.Parse(f)
		if err != nil {
			return err
		}
		res, err := catalog.Import(ctx, db, inputs, createdBy)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d vouchers (%d already present)\n", res.Created, res.Skipped)
	}
	return nil
}

func ensureSuperadmin(ctx context.Context, db *sql.DB, email, name, password string) (*model.User, bool, error) {
	users := store.NewUserStore(db)
	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.Role != model.RoleSuperadmin {
			return nil, false, fmt.Errorf("%s exists with role %s", email, existing.Role)
		}
		return existing, false, nil
	}
	if len(password) < 8 {
		return nil, false, errors.New("admin-password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	u, err := users.Create(ctx, store.NewUser{
		Email:        email,
		Name:         name,
		Role:         model.RoleSuperadmin,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func runMint(ctx context.Context, db *sql.DB, logger *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	email := fs.String("email", "", "recipient email")
	amount := fs.Int64("amount", 0, "coins to mint")
	description := fs.String("description", "minted via coinctl", "transaction description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *amount <= 0 {
		return errors.New("-email and a positive -amount are required")
	}

	users := store.NewUserStore(db)
	root, err := users.FirstSuperadmin(ctx)
	if err != nil {
		return err
	}
	if root == nil {
		return errors.New("no superadmin exists; run coinctl seed -admin-email first")
	}
	target, err := users.GetByEmail(ctx, *email)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("no user with email %s", strings.ToLower(*email))
	}

	actor := auth.AuthContext{UserID: root.ID, Role: root.Role}
	balance, err := treasury.New(db, events.Nop{}, logger).Mint(ctx, actor, target.ID, *amount, *description)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "minted %d coins to %s, balance now %d\n", *amount, target.Email, balance)
	return nil
}

func runSnapshot(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger, out io.Writer) error {
	m := snapshot.NewManager(cfg.S3, cfg.Snapshot, db, logger)
	rec, err := m.RunNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded snapshot %d to %s (%d bytes)\n", rec.ID, rec.S3Key, rec.SizeBytes)
	return nil
}
