package settlement

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

// Purchases lists the voucher units userID currently holds.
func (e *Engine) Purchases(ctx context.Context, userID int64) ([]model.Purchase, error) {
	return store.NewPurchaseStore(e.db).ListByOwner(ctx, userID)
}

// UsePurchase marks a held purchase as redeemed at the merchant.
func (e *Engine) UsePurchase(ctx context.Context, actor auth.AuthContext, id string) (*model.Purchase, error) {
	var used *model.Purchase
	err := store.RunInTx(ctx, e.db, func(tx *sql.Tx) error {
		purchases := store.NewPurchaseStore(tx)
		p, err := purchases.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil || p.OwnerID != actor.UserID {
			return apperr.NotFound("purchase not found")
		}
		if err := purchases.MarkRedeemed(ctx, id, actor.UserID, e.now()); err != nil {
			return conflictAs(err, apperr.New(apperr.KindAlreadyRedeemed, "purchase has already been used"))
		}
		if err := store.NewActivityStore(tx).Log(ctx, actor.UserID, "use_purchase", id); err != nil {
			return err
		}
		used, err = purchases.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return used, nil
}

// AssignPurchase hands an owned purchase from a company admin to an employee
// of the same company.
func (e *Engine) AssignPurchase(ctx context.Context, actor auth.AuthContext, id string, toUserID int64) (*model.Purchase, error) {
	if toUserID == actor.UserID {
		return nil, apperr.Validation("cannot assign a purchase to yourself")
	}
	var assigned *model.Purchase
	err := store.RunInTx(ctx, e.db, func(tx *sql.Tx) error {
		purchases := store.NewPurchaseStore(tx)
		p, err := purchases.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil || p.OwnerID != actor.UserID {
			return apperr.NotFound("purchase not found")
		}
		target, err := store.NewUserStore(tx).GetByID(ctx, toUserID)
		if err != nil {
			return err
		}
		if target == nil || !target.InCompany(actor.CompanyID) {
			return apperr.NotFound("employee not found")
		}
		if err := purchases.Assign(ctx, id, actor.UserID, toUserID, e.now()); err != nil {
			return conflictAs(err, apperr.Validation("only unassigned, unused purchases can be assigned"))
		}
		if err := store.NewActivityStore(tx).Log(ctx, actor.UserID, "assign_purchase",
			fmt.Sprintf("purchase=%s to=%d", id, toUserID)); err != nil {
			return err
		}
		assigned, err = purchases.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("purchase assigned", "purchase_id", id, "from", actor.UserID, "to", toUserID)
	return assigned, nil
}
