package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nyawka/phonixshop/internal/events"
	"github.com/nyawka/phonixshop/internal/ledger"
	"github.com/nyawka/phonixshop/internal/logging"
	"github.com/nyawka/phonixshop/internal/models"
	"github.com/nyawka/phonixshop/internal/sessions"
)

// ErrDeadCredential reports that an uploaded credential failed the
// liveness check and was not accepted into inventory.
var ErrDeadCredential = errors.New("credential is not live")

type OutcomeStatus int

const (
	Purchased OutcomeStatus = iota
	InsufficientBalance
	OutOfStock
	ProductNotFound
	SystemError
)

type Outcome struct {
	Status OutcomeStatus
	Unit   *models.Unit
}

// Engine orchestrates purchase and post-purchase account access over the
// Ledger and the credential store.
type Engine struct {
	Ledger  *ledger.Ledger
	Store   *sessions.Store
	Manager *sessions.Manager
	Events  *events.Producer
}

// Purchase runs the atomic buy flow and maps ledger errors onto terminal
// outcomes. Storage failures roll back inside the Ledger and come out as
// SystemError.
func (e *Engine) Purchase(ctx context.Context, userID int64, productID uint) Outcome {
	unit, err := e.Ledger.Purchase(ctx, userID, productID)
	switch {
	case err == nil:
		e.publish(ctx, events.TypeUnitSold, fmt.Sprintf("unit-%d", unit.ID), map[string]any{
			"unit_id":    unit.ID,
			"product_id": unit.ProductID,
			"buyer_id":   userID,
		})
		return Outcome{Status: Purchased, Unit: unit}
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return Outcome{Status: InsufficientBalance}
	case errors.Is(err, ledger.ErrOutOfStock):
		return Outcome{Status: OutOfStock}
	case errors.Is(err, ledger.ErrNotFound):
		return Outcome{Status: ProductNotFound}
	default:
		logging.FromContext(ctx).Error("purchase failed", "user_id", userID, "product_id", productID, "error", err)
		return Outcome{Status: SystemError}
	}
}

// IngestUnit verifies an uploaded credential and attaches it to the
// product. Dead or unauthorized credentials are rejected and the saved
// file is removed.
func (e *Engine) IngestUnit(ctx context.Context, productID uint, credential io.Reader) (*models.Unit, error) {
	if _, err := e.Ledger.Product(ctx, productID); err != nil {
		return nil, err
	}

	ref, err := e.Store.Save(credential)
	if err != nil {
		return nil, err
	}

	phone, ok := e.Manager.VerifyAndExtractPhone(ctx, ref)
	if !ok {
		e.discard(ctx, ref)
		return nil, ErrDeadCredential
	}

	unit, err := e.Ledger.AddUnit(ctx, productID, ref, phone)
	if err != nil {
		e.discard(ctx, ref)
		return nil, err
	}

	e.publish(ctx, events.TypeUnitAdded, fmt.Sprintf("unit-%d", unit.ID), map[string]any{
		"unit_id":    unit.ID,
		"product_id": productID,
	})
	return unit, nil
}

// BoughtUnit returns the unit only when userID is its buyer; anything
// else is reported as not found.
func (e *Engine) BoughtUnit(ctx context.Context, unitID uint, userID int64) (*models.Unit, error) {
	unit, err := e.Ledger.Unit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !unit.IsSold || unit.BuyerID == nil || *unit.BuyerID != userID {
		return nil, fmt.Errorf("%w: unit %d", ledger.ErrNotFound, unitID)
	}
	return unit, nil
}

// SessionFile resolves the credential path for a bought unit.
func (e *Engine) SessionFile(ctx context.Context, unitID uint, userID int64) (string, error) {
	unit, err := e.BoughtUnit(ctx, unitID, userID)
	if err != nil {
		return "", err
	}
	return e.Store.SessionPath(unit.FileRef), nil
}

// ArchiveFile builds (or reuses) the downloadable bundle for a bought
// unit.
func (e *Engine) ArchiveFile(ctx context.Context, unitID uint, userID int64) (string, error) {
	unit, err := e.BoughtUnit(ctx, unitID, userID)
	if err != nil {
		return "", err
	}
	return e.Store.BuildArchive(unit.FileRef, unit.ID)
}

// LoginCode fetches the latest verification code visible to the unit's
// credential.
func (e *Engine) LoginCode(ctx context.Context, unitID uint, userID int64) (sessions.CodeResult, error) {
	unit, err := e.BoughtUnit(ctx, unitID, userID)
	if err != nil {
		return sessions.CodeResult{}, err
	}
	return e.Manager.FetchLatestCode(ctx, unit.FileRef), nil
}

func (e *Engine) discard(ctx context.Context, ref string) {
	if err := e.Store.Remove(ref); err != nil {
		logging.FromContext(ctx).Warn("failed to remove rejected credential", "ref", ref, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, eventType, key string, payload any) {
	if err := e.Events.Publish(ctx, eventType, key, payload); err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "type", eventType, "error", err)
	}
}
