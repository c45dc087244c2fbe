package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nyawka/phonixshop/internal/events"
	"github.com/nyawka/phonixshop/internal/ledger"
	"github.com/nyawka/phonixshop/internal/logging"
	"github.com/nyawka/phonixshop/internal/models"
)

const (
	SystemCryptoBot = "cryptobot"
	SystemTon       = "ton"
	SystemStars     = "stars"
)

// tonTxScanLimit matches the provider page size used when polling for an
// incoming transfer.
const tonTxScanLimit = 15

type TopUpStatus int

const (
	TopUpCredited TopUpStatus = iota
	TopUpPending
	TopUpAlreadyCredited
	TopUpNotFound
)

type TopUpResult struct {
	Status TopUpStatus
	Amount float64
}

// Reconciler maps confirmed external payments to balance credits,
// exactly once per external transaction. The pending claim recorded at
// top-up start is the dedup marker; crediting goes through
// Ledger.ConfirmClaim which flips it pending->confirmed atomically.
type Reconciler struct {
	Ledger *ledger.Ledger
	Crypto *CryptoPayClient
	Ton    *TonClient
	Events *events.Producer

	TonAddress string
	StarRate   float64
	TonRate    float64
	USDTRate   float64
}

type InvoiceTopUp struct {
	InvoiceID  string
	PayURL     string
	USDTAmount string
	Rub        float64
}

// StartInvoiceTopUp creates an external invoice for the ruble amount
// converted to USDT and records the pending claim.
func (r *Reconciler) StartInvoiceTopUp(ctx context.Context, userID int64, rub float64) (*InvoiceTopUp, error) {
	if rub <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ledger.ErrValidation)
	}

	usdt := strconv.FormatFloat(round2(rub/r.USDTRate), 'f', 2, 64)
	inv, err := r.Crypto.CreateInvoice(ctx, "USDT", usdt)
	if err != nil {
		return nil, fmt.Errorf("создание инвойса: %w", err)
	}

	invoiceID := strconv.FormatInt(inv.InvoiceID, 10)
	if _, err := r.Ledger.CreateClaim(ctx, userID, SystemCryptoBot, invoiceID, rub); err != nil {
		return nil, err
	}

	return &InvoiceTopUp{
		InvoiceID:  invoiceID,
		PayURL:     inv.PayURL,
		USDTAmount: inv.Amount,
		Rub:        rub,
	}, nil
}

// CheckInvoice re-queries the invoice status. Provider failures surface
// as Pending, never as a credit.
func (r *Reconciler) CheckInvoice(ctx context.Context, invoiceID string) (*TopUpResult, error) {
	claim, err := r.Ledger.ClaimByExternalID(ctx, SystemCryptoBot, invoiceID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &TopUpResult{Status: TopUpNotFound}, nil
		}
		return nil, err
	}
	if claim.Status != models.ClaimPending {
		return &TopUpResult{Status: TopUpAlreadyCredited, Amount: claim.Amount}, nil
	}

	id, err := strconv.ParseInt(invoiceID, 10, 64)
	if err != nil {
		return &TopUpResult{Status: TopUpNotFound}, nil
	}

	status, err := r.Crypto.GetInvoiceStatus(ctx, id)
	if err != nil {
		logging.FromContext(ctx).Warn("invoice status query failed", "invoice_id", invoiceID, "error", err)
		return &TopUpResult{Status: TopUpPending}, nil
	}
	if status != "paid" {
		return &TopUpResult{Status: TopUpPending}, nil
	}

	return r.confirm(ctx, SystemCryptoBot, invoiceID)
}

type TonTopUp struct {
	Address     string
	TonAmount   float64
	Comment     string
	TransferURL string
	Rub         float64
}

// StartTonTopUp prepares a transfer request with a unique memo tag and
// records the pending claim keyed by that tag.
func (r *Reconciler) StartTonTopUp(ctx context.Context, userID int64, rub float64) (*TonTopUp, error) {
	if rub <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ledger.ErrValidation)
	}

	ton := round4(rub / r.TonRate)
	comment := fmt.Sprintf("ID%dX%s", userID, uuid.NewString()[:4])
	nano := int64(ton * 1e9)
	transferURL := fmt.Sprintf("ton://transfer/%s?amount=%d&text=%s", r.TonAddress, nano, comment)

	if _, err := r.Ledger.CreateClaim(ctx, userID, SystemTon, comment, rub); err != nil {
		return nil, err
	}

	return &TonTopUp{
		Address:     r.TonAddress,
		TonAmount:   ton,
		Comment:     comment,
		TransferURL: transferURL,
		Rub:         rub,
	}, nil
}

// CheckTon scans the recipient's recent transactions for an exact memo
// match.
func (r *Reconciler) CheckTon(ctx context.Context, comment string) (*TopUpResult, error) {
	claim, err := r.Ledger.ClaimByExternalID(ctx, SystemTon, comment)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &TopUpResult{Status: TopUpNotFound}, nil
		}
		return nil, err
	}
	if claim.Status != models.ClaimPending {
		return &TopUpResult{Status: TopUpAlreadyCredited, Amount: claim.Amount}, nil
	}

	txs, err := r.Ton.GetRecentTransactions(ctx, r.TonAddress, tonTxScanLimit)
	if err != nil {
		logging.FromContext(ctx).Warn("ton transaction query failed", "comment", comment, "error", err)
		return &TopUpResult{Status: TopUpPending}, nil
	}

	for _, tx := range txs {
		if tx.Comment == comment {
			return r.confirm(ctx, SystemTon, comment)
		}
	}
	return &TopUpResult{Status: TopUpPending}, nil
}

type StarsTopUp struct {
	Payload string
	Stars   int
	Rub     float64
}

// StartStarsTopUp issues a star-denominated payment request. The opaque
// payload carries the ruble amount and a nonce, and doubles as the claim's
// external id.
func (r *Reconciler) StartStarsTopUp(ctx context.Context, userID int64, stars int) (*StarsTopUp, error) {
	if stars <= 0 {
		return nil, fmt.Errorf("%w: at least one star", ledger.ErrValidation)
	}

	rub := round2(float64(stars) * r.StarRate)
	payload := fmt.Sprintf("stars_refill_%s_%s",
		strconv.FormatFloat(rub, 'f', 2, 64), uuid.NewString()[:8])

	if _, err := r.Ledger.CreateClaim(ctx, userID, SystemStars, payload, rub); err != nil {
		return nil, err
	}

	return &StarsTopUp{Payload: payload, Stars: stars, Rub: rub}, nil
}

// ConfirmStars credits the amount embedded in a successful-payment
// payload. Repeat deliveries credit nothing.
func (r *Reconciler) ConfirmStars(ctx context.Context, payload string) (*TopUpResult, error) {
	if _, err := ParseStarsPayload(payload); err != nil {
		return &TopUpResult{Status: TopUpNotFound}, nil
	}

	res, err := r.confirm(ctx, SystemStars, payload)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &TopUpResult{Status: TopUpNotFound}, nil
		}
		return nil, err
	}
	return res, nil
}

// AbandonStars closes a pending star claim whose pre-authorization window
// expired.
func (r *Reconciler) AbandonStars(ctx context.Context, payload string) error {
	return r.Ledger.AbandonClaim(ctx, SystemStars, payload)
}

// ParseStarsPayload extracts the ruble amount from a
// "stars_refill_<rub>_<nonce>" payload.
func ParseStarsPayload(payload string) (float64, error) {
	parts := strings.Split(payload, "_")
	if len(parts) != 4 || parts[0] != "stars" || parts[1] != "refill" {
		return 0, fmt.Errorf("%w: bad payload %q", ledger.ErrValidation, payload)
	}
	rub, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || rub <= 0 {
		return 0, fmt.Errorf("%w: bad amount in payload %q", ledger.ErrValidation, payload)
	}
	return rub, nil
}

func (r *Reconciler) confirm(ctx context.Context, system, externalID string) (*TopUpResult, error) {
	claim, err := r.Ledger.ConfirmClaim(ctx, system, externalID)
	if err != nil {
		if errors.Is(err, ledger.ErrClaimClosed) {
			known, lookupErr := r.Ledger.ClaimByExternalID(ctx, system, externalID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if known.Status == models.ClaimConfirmed {
				return &TopUpResult{Status: TopUpAlreadyCredited, Amount: known.Amount}, nil
			}
			// Abandoned claims stay closed; there is nothing to credit.
			return &TopUpResult{Status: TopUpNotFound}, nil
		}
		return nil, err
	}

	if err := r.Events.Publish(ctx, events.TypeBalanceCredited, externalID, map[string]any{
		"user_id": claim.UserID,
		"system":  system,
		"amount":  claim.Amount,
	}); err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "type", events.TypeBalanceCredited, "error", err)
	}

	return &TopUpResult{Status: TopUpCredited, Amount: claim.Amount}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
