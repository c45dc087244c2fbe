package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nyawka/phonixshop/internal/ledger"
	"github.com/nyawka/phonixshop/internal/models"
)

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.PaymentClaim{},
	))

	return &Reconciler{
		Ledger:     ledger.New(db),
		TonAddress: "UQTESTADDRESS",
		StarRate:   1.3,
		TonRate:    160.0,
		USDTRate:   95.0,
	}
}

func cryptoPayServer(t *testing.T, invoiceStatus string, fail bool) *CryptoPayClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-token", r.Header.Get("Crypto-Pay-API-Token"))

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		switch {
		case strings.HasSuffix(r.URL.Path, "/createInvoice"):
			fmt.Fprint(w, `{"ok":true,"result":{"invoice_id":4242,"status":"active","pay_url":"https://t.me/CryptoBot?start=inv4242","amount":"1.05"}}`)
		case strings.HasSuffix(r.URL.Path, "/getInvoices"):
			fmt.Fprintf(w, `{"ok":true,"result":{"items":[{"invoice_id":4242,"status":%q}]}}`, invoiceStatus)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewCryptoPayClient("test-token")
	client.BaseURL = srv.URL
	return client
}

func tonServer(t *testing.T, comments []string, fail bool) *TonClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.Equal(t, "UQTESTADDRESS", r.URL.Query().Get("address"))

		var txs []string
		for i, c := range comments {
			txs = append(txs, fmt.Sprintf(
				`{"transaction_id":{"hash":"hash-%d"},"in_msg":{"message":%q,"value":"625000000"}}`, i, c))
		}
		fmt.Fprintf(w, `{"ok":true,"result":[%s]}`, strings.Join(txs, ","))
	}))
	t.Cleanup(srv.Close)

	client := NewTonClient("key")
	client.BaseURL = srv.URL
	return client
}

func TestStartInvoiceTopUp(t *testing.T) {
	r := newTestReconciler(t)
	r.Crypto = cryptoPayServer(t, "active", false)
	ctx := context.Background()

	topup, err := r.StartInvoiceTopUp(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, "4242", topup.InvoiceID)
	require.Equal(t, "1.05", topup.USDTAmount)
	require.Equal(t, float64(100), topup.Rub)

	claim, err := r.Ledger.ClaimByExternalID(ctx, SystemCryptoBot, "4242")
	require.NoError(t, err)
	require.Equal(t, models.ClaimPending, claim.Status)
	require.Equal(t, float64(100), claim.Amount)
}

func TestStartInvoiceTopUp_RejectsNonPositive(t *testing.T) {
	r := newTestReconciler(t)

	_, err := r.StartInvoiceTopUp(context.Background(), 1, 0)
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestCheckInvoice_PaidCreditsOnce(t *testing.T) {
	r := newTestReconciler(t)
	r.Crypto = cryptoPayServer(t, "paid", false)
	ctx := context.Background()

	_, err := r.StartInvoiceTopUp(ctx, 1, 100)
	require.NoError(t, err)

	res, err := r.CheckInvoice(ctx, "4242")
	require.NoError(t, err)
	require.Equal(t, TopUpCredited, res.Status)
	require.Equal(t, float64(100), res.Amount)

	balance, err := r.Ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, float64(100), balance)

	// Re-clicking "check payment" must not credit again.
	res, err = r.CheckInvoice(ctx, "4242")
	require.NoError(t, err)
	require.Equal(t, TopUpAlreadyCredited, res.Status)

	balance, err = r.Ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, float64(100), balance)
}

func TestCheckInvoice_UnpaidStaysPending(t *testing.T) {
	r := newTestReconciler(t)
	r.Crypto = cryptoPayServer(t, "active", false)
	ctx := context.Background()

	_, err := r.StartInvoiceTopUp(ctx, 1, 100)
	require.NoError(t, err)

	res, err := r.CheckInvoice(ctx, "4242")
	require.NoError(t, err)
	require.Equal(t, TopUpPending, res.Status)

	balance, err := r.Ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, float64(0), balance)
}

func TestCheckInvoice_ProviderErrorNeverCredits(t *testing.T) {
	r := newTestReconciler(t)
	r.Crypto = cryptoPayServer(t, "paid", false)
	ctx := context.Background()

	_, err := r.StartInvoiceTopUp(ctx, 1, 100)
	require.NoError(t, err)

	r.Crypto = cryptoPayServer(t, "paid", true)
	res, err := r.CheckInvoice(ctx, "4242")
	require.NoError(t, err)
	require.Equal(t, TopUpPending, res.Status)

	balance, err := r.Ledger.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, float64(0), balance)
}

func TestCheckInvoice_UnknownClaim(t *testing.T) {
	r := newTestReconciler(t)
	r.Crypto = cryptoPayServer(t, "paid", false)

	res, err := r.CheckInvoice(context.Background(), "777")
	require.NoError(t, err)
	require.Equal(t, TopUpNotFound, res.Status)
}

func TestStartTonTopUp(t *testing.T) {
	r := newTestReconciler(t)
	ctx := context.Background()

	topup, err := r.StartTonTopUp(ctx, 123, 100)
	require.NoError(t, err)
	require.Equal(t, "UQTESTADDRESS", topup.Address)
	require.Equal(t, 0.625, topup.TonAmount)
	require.True(t, strings.HasPrefix(topup.Comment, "ID123X"))
	require.Contains(t, topup.TransferURL, "ton://transfer/UQTESTADDRESS?amount=625000000&text="+topup.Comment)

	claim, err := r.Ledger.ClaimByExternalID(ctx, SystemTon, topup.Comment)
	require.NoError(t, err)
	require.Equal(t, models.ClaimPending, claim.Status)
}

func TestCheckTon_MatchingCommentCreditsOnce(t *testing.T) {
	r := newTestReconciler(t)
	ctx := context.Background()

	topup, err := r.StartTonTopUp(ctx, 123, 100)
	require.NoError(t, err)

	r.Ton = tonServer(t, []string{"unrelated", topup.Comment}, false)

	res, err := r.CheckTon(ctx, topup.Comment)
	require.NoError(t, err)
	require.Equal(t, TopUpCredited, res.Status)
	require.Equal(t, float64(100), res.Amount)

	balance, err := r.Ledger.Balance(ctx, 123)
	require.NoError(t, err)
	require.Equal(t, float64(100), balance)

	// Second identical poll finds the claim closed.
	res, err = r.CheckTon(ctx, topup.Comment)
	require.NoError(t, err)
	require.Equal(t, TopUpAlreadyCredited, res.Status)

	balance, err = r.Ledger.Balance(ctx, 123)
	require.NoError(t, err)
	require.Equal(t, float64(100), balance)
}

func TestCheckTon_NoMatchStaysPending(t *testing.T) {
	r := newTestReconciler(t)
	ctx := context.Background()

	topup, err := r.StartTonTopUp(ctx, 123, 100)
	require.NoError(t, err)

	r.Ton = tonServer(t, []string{"someone else", "ID999Xabcd"}, false)

	res, err := r.CheckTon(ctx, topup.Comment)
	require.NoError(t, err)
	require.Equal(t, TopUpPending, res.Status)
}

func TestCheckTon_ProviderErrorStaysPending(t *testing.T) {
	r := newTestReconciler(t)
	ctx := context.Background()

	topup, err := r.StartTonTopUp(ctx, 123, 100)
	require.NoError(t, err)

	r.Ton = tonServer(t, nil, true)

	res, err := r.CheckTon(ctx, topup.Comment)
	require.NoError(t, err)
	require.Equal(t, TopUpPending, res.Status)

	balance, err := r.Ledger.Balance(ctx, 123)
	require.NoError(t, err)
	require.Equal(t, float64(0), balance)
}

func TestStarsTopUp_RoundTrip(t *testing.T) {
	r := newTestReconciler(t)
	ctx := context.Background()

	topup, err := r.StartStarsTopUp(ctx, 55, 130)
	require.NoError(t, err)
	require.Equal(t, 130, topup.Stars)
	require.Equal(t, float64(169), topup.Rub)

	rub, err := ParseStarsPayload(topup.Payload)
	require.NoError(t, err)
	require.Equal(t, float64(169), rub)

	res, err := r.ConfirmStars(ctx, topup.Payload)
	require.NoError(t, err)
	require.Equal(t, TopUpCredited, res.Status)
	require.Equal(t, float64(169), res.Amount)

	balance, err := r.Ledger.Balance(ctx, 55)
	require.NoError(t, err)
	require.Equal(t, float64(169), balance)

	// Duplicate delivery of the payment push.
	res, err = r.ConfirmStars(ctx, topup.Payload)
	require.NoError(t, err)
	require.Equal(t, TopUpAlreadyCredited, res.Status)

	balance, err = r.Ledger.Balance(ctx, 55)
	require.NoError(t, err)
	require.Equal(t, float64(169), balance)
}

func TestConfirmStars_BadPayload(t *testing.T) {
	r := newTestReconciler(t)

	res, err := r.ConfirmStars(context.Background(), "definitely_not_a_payload")
	require.NoError(t, err)
	require.Equal(t, TopUpNotFound, res.Status)
}

func TestAbandonStars_LatePushDoesNotCredit(t *testing.T) {
	r := newTestReconciler(t)
	ctx := context.Background()

	topup, err := r.StartStarsTopUp(ctx, 55, 10)
	require.NoError(t, err)

	require.NoError(t, r.AbandonStars(ctx, topup.Payload))

	res, err := r.ConfirmStars(ctx, topup.Payload)
	require.NoError(t, err)
	require.Equal(t, TopUpNotFound, res.Status)

	balance, err := r.Ledger.Balance(ctx, 55)
	require.NoError(t, err)
	require.Equal(t, float64(0), balance)
}

func TestParseStarsPayload(t *testing.T) {
	rub, err := ParseStarsPayload("stars_refill_169.00_ab12cd34")
	require.NoError(t, err)
	require.Equal(t, float64(169), rub)

	_, err = ParseStarsPayload("stars_refill_-5_ab12cd34")
	require.Error(t, err)

	_, err = ParseStarsPayload("stars_refill_169.00")
	require.Error(t, err)

	_, err = ParseStarsPayload("refund_169.00_ab12cd34_x")
	require.Error(t, err)
}
