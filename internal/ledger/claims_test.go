package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyawka/phonixshop/internal/models"
)

func TestCreateClaim_DuplicateExternalID(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateClaim(ctx, 1, "cryptobot", "inv-1", 100)
	require.NoError(t, err)

	_, err = l.CreateClaim(ctx, 2, "cryptobot", "inv-1", 200)
	require.ErrorIs(t, err, ErrConflict)

	// Same external id under another system is a different transaction.
	_, err = l.CreateClaim(ctx, 1, "ton", "inv-1", 100)
	require.NoError(t, err)
}

func TestCreateClaim_Validation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateClaim(ctx, 1, "cryptobot", "inv-1", 0)
	require.ErrorIs(t, err, ErrValidation)

	_, err = l.CreateClaim(ctx, 1, "", "inv-1", 10)
	require.ErrorIs(t, err, ErrValidation)

	_, err = l.CreateClaim(ctx, 1, "cryptobot", "", 10)
	require.ErrorIs(t, err, ErrValidation)
}

func TestConfirmClaim_CreditsExactlyOnce(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateClaim(ctx, 1, "cryptobot", "inv-1", 250)
	require.NoError(t, err)

	claim, err := l.ConfirmClaim(ctx, "cryptobot", "inv-1")
	require.NoError(t, err)
	require.Equal(t, models.ClaimConfirmed, claim.Status)

	balance, err := l.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, float64(250), balance)

	// A repeat poll of the same external transaction credits nothing.
	_, err = l.ConfirmClaim(ctx, "cryptobot", "inv-1")
	require.ErrorIs(t, err, ErrClaimClosed)

	balance, err = l.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, float64(250), balance)
}

func TestConfirmClaim_UnknownClaim(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.ConfirmClaim(context.Background(), "ton", "no-such-memo")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAbandonClaim_LeavesConfirmedAlone(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateClaim(ctx, 1, "stars", "payload-1", 13)
	require.NoError(t, err)
	_, err = l.ConfirmClaim(ctx, "stars", "payload-1")
	require.NoError(t, err)

	require.NoError(t, l.AbandonClaim(ctx, "stars", "payload-1"))

	claim, err := l.ClaimByExternalID(ctx, "stars", "payload-1")
	require.NoError(t, err)
	require.Equal(t, models.ClaimConfirmed, claim.Status)
}

func TestAbandonClaim_ClosesPending(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateClaim(ctx, 1, "stars", "payload-2", 13)
	require.NoError(t, err)
	require.NoError(t, l.AbandonClaim(ctx, "stars", "payload-2"))

	claim, err := l.ClaimByExternalID(ctx, "stars", "payload-2")
	require.NoError(t, err)
	require.Equal(t, models.ClaimAbandoned, claim.Status)

	_, err = l.ConfirmClaim(ctx, "stars", "payload-2")
	require.ErrorIs(t, err, ErrClaimClosed)
}
