package ledger

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nyawka/phonixshop/internal/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	// A single connection keeps every goroutine on the same in-memory
	// database and serializes transactions the way postgres row locks do.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.Unit{},
		&models.User{},
		&models.PaymentClaim{},
	)
	if err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	return New(db)
}

func seedProduct(t *testing.T, l *Ledger, price float64, units int) *models.Product {
	t.Helper()
	ctx := context.Background()

	cat, err := l.CreateCategory(ctx, "test_category")
	require.NoError(t, err)

	prod, err := l.CreateProduct(ctx, cat.ID, "test_product", "test_description", price, "")
	require.NoError(t, err)

	for i := 0; i < units; i++ {
		_, err := l.AddUnit(ctx, prod.ID, "ref.session", "+79990000000")
		require.NoError(t, err)
	}
	return prod
}

func TestEnsureUser_Idempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.EnsureUser(ctx, 100, "first"))
	require.NoError(t, l.Credit(ctx, 100, 50))
	require.NoError(t, l.EnsureUser(ctx, 100, "second"))

	balance, err := l.Balance(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, float64(50), balance)
}

func TestBalance_UnknownUserIsZero(t *testing.T) {
	l := newTestLedger(t)

	balance, err := l.Balance(context.Background(), 999)
	require.NoError(t, err)
	require.Equal(t, float64(0), balance)
}

func TestCredit_CreatesMissingUser(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, 200, 150))

	balance, err := l.Balance(ctx, 200)
	require.NoError(t, err)
	require.Equal(t, float64(150), balance)
}

func TestCredit_RejectsNonPositiveAmount(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.ErrorIs(t, l.Credit(ctx, 200, 0), ErrValidation)
	require.ErrorIs(t, l.Credit(ctx, 200, -10), ErrValidation)
}

func TestCreateProduct_UnknownCategory(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.CreateProduct(context.Background(), 42, "name", "desc", 10, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCategory_DuplicateNamesAllowed(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateCategory(ctx, "same")
	require.NoError(t, err)
	_, err = l.CreateCategory(ctx, "same")
	require.NoError(t, err)

	cats, err := l.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
}

func TestAddUnit_UnknownProduct(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.AddUnit(context.Background(), 42, "ref.session", "+7999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAvailableCount(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	prod := seedProduct(t, l, 100, 3)

	count, err := l.AvailableCount(ctx, prod.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	require.NoError(t, l.Credit(ctx, 1, 100))
	_, err = l.Purchase(ctx, 1, prod.ID)
	require.NoError(t, err)

	count, err = l.AvailableCount(ctx, prod.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestUserInventory_NewestFirst(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	prod := seedProduct(t, l, 10, 2)
	require.NoError(t, l.Credit(ctx, 1, 100))

	first, err := l.Purchase(ctx, 1, prod.ID)
	require.NoError(t, err)
	second, err := l.Purchase(ctx, 1, prod.ID)
	require.NoError(t, err)

	items, err := l.UserInventory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "test_product", items[0].ProductName)

	ids := []uint{items[0].UnitID, items[1].UnitID}
	require.Contains(t, ids, first.ID)
	require.Contains(t, ids, second.ID)
}
