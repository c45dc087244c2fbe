package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nyawka/phonixshop/internal/models"
)

var (
	ErrValidation          = errors.New("validation")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOutOfStock          = errors.New("out of stock")
)

// Ledger owns every balance and inventory mutation. All multi-step
// mutations run inside a single gorm transaction.
type Ledger struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{DB: db}
}

// EnsureUser registers the user on first contact. Re-registering is a
// no-op and never touches the balance.
func (l *Ledger) EnsureUser(ctx context.Context, userID int64, username string) error {
	user := models.User{
		UserID:   userID,
		Username: username,
		Balance:  0,
		JoinDate: time.Now().UTC(),
	}
	return l.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&user).Error
}

// Balance returns 0 for unknown users, matching first-contact semantics.
func (l *Ledger) Balance(ctx context.Context, userID int64) (float64, error) {
	var user models.User
	err := l.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// Credit adds amount to the user's balance, creating the user row if it
// does not exist yet.
func (l *Ledger) Credit(ctx context.Context, userID int64, amount float64) error {
	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return creditTx(tx, userID, amount)
	})
}

func creditTx(tx *gorm.DB, userID int64, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	res := tx.Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		user := models.User{UserID: userID, Balance: amount, JoinDate: time.Now().UTC()}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	cat := models.Category{Name: name}
	if err := l.DB.WithContext(ctx).Create(&cat).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

func (l *Ledger) Categories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := l.DB.WithContext(ctx).Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

func (l *Ledger) CreateProduct(ctx context.Context, categoryID uint, name, description string, price float64, imageRef string) (*models.Product, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	var cat models.Category
	if err := l.DB.WithContext(ctx).First(&cat, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: category %d", ErrNotFound, categoryID)
		}
		return nil, err
	}
	prod := models.Product{
		CategoryID:  categoryID,
		Name:        name,
		Description: description,
		Price:       price,
		ImageRef:    imageRef,
	}
	if err := l.DB.WithContext(ctx).Create(&prod).Error; err != nil {
		return nil, err
	}
	return &prod, nil
}

func (l *Ledger) Products(ctx context.Context) ([]models.Product, error) {
	var prods []models.Product
	if err := l.DB.WithContext(ctx).Find(&prods).Error; err != nil {
		return nil, err
	}
	return prods, nil
}

func (l *Ledger) ProductsByCategory(ctx context.Context, categoryID uint) ([]models.Product, error) {
	var prods []models.Product
	if err := l.DB.WithContext(ctx).Where("category_id = ?", categoryID).Find(&prods).Error; err != nil {
		return nil, err
	}
	return prods, nil
}

func (l *Ledger) Product(ctx context.Context, id uint) (*models.Product, error) {
	var prod models.Product
	if err := l.DB.WithContext(ctx).First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &prod, nil
}

// AddUnit attaches one credential to a product. The product must exist.
func (l *Ledger) AddUnit(ctx context.Context, productID uint, fileRef, phone string) (*models.Unit, error) {
	if fileRef == "" {
		return nil, fmt.Errorf("%w: file reference required", ErrValidation)
	}
	if _, err := l.Product(ctx, productID); err != nil {
		return nil, err
	}
	unit := models.Unit{
		ProductID:   productID,
		FileRef:     fileRef,
		PhoneNumber: phone,
	}
	if err := l.DB.WithContext(ctx).Create(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (l *Ledger) AvailableCount(ctx context.Context, productID uint) (int64, error) {
	var count int64
	err := l.DB.WithContext(ctx).Model(&models.Unit{}).
		Where("product_id = ? AND is_sold = ?", productID, false).
		Count(&count).Error
	return count, err
}

func (l *Ledger) Unit(ctx context.Context, id uint) (*models.Unit, error) {
	var unit models.Unit
	if err := l.DB.WithContext(ctx).First(&unit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unit %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &unit, nil
}

type InventoryItem struct {
	UnitID      uint       `json:"unit_id"`
	ProductName string     `json:"product_name"`
	PhoneNumber string     `json:"phone_number"`
	SoldAt      *time.Time `json:"sold_at"`
}

// UserInventory lists the user's purchases, newest first.
func (l *Ledger) UserInventory(ctx context.Context, userID int64) ([]InventoryItem, error) {
	var items []InventoryItem
	err := l.DB.WithContext(ctx).
		Table("units").
		Select("units.id AS unit_id, products.name AS product_name, units.phone_number, units.sold_at").
		Joins("JOIN products ON products.id = units.product_id").
		Where("units.buyer_id = ?", userID).
		Order("units.sold_at DESC").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
