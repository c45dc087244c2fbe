package models

import (
	"time"
)

type Category struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"not null"                 json:"name"`
}

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID  uint    `gorm:"index;not null"           json:"category_id"`
	Name        string  `gorm:"not null"                 json:"name"`
	Description string  `json:"description"`
	Price       float64 `gorm:"not null"                 json:"price"`
	ImageRef    string  `json:"image_ref,omitempty"`
}

// Unit is one sellable credential. IsSold flips false->true exactly once,
// together with BuyerID and SoldAt, inside the purchase transaction.
type Unit struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID   uint       `gorm:"index;not null"           json:"product_id"`
	FileRef     string     `gorm:"not null"                 json:"-"`
	PhoneNumber string     `json:"phone_number"`
	IsSold      bool       `gorm:"index;default:false"      json:"is_sold"`
	BuyerID     *int64     `gorm:"index"                    json:"buyer_id,omitempty"`
	SoldAt      *time.Time `json:"sold_at,omitempty"`
}

// User keys on the external Telegram identity, not an autoincrement.
type User struct {
	UserID   int64     `gorm:"primaryKey" json:"user_id"`
	Username string    `json:"username"`
	Balance  float64   `gorm:"default:0"  json:"balance"`
	JoinDate time.Time `json:"join_date"`
}

const (
	ClaimPending   = "pending"
	ClaimConfirmed = "confirmed"
	ClaimAbandoned = "abandoned"
)

// PaymentClaim is the durable record of one top-up attempt. The unique
// (system, external_id) pair is what makes confirmation idempotent: a
// repeat poll finds the row already confirmed and credits nothing.
type PaymentClaim struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"                   json:"id"`
	UserID     int64     `gorm:"index;not null"                             json:"user_id"`
	Amount     float64   `gorm:"not null"                                   json:"amount"`
	System     string    `gorm:"not null;uniqueIndex:idx_claims_system_ext" json:"system"`
	ExternalID string    `gorm:"not null;uniqueIndex:idx_claims_system_ext" json:"external_id"`
	Status     string    `gorm:"not null;default:pending"                   json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
