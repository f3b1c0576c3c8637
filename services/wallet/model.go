package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionType string

const (
	TypeEarned      TransactionType = "earned"
	TypeSpent       TransactionType = "spent"
	TypeBonus       TransactionType = "bonus"
	TypeRefund      TransactionType = "refund"
	TypeAdminCredit TransactionType = "admin_credit"
	TypeAdminDebit  TransactionType = "admin_debit"
)

type Sign string

const (
	SignPlus  Sign = "plus"
	SignMinus Sign = "minus"
)

type TransactionStatus string

const (
	StatusSuccess  TransactionStatus = "success"
	StatusPending  TransactionStatus = "pending"
	StatusFailed   TransactionStatus = "failed"
	StatusReversed TransactionStatus = "reversed"
)

type Actor string

const (
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
)

// Transaction is an immutable ledger row. ReferenceID is the caller-derived
// idempotency key: replaying it returns this row and never re-applies the
// balance mutation.
type Transaction struct {
	ID          string            `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID      string            `gorm:"column:user_id;index;not null"`
	Type        TransactionType   `gorm:"column:type;type:varchar(20);not null"`
	Sign        Sign              `gorm:"column:sign;type:varchar(8);not null"`
	Amount      decimal.Decimal   `gorm:"column:amount;type:numeric(12,3);not null"`
	Status      TransactionStatus `gorm:"column:status;type:varchar(12);not null"`
	CampaignID  *string           `gorm:"column:campaign_id;index"`
	ReferenceID string            `gorm:"column:reference_id;uniqueIndex;not null"`
	Metadata    datatypes.JSON    `gorm:"column:metadata"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

// Balance is the cached aggregate over SUCCESS transactions. Recalculate can
// rebuild it from the log at any time.
type Balance struct {
	UserID         string          `gorm:"column:user_id;primaryKey;type:varchar(32)"`
	Available      decimal.Decimal `gorm:"column:available;type:numeric(14,3);not null"`
	Locked         decimal.Decimal `gorm:"column:locked;type:numeric(14,3);not null"`
	LifetimeEarned decimal.Decimal `gorm:"column:lifetime_earned;type:numeric(14,3);not null"`
	LifetimeSpent  decimal.Decimal `gorm:"column:lifetime_spent;type:numeric(14,3);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Balance) TableName() string { return "wallet_balances" }

// AuditLog records who moved money and why, linked to the ledger row.
type AuditLog struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	UserID        string    `gorm:"column:user_id;index;not null"`
	Actor         Actor     `gorm:"column:actor;type:varchar(8);not null"`
	Reason        string    `gorm:"column:reason;type:text"`
	TransactionID string    `gorm:"column:transaction_id;index;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string { return "wallet_audit_logs" }

// ReferenceID derives a deterministic idempotency key so retried requests
// for the same purpose, user, and token collapse onto one ledger row.
func ReferenceID(purpose, userID, token string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", purpose, userID, token)))
	return hex.EncodeToString(sum[:])
}
