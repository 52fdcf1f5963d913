package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// EntryKind classifies a ledger entry. Earned entries carry a positive delta,
// redeemed and expired entries a negative one.
type EntryKind string

const (
	KindEarned   EntryKind = "earned"
	KindRedeemed EntryKind = "redeemed"
	KindExpired  EntryKind = "expired"
)

func (k EntryKind) Valid() bool {
	switch k {
	case KindEarned, KindRedeemed, KindExpired:
		return true
	default:
		return false
	}
}

// UserBalance is the cached fold of a user's ledger entries. Invariant:
// available_points == lifetime_earned - lifetime_redeemed - lifetime_expired,
// and available_points >= 0.
type UserBalance struct {
	ID               string    `gorm:"column:id;primaryKey" json:"id"`
	UserID           string    `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	AvailablePoints  int64     `gorm:"column:available_points;not null" json:"available_points"`
	LifetimeEarned   int64     `gorm:"column:lifetime_earned;not null" json:"lifetime_earned"`
	LifetimeRedeemed int64     `gorm:"column:lifetime_redeemed;not null" json:"lifetime_redeemed"`
	LifetimeExpired  int64     `gorm:"column:lifetime_expired;not null" json:"lifetime_expired"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (UserBalance) TableName() string { return "user_balances" }

// LedgerEntry is an immutable append-only record. Entries for a user form a
// hash chain; ReferenceID is the idempotency key guarding against double
// commits of the same business event.
type LedgerEntry struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	UserID         string         `gorm:"column:user_id;index;not null" json:"user_id"`
	Delta          int64          `gorm:"column:delta;not null" json:"delta"`
	Kind           string         `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Reason         string         `gorm:"column:reason;type:varchar(100);not null" json:"reason"`
	ReferenceID    string         `gorm:"column:reference_id;uniqueIndex;not null" json:"reference_id"`
	RelatedOrderID string         `gorm:"column:related_order_id;index" json:"related_order_id,omitempty"`
	TransactionID  string         `gorm:"column:transaction_id" json:"transaction_id"`
	PreviousHash   string         `gorm:"column:previous_hash" json:"previous_hash"`
	Hash           string         `gorm:"column:hash" json:"hash"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":             e.ID,
		"user_id":        e.UserID,
		"delta":          fmt.Sprintf("%d", e.Delta),
		"kind":           e.Kind,
		"reason":         e.Reason,
		"reference_id":   e.ReferenceID,
		"transaction_id": e.TransactionID,
		"created_at":     e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  e.PreviousHash,
	}
}

func (e *LedgerEntry) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// GenerateTransactionID returns a date-prefixed random identifier stamped on
// every committed entry.
func GenerateTransactionID() (string, error) {
	datePart := time.Now().Format("20060102")

	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s", datePart, strings.ToUpper(hex.EncodeToString(r))), nil
}
