package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is one committed protocol event.
type Record struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// Seq orders records by emission; it is dense and starts at 1.
	Seq    uint64 `gorm:"uniqueIndex;not null" json:"seq"`
	Type   string `gorm:"size:64;index;not null" json:"type"`
	TxHash string `gorm:"size:66;index" json:"txHash,omitempty"`
	Asset  string `gorm:"size:32;index" json:"asset,omitempty"`
	// Account is the acting party; Counterparty is the receiving one (token
	// recipient or approved spender) when the event has one.
	Account      string            `gorm:"size:42;index" json:"account,omitempty"`
	Counterparty string            `gorm:"size:42;index" json:"counterparty,omitempty"`
	Attributes   map[string]string `gorm:"serializer:json" json:"attributes"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// TableName pins the table name across drivers.
func (Record) TableName() string { return "lending_events" }

// AutoMigrate creates or updates the indexer schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}
