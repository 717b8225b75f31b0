package model

import (
	"time"

	"github.com/google/uuid"
)

// Relational rows. Every row carries the full entity as JSON in Payload; the
// other columns are a projection derived from the payload for lookups and
// filtering and are never read back as the source of truth.

type ProductRecord struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name             string     `gorm:"type:varchar(255);not null;index"`
	VendorID         *uuid.UUID `gorm:"type:uuid;index"`
	Location         string     `gorm:"type:varchar(255)"`
	ContainerUnit    string     `gorm:"type:varchar(100)"`
	QuantityOnHand   int        `gorm:"type:int;not null"`
	ReorderThreshold int        `gorm:"type:int;not null"`
	ReorderAmount    int        `gorm:"type:int;not null"`
	Payload          string     `gorm:"type:text;not null"`
	UpdatedAt        time.Time
}

func (ProductRecord) TableName() string { return "products" }

type VendorRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null;index"`
	Email     string    `gorm:"type:varchar(255)"`
	CCEmails  string    `gorm:"type:text"`
	Payload   string    `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (VendorRecord) TableName() string { return "vendors" }

type ReorderRecord struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CreatedAt      time.Time  `gorm:"not null;index"`
	CreatedBy      string     `gorm:"type:varchar(255)"`
	VendorID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status         string     `gorm:"type:varchar(20);not null;index"`
	PONumber       string     `gorm:"type:varchar(100);index"`
	DeliveryMethod string     `gorm:"type:varchar(20);index"`
	PickupBy       string     `gorm:"type:varchar(10);index"`
	ApprovedBy     string     `gorm:"type:varchar(255);index"`
	ApprovedAt     *time.Time `gorm:"index"`
	Payload        string     `gorm:"type:text;not null"`
}

func (ReorderRecord) TableName() string { return "reorder_log" }

// TransactionRecord keeps the passthrough transactions log; Seq preserves
// the original row order.
type TransactionRecord struct {
	Seq         uint   `gorm:"primaryKey;autoIncrement"`
	Timestamp   string `gorm:"type:varchar(64);index"`
	ProductName string `gorm:"type:varchar(255);index"`
	Payload     string `gorm:"type:text;not null"`
}

func (TransactionRecord) TableName() string { return "transactions" }

// MetaEntry stores import bookkeeping such as the last import source.
type MetaEntry struct {
	Key   string `gorm:"type:varchar(100);primaryKey"`
	Value string `gorm:"type:text;not null"`
}

func (MetaEntry) TableName() string { return "meta" }

const (
	MetaLastImportSource = "last_import_source"
	MetaLastImportUTC    = "last_import_utc"
)
