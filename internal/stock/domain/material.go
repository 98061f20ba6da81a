package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QualityStatus gates whether a batch may be allocated
type QualityStatus string

const (
	QualityOK         QualityStatus = "ok"
	QualityBlocked    QualityStatus = "blocked"
	QualityQuarantine QualityStatus = "quarantine"
)

// ParseQualityStatus validates a quality status string
func ParseQualityStatus(s string) (QualityStatus, error) {
	switch q := QualityStatus(strings.ToLower(s)); q {
	case QualityOK, QualityBlocked, QualityQuarantine:
		return q, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidQualityStatus, s)
}

// Material is a stocked raw material such as a paper grade or ink
type Material struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Category  string    `bson:"category" json:"category"`
	Unit      string    `bson:"unit" json:"unit"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// NewMaterial creates a material with a generated ID when id is empty
func NewMaterial(id, name, category, unit string) *Material {
	if id == "" {
		id = uuid.NewString()
	}
	return &Material{
		ID:        id,
		Name:      name,
		Category:  category,
		Unit:      unit,
		CreatedAt: time.Now().UTC(),
	}
}

// MaterialBatch is a dated, cost-tagged quantity of one material
type MaterialBatch struct {
	ID              string
	MaterialID      string
	BatchNumber     string
	SupplierID      string
	InitialQuantity decimal.Decimal
	CurrentQuantity decimal.Decimal
	CostPerUnit     decimal.Decimal
	ReceivedAt      time.Time
	QualityStatus   QualityStatus
	IsActive        bool
	UpdatedAt       time.Time
}

// NewMaterialBatch creates an active, quality-ok batch holding its full
// initial quantity
func NewMaterialBatch(materialID, batchNumber, supplierID string, quantity, costPerUnit decimal.Decimal, receivedAt time.Time) (*MaterialBatch, error) {
	if !quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if costPerUnit.IsNegative() {
		return nil, fmt.Errorf("cost per unit must not be negative")
	}
	if batchNumber == "" {
		batchNumber = fmt.Sprintf("B-%s", receivedAt.UTC().Format("20060102150405"))
	}
	return &MaterialBatch{
		ID:              uuid.NewString(),
		MaterialID:      materialID,
		BatchNumber:     batchNumber,
		SupplierID:      supplierID,
		InitialQuantity: quantity,
		CurrentQuantity: quantity,
		CostPerUnit:     costPerUnit,
		ReceivedAt:      receivedAt,
		QualityStatus:   QualityOK,
		IsActive:        true,
		UpdatedAt:       receivedAt,
	}, nil
}

// Allocatable reports whether new reservations may draw from the batch
func (b *MaterialBatch) Allocatable() bool {
	return b.IsActive && b.QualityStatus == QualityOK && b.CurrentQuantity.IsPositive()
}

// Decrement removes qty permanently. An emptied batch is deactivated.
func (b *MaterialBatch) Decrement(qty decimal.Decimal, now time.Time) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	remaining := b.CurrentQuantity.Sub(qty)
	if remaining.IsNegative() {
		return fmt.Errorf("%w: batch %s would hold %s", ErrLedgerInvariant, b.ID, remaining)
	}
	b.CurrentQuantity = remaining
	if remaining.IsZero() {
		b.IsActive = false
	}
	b.UpdatedAt = now
	return nil
}

// SetQuality changes the quality status without touching quantities
func (b *MaterialBatch) SetQuality(status QualityStatus, now time.Time) {
	b.QualityStatus = status
	b.UpdatedAt = now
}

// Consumed is the quantity permanently removed from the batch
func (b *MaterialBatch) Consumed() decimal.Decimal {
	return b.InitialQuantity.Sub(b.CurrentQuantity)
}
