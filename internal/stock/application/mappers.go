package application

import (
	"github.com/marimovDEV/tipografiya/internal/stock/domain"
)

// ToMaterialDTO converts a domain material
func ToMaterialDTO(m *domain.Material) *MaterialDTO {
	return &MaterialDTO{ID: m.ID, Name: m.Name, Category: m.Category, Unit: m.Unit}
}

// ToBatchDTO converts a domain batch
func ToBatchDTO(b *domain.MaterialBatch) *BatchDTO {
	return &BatchDTO{
		ID:              b.ID,
		MaterialID:      b.MaterialID,
		BatchNumber:     b.BatchNumber,
		SupplierID:      b.SupplierID,
		InitialQuantity: b.InitialQuantity,
		CurrentQuantity: b.CurrentQuantity,
		CostPerUnit:     b.CostPerUnit,
		ReceivedAt:      b.ReceivedAt,
		QualityStatus:   string(b.QualityStatus),
		IsActive:        b.IsActive,
	}
}

// ToReservationDTO converts a domain reservation
func ToReservationDTO(r *domain.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:          r.ID,
		OrderID:     r.OrderID,
		BatchID:     r.BatchID,
		MaterialID:  r.MaterialID,
		ReservedQty: r.ReservedQty,
		Consumed:    r.Consumed,
		ConsumedAt:  r.ConsumedAt,
		CreatedAt:   r.CreatedAt,
	}
}

// ToReservationDTOs converts a list of reservations
func ToReservationDTOs(rs []*domain.Reservation) []ReservationDTO {
	out := make([]ReservationDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToReservationDTO(r))
	}
	return out
}

// ToCostAttributionDTO converts a cost attribution
func ToCostAttributionDTO(c *domain.CostAttribution) *CostAttributionDTO {
	return &CostAttributionDTO{
		ReservationID: c.ReservationID,
		OrderID:       c.OrderID,
		BatchID:       c.BatchID,
		MaterialID:    c.MaterialID,
		Quantity:      c.Quantity,
		UnitCost:      c.UnitCost,
		TotalCost:     c.TotalCost,
		ConsumedAt:    c.ConsumedAt,
	}
}
