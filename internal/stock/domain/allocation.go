package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocation is the part of a request drawn from one batch
type Allocation struct {
	Batch    *MaterialBatch
	Quantity decimal.Decimal
}

// BatchFree is the unreserved quantity of an allocatable batch
type BatchFree struct {
	Batch *MaterialBatch
	Free  decimal.Decimal
}

// SortFIFO orders batches oldest first, breaking ties by batch number
func SortFIFO(batches []*MaterialBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return batches[i].BatchNumber < batches[j].BatchNumber
	})
}

// UnconsumedByBatch sums unconsumed reserved quantities per batch
func UnconsumedByBatch(reservations []*Reservation) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range reservations {
		if r.Consumed {
			continue
		}
		out[r.BatchID] = out[r.BatchID].Add(r.ReservedQty)
	}
	return out
}

// FreeCapacity lists allocatable batches in FIFO order with positive free
// quantity
func FreeCapacity(batches []*MaterialBatch, reserved map[string]decimal.Decimal) ([]BatchFree, decimal.Decimal) {
	ordered := make([]*MaterialBatch, 0, len(batches))
	for _, b := range batches {
		if b.Allocatable() {
			ordered = append(ordered, b)
		}
	}
	SortFIFO(ordered)

	total := decimal.Zero
	out := make([]BatchFree, 0, len(ordered))
	for _, b := range ordered {
		free := b.CurrentQuantity.Sub(reserved[b.ID])
		if !free.IsPositive() {
			continue
		}
		out = append(out, BatchFree{Batch: b, Free: free})
		total = total.Add(free)
	}
	return out, total
}

// AllocateFIFO draws qty from the oldest batches first. Nothing is
// allocated unless the whole quantity can be covered.
func AllocateFIFO(materialID string, batches []*MaterialBatch, reserved map[string]decimal.Decimal, qty decimal.Decimal) ([]Allocation, error) {
	if !qty.IsPositive() {
		return nil, ErrInvalidQuantity
	}

	free, total := FreeCapacity(batches, reserved)
	if total.LessThan(qty) {
		return nil, &InsufficientStockError{
			MaterialID: materialID,
			Requested:  qty,
			Available:  total,
			Shortfall:  qty.Sub(total),
		}
	}

	remaining := qty
	allocations := make([]Allocation, 0, len(free))
	for _, f := range free {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(f.Free, remaining)
		allocations = append(allocations, Allocation{Batch: f.Batch, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return allocations, nil
}
