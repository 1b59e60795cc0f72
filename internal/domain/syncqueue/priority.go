package syncqueue

import (
	"context"

	"github.com/shopspring/decimal"
)

// Priority represents how urgently a stock change must reach the storefront
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
)

// IsValid returns true if the priority is valid
func (p Priority) IsValid() bool {
	return p == PriorityHigh || p == PriorityNormal
}

// String returns the string representation of Priority
func (p Priority) String() string {
	return string(p)
}

// Merge returns the stronger of two priorities. Once a product's event is
// high it never regresses to normal while the row exists.
func (p Priority) Merge(other Priority) Priority {
	if p == PriorityHigh || other == PriorityHigh {
		return PriorityHigh
	}
	return PriorityNormal
}

// Reason is the cause tag attached to an event and forwarded to the sync
// trigger collaborator.
type Reason string

const (
	// ReasonNonpositiveStock marks a stockout that must propagate fast to
	// avoid overselling
	ReasonNonpositiveStock Reason = "nonpositive_stock"
	// ReasonSellingStore marks a change in a storefront-facing store
	ReasonSellingStore Reason = "selling_store"
	// ReasonPriceImpact marks a change that affects catalog pricing
	ReasonPriceImpact Reason = "price_impact"
	// ReasonStockChanged is the default cause for ordinary stock movement
	ReasonStockChanged Reason = "stock_changed"
)

// String returns the string representation of Reason
func (r Reason) String() string {
	return string(r)
}

// PriorityDecision pairs a resolved priority with its cause
type PriorityDecision struct {
	Priority Priority
	Reason   Reason
}

// SellingStores is a read-only snapshot of the storefront-facing store
// names, taken from the settings collaborator at construction time.
type SellingStores map[string]struct{}

// NewSellingStores builds a snapshot from a list of store names
func NewSellingStores(names []string) SellingStores {
	s := make(SellingStores, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Contains returns true if the store is storefront-facing
func (s SellingStores) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// SettingsProvider is the outbound port supplying the current selling-store
// snapshot.
type SettingsProvider interface {
	SellingStores(ctx context.Context) (SellingStores, error)
}

// ResolvePriority maps a stock observation to a priority and reason.
// Rules are evaluated in order, first match wins. Pure function, no I/O.
func ResolvePriority(stores SellingStores, storeName string, quantity decimal.Decimal, priceImpact bool) PriorityDecision {
	switch {
	case quantity.Sign() <= 0:
		return PriorityDecision{Priority: PriorityHigh, Reason: ReasonNonpositiveStock}
	case stores.Contains(storeName):
		return PriorityDecision{Priority: PriorityHigh, Reason: ReasonSellingStore}
	case priceImpact:
		return PriorityDecision{Priority: PriorityHigh, Reason: ReasonPriceImpact}
	default:
		return PriorityDecision{Priority: PriorityNormal, Reason: ReasonStockChanged}
	}
}
