package storefront

import (
	"context"

	"github.com/stocksync/backend/internal/domain/syncqueue"
)

// StaticSettingsProvider serves the selling-store snapshot from configuration.
// The set is fixed at process start; a config change takes effect on restart.
type StaticSettingsProvider struct {
	stores syncqueue.SellingStores
}

var _ syncqueue.SettingsProvider = (*StaticSettingsProvider)(nil)

// NewStaticSettingsProvider builds a provider from the configured store names.
func NewStaticSettingsProvider(names []string) *StaticSettingsProvider {
	return &StaticSettingsProvider{stores: syncqueue.NewSellingStores(names)}
}

// SellingStores returns the configured snapshot.
func (p *StaticSettingsProvider) SellingStores(ctx context.Context) (syncqueue.SellingStores, error) {
	return p.stores, nil
}
