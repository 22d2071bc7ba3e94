package cache

import (
	"context"
	"errors"

	"storefront/internal/models"
)

// CartCache stores rendered carts keyed by owner. It is never the source of
// truth: writers delete the entry and readers repopulate it.
type CartCache interface {
	Get(ctx context.Context, owner models.OwnerRef) (*models.Cart, error)
	Set(ctx context.Context, owner models.OwnerRef, cart *models.Cart) error
	Delete(ctx context.Context, owner models.OwnerRef) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCartCache is used when no Redis address is configured. Every Get misses.
type NopCartCache struct{}

func (NopCartCache) Get(context.Context, models.OwnerRef) (*models.Cart, error) {
	return nil, ErrCacheMiss
}

func (NopCartCache) Set(context.Context, models.OwnerRef, *models.Cart) error { return nil }

func (NopCartCache) Delete(context.Context, models.OwnerRef) error { return nil }
