// Package catalog manages items, their variants and availability counters.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/cache"
	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/events"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/store"
)

// Service is the catalog service.
type Service struct {
	db      *db.DB
	cache   *cache.Loader
	events  events.Publisher
	log     *zap.Logger
	timeout time.Duration
}

// DefaultTimeout bounds an operation when New is given no timeout.
const DefaultTimeout = 5 * time.Second

// New returns a catalog service. Every operation runs under timeout.
func New(database *db.DB, loader *cache.Loader, pub events.Publisher, log *zap.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{db: database, cache: loader, events: pub, log: log, timeout: timeout}
}

// VariantEvent is the payload of variant events.
type VariantEvent struct {
	ItemID  string         `json:"item_id"`
	Variant *model.Variant `json:"variant,omitempty"`
}

// AvailabilityEvent is the payload of availability.adjusted.
type AvailabilityEvent struct {
	Target       string             `json:"target"`
	Delta        int                `json:"delta"`
	Availability model.Availability `json:"availability"`
}

// AddItem creates an item with all of its quantity available.
func (s *Service) AddItem(ctx context.Context, name string, totalQuantity int, consumable bool) (*model.Item, error) {
	const op = "catalog.AddItem"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	if totalQuantity <= 0 {
		return nil, apperr.Validation(op, "total quantity must be positive")
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	item, err := store.CreateItem(tctx, s.db, name, totalQuantity, consumable)
	if err != nil {
		return nil, db.Classify(op, err)
	}

	s.cache.Invalidate(ctx, cache.KeyItems)
	s.publish(ctx, events.New(events.ItemCreated, item.ID, item))
	s.log.Info("item created", zap.String("item", item.ID), zap.String("name", item.Name),
		zap.Int("quantity", item.TotalQuantity))
	return item, nil
}

// AddVariant creates a variant of an item. An item that still has active
// loans against its own counters cannot gain variants.
func (s *Service) AddVariant(ctx context.Context, itemID, name string, totalQuantity int) (*model.Variant, error) {
	const op = "catalog.AddVariant"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	if totalQuantity <= 0 {
		return nil, apperr.Validation(op, "total quantity must be positive")
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var variant *model.Variant
	err := s.db.WithTx(tctx, func(tx *db.Tx) error {
		// Loans lock the item too, so a direct loan cannot commit between
		// the count and the insert.
		err := store.LockItem(tctx, tx, itemID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(op, "item %s not found", itemID)
		}
		if err != nil {
			return err
		}

		direct, err := store.CountDirectActiveLoans(tctx, tx, itemID)
		if err != nil {
			return err
		}
		if direct > 0 {
			return apperr.Conflict(op, "item %s has %d active loans without a variant", itemID, direct)
		}

		variant, err = store.CreateVariant(tctx, tx, itemID, name, totalQuantity)
		return err
	})
	s.cache.Invalidate(ctx, cache.ItemKey(itemID), cache.KeyItems)
	if err != nil {
		return nil, db.Classify(op, err)
	}

	s.publish(ctx, events.New(events.VariantCreated, itemID, VariantEvent{ItemID: itemID, Variant: variant}))
	s.log.Info("variant created", zap.String("item", itemID), zap.String("variant", variant.ID),
		zap.Int("quantity", variant.TotalQuantity))
	return variant, nil
}

// AdjustAvailability applies available -= delta to the target. A positive
// delta loans out, a negative one returns. The new counters are returned.
func (s *Service) AdjustAvailability(ctx context.Context, target model.Target, delta int) (*model.Availability, error) {
	const op = "catalog.AdjustAvailability"

	if target == nil {
		return nil, apperr.Validation(op, "target is required")
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	a, err := store.AdjustAvailability(tctx, s.db, target, delta)
	cache.DropTarget(ctx, s.cache, target)
	if err != nil {
		return nil, classifyAdjust(op, target, err)
	}

	s.publish(ctx, events.New(events.AvailabilityAdjusted, target.Item(),
		AvailabilityEvent{Target: target.String(), Delta: delta, Availability: *a}))
	return a, nil
}

func classifyAdjust(op string, target model.Target, err error) error {
	var rangeErr *store.RangeError
	switch {
	case errors.As(err, &rangeErr):
		return &apperr.Error{Kind: apperr.KindInvariant, Op: op, Err: err}
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(op, "%s not found", target)
	}
	return db.Classify(op, err)
}

// DeleteItem removes an item and all of its variants. The item is marked
// deleted before active loans are counted so a concurrent loan either lands
// before the count or finds the item gone.
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	const op = "catalog.DeleteItem"

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.WithTx(tctx, func(tx *db.Tx) error {
		if err := store.DeleteItem(tctx, tx, itemID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound(op, "item %s not found", itemID)
			}
			return err
		}

		active, err := store.CountActiveLoansForItem(tctx, tx, itemID)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict(op, "item %s has %d active loans", itemID, active)
		}
		return nil
	})
	s.cache.Invalidate(ctx, cache.ItemKey(itemID), cache.KeyItems)
	if err != nil {
		return db.Classify(op, err)
	}

	s.publish(ctx, events.New(events.ItemDeleted, itemID, map[string]string{"item_id": itemID}))
	s.log.Info("item deleted", zap.String("item", itemID))
	return nil
}

// DeleteVariant removes a single variant under the same guard as DeleteItem.
func (s *Service) DeleteVariant(ctx context.Context, variantID string) error {
	const op = "catalog.DeleteVariant"

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var itemID string
	err := s.db.WithTx(tctx, func(tx *db.Tx) error {
		v, err := store.GetVariant(tctx, tx, variantID)
		if err != nil {
			return err
		}
		if v == nil {
			return apperr.NotFound(op, "variant %s not found", variantID)
		}
		itemID = v.ItemID

		if err := store.DeleteVariant(tctx, tx, variantID); err != nil {
			return err
		}

		active, err := store.CountActiveLoansForVariant(tctx, tx, variantID)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict(op, "variant %s has %d active loans", variantID, active)
		}
		return nil
	})
	if itemID != "" {
		s.cache.Invalidate(ctx, cache.ItemKey(itemID), cache.KeyItems)
	}
	if err != nil {
		return db.Classify(op, err)
	}

	s.publish(ctx, events.New(events.VariantDeleted, itemID,
		VariantEvent{ItemID: itemID, Variant: &model.Variant{ID: variantID, ItemID: itemID}}))
	s.log.Info("variant deleted", zap.String("item", itemID), zap.String("variant", variantID))
	return nil
}

// GetItem returns an item with its variants.
func (s *Service) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	const op = "catalog.GetItem"

	item, err := cache.Load(ctx, s.cache, cache.ItemKey(itemID), func(ctx context.Context) (*model.Item, error) {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		item, err := store.GetItem(tctx, s.db, itemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, apperr.NotFound(op, "item %s not found", itemID)
		}
		return item, nil
	})
	if err != nil {
		return nil, db.Classify(op, err)
	}
	return item, nil
}

// ListItems returns every item ordered by name, each with its variants.
func (s *Service) ListItems(ctx context.Context) ([]model.Item, error) {
	const op = "catalog.ListItems"

	items, err := cache.Load(ctx, s.cache, cache.KeyItems, func(ctx context.Context) ([]model.Item, error) {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		items, err := store.ListItems(tctx, s.db)
		if items == nil && err == nil {
			items = []model.Item{}
		}
		return items, err
	})
	if err != nil {
		return nil, db.Classify(op, err)
	}
	return items, nil
}

// FindItem returns an item or nil. It bypasses the cache.
func (s *Service) FindItem(ctx context.Context, itemID string) (*model.Item, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	item, err := store.GetItem(tctx, s.db, itemID)
	if err != nil {
		return nil, db.Classify("catalog.FindItem", err)
	}
	return item, nil
}

// FindVariant returns a variant or nil.
func (s *Service) FindVariant(ctx context.Context, variantID string) (*model.Variant, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := store.GetVariant(tctx, s.db, variantID)
	if err != nil {
		return nil, db.Classify("catalog.FindVariant", err)
	}
	return v, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("publishing event failed", zap.String("type", e.Type), zap.String("key", e.Key), zap.Error(err))
	}
}
