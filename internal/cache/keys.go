package cache

import (
	"context"
	"strconv"

	"github.com/erazemk/pujcovna/internal/model"
)

// KeyItems holds the full item listing.
const KeyItems = "items"

// ItemKey holds one item with its variants.
func ItemKey(id string) string { return "item:" + id }

// ActiveLoansKey holds the active loan listing.
func ActiveLoansKey(includeConsumables bool) string {
	return "loans:active:" + strconv.FormatBool(includeConsumables)
}

// ActiveLoanKeys lists both active loan listings.
func ActiveLoanKeys() []string {
	return []string{ActiveLoansKey(false), ActiveLoansKey(true)}
}

// DropTarget forgets everything cached about target's item, including the
// active loan listings that embed it, so the next read re-syncs from the
// store. Every availability change goes through here.
func DropTarget(ctx context.Context, l *Loader, target model.Target) {
	keys := append([]string{ItemKey(target.Item()), KeyItems}, ActiveLoanKeys()...)
	l.Invalidate(ctx, keys...)
}
