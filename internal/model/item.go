package model

import "time"

// Item is a loanable thing. When an item has variants, its own quantity
// fields are not used for loaning.
type Item struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	TotalQuantity     int        `json:"total_quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	Consumable        bool       `json:"consumable"`
	CreatedAt         time.Time  `json:"created_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	Variants          []Variant  `json:"variants"`
}

// HasVariants reports whether loans must target one of the item's variants.
func (i *Item) HasVariants() bool {
	return len(i.Variants) > 0
}

// Variant is a named sub-SKU of an item with its own quantity pool.
type Variant struct {
	ID                string     `json:"id"`
	ItemID            string     `json:"item_id"`
	Name              string     `json:"name"`
	TotalQuantity     int        `json:"total_quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	CreatedAt         time.Time  `json:"created_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}

// Availability is the pair of counters guarded by the store.
type Availability struct {
	Available int `json:"available_quantity"`
	Total     int `json:"total_quantity"`
}
