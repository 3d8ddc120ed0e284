package model

// Target is what a loan draws availability from: either an item without
// variants or one variant of an item. The only implementations are
// ItemTarget and VariantTarget.
type Target interface {
	// Item returns the parent item id for both cases.
	Item() string
	String() string
	isTarget()
}

// ItemTarget draws from the item's own counters.
type ItemTarget struct {
	ItemID string
}

// VariantTarget draws from one variant's counters.
type VariantTarget struct {
	ItemID    string
	VariantID string
}

func (t ItemTarget) Item() string    { return t.ItemID }
func (t VariantTarget) Item() string { return t.ItemID }

func (t ItemTarget) String() string    { return "item:" + t.ItemID }
func (t VariantTarget) String() string { return "variant:" + t.ItemID + "/" + t.VariantID }

func (ItemTarget) isTarget()    {}
func (VariantTarget) isTarget() {}

// NewTarget builds a target from an item id and an optional variant id.
func NewTarget(itemID string, variantID *string) Target {
	if variantID != nil && *variantID != "" {
		return VariantTarget{ItemID: itemID, VariantID: *variantID}
	}
	return ItemTarget{ItemID: itemID}
}

// VariantOf returns the variant id of t, or nil for an item target.
func VariantOf(t Target) *string {
	switch t := t.(type) {
	case VariantTarget:
		id := t.VariantID
		return &id
	case ItemTarget:
		return nil
	}
	return nil
}
