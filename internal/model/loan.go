package model

import "time"

// Loan records a person borrowing a quantity of an item or variant.
type Loan struct {
	ID             string     `json:"id"`
	ItemID         string     `json:"item_id"`
	VariantID      *string    `json:"variant_id,omitempty"`
	PersonID       string     `json:"person_id"`
	Quantity       int        `json:"quantity"`
	Notes          string     `json:"notes"`
	ConditionNotes string     `json:"condition_notes"`
	ConditionPhoto string     `json:"condition_photo"`
	LoanedAt       time.Time  `json:"loaned_at"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty"`

	// Joined for display.
	Item    *Item    `json:"item,omitempty"`
	Variant *Variant `json:"variant,omitempty"`
	Person  *Person  `json:"person,omitempty"`
}

// Loan states.
const (
	LoanStateActive   = "active"
	LoanStateReturned = "returned"
)

// Active reports whether the loan has not been returned.
func (l *Loan) Active() bool {
	return l.ReturnedAt == nil
}

// State returns the loan's lifecycle state.
func (l *Loan) State() string {
	if l.Active() {
		return LoanStateActive
	}
	return LoanStateReturned
}

// Target returns what the loan was debited from.
func (l *Loan) Target() Target {
	return NewTarget(l.ItemID, l.VariantID)
}
