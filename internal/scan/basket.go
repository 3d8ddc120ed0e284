package scan

import (
	"context"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/model"
)

// Entry is one basket line.
type Entry struct {
	ItemID    string  `json:"item_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
}

// Target returns what the entry loans from.
func (e Entry) Target() model.Target {
	return model.NewTarget(e.ItemID, e.VariantID)
}

// LoanCreator creates one loan.
type LoanCreator interface {
	CreateLoan(ctx context.Context, target model.Target, personID string, quantity int, notes string) (*model.Loan, error)
}

// CommitResult is the outcome of one basket entry.
type CommitResult struct {
	Entry Entry       `json:"entry"`
	Loan  *model.Loan `json:"loan,omitempty"`
	Err   error       `json:"-"`
}

// Commit creates one loan per entry in basket order. A failed entry does not
// undo the ones before it and does not stop the ones after it. Entries not
// attempted because ctx ended carry the context error.
func Commit(ctx context.Context, loans LoanCreator, basket []Entry, personID string) []CommitResult {
	results := make([]CommitResult, len(basket))
	for i, e := range basket {
		results[i].Entry = e
		if err := ctx.Err(); err != nil {
			results[i].Err = apperr.Transient("scan.Commit", err)
			continue
		}
		results[i].Loan, results[i].Err = loans.CreateLoan(ctx, e.Target(), personID, e.Quantity, "")
	}
	return results
}
