package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/model"
)

const loanSelect = `SELECT l.id, l.item_id, l.variant_id, l.person_id, l.quantity, l.notes,
        l.condition_notes, l.condition_photo, l.loaned_at, l.returned_at,
        i.name, i.total_quantity, i.available_quantity, i.consumable, i.created_at, i.deleted_at,
        v.name, v.total_quantity, v.available_quantity, v.created_at, v.deleted_at,
        p.name, p.date_of_birth, p.photo_url, p.created_at
 FROM loans l
 JOIN items i ON i.id = l.item_id
 LEFT JOIN item_variants v ON v.id = l.variant_id
 JOIN people p ON p.id = l.person_id`

// NewLoan holds the fields of a loan to insert.
type NewLoan struct {
	Target   model.Target
	PersonID string
	Quantity int
	Notes    string
}

// CreateLoan inserts an active loan. The caller debits availability in the
// same transaction.
func CreateLoan(ctx context.Context, q db.Querier, l NewLoan) (*model.Loan, error) {
	id := uuid.NewString()
	_, err := q.ExecContext(ctx,
		`INSERT INTO loans (id, item_id, variant_id, person_id, quantity, notes, loaned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, l.Target.Item(), model.VariantOf(l.Target), l.PersonID, l.Quantity, l.Notes, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating loan: %w", err)
	}
	return GetLoan(ctx, q, id)
}

// GetLoan returns a loan by ID joined with its item, variant and person.
func GetLoan(ctx context.Context, q db.Querier, id string) (*model.Loan, error) {
	loan, err := scanLoan(q.QueryRowContext(ctx, loanSelect+` WHERE l.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting loan: %w", err)
	}
	return loan, nil
}

// ReturnedLoan is what MarkLoanReturned needs to credit availability back.
type ReturnedLoan struct {
	Target   model.Target
	Quantity int
}

// MarkLoanReturned closes an active loan. It returns ErrNotFound for an
// unknown loan and ErrAlreadyReturned when the loan is already closed.
func MarkLoanReturned(ctx context.Context, q db.Querier, id string, at time.Time) (*ReturnedLoan, error) {
	var itemID string
	var variantID sql.NullString
	var quantity int
	err := q.QueryRowContext(ctx,
		`UPDATE loans SET returned_at = ? WHERE id = ? AND returned_at IS NULL
		 RETURNING item_id, variant_id, quantity`, at, id,
	).Scan(&itemID, &variantID, &quantity)
	if err == nil {
		var vid *string
		if variantID.Valid {
			vid = &variantID.String
		}
		return &ReturnedLoan{Target: model.NewTarget(itemID, vid), Quantity: quantity}, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("returning loan: %w", err)
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM loans WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking loan: %w", err)
	}
	return nil, ErrAlreadyReturned
}

// ConditionPatch lists the condition fields to change. Nil fields are kept.
type ConditionPatch struct {
	Notes *string
	Photo *string
}

// UpdateLoanCondition applies a condition patch to a loan in any state.
func UpdateLoanCondition(ctx context.Context, q db.Querier, id string, patch ConditionPatch) error {
	var sets []string
	var args []any
	if patch.Notes != nil {
		sets = append(sets, "condition_notes = ?")
		args = append(args, *patch.Notes)
	}
	if patch.Photo != nil {
		sets = append(sets, "condition_photo = ?")
		args = append(args, *patch.Photo)
	}
	if len(sets) == 0 {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM loans WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking loan: %w", err)
		}
		return nil
	}

	args = append(args, id)
	result, err := q.ExecContext(ctx,
		`UPDATE loans SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return fmt.Errorf("updating loan condition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveLoans returns active loans, most recent first. Loans of
// consumable items are left out unless includeConsumables is set.
func ListActiveLoans(ctx context.Context, q db.Querier, includeConsumables bool) ([]model.Loan, error) {
	query := loanSelect + ` WHERE l.returned_at IS NULL`
	var args []any
	if !includeConsumables {
		query += ` AND i.consumable = ?`
		args = append(args, false)
	}
	query += ` ORDER BY l.loaned_at DESC, l.id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing active loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// CountActiveLoansForItem counts active loans of an item or any of its variants.
func CountActiveLoansForItem(ctx context.Context, q db.Querier, itemID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE item_id = ? AND returned_at IS NULL`, itemID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active loans: %w", err)
	}
	return count, nil
}

// CountActiveLoansForVariant counts active loans of one variant.
func CountActiveLoansForVariant(ctx context.Context, q db.Querier, variantID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE variant_id = ? AND returned_at IS NULL`, variantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active loans: %w", err)
	}
	return count, nil
}

// CountDirectActiveLoans counts active loans drawn from the item's own counters.
func CountDirectActiveLoans(ctx context.Context, q db.Querier, itemID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE item_id = ? AND variant_id IS NULL AND returned_at IS NULL`, itemID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting direct loans: %w", err)
	}
	return count, nil
}

// SumActiveQuantity returns the quantity on loan from a target.
func SumActiveQuantity(ctx context.Context, q db.Querier, target model.Target) (int, error) {
	var row *sql.Row
	switch t := target.(type) {
	case model.ItemTarget:
		row = q.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(quantity), 0) FROM loans
			 WHERE item_id = ? AND variant_id IS NULL AND returned_at IS NULL`, t.ItemID)
	case model.VariantTarget:
		row = q.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(quantity), 0) FROM loans
			 WHERE variant_id = ? AND returned_at IS NULL`, t.VariantID)
	default:
		return 0, fmt.Errorf("unknown target type %T", target)
	}
	var sum int
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing active quantity: %w", err)
	}
	return sum, nil
}

// LoanFilter narrows a loan history listing.
type LoanFilter struct {
	PersonID string
	ItemID   string
	// State is model.LoanStateActive, model.LoanStateReturned or empty for both.
	State string
}

// ListLoans returns one page of loans, most recent first, starting after the
// cursor.
func ListLoans(ctx context.Context, q db.Querier, filter LoanFilter, cursor string, limit int) (*LoanPage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	query := loanSelect + ` WHERE 1=1`
	var args []any

	if filter.PersonID != "" {
		query += ` AND l.person_id = ?`
		args = append(args, filter.PersonID)
	}
	if filter.ItemID != "" {
		query += ` AND l.item_id = ?`
		args = append(args, filter.ItemID)
	}
	switch filter.State {
	case model.LoanStateActive:
		query += ` AND l.returned_at IS NULL`
	case model.LoanStateReturned:
		query += ` AND l.returned_at IS NOT NULL`
	}

	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, ErrInvalidCursor
		}
		query += ` AND (l.loaned_at < ? OR (l.loaned_at = ? AND l.id < ?))`
		at := c.LoanedAt.UTC()
		args = append(args, at, at, c.ID)
	}

	query += ` ORDER BY l.loaned_at DESC, l.id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing loans: %w", err)
	}
	defer rows.Close()

	loans, err := scanLoans(rows)
	if err != nil {
		return nil, err
	}

	page := &LoanPage{Loans: loans}
	if len(loans) > limit {
		page.Loans = loans[:limit]
		page.HasMore = true
		last := page.Loans[limit-1]
		page.NextCursor = EncodeCursor(LoanCursor{LoanedAt: last.LoanedAt, ID: last.ID})
	}
	if page.Loans == nil {
		page.Loans = []model.Loan{}
	}
	return page, nil
}

func scanLoans(rows *sql.Rows) ([]model.Loan, error) {
	var loans []model.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning loan: %w", err)
		}
		loans = append(loans, *loan)
	}
	return loans, rows.Err()
}

func scanLoan(s scanner) (*model.Loan, error) {
	l := &model.Loan{}
	item := &model.Item{Variants: []model.Variant{}}
	person := &model.Person{}

	var variantID sql.NullString
	var vName sql.NullString
	var vTotal, vAvailable sql.NullInt64
	var vCreated, vDeleted sql.NullTime

	err := s.Scan(&l.ID, &l.ItemID, &variantID, &l.PersonID, &l.Quantity, &l.Notes,
		&l.ConditionNotes, &l.ConditionPhoto, &l.LoanedAt, &l.ReturnedAt,
		&item.Name, &item.TotalQuantity, &item.AvailableQuantity, &item.Consumable, &item.CreatedAt, &item.DeletedAt,
		&vName, &vTotal, &vAvailable, &vCreated, &vDeleted,
		&person.Name, &person.DateOfBirth, &person.PhotoURL, &person.CreatedAt)
	if err != nil {
		return nil, err
	}

	item.ID = l.ItemID
	person.ID = l.PersonID
	l.Item = item
	l.Person = person

	if variantID.Valid {
		id := variantID.String
		l.VariantID = &id
		v := &model.Variant{
			ID:                id,
			ItemID:            l.ItemID,
			Name:              vName.String,
			TotalQuantity:     int(vTotal.Int64),
			AvailableQuantity: int(vAvailable.Int64),
			CreatedAt:         vCreated.Time,
		}
		if vDeleted.Valid {
			at := vDeleted.Time
			v.DeletedAt = &at
		}
		l.Variant = v
	}
	return l, nil
}
