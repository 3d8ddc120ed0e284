package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/erazemk/pujcovna/internal/model"
)

// Page size limits for loan history.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ErrInvalidCursor is returned for a cursor that does not decode.
var ErrInvalidCursor = errors.New("invalid cursor")

// LoanPage is one page of loan history.
type LoanPage struct {
	Loans      []model.Loan `json:"loans"`
	NextCursor string       `json:"next_cursor,omitempty"`
	HasMore    bool         `json:"has_more"`
}

// LoanCursor marks the last loan of a page.
type LoanCursor struct {
	LoanedAt time.Time `json:"loaned_at"`
	ID       string    `json:"id"`
}

// EncodeCursor serializes a cursor for clients.
func EncodeCursor(c LoanCursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(encoded string) (LoanCursor, error) {
	var c LoanCursor
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if c.ID == "" {
		return c, ErrInvalidCursor
	}
	return c, nil
}
