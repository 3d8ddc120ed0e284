package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/model"
)

const personID = "0b7f4f7e-5d8c-4f0e-8f55-2b8f7a9c1e01"

type fakeDirectory struct {
	people   map[string]*model.Person
	items    map[string]*model.Item
	variants map[string]*model.Variant
}

func (f *fakeDirectory) FindPersonByIdentifier(_ context.Context, id string) (*model.Person, error) {
	return f.people[id], nil
}

func (f *fakeDirectory) FindItem(_ context.Context, id string) (*model.Item, error) {
	return f.items[id], nil
}

func (f *fakeDirectory) FindVariant(_ context.Context, id string) (*model.Variant, error) {
	return f.variants[id], nil
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		people: map[string]*model.Person{personID: {ID: personID, Name: "Alice"}},
		items: map[string]*model.Item{
			"helmet": {ID: "helmet", Name: "Helmet", TotalQuantity: 5, AvailableQuantity: 5, Variants: []model.Variant{}},
			"rifle":  {ID: "rifle", Name: "Rifle", Variants: []model.Variant{{ID: "a2", ItemID: "rifle", Name: "A2"}}},
		},
		variants: map[string]*model.Variant{"a2": {ID: "a2", ItemID: "rifle", Name: "A2", TotalQuantity: 2}},
	}
}

type fakeLoans struct {
	mu     sync.Mutex
	fail   map[string]error
	calls  []model.Target
	cancel context.CancelFunc
}

func (f *fakeLoans) CreateLoan(_ context.Context, target model.Target, personID string, quantity int, _ string) (*model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, target)
	if f.cancel != nil {
		f.cancel()
	}
	if err := f.fail[target.Item()]; err != nil {
		return nil, err
	}
	return &model.Loan{ID: "loan-" + target.Item(), ItemID: target.Item(), PersonID: personID, Quantity: quantity}, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newDesk(t *testing.T, interval time.Duration, loans LoanCreator) (*Desk, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	reg := NewRegistry(time.Minute, interval)
	reg.now = c.now
	dir := newDirectory()
	return NewDesk(reg, dir, dir, loans, zap.NewNop()), c
}

func TestCode128RoundTrip(t *testing.T) {
	data, err := EncodeCode128(personID, 1000, 120)
	require.NoError(t, err)

	code, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, personID, code)
}

func TestDecodeImageWithoutCode(t *testing.T) {
	blank, err := EncodeCode128("x", 200, 50)
	require.NoError(t, err)
	_, err = DecodeImage(blank[:len(blank)/2])
	assert.Error(t, err)

	_, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(2 * time.Second)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, th.Allow(start))
	assert.False(t, th.Allow(start.Add(500*time.Millisecond)))
	// A rejected attempt does not push the window out.
	assert.False(t, th.Allow(start.Add(1900*time.Millisecond)))
	assert.True(t, th.Allow(start.Add(2*time.Second)))

	open := NewThrottle(0)
	assert.True(t, open.Allow(start))
	assert.True(t, open.Allow(start))
}

func TestSubmitResolvesPersonAndItems(t *testing.T) {
	desk, c := newDesk(t, 2*time.Second, &fakeLoans{})
	ctx := context.Background()
	s := desk.Open()

	res, err := desk.Submit(ctx, s.ID, personID)
	require.NoError(t, err)
	assert.Equal(t, ResolvedPerson, res.Kind)
	assert.Equal(t, personID, res.Session.PersonID)

	_, err = desk.Submit(ctx, s.ID, "helmet")
	assert.ErrorIs(t, err, ErrThrottled)

	c.t = c.t.Add(2 * time.Second)
	res, err = desk.Submit(ctx, s.ID, "helmet")
	require.NoError(t, err)
	assert.Equal(t, ResolvedItem, res.Kind)

	c.t = c.t.Add(2 * time.Second)
	res, err = desk.Submit(ctx, s.ID, "a2")
	require.NoError(t, err)
	assert.Equal(t, ResolvedVariant, res.Kind)

	c.t = c.t.Add(2 * time.Second)
	res, err = desk.Submit(ctx, s.ID, "helmet")
	require.NoError(t, err)
	require.Len(t, res.Session.Basket, 2)
	assert.Equal(t, 2, res.Session.Basket[0].Quantity)
	assert.Equal(t, 1, res.Session.Basket[1].Quantity)

	c.t = c.t.Add(2 * time.Second)
	_, err = desk.Submit(ctx, s.ID, "rifle")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	c.t = c.t.Add(2 * time.Second)
	_, err = desk.Submit(ctx, s.ID, "unknown")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubmitImage(t *testing.T) {
	desk, _ := newDesk(t, 0, &fakeLoans{})
	s := desk.Open()

	data, err := EncodeCode128(personID, 1000, 120)
	require.NoError(t, err)

	res, err := desk.SubmitImage(context.Background(), s.ID, data)
	require.NoError(t, err)
	assert.Equal(t, ResolvedPerson, res.Kind)

	_, err = desk.SubmitImage(context.Background(), s.ID, []byte("junk"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUnreadableImageDoesNotThrottle(t *testing.T) {
	desk, c := newDesk(t, 2*time.Second, &fakeLoans{})
	ctx := context.Background()
	s := desk.Open()

	_, err := desk.SubmitImage(ctx, s.ID, []byte("not an image"))
	require.ErrorIs(t, err, apperr.ErrValidation)

	res, err := desk.Submit(ctx, s.ID, "helmet")
	require.NoError(t, err)
	assert.Equal(t, ResolvedItem, res.Kind)

	_, err = desk.SubmitImage(ctx, s.ID, []byte("still not an image"))
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = desk.Submit(ctx, s.ID, "helmet")
	assert.ErrorIs(t, err, ErrThrottled)

	c.t = c.t.Add(2 * time.Second)
	_, err = desk.Submit(ctx, s.ID, "")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = desk.Submit(ctx, s.ID, "helmet")
	assert.NoError(t, err)
}

func TestSessionExpiry(t *testing.T) {
	desk, c := newDesk(t, 0, &fakeLoans{})
	s := desk.Open()

	c.t = c.t.Add(30 * time.Second)
	_, err := desk.Session(s.ID)
	require.NoError(t, err)

	c.t = c.t.Add(61 * time.Second)
	_, err = desk.Session(s.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	other := desk.Open()
	c.t = c.t.Add(2 * time.Minute)
	assert.Equal(t, 1, desk.sessions.Sweep())
	assert.ErrorIs(t, desk.Close(other.ID), apperr.ErrNotFound)
}

func TestSetBasket(t *testing.T) {
	desk, _ := newDesk(t, 0, &fakeLoans{})
	s := desk.Open()

	a2 := "a2"
	view, err := desk.SetBasket(s.ID, []Entry{
		{ItemID: "helmet", Quantity: 3},
		{ItemID: "rifle", VariantID: &a2, Quantity: 0},
	})
	require.NoError(t, err)
	require.Len(t, view.Basket, 1)
	assert.Equal(t, 3, view.Basket[0].Quantity)

	_, err = desk.SetBasket(s.ID, []Entry{{ItemID: "helmet", Quantity: -1}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = desk.SetBasket("missing", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCommitKeepsFailedEntries(t *testing.T) {
	loans := &fakeLoans{fail: map[string]error{
		"rifle": apperr.InsufficientAvailability("loans.CreateLoan", "none left"),
	}}
	desk, _ := newDesk(t, 0, loans)
	ctx := context.Background()
	s := desk.Open()

	_, err := desk.Commit(ctx, s.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation, "no borrower yet")

	_, err = desk.Submit(ctx, s.ID, personID)
	require.NoError(t, err)
	a2 := "a2"
	_, err = desk.SetBasket(s.ID, []Entry{
		{ItemID: "rifle", VariantID: &a2, Quantity: 1},
		{ItemID: "helmet", Quantity: 2},
	})
	require.NoError(t, err)

	results, err := desk.Commit(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, apperr.ErrInsufficientAvailability)
	require.NoError(t, results[1].Err)
	assert.Equal(t, 2, results[1].Loan.Quantity)

	view, err := desk.Session(s.ID)
	require.NoError(t, err)
	require.Len(t, view.Basket, 1)
	assert.Equal(t, "rifle", view.Basket[0].ItemID)
}

func TestCommitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loans := &fakeLoans{cancel: cancel}

	basket := []Entry{{ItemID: "helmet", Quantity: 1}, {ItemID: "tent", Quantity: 1}, {ItemID: "lamp", Quantity: 1}}
	results := Commit(ctx, loans, basket, personID)

	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	for _, r := range results[1:] {
		assert.True(t, errors.Is(r.Err, context.Canceled), "got %v", r.Err)
		assert.Nil(t, r.Loan)
	}
	assert.Len(t, loans.calls, 1)
}
