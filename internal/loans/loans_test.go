package loans

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/cache"
	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/events"
	"github.com/erazemk/pujcovna/internal/imaging"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/storage"
	"github.com/erazemk/pujcovna/internal/store"
)

type fixture struct {
	svc    *Service
	db     *db.DB
	events *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	mem := cache.NewMemoryCache(0)
	t.Cleanup(func() { mem.Close() })

	rec := &events.Recorder{}
	svc := New(Config{
		DB:       database,
		Cache:    cache.NewLoader(mem, time.Minute, zap.NewNop()),
		Uploader: storage.NewDBStorage(database, ""),
		Images:   imaging.NewNormalizer(imaging.Options{}),
		Events:   rec,
		Log:      zap.NewNop(),
		Timeout:  2 * time.Second,
	})
	return &fixture{svc: svc, db: database, events: rec}
}

func (f *fixture) item(t *testing.T, name string, total int) *model.Item {
	t.Helper()
	item, err := store.CreateItem(context.Background(), f.db, name, total, false)
	require.NoError(t, err)
	return item
}

func (f *fixture) variant(t *testing.T, itemID, name string, total int) *model.Variant {
	t.Helper()
	v, err := store.CreateVariant(context.Background(), f.db, itemID, name, total)
	require.NoError(t, err)
	return v
}

func (f *fixture) person(t *testing.T, name string) *model.Person {
	t.Helper()
	p, err := store.CreatePerson(context.Background(), f.db, model.NewPerson{Name: name})
	require.NoError(t, err)
	return p
}

func (f *fixture) available(t *testing.T, target model.Target) int {
	t.Helper()
	a, err := store.GetAvailability(context.Background(), f.db, target)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.Available
}

// assertConserved checks available = total - sum(active loans) for target.
func (f *fixture) assertConserved(t *testing.T, target model.Target) {
	t.Helper()
	ctx := context.Background()
	a, err := store.GetAvailability(ctx, f.db, target)
	require.NoError(t, err)
	onLoan, err := store.SumActiveQuantity(ctx, f.db, target)
	require.NoError(t, err)
	assert.Equal(t, a.Total-onLoan, a.Available, "conservation for %s", target)
}

func TestHelmetScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	helmet := f.item(t, "Helmet", 5)
	target := model.ItemTarget{ItemID: helmet.ID}
	alice := f.person(t, "Alice")
	bob := f.person(t, "Bob")
	assert.Equal(t, 5, f.available(t, target))

	loan, err := f.svc.CreateLoan(ctx, target, alice.ID, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, f.available(t, target))

	_, err = f.svc.CreateLoan(ctx, target, bob.ID, 4, "")
	assert.ErrorIs(t, err, apperr.ErrInsufficientAvailability)
	assert.Equal(t, 3, f.available(t, target))
	f.assertConserved(t, target)

	require.NoError(t, f.svc.ReturnLoan(ctx, loan.ID))
	assert.Equal(t, 5, f.available(t, target))
	f.assertConserved(t, target)

	assert.Equal(t, []string{events.LoanCreated, events.LoanReturned}, f.events.Types())
}

func TestRifleVariantScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rifle := f.item(t, "Rifle", 1)
	a2 := f.variant(t, rifle.ID, "A2", 2)
	m4 := f.variant(t, rifle.ID, "M4", 3)
	bob := f.person(t, "Bob")

	a2Target := model.VariantTarget{ItemID: rifle.ID, VariantID: a2.ID}
	m4Target := model.VariantTarget{ItemID: rifle.ID, VariantID: m4.ID}
	itemTarget := model.ItemTarget{ItemID: rifle.ID}

	loan, err := f.svc.CreateLoan(ctx, a2Target, bob.ID, 1, "range day")
	require.NoError(t, err)
	require.NotNil(t, loan.Variant)
	assert.Equal(t, "A2", loan.Variant.Name)

	assert.Equal(t, 1, f.available(t, a2Target))
	assert.Equal(t, 3, f.available(t, m4Target))
	assert.Equal(t, 1, f.available(t, itemTarget))
	f.assertConserved(t, a2Target)
	f.assertConserved(t, m4Target)
}

func TestCreateLoanValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rifle := f.item(t, "Rifle", 1)
	a2 := f.variant(t, rifle.ID, "A2", 2)
	tent := f.item(t, "Tent", 2)
	bob := f.person(t, "Bob")

	tests := []struct {
		name     string
		target   model.Target
		personID string
		quantity int
		want     error
	}{
		{"nil target", nil, bob.ID, 1, apperr.ErrValidation},
		{"zero quantity", model.ItemTarget{ItemID: tent.ID}, bob.ID, 0, apperr.ErrValidation},
		{"negative quantity", model.ItemTarget{ItemID: tent.ID}, bob.ID, -2, apperr.ErrValidation},
		{"item with variants", model.ItemTarget{ItemID: rifle.ID}, bob.ID, 1, apperr.ErrValidation},
		{"unknown person", model.ItemTarget{ItemID: tent.ID}, "nobody", 1, apperr.ErrNotFound},
		{"unknown item", model.ItemTarget{ItemID: "missing"}, bob.ID, 1, apperr.ErrNotFound},
		{"unknown variant", model.VariantTarget{ItemID: rifle.ID, VariantID: "missing"}, bob.ID, 1, apperr.ErrNotFound},
		{"variant of other item", model.VariantTarget{ItemID: tent.ID, VariantID: a2.ID}, bob.ID, 1, apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateLoan(ctx, tt.target, tt.personID, tt.quantity, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 2, f.available(t, model.ItemTarget{ItemID: tent.ID}))
	assert.Equal(t, 2, f.available(t, model.VariantTarget{ItemID: rifle.ID, VariantID: a2.ID}))
	assert.Empty(t, f.events.Types())
}

func TestConcurrentLoansOfLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lamp := f.item(t, "Lamp", 1)
	target := model.ItemTarget{ItemID: lamp.ID}
	people := []*model.Person{f.person(t, "Alice"), f.person(t, "Bob")}

	var wg sync.WaitGroup
	errs := make([]error, len(people))
	for i, p := range people {
		wg.Add(1)
		go func(i int, personID string) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateLoan(ctx, target, personID, 1, "")
		}(i, p.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInsufficientAvailability)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.available(t, target))
	f.assertConserved(t, target)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rope := f.item(t, "Rope", 7)
	target := model.ItemTarget{ItemID: rope.ID}
	alice := f.person(t, "Alice")

	before := f.available(t, target)
	loan, err := f.svc.CreateLoan(ctx, target, alice.ID, 3, "")
	require.NoError(t, err)
	assert.Equal(t, before-3, f.available(t, target))

	require.NoError(t, f.svc.ReturnLoan(ctx, loan.ID))
	assert.Equal(t, before, f.available(t, target))
}

func TestDoubleReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rope := f.item(t, "Rope", 2)
	target := model.ItemTarget{ItemID: rope.ID}
	alice := f.person(t, "Alice")

	loan, err := f.svc.CreateLoan(ctx, target, alice.ID, 2, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ReturnLoan(ctx, loan.ID))

	err = f.svc.ReturnLoan(ctx, loan.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyReturned)
	assert.Equal(t, 2, f.available(t, target))

	assert.ErrorIs(t, f.svc.ReturnLoan(ctx, "missing"), apperr.ErrNotFound)

	got, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanStateReturned, got.State())
}

func TestReturnBeyondTotalIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rope := f.item(t, "Rope", 2)
	target := model.ItemTarget{ItemID: rope.ID}
	alice := f.person(t, "Alice")

	loan, err := f.svc.CreateLoan(ctx, target, alice.ID, 1, "")
	require.NoError(t, err)

	// Someone restores the counter out of band.
	_, err = store.AdjustAvailability(ctx, f.db, target, -1)
	require.NoError(t, err)

	err = f.svc.ReturnLoan(ctx, loan.ID)
	assert.ErrorIs(t, err, apperr.ErrInvariant)

	// The return rolled back.
	got, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Equal(t, 2, f.available(t, target))
}

func TestUpdateConditionNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tent := f.item(t, "Tent", 1)
	target := model.ItemTarget{ItemID: tent.ID}
	alice := f.person(t, "Alice")
	loan, err := f.svc.CreateLoan(ctx, target, alice.ID, 1, "")
	require.NoError(t, err)

	photo := "/files/condition-photos/a.jpg"
	got, err := f.svc.UpdateConditionNotes(ctx, loan.ID, "torn flap", &photo)
	require.NoError(t, err)
	assert.Equal(t, "torn flap", got.ConditionNotes)
	assert.Equal(t, photo, got.ConditionPhoto)

	require.NoError(t, f.svc.ReturnLoan(ctx, loan.ID))

	// Allowed after return; nil photo keeps the current one.
	got, err = f.svc.UpdateConditionNotes(ctx, loan.ID, "torn flap, bent pole", nil)
	require.NoError(t, err)
	assert.Equal(t, "torn flap, bent pole", got.ConditionNotes)
	assert.Equal(t, photo, got.ConditionPhoto)
	assert.Equal(t, 1, f.available(t, target))

	_, err = f.svc.UpdateConditionNotes(ctx, "missing", "x", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUploadConditionPhotoKeepsNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tent := f.item(t, "Tent", 1)
	alice := f.person(t, "Alice")
	loan, err := f.svc.CreateLoan(ctx, model.ItemTarget{ItemID: tent.ID}, alice.ID, 1, "")
	require.NoError(t, err)
	_, err = f.svc.UpdateConditionNotes(ctx, loan.ID, "scratched", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32)), nil))

	ref, err := f.svc.UploadConditionPhoto(ctx, loan.ID, buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, ref, "/files/condition-photos/"+loan.ID+"/")

	got, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "scratched", got.ConditionNotes)
	assert.Equal(t, ref, got.ConditionPhoto)

	_, err = f.svc.UploadConditionPhoto(ctx, loan.ID, []byte("nope"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.UploadConditionPhoto(ctx, "missing", buf.Bytes())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tent := f.item(t, "Tent", 3)
	batteries, err := store.CreateItem(ctx, f.db, "Batteries", 10, true)
	require.NoError(t, err)
	alice := f.person(t, "Alice")

	first, err := f.svc.CreateLoan(ctx, model.ItemTarget{ItemID: tent.ID}, alice.ID, 1, "")
	require.NoError(t, err)
	_, err = f.svc.CreateLoan(ctx, model.ItemTarget{ItemID: batteries.ID}, alice.ID, 4, "")
	require.NoError(t, err)
	second, err := f.svc.CreateLoan(ctx, model.ItemTarget{ItemID: tent.ID}, alice.ID, 1, "")
	require.NoError(t, err)

	active, err := f.svc.ListActive(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, second.ID, active[0].ID, "most recent first")
	require.NotNil(t, active[0].Person)
	assert.Equal(t, "Alice", active[0].Person.Name)

	all, err := f.svc.ListActive(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Cached listing is refreshed after a return.
	require.NoError(t, f.svc.ReturnLoan(ctx, first.ID))
	active, err = f.svc.ListActive(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tent := f.item(t, "Tent", 5)
	alice := f.person(t, "Alice")
	bob := f.person(t, "Bob")

	loan, err := f.svc.CreateLoan(ctx, model.ItemTarget{ItemID: tent.ID}, alice.ID, 1, "")
	require.NoError(t, err)
	_, err = f.svc.CreateLoan(ctx, model.ItemTarget{ItemID: tent.ID}, bob.ID, 1, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ReturnLoan(ctx, loan.ID))

	page, err := f.svc.History(ctx, store.LoanFilter{PersonID: alice.ID}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Loans, 1)
	assert.Equal(t, loan.ID, page.Loans[0].ID)

	page, err = f.svc.History(ctx, store.LoanFilter{State: model.LoanStateActive}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Loans, 1)
	assert.Equal(t, bob.ID, page.Loans[0].PersonID)

	_, err = f.svc.History(ctx, store.LoanFilter{State: "lost"}, "", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.History(ctx, store.LoanFilter{}, "!!!", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
