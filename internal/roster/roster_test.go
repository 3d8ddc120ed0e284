package roster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
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
)

func newService(t *testing.T) (*Service, *events.Recorder) {
	t.Helper()
	database := db.NewTestDB(t)
	rec := &events.Recorder{}
	mem := cache.NewMemoryCache(0)
	t.Cleanup(func() { mem.Close() })
	loader := cache.NewLoader(mem, time.Minute, zap.NewNop())
	svc := New(database, loader, storage.NewDBStorage(database, ""), imaging.NewNormalizer(imaging.Options{MaxDimension: 64}),
		rec, zap.NewNop(), time.Second)
	return svc, rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	img.Set(1, 1, color.RGBA{0, 255, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAddPerson(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	_, err := svc.AddPerson(ctx, model.NewPerson{Name: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	dob := time.Date(2001, time.March, 4, 0, 0, 0, 0, time.UTC)
	p, err := svc.AddPerson(ctx, model.NewPerson{Name: " Jan Novák ", DateOfBirth: &dob})
	require.NoError(t, err)
	assert.Equal(t, "Jan Novák", p.Name)
	require.NotNil(t, p.DateOfBirth)
	assert.True(t, p.DateOfBirth.Equal(dob))
	assert.Equal(t, []string{events.PersonCreated}, rec.Types())
}

func TestBatchAddPeopleReportsEachRecord(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	results := svc.BatchAddPeople(ctx, []model.NewPerson{
		{Name: "Alice"},
		{Name: ""},
		{Name: "Carol"},
	})
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "Alice", results[0].Person.Name)
	assert.ErrorIs(t, results[1].Err, apperr.ErrValidation)
	assert.Nil(t, results[1].Person)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 2, results[2].Index)

	people, err := svc.ListPeople(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 2)
}

func TestBatchAddPeopleStopsOnCancel(t *testing.T) {
	svc, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := svc.BatchAddPeople(ctx, []model.NewPerson{{Name: "Alice"}, {Name: "Bob"}})
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Nil(t, r.Person)
	}

	people, err := svc.ListPeople(context.Background())
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestFindPersonByIdentifier(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.FindPersonByIdentifier(ctx, "not-a-person")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = svc.FindPersonByIdentifier(ctx, "6f1c7f0e-2a52-4b43-9a5e-0d6b8f0c1d2e")
	require.NoError(t, err)
	assert.Nil(t, p)

	created, err := svc.AddPerson(ctx, model.NewPerson{Name: "Alice"})
	require.NoError(t, err)
	p, err = svc.FindPersonByIdentifier(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Alice", p.Name)
}

func TestAttachPhoto(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	err := svc.AttachPhoto(ctx, "missing", "/files/x.jpg")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	p, _ := svc.AddPerson(ctx, model.NewPerson{Name: "Alice"})
	require.NoError(t, svc.AttachPhoto(ctx, p.ID, "/files/person-photos/a.jpg"))

	got, _ := svc.FindPersonByIdentifier(ctx, p.ID)
	assert.Equal(t, "/files/person-photos/a.jpg", got.PhotoURL)
}

func TestAttachPhotoDropsActiveLoanListings(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.AddPerson(ctx, model.NewPerson{Name: "Alice"})
	require.NoError(t, err)

	fetches := 0
	listing := func(context.Context) ([]model.Loan, error) {
		fetches++
		return []model.Loan{{ID: "l1", PersonID: p.ID, Person: p}}, nil
	}
	_, err = cache.Load(ctx, svc.cache, cache.ActiveLoansKey(false), listing)
	require.NoError(t, err)

	require.NoError(t, svc.AttachPhoto(ctx, p.ID, "/files/people/alice.jpg"))

	_, err = cache.Load(ctx, svc.cache, cache.ActiveLoansKey(false), listing)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches, "listing embedding the person should be refetched")
}

func TestUploadPhoto(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.UploadPhoto(ctx, "6f1c7f0e-2a52-4b43-9a5e-0d6b8f0c1d2e", pngBytes(t))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	p, _ := svc.AddPerson(ctx, model.NewPerson{Name: "Alice"})

	_, err = svc.UploadPhoto(ctx, p.ID, []byte("plain text"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	ref, err := svc.UploadPhoto(ctx, p.ID, pngBytes(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/files/person-photos/"+p.ID+"/"), ref)

	got, _ := svc.FindPersonByIdentifier(ctx, p.ID)
	assert.Equal(t, ref, got.PhotoURL)
}

func TestImportSpreadsheet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ImportSpreadsheet(ctx, []byte("foo,bar\n1,2\n"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	results, err := svc.ImportSpreadsheet(ctx, []byte("Jméno,Datum Narození\nJan,2001-03-04\nEva,\nPetr,4.5.1999\n"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.Equal(t, "Jan", results[0].Person.Name)
	assert.Equal(t, "Petr", results[1].Person.Name)
	assert.True(t, results[1].Person.DateOfBirth.Equal(time.Date(1999, time.May, 4, 0, 0, 0, 0, time.UTC)))
}
