// Package roster manages borrowers.
package roster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/cache"
	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/events"
	"github.com/erazemk/pujcovna/internal/imaging"
	"github.com/erazemk/pujcovna/internal/importer"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/storage"
	"github.com/erazemk/pujcovna/internal/store"
)

// DefaultTimeout bounds an operation when New is given no timeout.
const DefaultTimeout = 5 * time.Second

// Service is the roster service.
type Service struct {
	db       *db.DB
	cache    *cache.Loader
	uploader storage.Uploader
	images   *imaging.Normalizer
	events   events.Publisher
	log      *zap.Logger
	timeout  time.Duration
}

// New returns a roster service. The loader is used to drop cached listings
// that embed people when a person changes.
func New(database *db.DB, loader *cache.Loader, uploader storage.Uploader, images *imaging.Normalizer, pub events.Publisher, log *zap.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{db: database, cache: loader, uploader: uploader, images: images, events: pub, log: log, timeout: timeout}
}

// BatchResult is the outcome of one record of a batch, in input order.
// Exactly one of Person and Err is set.
type BatchResult struct {
	Index  int           `json:"index"`
	Person *model.Person `json:"person,omitempty"`
	Err    error         `json:"-"`
}

// AddPerson creates a person.
func (s *Service) AddPerson(ctx context.Context, np model.NewPerson) (*model.Person, error) {
	const op = "roster.AddPerson"

	np.Name = strings.TrimSpace(np.Name)
	if np.Name == "" {
		return nil, apperr.Validation(op, "name is required")
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := store.CreatePerson(tctx, s.db, np)
	if err != nil {
		return nil, db.Classify(op, err)
	}

	s.publish(ctx, events.New(events.PersonCreated, p.ID, p))
	s.log.Info("person created", zap.String("person", p.ID))
	return p, nil
}

// BatchAddPeople inserts records one at a time and reports each outcome.
// Records not attempted because ctx ended carry the context error.
func (s *Service) BatchAddPeople(ctx context.Context, records []model.NewPerson) []BatchResult {
	results := make([]BatchResult, len(records))
	for i, rec := range records {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = apperr.Transient("roster.BatchAddPeople", err)
			continue
		}
		results[i].Person, results[i].Err = s.AddPerson(ctx, rec)
	}
	return results
}

// FindPersonByIdentifier returns a person or nil when there is none.
func (s *Service) FindPersonByIdentifier(ctx context.Context, id string) (*model.Person, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	p, err := store.GetPerson(tctx, s.db, id)
	if err != nil {
		return nil, db.Classify("roster.FindPersonByIdentifier", err)
	}
	return p, nil
}

// ListPeople returns every person ordered by name.
func (s *Service) ListPeople(ctx context.Context) ([]model.Person, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	people, err := store.ListPeople(tctx, s.db)
	if err != nil {
		return nil, db.Classify("roster.ListPeople", err)
	}
	if people == nil {
		people = []model.Person{}
	}
	return people, nil
}

// AttachPhoto stores a photo reference on a person.
func (s *Service) AttachPhoto(ctx context.Context, personID, photoRef string) error {
	const op = "roster.AttachPhoto"

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := store.SetPersonPhoto(tctx, s.db, personID, photoRef)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(op, "person %s not found", personID)
	}
	if err != nil {
		return db.Classify(op, err)
	}
	// Active loan listings embed the borrower.
	s.cache.Invalidate(ctx, cache.ActiveLoanKeys()...)
	return nil
}

// UploadPhoto normalizes an image, stores it and attaches it to the person.
func (s *Service) UploadPhoto(ctx context.Context, personID string, data []byte) (string, error) {
	const op = "roster.UploadPhoto"

	p, err := s.FindPersonByIdentifier(ctx, personID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", apperr.NotFound(op, "person %s not found", personID)
	}

	photo, err := s.images.Normalize(data)
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindValidation, Op: op, Msg: "invalid photo", Err: err}
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ref, err := s.uploader.UploadFile(tctx, storage.BucketPersonPhotos, personID+"/"+uuid.NewString()+".jpg", photo.Data)
	if err != nil {
		return "", db.Classify(op, err)
	}
	if err := s.AttachPhoto(ctx, personID, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// ImportSpreadsheet reads people from a spreadsheet and adds them as a batch.
func (s *Service) ImportSpreadsheet(ctx context.Context, data []byte) ([]BatchResult, error) {
	const op = "roster.ImportSpreadsheet"

	rows, err := importer.Parse(data)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Op: op, Msg: "unreadable spreadsheet", Err: err}
	}

	records := make([]model.NewPerson, len(rows))
	for i, row := range rows {
		dob := row.DateOfBirth
		records[i] = model.NewPerson{Name: row.Name, DateOfBirth: &dob}
	}

	results := s.BatchAddPeople(ctx, records)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.log.Info("spreadsheet imported", zap.Int("rows", len(rows)), zap.Int("failed", failed))
	return results, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("publishing event failed", zap.String("type", e.Type), zap.String("key", e.Key), zap.Error(err))
	}
}
