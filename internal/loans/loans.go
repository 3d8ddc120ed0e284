// Package loans runs the loan lifecycle. A loan is Active until it is
// returned; Returned is terminal. Availability moves only through the
// store's conditional update, inside the same transaction as the loan row.
package loans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
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

// DefaultTimeout bounds an operation when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Config wires a Service.
type Config struct {
	DB       *db.DB
	Cache    *cache.Loader
	Uploader storage.Uploader
	Images   *imaging.Normalizer
	Events   events.Publisher
	Log      *zap.Logger
	Timeout  time.Duration
}

// Service is the loan service.
type Service struct {
	db       *db.DB
	cache    *cache.Loader
	uploader storage.Uploader
	images   *imaging.Normalizer
	events   events.Publisher
	log      *zap.Logger
	timeout  time.Duration
}

// New returns a loan service.
func New(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Service{
		db:       cfg.DB,
		cache:    cfg.Cache,
		uploader: cfg.Uploader,
		images:   cfg.Images,
		events:   cfg.Events,
		log:      cfg.Log,
		timeout:  cfg.Timeout,
	}
}

// CreateLoan debits the target and records an active loan in one transaction.
func (s *Service) CreateLoan(ctx context.Context, target model.Target, personID string, quantity int, notes string) (*model.Loan, error) {
	const op = "loans.CreateLoan"

	if target == nil {
		return nil, apperr.Validation(op, "target is required")
	}
	if quantity <= 0 {
		return nil, apperr.Validation(op, "quantity must be positive")
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var loan *model.Loan
	var avail *model.Availability
	err := s.db.WithTx(tctx, func(tx *db.Tx) error {
		person, err := store.GetPerson(tctx, tx, personID)
		if err != nil {
			return err
		}
		if person == nil {
			return apperr.NotFound(op, "person %s not found", personID)
		}

		if err := checkTarget(tctx, tx, op, target); err != nil {
			return err
		}

		avail, err = store.AdjustAvailability(tctx, tx, target, quantity)
		var rangeErr *store.RangeError
		switch {
		case errors.As(err, &rangeErr):
			return &apperr.Error{
				Kind: apperr.KindInsufficientAvailability,
				Op:   op,
				Msg:  "requested more than is available",
				Err:  err,
			}
		case errors.Is(err, store.ErrNotFound):
			return apperr.NotFound(op, "%s not found", target)
		case err != nil:
			return err
		}

		loan, err = store.CreateLoan(tctx, tx, store.NewLoan{
			Target:   target,
			PersonID: personID,
			Quantity: quantity,
			Notes:    notes,
		})
		return err
	})
	cache.DropTarget(ctx, s.cache, target)
	if err != nil {
		return nil, db.Classify(op, err)
	}

	s.publish(ctx, events.New(events.LoanCreated, target.Item(), loan))
	s.log.Info("loan created",
		zap.String("loan", loan.ID),
		zap.Stringer("target", target),
		zap.String("person", personID),
		zap.Int("quantity", quantity),
		zap.Int("available", avail.Available),
	)
	return loan, nil
}

// checkTarget locks the target's item, then rejects an item target on an item
// with variants and a variant that does not belong to the named item. The lock
// keeps AddVariant from racing a direct loan.
func checkTarget(ctx context.Context, q db.Querier, op string, target model.Target) error {
	err := store.LockItem(ctx, q, target.Item())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(op, "item %s not found", target.Item())
	}
	if err != nil {
		return err
	}

	item, err := store.GetItem(ctx, q, target.Item())
	if err != nil {
		return err
	}
	if item == nil {
		return apperr.NotFound(op, "item %s not found", target.Item())
	}

	switch t := target.(type) {
	case model.ItemTarget:
		if item.HasVariants() {
			return apperr.Validation(op, "item %s has variants; choose one", item.ID)
		}
		return nil
	case model.VariantTarget:
		for _, v := range item.Variants {
			if v.ID == t.VariantID {
				return nil
			}
		}
		return apperr.NotFound(op, "variant %s not found on item %s", t.VariantID, t.ItemID)
	}
	return apperr.Validation(op, "unknown target %T", target)
}

// ReturnLoan closes an active loan and credits its quantity back.
func (s *Service) ReturnLoan(ctx context.Context, loanID string) error {
	const op = "loans.ReturnLoan"

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var returned *store.ReturnedLoan
	var avail *model.Availability
	err := s.db.WithTx(tctx, func(tx *db.Tx) error {
		var err error
		returned, err = store.MarkLoanReturned(tctx, tx, loanID, time.Now().UTC())
		switch {
		case errors.Is(err, store.ErrNotFound):
			return apperr.NotFound(op, "loan %s not found", loanID)
		case errors.Is(err, store.ErrAlreadyReturned):
			return apperr.AlreadyReturned(op, "loan %s is already returned", loanID)
		case err != nil:
			return err
		}

		avail, err = store.AdjustAvailability(tctx, tx, returned.Target, -returned.Quantity)
		var rangeErr *store.RangeError
		switch {
		case errors.As(err, &rangeErr):
			return &apperr.Error{Kind: apperr.KindInvariant, Op: op, Msg: "credit exceeds total", Err: err}
		case errors.Is(err, store.ErrNotFound):
			return apperr.Invariant(op, "loan %s references missing %s", loanID, returned.Target)
		}
		return err
	})
	if returned != nil {
		cache.DropTarget(ctx, s.cache, returned.Target)
	}
	if err != nil {
		return db.Classify(op, err)
	}

	s.publish(ctx, events.New(events.LoanReturned, returned.Target.Item(), map[string]any{
		"loan_id":  loanID,
		"target":   returned.Target.String(),
		"quantity": returned.Quantity,
	}))
	s.log.Info("loan returned", zap.String("loan", loanID), zap.Int("quantity", returned.Quantity),
		zap.Int("available", avail.Available))
	return nil
}

// UpdateConditionNotes sets the condition notes of a loan in either state.
// A nil photoRef keeps the current photo.
func (s *Service) UpdateConditionNotes(ctx context.Context, loanID, notes string, photoRef *string) (*model.Loan, error) {
	return s.updateCondition(ctx, "loans.UpdateConditionNotes", loanID, store.ConditionPatch{Notes: &notes, Photo: photoRef})
}

// UploadConditionPhoto normalizes and stores a condition photo and attaches
// it to the loan, leaving the notes as they are.
func (s *Service) UploadConditionPhoto(ctx context.Context, loanID string, data []byte) (string, error) {
	const op = "loans.UploadConditionPhoto"

	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return "", err
	}

	photo, err := s.images.Normalize(data)
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindValidation, Op: op, Msg: "invalid photo", Err: err}
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ref, err := s.uploader.UploadFile(tctx, storage.BucketConditionPhotos, loanID+"/"+uuid.NewString()+".jpg", photo.Data)
	if err != nil {
		return "", db.Classify(op, err)
	}

	if _, err := s.updateCondition(ctx, op, loanID, store.ConditionPatch{Photo: &ref}); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *Service) updateCondition(ctx context.Context, op, loanID string, patch store.ConditionPatch) (*model.Loan, error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := store.UpdateLoanCondition(tctx, s.db, loanID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(op, "loan %s not found", loanID)
	}
	if err != nil {
		return nil, db.Classify(op, err)
	}

	loan, err := store.GetLoan(tctx, s.db, loanID)
	if err != nil {
		return nil, db.Classify(op, err)
	}
	if loan == nil {
		return nil, apperr.NotFound(op, "loan %s not found", loanID)
	}

	s.cache.Invalidate(ctx, cache.ActiveLoanKeys()...)
	s.publish(ctx, events.New(events.LoanConditionUpdated, loan.ItemID, map[string]string{
		"loan_id":         loan.ID,
		"condition_notes": loan.ConditionNotes,
		"condition_photo": loan.ConditionPhoto,
	}))
	return loan, nil
}

// GetLoan returns a loan joined with its item, variant and person.
func (s *Service) GetLoan(ctx context.Context, loanID string) (*model.Loan, error) {
	const op = "loans.GetLoan"

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	loan, err := store.GetLoan(tctx, s.db, loanID)
	if err != nil {
		return nil, db.Classify(op, err)
	}
	if loan == nil {
		return nil, apperr.NotFound(op, "loan %s not found", loanID)
	}
	return loan, nil
}

// ListActive returns active loans, most recent first. Loans of consumable
// items are included only when asked for.
func (s *Service) ListActive(ctx context.Context, includeConsumables bool) ([]model.Loan, error) {
	const op = "loans.ListActive"

	loans, err := cache.Load(ctx, s.cache, cache.ActiveLoansKey(includeConsumables), func(ctx context.Context) ([]model.Loan, error) {
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		loans, err := store.ListActiveLoans(tctx, s.db, includeConsumables)
		if loans == nil && err == nil {
			loans = []model.Loan{}
		}
		return loans, err
	})
	if err != nil {
		return nil, db.Classify(op, err)
	}
	return loans, nil
}

// History returns one page of all loans matching filter.
func (s *Service) History(ctx context.Context, filter store.LoanFilter, cursor string, limit int) (*store.LoanPage, error) {
	const op = "loans.History"

	switch filter.State {
	case "", model.LoanStateActive, model.LoanStateReturned:
	default:
		return nil, apperr.Validation(op, "unknown state %q", filter.State)
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := store.ListLoans(tctx, s.db, filter, cursor, limit)
	if errors.Is(err, store.ErrInvalidCursor) {
		return nil, apperr.Validation(op, "invalid cursor")
	}
	if err != nil {
		return nil, db.Classify(op, err)
	}
	return page, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("publishing event failed", zap.String("type", e.Type), zap.String("key", e.Key), zap.Error(err))
	}
}
