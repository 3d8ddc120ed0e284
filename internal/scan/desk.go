package scan

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/apperr"
	"github.com/erazemk/pujcovna/internal/imaging"
	"github.com/erazemk/pujcovna/internal/model"
)

// PersonFinder looks up borrowers by id.
type PersonFinder interface {
	FindPersonByIdentifier(ctx context.Context, id string) (*model.Person, error)
}

// CatalogFinder looks up items and variants by id.
type CatalogFinder interface {
	FindItem(ctx context.Context, id string) (*model.Item, error)
	FindVariant(ctx context.Context, id string) (*model.Variant, error)
}

// Resolution kinds.
const (
	ResolvedPerson  = "person"
	ResolvedVariant = "variant"
	ResolvedItem    = "item"
)

// Resolution says what a submitted code turned out to be.
type Resolution struct {
	Code    string         `json:"code"`
	Kind    string         `json:"kind"`
	Person  *model.Person  `json:"person,omitempty"`
	Item    *model.Item    `json:"item,omitempty"`
	Variant *model.Variant `json:"variant,omitempty"`
	Session SessionView    `json:"session"`
}

// Desk runs scan sessions against the roster, catalog and loan services.
type Desk struct {
	sessions *Registry
	people   PersonFinder
	catalog  CatalogFinder
	loans    LoanCreator
	log      *zap.Logger
}

// NewDesk returns a Desk.
func NewDesk(sessions *Registry, people PersonFinder, catalog CatalogFinder, loans LoanCreator, log *zap.Logger) *Desk {
	return &Desk{sessions: sessions, people: people, catalog: catalog, loans: loans, log: log}
}

// Open starts a session.
func (d *Desk) Open() SessionView {
	return d.sessions.Open()
}

// Session returns a snapshot of a session.
func (d *Desk) Session(id string) (SessionView, error) {
	s, ok := d.sessions.get(id)
	if !ok {
		return SessionView{}, apperr.NotFound("scan.Session", "session %s not found", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Close ends a session.
func (d *Desk) Close(id string) error {
	if !d.sessions.Close(id) {
		return apperr.NotFound("scan.Close", "session %s not found", id)
	}
	return nil
}

// SubmitImage decodes an image and submits the code it holds. Images with
// no readable code are rejected without starting the throttle window.
func (d *Desk) SubmitImage(ctx context.Context, sessionID string, data []byte) (*Resolution, error) {
	const op = "scan.SubmitImage"

	s, err := d.lookup(op, sessionID)
	if err != nil {
		return nil, err
	}

	code, err := DecodeImage(data)
	if err != nil {
		if errors.Is(err, ErrNoCode) || errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, &apperr.Error{Kind: apperr.KindValidation, Op: op, Msg: "unreadable image", Err: err}
		}
		return nil, err
	}
	if err := d.admit(s, code); err != nil {
		return nil, err
	}
	return d.resolve(ctx, op, s, code)
}

// Submit resolves an already decoded code. The code may name a person, who
// becomes the borrower, or a variant or an item without variants, which adds
// one unit to the basket.
func (d *Desk) Submit(ctx context.Context, sessionID, code string) (*Resolution, error) {
	const op = "scan.Submit"

	s, err := d.lookup(op, sessionID)
	if err != nil {
		return nil, err
	}
	if err := d.admit(s, code); err != nil {
		return nil, err
	}
	return d.resolve(ctx, op, s, code)
}

func (d *Desk) lookup(op, sessionID string) (*Session, error) {
	s, ok := d.sessions.get(sessionID)
	if !ok {
		return nil, apperr.NotFound(op, "session %s not found", sessionID)
	}
	return s, nil
}

// admit spends the session's throttle window on a decoded code. Empty codes
// never count.
func (d *Desk) admit(s *Session, code string) error {
	if code == "" {
		return nil
	}
	if !s.throttle.Allow(d.sessions.now()) {
		return ErrThrottled
	}
	return nil
}

func (d *Desk) resolve(ctx context.Context, op string, s *Session, code string) (*Resolution, error) {
	if code == "" {
		return nil, apperr.Validation(op, "empty code")
	}
	res := &Resolution{Code: code}

	person, err := d.people.FindPersonByIdentifier(ctx, code)
	if err != nil {
		return nil, err
	}
	if person != nil {
		s.mu.Lock()
		s.personID = person.ID
		res.Session = s.view()
		s.mu.Unlock()

		res.Kind, res.Person = ResolvedPerson, person
		return res, nil
	}

	var entry Entry
	variant, err := d.catalog.FindVariant(ctx, code)
	if err != nil {
		return nil, err
	}
	if variant != nil {
		id := variant.ID
		entry = Entry{ItemID: variant.ItemID, VariantID: &id, Name: variant.Name, Quantity: 1}
		res.Kind, res.Variant = ResolvedVariant, variant
	} else {
		item, err := d.catalog.FindItem(ctx, code)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, apperr.NotFound(op, "code %q matches nothing", code)
		}
		if item.HasVariants() {
			return nil, apperr.Validation(op, "item %s has variants; scan a variant", item.ID)
		}
		entry = Entry{ItemID: item.ID, Name: item.Name, Quantity: 1}
		res.Kind, res.Item = ResolvedItem, item
	}

	s.mu.Lock()
	s.add(entry)
	res.Session = s.view()
	s.mu.Unlock()
	return res, nil
}

// SetBasket replaces the basket. Entries with a quantity of zero are dropped.
func (d *Desk) SetBasket(sessionID string, entries []Entry) (SessionView, error) {
	const op = "scan.SetBasket"

	basket := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ItemID == "" {
			return SessionView{}, apperr.Validation(op, "entry without item")
		}
		if e.Quantity < 0 {
			return SessionView{}, apperr.Validation(op, "negative quantity for item %s", e.ItemID)
		}
		if e.Quantity > 0 {
			basket = append(basket, e)
		}
	}

	s, ok := d.sessions.get(sessionID)
	if !ok {
		return SessionView{}, apperr.NotFound(op, "session %s not found", sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basket = basket
	return s.view(), nil
}

// Commit loans the basket to the session's borrower. Entries that succeed
// leave the basket; failed entries stay so they can be retried.
func (d *Desk) Commit(ctx context.Context, sessionID string) ([]CommitResult, error) {
	const op = "scan.Commit"

	s, ok := d.sessions.get(sessionID)
	if !ok {
		return nil, apperr.NotFound(op, "session %s not found", sessionID)
	}

	s.mu.Lock()
	personID := s.personID
	basket := make([]Entry, len(s.basket))
	copy(basket, s.basket)
	s.mu.Unlock()

	if personID == "" {
		return nil, apperr.Validation(op, "scan a borrower first")
	}
	if len(basket) == 0 {
		return nil, apperr.Validation(op, "basket is empty")
	}

	results := Commit(ctx, d.loans, basket, personID)

	remaining := []Entry{}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			remaining = append(remaining, r.Entry)
			failed++
		}
	}

	s.mu.Lock()
	s.basket = remaining
	s.mu.Unlock()

	d.log.Info("basket committed",
		zap.String("session", sessionID),
		zap.String("person", personID),
		zap.Int("entries", len(results)),
		zap.Int("failed", failed),
	)
	return results, nil
}
