package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/model"
)

const personColumns = `id, name, date_of_birth, photo_url, created_at`

// CreatePerson creates a new person.
func CreatePerson(ctx context.Context, q db.Querier, p model.NewPerson) (*model.Person, error) {
	id := uuid.NewString()
	_, err := q.ExecContext(ctx,
		`INSERT INTO people (id, name, date_of_birth, photo_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, p.Name, p.DateOfBirth, p.PhotoURL, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating person: %w", err)
	}
	return GetPerson(ctx, q, id)
}

// GetPerson returns a person by ID.
func GetPerson(ctx context.Context, q db.Querier, id string) (*model.Person, error) {
	p := &model.Person{}
	err := q.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.DateOfBirth, &p.PhotoURL, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting person: %w", err)
	}
	return p, nil
}

// ListPeople returns all people ordered by name.
func ListPeople(ctx context.Context, q db.Querier) ([]model.Person, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+personColumns+` FROM people ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	defer rows.Close()

	var people []model.Person
	for rows.Next() {
		var p model.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.DateOfBirth, &p.PhotoURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning person: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// SetPersonPhoto stores a photo reference on a person.
func SetPersonPhoto(ctx context.Context, q db.Querier, id, photoRef string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE people SET photo_url = ? WHERE id = ?`, photoRef, id,
	)
	if err != nil {
		return fmt.Errorf("setting person photo: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
