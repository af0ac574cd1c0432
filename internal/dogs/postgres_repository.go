package dogs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository persists dogs to a Postgres database.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const baseSelect = `
SELECT
    id,
    owner_id,
    name,
    primary_breed,
    secondary_breed,
    age,
    size,
    weight,
    temperament,
    vaccination_status,
    neutered,
    bio,
    location_lat,
    location_lng,
    location_display,
    created_at,
    updated_at
FROM dogs`

// Create inserts a new row and returns the stored representation.
func (r *PostgresRepository) Create(ctx context.Context, dog Dog) (Dog, error) {
	insert := `INSERT INTO dogs (id, owner_id, name, primary_breed, secondary_breed, age, size, weight, temperament, vaccination_status, neutered, bio, location_lat, location_lng, location_display, created_at, updated_at)
VALUES (:id, :owner_id, :name, :primary_breed, :secondary_breed, :age, :size, :weight, :temperament, :vaccination_status, :neutered, :bio, :location_lat, :location_lng, :location_display, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, insert, dog); err != nil {
		return Dog{}, fmt.Errorf("insert dog: %w", err)
	}

	return r.Get(ctx, dog.ID)
}

// Get retrieves a row by primary key.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Dog, error) {
	var dog Dog
	if err := r.db.GetContext(ctx, &dog, baseSelect+" WHERE id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Dog{}, ErrNotFound
		}
		return Dog{}, fmt.Errorf("get dog: %w", err)
	}
	return dog, nil
}

// ListByOwner returns an owner's dogs, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Dog, error) {
	result := make([]Dog, 0)
	query := baseSelect + " WHERE owner_id = $1 ORDER BY created_at DESC"
	if err := r.db.SelectContext(ctx, &result, query, ownerID); err != nil {
		return nil, fmt.Errorf("list dogs by owner: %w", err)
	}
	return result, nil
}

// ListWithin returns the dogs located inside bounds, newest first.
func (r *PostgresRepository) ListWithin(ctx context.Context, bounds Bounds) ([]Dog, error) {
	result := make([]Dog, 0)
	query := baseSelect + `
WHERE location_lat BETWEEN $1 AND $2
  AND location_lng BETWEEN $3 AND $4
ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &result, query, bounds.MinLat, bounds.MaxLat, bounds.MinLng, bounds.MaxLng); err != nil {
		return nil, fmt.Errorf("list dogs within bounds: %w", err)
	}
	return result, nil
}
