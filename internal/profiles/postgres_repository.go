package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository persists profiles to a Postgres database.
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
    user_id,
    first_name,
    last_name,
    email,
    location,
    city,
    location_display,
    latitude,
    longitude,
    age,
    bio,
    profile_photo,
    user_type,
    guest_session_expires_at,
    converted_from_guest_at,
    auth_provider,
    email_verified,
    created_at,
    updated_at
FROM profiles`

// Create inserts a new row and returns the stored representation.
func (r *PostgresRepository) Create(ctx context.Context, profile Profile) (Profile, error) {
	insert := `INSERT INTO profiles (id, user_id, first_name, last_name, email, location, city, location_display, latitude, longitude, age, bio, profile_photo, user_type, guest_session_expires_at, converted_from_guest_at, auth_provider, email_verified, created_at, updated_at)
VALUES (:id, :user_id, :first_name, :last_name, :email, :location, :city, :location_display, :latitude, :longitude, :age, :bio, :profile_photo, :user_type, :guest_session_expires_at, :converted_from_guest_at, :auth_provider, :email_verified, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, insert, profile); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return Profile{}, ErrAlreadyExists
		}
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}

	return r.Get(ctx, profile.ID)
}

// Get retrieves a row by primary key.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	return r.getOne(ctx, baseSelect+" WHERE id = $1", id)
}

// GetByUserID retrieves the row owned by userID.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (Profile, error) {
	return r.getOne(ctx, baseSelect+" WHERE user_id = $1", userID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg uuid.UUID) (Profile, error) {
	var profile Profile
	if err := r.db.GetContext(ctx, &profile, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// Update persists every mutable column and returns the stored row.
func (r *PostgresRepository) Update(ctx context.Context, profile Profile) (Profile, error) {
	query := `UPDATE profiles SET
    first_name = :first_name,
    last_name = :last_name,
    email = :email,
    location = :location,
    city = :city,
    location_display = :location_display,
    latitude = :latitude,
    longitude = :longitude,
    age = :age,
    bio = :bio,
    profile_photo = :profile_photo,
    user_type = :user_type,
    guest_session_expires_at = :guest_session_expires_at,
    converted_from_guest_at = :converted_from_guest_at,
    auth_provider = :auth_provider,
    email_verified = :email_verified,
    updated_at = :updated_at
WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return Profile{}, ErrNotFound
	}

	return r.Get(ctx, profile.ID)
}
