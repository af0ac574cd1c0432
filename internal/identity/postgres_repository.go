package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, password_hash, is_anonymous, email_confirmed_at, provider, provider_id, metadata, created_at, updated_at, last_sign_in_at`

// FindUserByID looks up a user and password hash by id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, string, error) {
	query := `SELECT ` + userColumns + ` FROM identities WHERE id = $1`
	return r.findUser(ctx, query, id)
}

// FindUserByEmail looks up a user and password hash by email.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*User, string, error) {
	query := `SELECT ` + userColumns + ` FROM identities WHERE email = $1 AND email <> ''`
	return r.findUser(ctx, query, email)
}

// FindUserByOAuth looks up a user by their OAuth provider and subject.
func (r *PostgresRepository) FindUserByOAuth(ctx context.Context, provider Provider, providerID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM identities WHERE provider = $1 AND provider_id = $2`
	user, _, err := r.findUser(ctx, query, string(provider), providerID)
	return user, err
}

func (r *PostgresRepository) findUser(ctx context.Context, query string, args ...any) (*User, string, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}

	user, err := row.toUser()
	if err != nil {
		return nil, "", err
	}
	return user, row.PasswordHash, nil
}

// CreateUser inserts a new identity.
func (r *PostgresRepository) CreateUser(ctx context.Context, user User, passwordHash string) (User, error) {
	const query = `
		INSERT INTO identities (id, email, password_hash, is_anonymous, email_confirmed_at, provider, provider_id, metadata, created_at, updated_at, last_sign_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	metadata, err := encodeMetadata(user.Metadata)
	if err != nil {
		return User{}, err
	}

	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		passwordHash,
		user.IsAnonymous,
		user.EmailConfirmedAt,
		string(user.Provider),
		user.ProviderID,
		metadata,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastSignInAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}

	return user, nil
}

// LinkCredential turns an anonymous identity into an email/password one in place.
func (r *PostgresRepository) LinkCredential(ctx context.Context, id uuid.UUID, email, passwordHash string, at time.Time) (User, error) {
	query := `
		UPDATE identities
		SET email = $2, password_hash = $3, is_anonymous = false, provider = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + userColumns

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id, email, passwordHash, string(ProviderEmail), at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}

	user, err := row.toUser()
	if err != nil {
		return User{}, err
	}
	return *user, nil
}

// UpdatePassword replaces the password hash and confirms the email if it was not already.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	const query = `
		UPDATE identities
		SET password_hash = $2, email_confirmed_at = COALESCE(email_confirmed_at, $3), updated_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, passwordHash, at)
}

// MarkSignedIn records the last sign-in time.
func (r *PostgresRepository) MarkSignedIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE identities SET last_sign_in_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession inserts a new session.
func (r *PostgresRepository) CreateSession(ctx context.Context, session Session, tokenHash string) error {
	const query = `
		INSERT INTO identity_sessions (id, user_id, session_token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		tokenHash,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

// FindSessionByTokenHash looks up a session and its associated user by token hash.
func (r *PostgresRepository) FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, *User, error) {
	const query = `
		SELECT
			s.id AS session_id, s.expires_at, s.created_at AS session_created_at,
			u.id, u.email, u.password_hash, u.is_anonymous, u.email_confirmed_at, u.provider, u.provider_id,
			u.metadata, u.created_at, u.updated_at, u.last_sign_in_at
		FROM identity_sessions s
		JOIN identities u ON s.user_id = u.id
		WHERE s.session_token_hash = $1
	`

	var row sessionUserRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	user, err := row.userRow.toUser()
	if err != nil {
		return nil, nil, err
	}
	session := &Session{
		ID:        row.SessionID,
		UserID:    row.ID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.SessionCreatedAt,
	}
	return session, user, nil
}

// DeleteSession removes a session.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM identity_sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteUserSessions removes every session owned by userID.
func (r *PostgresRepository) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const query = `DELETE FROM identity_sessions WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM identity_sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// userRow is a database row representation of User.
type userRow struct {
	ID               uuid.UUID  `db:"id"`
	Email            string     `db:"email"`
	PasswordHash     string     `db:"password_hash"`
	IsAnonymous      bool       `db:"is_anonymous"`
	EmailConfirmedAt *time.Time `db:"email_confirmed_at"`
	Provider         string     `db:"provider"`
	ProviderID       string     `db:"provider_id"`
	Metadata         []byte     `db:"metadata"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	LastSignInAt     time.Time  `db:"last_sign_in_at"`
}

func (r *userRow) toUser() (*User, error) {
	var metadata map[string]string
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
	}
	return &User{
		ID:               r.ID,
		Email:            r.Email,
		IsAnonymous:      r.IsAnonymous,
		EmailConfirmedAt: r.EmailConfirmedAt,
		Provider:         Provider(r.Provider),
		ProviderID:       r.ProviderID,
		Metadata:         metadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		LastSignInAt:     r.LastSignInAt,
	}, nil
}

// sessionUserRow is a database row for the session + user join query.
type sessionUserRow struct {
	SessionID        uuid.UUID `db:"session_id"`
	ExpiresAt        time.Time `db:"expires_at"`
	SessionCreatedAt time.Time `db:"session_created_at"`
	userRow
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(encoded), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
