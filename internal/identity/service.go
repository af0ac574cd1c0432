package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service provides identity business logic: credentials, anonymous identities and sessions.
type Service struct {
	repo         Repository
	sessionTTL   time.Duration
	resetSecret  []byte
	resetTTL     time.Duration
	mailer       Mailer
	passwordCost int
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithResetTokenSecret sets the HMAC key used to sign password reset tokens.
func WithResetTokenSecret(secret []byte) Option {
	return func(s *Service) {
		s.resetSecret = secret
	}
}

// WithResetTokenTTL overrides how long a reset link stays valid.
func WithResetTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithMailer sets the reset link delivery channel.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		s.mailer = m
	}
}

// WithPasswordCost overrides the bcrypt cost, mostly so tests stay fast.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.passwordCost = cost
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new identity Service.
func NewService(repo Repository, sessionTTL time.Duration, opts ...Option) *Service {
	if sessionTTL == 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	s := &Service{
		repo:         repo,
		sessionTTL:   sessionTTL,
		resetTTL:     time.Hour,
		passwordCost: bcrypt.DefaultCost,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp creates a credentialed identity and returns its first session.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]string) (Session, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return Session{}, err
	}
	if err := validatePassword(password); err != nil {
		return Session{}, err
	}

	hash, err := hashPassword(password, s.passwordCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := User{
		ID:           uuid.New(),
		Email:        email,
		Provider:     ProviderEmail,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSignInAt: now,
	}

	created, err := s.repo.CreateUser(ctx, user, hash)
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	return s.createSession(ctx, created)
}

// SignInWithPassword validates an email/password pair and opens a session.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	user, hash, err := s.repo.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := comparePassword(hash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("compare password: %w", err)
	}

	if err := s.markSignedIn(ctx, user); err != nil {
		return Session{}, err
	}
	return s.createSession(ctx, *user)
}

// SignInAnonymously creates a fresh anonymous identity and opens a session for it.
func (s *Service) SignInAnonymously(ctx context.Context) (Session, error) {
	now := s.now()
	user := User{
		ID:           uuid.New(),
		IsAnonymous:  true,
		Provider:     ProviderAnonymous,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSignInAt: now,
	}

	created, err := s.repo.CreateUser(ctx, user, "")
	if err != nil {
		return Session{}, fmt.Errorf("create anonymous user: %w", err)
	}

	return s.createSession(ctx, created)
}

// SignInWithOAuth finds the identity for the OAuth subject, creating it on first sign-in.
func (s *Service) SignInWithOAuth(ctx context.Context, claims OAuthClaims) (Session, error) {
	if claims.Sub == "" {
		return Session{}, ErrInvalidCredentials
	}

	existing, err := s.repo.FindUserByOAuth(ctx, ProviderGoogle, claims.Sub)
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	if existing != nil {
		if err := s.markSignedIn(ctx, existing); err != nil {
			return Session{}, err
		}
		return s.createSession(ctx, *existing)
	}

	now := s.now()
	user := User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(claims.Email),
		Provider:     ProviderGoogle,
		ProviderID:   claims.Sub,
		Metadata:     oauthMetadata(claims),
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSignInAt: now,
	}
	if claims.EmailVerified {
		user.EmailConfirmedAt = &now
	}

	created, err := s.repo.CreateUser(ctx, user, "")
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	return s.createSession(ctx, created)
}

// LinkPassword attaches an email/password credential to the anonymous identity
// behind token. The identity keeps its id and stops being anonymous.
func (s *Service) LinkPassword(ctx context.Context, token, email, password string) (User, error) {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		return User{}, err
	}
	if session == nil {
		return User{}, ErrNoSession
	}
	if !session.User.IsAnonymous {
		return User{}, ErrNotAnonymous
	}

	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return User{}, err
	}
	if err := validatePassword(password); err != nil {
		return User{}, err
	}

	hash, err := hashPassword(password, s.passwordCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	linked, err := s.repo.LinkCredential(ctx, session.UserID, email, hash, s.now())
	if err != nil {
		return User{}, fmt.Errorf("link credential: %w", err)
	}
	return linked, nil
}

// ValidateSession checks if the token is valid and returns its session.
// A missing or expired session yields nil without an error.
func (s *Service) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}

	session, user, err := s.repo.FindSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil || user == nil {
		return nil, nil
	}

	if s.now().After(session.ExpiresAt) {
		if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete expired session", "session_id", session.ID, "error", err)
		}
		return nil, nil
	}

	session.Token = token
	session.User = *user
	return session, nil
}

// DeleteSession removes the session associated with the given token.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, _, err := s.repo.FindSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil
	}

	return s.repo.DeleteSession(ctx, session.ID)
}

// CleanupExpiredSessions removes all expired sessions.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}

// RequestPasswordReset mails a reset link for email. Unknown addresses succeed
// silently so the endpoint does not reveal which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	if len(s.resetSecret) == 0 || s.mailer == nil {
		return ErrResetUnavailable
	}

	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	user, hash, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		s.logger.DebugContext(ctx, "password reset requested for unknown email")
		return nil
	}

	token, err := s.issueResetToken(*user, hash)
	if err != nil {
		return err
	}

	link, err := resetLink(redirectTo, token)
	if err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword sets a new password using a token from RequestPasswordReset.
// Following the emailed link proves control of the address, so the email is
// confirmed too. Every open session for the identity is revoked.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(s.resetSecret) == 0 {
		return ErrResetUnavailable
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	userID, fingerprint, err := s.parseResetToken(token)
	if err != nil {
		return err
	}

	user, hash, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil || passwordFingerprint(hash) != fingerprint {
		return ErrInvalidResetToken
	}

	newHash, err := hashPassword(newPassword, s.passwordCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, newHash, s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.repo.DeleteUserSessions(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID, "revoked_sessions", revoked)
	return nil
}

func (s *Service) markSignedIn(ctx context.Context, user *User) error {
	now := s.now()
	if err := s.repo.MarkSignedIn(ctx, user.ID, now); err != nil {
		return fmt.Errorf("mark signed in: %w", err)
	}
	user.LastSignInAt = now
	return nil
}

func (s *Service) createSession(ctx context.Context, user User) (Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(tokenBytes)

	now := s.now()
	session := Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
		User:      user,
	}

	if err := s.repo.CreateSession(ctx, session, hashToken(token)); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func oauthMetadata(claims OAuthClaims) map[string]string {
	metadata := make(map[string]string, 4)
	first, last := claims.GivenName, claims.FamilyName
	if first == "" && last == "" && claims.Name != "" {
		first, last, _ = strings.Cut(strings.TrimSpace(claims.Name), " ")
	}
	if first != "" {
		metadata["first_name"] = first
	}
	if last != "" {
		metadata["last_name"] = strings.TrimSpace(last)
	}
	if claims.Picture != "" {
		metadata["avatar_url"] = claims.Picture
	}
	return metadata
}

func resetLink(redirectTo, token string) (string, error) {
	u, err := url.Parse(redirectTo)
	if err != nil {
		return "", fmt.Errorf("parse reset redirect: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// hashToken returns the SHA-256 hash of the token as a hex string.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
