package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"socialdog/internal/identity"
	"socialdog/internal/metrics"
	"socialdog/internal/profiles"
)

// DefaultGuestSessionHours is how long a guest profile stays valid when the
// caller does not choose.
const DefaultGuestSessionHours = 24

// MaxGuestSessionHours caps how long a guest may ask to stay signed in.
const MaxGuestSessionHours = 30 * 24

const reloadTimeout = 10 * time.Second

// Auth is the identity collaborator for a single client. *identity.Client implements it.
type Auth interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (identity.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error)
	SignInAnonymously(ctx context.Context) (identity.Session, error)
	SignInWithOAuth(ctx context.Context, claims identity.OAuthClaims) (identity.Session, error)
	LinkPassword(ctx context.Context, email, password string) (identity.User, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*identity.Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	Subscribe(fn identity.Listener) func()
}

// Profiles is the profile record collaborator. *profiles.Service implements it.
type Profiles interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
	Create(ctx context.Context, input profiles.CreateInput) (profiles.Profile, error)
	Update(ctx context.Context, id uuid.UUID, update profiles.ProfileUpdate) (profiles.Profile, error)
}

// Recorder receives operation outcomes. *metrics.Collector implements it.
type Recorder interface {
	RecordOperation(operation, outcome string)
	SetActiveClients(n int)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string) {}
func (noopRecorder) SetActiveClients(int)           {}

type settings struct {
	now           func() time.Time
	guestHours    int
	recorder      Recorder
	resetRedirect string
	onChange      func(Snapshot)
}

// Option configures managers.
type Option func(*settings)

// WithClock overrides the time source used for guest expiry and conversion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGuestSessionHours changes the default guest lifetime. Values outside
// 1..MaxGuestSessionHours are ignored.
func WithGuestSessionHours(hours int) Option {
	return func(s *settings) {
		if hours > 0 && hours <= MaxGuestSessionHours {
			s.guestHours = hours
		}
	}
}

// WithRecorder reports operation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *settings) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithPasswordResetRedirect sets the page password reset links point at.
func WithPasswordResetRedirect(url string) Option {
	return func(s *settings) {
		s.resetRedirect = url
	}
}

// WithChangeListener registers fn to run after every committed transition.
// fn must not call back into the manager.
func WithChangeListener(fn func(Snapshot)) Option {
	return func(s *settings) {
		s.onChange = fn
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		now:        func() time.Time { return time.Now().UTC() },
		guestHours: DefaultGuestSessionHours,
		recorder:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// SignUpDetails carries the profile fields collected on the sign-up form.
type SignUpDetails struct {
	FirstName string
	LastName  string
	Location  string
	City      string
	Latitude  *float64
	Longitude *float64
}

// GuestOptions tunes a guest sign-in. Zero values pick the defaults.
type GuestOptions struct {
	SessionDurationHours int
}

// ConversionData is the credential and name a guest supplies when upgrading.
// Empty names keep the guest profile's values.
type ConversionData struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Result describes a sign-in that succeeded. Degraded means the identity was
// established but its profile could not be loaded or created; Cause says why.
type Result struct {
	Degraded bool
	Cause    error
}

type change struct {
	event   identity.Event
	session *identity.Session
}

// Manager owns the sign-in state of one client and keeps its cached profile in
// step with the identity backend. It is safe for concurrent use; at most one
// sign-in, sign-up or conversion runs at a time.
type Manager struct {
	auth     Auth
	profiles Profiles
	logger   *slog.Logger
	settings

	mu            sync.Mutex
	state         State
	loading       bool
	started       bool
	closed        bool
	epoch         uint64
	lastUserID    uuid.UUID
	signOutEchoes int // SIGNED_OUT notifications still owed for local sign-outs
	pending       *change
	unsubscribe   func()
}

// NewManager creates a manager in the Unauthenticated state. Call Start to
// restore a stored session and begin listening for identity changes.
func NewManager(auth Auth, profileStore Profiles, logger *slog.Logger, opts ...Option) *Manager {
	return newManager(auth, profileStore, logger, newSettings(opts))
}

func newManager(auth Auth, profileStore Profiles, logger *slog.Logger, s settings) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		auth:     auth,
		profiles: profileStore,
		logger:   logger,
		settings: s,
		state:    Unauthenticated{},
	}
}

// Start resolves the stored session once and subscribes to identity changes.
// Later calls do nothing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.loading = true
	epoch := m.epoch
	m.mu.Unlock()

	unsubscribe := m.auth.Subscribe(m.handleChange)
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		err = classify("restore session", err)
		m.finish(epoch, nil)
		m.record("start", Result{}, err)
		return err
	}
	if sess == nil {
		m.finish(epoch, nil)
		m.record("start", Result{}, nil)
		return nil
	}

	var profile *profiles.Profile
	var result Result
	loaded, err := m.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		result = m.degraded("load", sess.UserID, err)
	} else {
		loaded = m.finishLinkedGuest(ctx, sess.User, loaded)
		profile = &loaded
	}

	m.finish(epoch, m.authenticate(*sess, profile))
	m.record("start", result, nil)
	return nil
}

// SignUp creates a credentialed identity and its permanent profile. A profile
// failure does not undo the identity; it is reported through Result.
func (m *Manager) SignUp(ctx context.Context, email, password string, details SignUpDetails) (Result, error) {
	const op = "sign up"
	result, err := m.signUp(ctx, op, email, password, details)
	m.record("sign_up", result, err)
	return result, err
}

func (m *Manager) signUp(ctx context.Context, op, email, password string, details SignUpDetails) (Result, error) {
	epoch, err := m.begin(op, KindCredentialed)
	if err != nil {
		return Result{}, err
	}

	metadata := map[string]string{
		"first_name": strings.TrimSpace(details.FirstName),
		"last_name":  strings.TrimSpace(details.LastName),
	}
	sess, err := m.auth.SignUp(ctx, email, password, metadata)
	if err != nil {
		m.finish(epoch, m.reset)
		return Result{}, classify(op, err)
	}

	city := strings.TrimSpace(details.City)
	if city == "" {
		city = details.Location
	}
	var profile *profiles.Profile
	var result Result
	created, err := m.profiles.Create(ctx, profiles.CreateInput{
		UserID:          sess.UserID,
		FirstName:       details.FirstName,
		LastName:        details.LastName,
		Email:           sess.User.Email,
		Location:        details.Location,
		City:            city,
		LocationDisplay: details.Location,
		Latitude:        details.Latitude,
		Longitude:       details.Longitude,
		UserType:        profiles.UserTypePermanent,
		AuthProvider:    profiles.AuthProviderEmail,
		EmailVerified:   false,
	})
	if err != nil {
		result = m.degraded("create", sess.UserID, err)
	} else {
		profile = &created
	}

	return result, m.complete(ctx, op, epoch, sess, profile)
}

// SignIn authenticates an email/password pair and loads the owner's profile.
// A profile load failure leaves the client signed in without a profile.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Result, error) {
	const op = "sign in"
	result, err := m.signIn(ctx, op, email, password)
	m.record("sign_in", result, err)
	return result, err
}

func (m *Manager) signIn(ctx context.Context, op, email, password string) (Result, error) {
	epoch, err := m.begin(op, KindCredentialed)
	if err != nil {
		return Result{}, err
	}

	sess, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.finish(epoch, m.reset)
		return Result{}, classify(op, err)
	}

	var profile *profiles.Profile
	var result Result
	loaded, err := m.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		result = m.degraded("load", sess.UserID, err)
	} else {
		loaded = m.finishLinkedGuest(ctx, sess.User, loaded)
		profile = &loaded
	}

	return result, m.complete(ctx, op, epoch, sess, profile)
}

// SignInAsGuest creates an anonymous identity with a time-limited guest profile.
func (m *Manager) SignInAsGuest(ctx context.Context, opts GuestOptions) (Result, error) {
	const op = "sign in as guest"
	result, err := m.signInAsGuest(ctx, op, opts)
	m.record("sign_in_guest", result, err)
	return result, err
}

func (m *Manager) signInAsGuest(ctx context.Context, op string, opts GuestOptions) (Result, error) {
	hours := opts.SessionDurationHours
	if hours <= 0 {
		hours = m.guestHours
	}
	if hours > MaxGuestSessionHours {
		return Result{}, precondition(op, ErrGuestDurationTooLong)
	}

	epoch, err := m.begin(op, KindGuest)
	if err != nil {
		return Result{}, err
	}

	sess, err := m.auth.SignInAnonymously(ctx)
	if err != nil {
		m.finish(epoch, m.reset)
		return Result{}, classify(op, err)
	}

	expires := m.now().Add(time.Duration(hours) * time.Hour)
	var profile *profiles.Profile
	var result Result
	created, err := m.profiles.Create(ctx, profiles.CreateInput{
		UserID:                sess.UserID,
		FirstName:             "Guest",
		LastName:              "User",
		UserType:              profiles.UserTypeGuest,
		GuestSessionExpiresAt: &expires,
		AuthProvider:          profiles.AuthProviderAnonymous,
	})
	if err != nil {
		result = m.degraded("create", sess.UserID, err)
	} else {
		profile = &created
	}

	return result, m.complete(ctx, op, epoch, sess, profile)
}

// SignInWithOAuth signs in with verified Google claims. The profile is created
// on the first sign-in of that Google account.
func (m *Manager) SignInWithOAuth(ctx context.Context, claims identity.OAuthClaims) (Result, error) {
	const op = "sign in with google"
	result, err := m.signInWithOAuth(ctx, op, claims)
	m.record("sign_in_oauth", result, err)
	return result, err
}

func (m *Manager) signInWithOAuth(ctx context.Context, op string, claims identity.OAuthClaims) (Result, error) {
	epoch, err := m.begin(op, KindCredentialed)
	if err != nil {
		return Result{}, err
	}

	sess, err := m.auth.SignInWithOAuth(ctx, claims)
	if err != nil {
		m.finish(epoch, m.reset)
		return Result{}, classify(op, err)
	}

	var profile *profiles.Profile
	var result Result
	loaded, err := m.profiles.GetByUserID(ctx, sess.UserID)
	if errors.Is(err, profiles.ErrNotFound) {
		md := sess.User.Metadata
		loaded, err = m.profiles.Create(ctx, profiles.CreateInput{
			UserID:        sess.UserID,
			FirstName:     md["first_name"],
			LastName:      md["last_name"],
			Email:         sess.User.Email,
			ProfilePhoto:  md["avatar_url"],
			UserType:      profiles.UserTypePermanent,
			AuthProvider:  profiles.AuthProviderGoogle,
			EmailVerified: sess.User.EmailConfirmedAt != nil,
		})
	}
	if err != nil {
		result = m.degraded("load", sess.UserID, err)
	} else {
		profile = &loaded
	}

	return result, m.complete(ctx, op, epoch, sess, profile)
}

// ConvertToAccount upgrades the current guest to a permanent account by linking
// an email/password credential to the same identity. It fails without
// contacting the backend unless a guest with a cached profile is signed in.
// The conversion is complete only once the profile reflects it, so a profile
// update failure is returned. Calling it again after such a failure, with the
// same email, finishes the profile update without linking a second time.
func (m *Manager) ConvertToAccount(ctx context.Context, data ConversionData) error {
	err := m.convert(ctx, data)
	m.record("convert", Result{}, err)
	return err
}

func (m *Manager) convert(ctx context.Context, data ConversionData) error {
	const op = "convert account"

	m.mu.Lock()
	current, ok := m.state.(Authenticated)
	var reason error
	switch {
	case m.loading:
		reason = ErrOperationInProgress
	case !ok:
		reason = ErrNotSignedIn
	case !current.Session.User.IsAnonymous && (current.Profile == nil || !current.Profile.IsGuest()):
		reason = ErrNotGuest
	case current.Profile == nil:
		reason = ErrNoProfile
	case !current.Session.User.IsAnonymous && !strings.EqualFold(strings.TrimSpace(data.Email), current.Session.User.Email):
		reason = ErrLinkedToOtherEmail
	}
	if reason != nil {
		m.mu.Unlock()
		return precondition(op, reason)
	}
	m.loading = true
	m.state = Converting{Session: current.Session, Profile: *current.Profile}
	m.epoch++
	epoch := m.epoch
	snap := newSnapshot(m.state, m.loading)
	m.mu.Unlock()
	m.publish(snap)

	user := current.Session.User
	if user.IsAnonymous {
		linkedUser, err := m.auth.LinkPassword(ctx, data.Email, data.Password)
		if err != nil {
			m.finish(epoch, func() { m.state = current })
			return classify(op, err)
		}
		user = linkedUser
	} else {
		m.logger.Info("resuming guest conversion", "user_id", user.ID)
	}

	linked := current.Session
	linked.User = user

	updated, err := m.profiles.Update(ctx, current.Profile.ID, m.conversionUpdate(user, data.FirstName, data.LastName))
	if err != nil {
		m.logger.Error("profile conversion failed", "user_id", linked.UserID, "error", err)
		m.finish(epoch, func() {
			m.state = Authenticated{Session: linked, Profile: current.Profile}
		})
		return backend(op, fmt.Errorf("update profile: %w", err))
	}

	if !m.finish(epoch, func() {
		m.state = Authenticated{Session: linked, Profile: &updated}
	}) {
		return precondition(op, ErrSignedOutDuringOperation)
	}
	m.logger.Info("guest converted to permanent account", "user_id", linked.UserID)
	return nil
}

// UpdateProfile sends the set fields of update and caches the row the store
// returns.
func (m *Manager) UpdateProfile(ctx context.Context, update profiles.ProfileUpdate) (profiles.Profile, error) {
	const op = "update profile"

	m.mu.Lock()
	current, ok := m.state.(Authenticated)
	busy := m.loading
	m.mu.Unlock()
	switch {
	case busy:
		err := precondition(op, ErrOperationInProgress)
		m.record("update_profile", Result{}, err)
		return profiles.Profile{}, err
	case !ok || current.Profile == nil:
		err := precondition(op, ErrNoProfile)
		m.record("update_profile", Result{}, err)
		return profiles.Profile{}, err
	}

	updated, err := m.profiles.Update(ctx, current.Profile.ID, update)
	if err != nil {
		err = classify(op, err)
		m.record("update_profile", Result{}, err)
		return profiles.Profile{}, err
	}

	m.replaceProfile(updated)
	m.record("update_profile", Result{}, nil)
	return updated, nil
}

// RefreshProfile reloads the cached profile. It does nothing when no identity
// is signed in.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	const op = "refresh profile"

	m.mu.Lock()
	current, ok := m.state.(Authenticated)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	profile, err := m.profiles.GetByUserID(ctx, current.Session.UserID)
	if err != nil {
		err = classify(op, err)
		m.record("refresh_profile", Result{}, err)
		return err
	}
	profile = m.finishLinkedGuest(ctx, current.Session.User, profile)

	m.replaceProfile(profile)
	m.record("refresh_profile", Result{}, nil)
	return nil
}

// SendPasswordReset asks the backend to mail a reset link. Local state is untouched.
func (m *Manager) SendPasswordReset(ctx context.Context, email string) error {
	var err error
	if resetErr := m.auth.ResetPasswordForEmail(ctx, email, m.resetRedirect); resetErr != nil {
		err = backend("send password reset", resetErr)
	}
	m.record("password_reset", Result{}, err)
	return err
}

// SignOut clears the local identity and profile, then revokes the session at
// the backend. Local state is cleared even when revocation fails.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.state = Unauthenticated{}
	m.lastUserID = uuid.Nil
	m.signOutEchoes++
	m.pending = nil
	m.epoch++
	snap := newSnapshot(m.state, m.loading)
	m.mu.Unlock()
	m.publish(snap)

	var err error
	if signOutErr := m.auth.SignOut(ctx); signOutErr != nil {
		m.logger.Warn("backend sign out failed", "error", signOutErr)
		err = backend("sign out", signOutErr)
	}
	m.record("sign_out", Result{}, err)
	return err
}

// ExpireGuest signs out a guest whose session window has passed and reports
// whether it did. Identities holding a linked credential are never expired.
func (m *Manager) ExpireGuest(ctx context.Context) (bool, error) {
	m.mu.Lock()
	current, ok := m.state.(Authenticated)
	expired := ok && current.Session.User.IsAnonymous &&
		current.Profile != nil && current.Profile.GuestExpired(m.now())
	m.mu.Unlock()
	if !expired {
		return false, nil
	}

	m.logger.Info("guest session expired", "user_id", current.Session.UserID)
	return true, m.SignOut(ctx)
}

// Snapshot returns the current state with its derived flags.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newSnapshot(m.state, m.loading)
}

// State returns the current state variant.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops listening for identity changes.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// begin claims the single operation slot for a sign-in from Unauthenticated.
func (m *Manager) begin(op string, kind Kind) (uint64, error) {
	m.mu.Lock()
	switch {
	case m.loading:
		m.mu.Unlock()
		return 0, precondition(op, ErrOperationInProgress)
	case m.state.Phase() != PhaseUnauthenticated:
		m.mu.Unlock()
		return 0, precondition(op, ErrAlreadySignedIn)
	}
	m.loading = true
	m.state = Authenticating{Kind: kind}
	m.epoch++
	epoch := m.epoch
	snap := newSnapshot(m.state, m.loading)
	m.mu.Unlock()

	m.publish(snap)
	return epoch, nil
}

// finish releases the operation slot. commit runs only if nothing else moved
// the state since epoch; the result reports whether it ran. Notifications
// that arrived meanwhile are applied afterwards.
func (m *Manager) finish(epoch uint64, commit func()) bool {
	m.mu.Lock()
	applied := false
	if commit != nil && m.epoch == epoch && !m.closed {
		commit()
		m.epoch++
		applied = true
	}
	m.loading = false
	pending := m.pending
	m.pending = nil
	snap := newSnapshot(m.state, m.loading)
	m.mu.Unlock()

	m.publish(snap)
	if pending != nil && applied {
		m.handleChange(pending.event, pending.session)
	}
	return applied
}

// complete commits a successful sign-in. If the client signed out while the
// backend call was running, the new backend session is revoked instead.
func (m *Manager) complete(ctx context.Context, op string, epoch uint64, sess identity.Session, profile *profiles.Profile) error {
	if m.finish(epoch, m.authenticate(sess, profile)) {
		m.logger.Info("signed in", "user_id", sess.UserID, "anonymous", sess.User.IsAnonymous, "degraded", profile == nil)
		return nil
	}
	m.mu.Lock()
	m.signOutEchoes++
	m.mu.Unlock()
	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Warn("revoke abandoned session failed", "user_id", sess.UserID, "error", err)
	}
	return precondition(op, ErrSignedOutDuringOperation)
}

func (m *Manager) authenticate(sess identity.Session, profile *profiles.Profile) func() {
	return func() {
		m.state = Authenticated{Session: sess, Profile: profile}
		m.lastUserID = sess.UserID
	}
}

func (m *Manager) reset() {
	m.state = Unauthenticated{}
}

func (m *Manager) degraded(action string, userID uuid.UUID, err error) Result {
	m.logger.Warn("profile "+action+" failed after sign-in", "user_id", userID, "error", err)
	return Result{Degraded: true, Cause: err}
}

// replaceProfile caches profile if its owner is still the signed-in identity.
func (m *Manager) replaceProfile(profile profiles.Profile) bool {
	m.mu.Lock()
	current, ok := m.state.(Authenticated)
	if !ok || current.Session.UserID != profile.UserID {
		m.mu.Unlock()
		return false
	}
	current.Profile = &profile
	m.state = current
	m.epoch++
	snap := newSnapshot(m.state, m.loading)
	m.mu.Unlock()

	m.publish(snap)
	return true
}

// handleChange applies an identity notification. Notifications for the
// identity already reflected locally never reload the profile.
func (m *Manager) handleChange(event identity.Event, sess *identity.Session) {
	if event == identity.EventInitialSession {
		// Start resolves the stored session itself.
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.signOutEchoes > 0 {
		// Queued before a local sign-out, which already cleared the state.
		if sess == nil {
			m.signOutEchoes--
		}
		m.mu.Unlock()
		return
	}
	if m.loading {
		m.pending = &change{event: event, session: sess}
		m.mu.Unlock()
		return
	}

	if sess == nil {
		if m.state.Phase() == PhaseUnauthenticated && m.lastUserID == uuid.Nil {
			m.mu.Unlock()
			return
		}
		m.state = Unauthenticated{}
		m.lastUserID = uuid.Nil
		m.epoch++
		snap := newSnapshot(m.state, m.loading)
		m.mu.Unlock()

		m.logger.Debug("identity cleared by backend", "event", event)
		m.publish(snap)
		return
	}

	if sess.UserID == m.lastUserID {
		current, ok := m.state.(Authenticated)
		if !ok || sess.User.UpdatedAt.Before(current.Session.User.UpdatedAt) {
			m.mu.Unlock()
			return
		}
		current.Session = *sess
		m.state = current
		m.mu.Unlock()

		if event == identity.EventSignedIn && current.Profile != nil {
			m.syncEmailVerified(sess.User, *current.Profile)
		}
		return
	}

	m.lastUserID = sess.UserID
	m.state = Authenticated{Session: *sess}
	m.epoch++
	snap := newSnapshot(m.state, m.loading)
	m.mu.Unlock()
	m.publish(snap)

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	profile, err := m.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		m.logger.Warn("profile reload failed", "user_id", sess.UserID, "event", event, "error", err)
		return
	}
	profile = m.finishLinkedGuest(ctx, sess.User, profile)
	if !m.replaceProfile(profile) {
		return
	}
	if event == identity.EventSignedIn {
		m.syncEmailVerified(sess.User, profile)
	}
}

// conversionUpdate turns a guest profile into the permanent profile of user.
// Empty names keep the stored ones.
func (m *Manager) conversionUpdate(user identity.User, firstName, lastName string) profiles.ProfileUpdate {
	now := m.now()
	convertedAt := &now
	var noExpiry *time.Time
	userType := profiles.UserTypePermanent
	provider := profiles.AuthProviderEmail
	verified := false
	email := user.Email
	update := profiles.ProfileUpdate{
		Email:                 &email,
		UserType:              &userType,
		AuthProvider:          &provider,
		EmailVerified:         &verified,
		GuestSessionExpiresAt: &noExpiry,
		ConvertedFromGuestAt:  &convertedAt,
	}
	if first := strings.TrimSpace(firstName); first != "" {
		update.FirstName = &first
	}
	if last := strings.TrimSpace(lastName); last != "" {
		update.LastName = &last
	}
	return update
}

// finishLinkedGuest completes the profile half of a conversion whose credential
// was linked but whose profile still says guest. The profile is returned
// unchanged when there is nothing to finish or the update fails.
func (m *Manager) finishLinkedGuest(ctx context.Context, user identity.User, profile profiles.Profile) profiles.Profile {
	if user.IsAnonymous || !profile.IsGuest() {
		return profile
	}

	updated, err := m.profiles.Update(ctx, profile.ID, m.conversionUpdate(user, "", ""))
	if err != nil {
		m.logger.Warn("finishing guest conversion failed", "user_id", user.ID, "error", err)
		return profile
	}
	m.logger.Info("finished interrupted guest conversion", "user_id", user.ID)
	return updated
}

// syncEmailVerified marks the profile verified once the identity reports a
// confirmed email.
func (m *Manager) syncEmailVerified(user identity.User, profile profiles.Profile) {
	if user.EmailConfirmedAt == nil || profile.EmailVerified {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	verified := true
	updated, err := m.profiles.Update(ctx, profile.ID, profiles.ProfileUpdate{EmailVerified: &verified})
	if err != nil {
		m.logger.Warn("email verification sync failed", "user_id", user.ID, "error", err)
		return
	}
	m.replaceProfile(updated)
}

func (m *Manager) publish(snap Snapshot) {
	if m.onChange != nil {
		m.onChange(snap)
	}
}

func (m *Manager) record(operation string, result Result, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, ErrCredential):
		outcome = metrics.OutcomeCredentialError
	case errors.Is(err, ErrPrecondition):
		outcome = metrics.OutcomePreconditionError
	case errors.Is(err, profiles.ErrValidation):
		outcome = metrics.OutcomeInvalidInput
	case err != nil:
		outcome = metrics.OutcomeBackendError
	case result.Degraded:
		outcome = metrics.OutcomeDegraded
	}
	m.recorder.RecordOperation(operation, outcome)
}
