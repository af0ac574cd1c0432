package session

import (
	"time"

	"socialdog/internal/identity"
	"socialdog/internal/profiles"
)

// Phase names the variant a State currently holds.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticating  Phase = "authenticating"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseConverting      Phase = "converting"
)

// Kind distinguishes the two ways of establishing an identity.
type Kind string

const (
	KindGuest        Kind = "guest"
	KindCredentialed Kind = "credentialed"
)

// State is the manager's current position in the sign-in lifecycle. The
// concrete types below are the only implementations.
type State interface {
	Phase() Phase
	isState()
}

// Unauthenticated holds no identity.
type Unauthenticated struct{}

// Authenticating is an identity operation waiting on the backend.
type Authenticating struct {
	Kind Kind
}

// Authenticated binds a backend session to its profile. Profile is nil when
// the identity succeeded but its profile could not be loaded or created.
type Authenticated struct {
	Session identity.Session
	Profile *profiles.Profile
}

// Converting is a guest being upgraded to a permanent account.
type Converting struct {
	Session identity.Session
	Profile profiles.Profile
}

func (Unauthenticated) Phase() Phase { return PhaseUnauthenticated }
func (Authenticating) Phase() Phase  { return PhaseAuthenticating }
func (Authenticated) Phase() Phase   { return PhaseAuthenticated }
func (Converting) Phase() Phase      { return PhaseConverting }

func (Unauthenticated) isState() {}
func (Authenticating) isState()  {}
func (Authenticated) isState()   {}
func (Converting) isState()      {}

// Snapshot is a read-only view of a manager. The capability flags are derived
// from User and Profile every time a snapshot is taken.
type Snapshot struct {
	Phase            Phase             `json:"phase"`
	User             *identity.User    `json:"user"`
	Profile          *profiles.Profile `json:"profile"`
	Session          *identity.Session `json:"session"`
	IsLoading        bool              `json:"isLoading"`
	IsAnonymous      bool              `json:"isAnonymous"`
	CanCreateDogs    bool              `json:"canCreateDogs"`
	CanMessage       bool              `json:"canMessage"`
	SessionExpiresAt *time.Time        `json:"sessionExpiresAt"`
}

// Authenticated reports whether the snapshot carries an identity.
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

func newSnapshot(state State, loading bool) Snapshot {
	snap := Snapshot{Phase: state.Phase(), IsLoading: loading}

	switch st := state.(type) {
	case Authenticated:
		snap.Session, snap.User = sessionView(st.Session)
		if st.Profile != nil {
			profile := *st.Profile
			snap.Profile = &profile
		}
	case Converting:
		snap.Session, snap.User = sessionView(st.Session)
		profile := st.Profile
		snap.Profile = &profile
	}

	snap.IsAnonymous = (snap.User != nil && snap.User.IsAnonymous) ||
		(snap.Profile != nil && snap.Profile.IsGuest())
	snap.CanCreateDogs = snap.User != nil && !snap.IsAnonymous
	snap.CanMessage = snap.CanCreateDogs

	if snap.Profile != nil && snap.Profile.GuestSessionExpiresAt != nil {
		expires := *snap.Profile.GuestSessionExpiresAt
		snap.SessionExpiresAt = &expires
	}
	return snap
}

func sessionView(s identity.Session) (*identity.Session, *identity.User) {
	user := s.User
	return &s, &user
}

// currentSession returns the identity session held by state, if any.
func currentSession(state State) (identity.Session, bool) {
	switch st := state.(type) {
	case Authenticated:
		return st.Session, true
	case Converting:
		return st.Session, true
	}
	return identity.Session{}, false
}
