package session

import (
	"testing"
	"time"

	"socialdog/internal/profiles"
)

func TestSnapshotDerivesFlags(t *testing.T) {
	expires := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	guestSession := newIdentitySession("", true)
	permanentSession := newIdentitySession("owner@example.com", false)

	tests := []struct {
		name          string
		state         State
		wantAnonymous bool
		wantCanAct    bool
		wantExpires   bool
	}{
		{name: "unauthenticated", state: Unauthenticated{}},
		{name: "authenticating", state: Authenticating{Kind: KindGuest}},
		{
			name:          "guest with profile",
			state:         Authenticated{Session: guestSession, Profile: &profiles.Profile{UserType: profiles.UserTypeGuest, GuestSessionExpiresAt: &expires}},
			wantAnonymous: true,
			wantExpires:   true,
		},
		{
			name:          "anonymous identity without profile",
			state:         Authenticated{Session: guestSession},
			wantAnonymous: true,
		},
		{
			name:          "guest profile on credentialed identity",
			state:         Authenticated{Session: permanentSession, Profile: &profiles.Profile{UserType: profiles.UserTypeGuest, GuestSessionExpiresAt: &expires}},
			wantAnonymous: true,
			wantExpires:   true,
		},
		{
			name:       "permanent",
			state:      Authenticated{Session: permanentSession, Profile: &profiles.Profile{UserType: profiles.UserTypePermanent}},
			wantCanAct: true,
		},
		{
			name:       "permanent with empty user type",
			state:      Authenticated{Session: permanentSession, Profile: &profiles.Profile{}},
			wantCanAct: true,
		},
		{
			name:          "converting",
			state:         Converting{Session: guestSession, Profile: profiles.Profile{UserType: profiles.UserTypeGuest, GuestSessionExpiresAt: &expires}},
			wantAnonymous: true,
			wantExpires:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := newSnapshot(tt.state, false)
			if snap.Phase != tt.state.Phase() {
				t.Fatalf("phase = %s, want %s", snap.Phase, tt.state.Phase())
			}
			if snap.IsAnonymous != tt.wantAnonymous {
				t.Fatalf("IsAnonymous = %v, want %v", snap.IsAnonymous, tt.wantAnonymous)
			}
			if snap.CanCreateDogs != tt.wantCanAct || snap.CanMessage != tt.wantCanAct {
				t.Fatalf("capabilities = %v/%v, want %v", snap.CanCreateDogs, snap.CanMessage, tt.wantCanAct)
			}
			if (snap.SessionExpiresAt != nil) != tt.wantExpires {
				t.Fatalf("SessionExpiresAt = %v, want set=%v", snap.SessionExpiresAt, tt.wantExpires)
			}
			if snap.Profile != nil && snap.User == nil {
				t.Fatal("profile without identity")
			}
		})
	}
}

func TestSnapshotDoesNotAliasState(t *testing.T) {
	sess := newIdentitySession("owner@example.com", false)
	profile := &profiles.Profile{FirstName: "Sam"}
	state := Authenticated{Session: sess, Profile: profile}

	snap := newSnapshot(state, false)
	snap.Profile.FirstName = "Changed"
	snap.User.Email = "changed@example.com"

	if profile.FirstName != "Sam" {
		t.Fatal("snapshot profile aliases cached profile")
	}
	if state.Session.User.Email != "owner@example.com" {
		t.Fatal("snapshot user aliases cached identity")
	}
}
