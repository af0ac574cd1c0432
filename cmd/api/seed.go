package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"socialdog/internal/identity"
	"socialdog/internal/profiles"
)

const (
	demoEmail    = "demo@demo.com"
	demoPassword = "Password123"
)

// seedDemoAccount registers the demo login used for local development. An
// existing demo account is left alone.
func seedDemoAccount(ctx context.Context, identitySvc *identity.Service, profileSvc *profiles.Service, logger *slog.Logger) error {
	sess, err := identitySvc.SignUp(ctx, demoEmail, demoPassword, map[string]string{
		"first_name": "Demo",
		"last_name":  "User",
	})
	if errors.Is(err, identity.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create demo identity: %w", err)
	}
	defer func() {
		if err := identitySvc.DeleteSession(ctx, sess.Token); err != nil {
			logger.Warn("failed to delete demo seed session", "error", err)
		}
	}()

	_, err = profileSvc.Create(ctx, profiles.CreateInput{
		UserID:          sess.UserID,
		FirstName:       "Demo",
		LastName:        "User",
		Email:           demoEmail,
		Location:        "Auckland, New Zealand",
		City:            "Auckland",
		LocationDisplay: "Auckland, New Zealand",
		UserType:        profiles.UserTypePermanent,
		AuthProvider:    profiles.AuthProviderEmail,
		EmailVerified:   true,
	})
	if err != nil {
		return fmt.Errorf("create demo profile: %w", err)
	}
	return nil
}
