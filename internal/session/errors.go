package session

import (
	"errors"

	"socialdog/internal/identity"
	"socialdog/internal/profiles"
)

var (
	// ErrCredential matches every CredentialError.
	ErrCredential = errors.New("credential rejected")
	// ErrPrecondition matches every PreconditionError.
	ErrPrecondition = errors.New("operation not allowed in current state")
	// ErrBackend matches every BackendError.
	ErrBackend = errors.New("backend unavailable")

	ErrNotSignedIn              = errors.New("not signed in")
	ErrNoProfile                = errors.New("no profile loaded")
	ErrNotGuest                 = errors.New("current identity is not a guest")
	ErrAlreadySignedIn          = errors.New("already signed in")
	ErrOperationInProgress      = errors.New("another sign-in operation is in progress")
	ErrSignedOutDuringOperation = errors.New("signed out before the operation completed")
	ErrGuestDurationTooLong     = errors.New("guest session duration is too long")
	ErrLinkedToOtherEmail       = errors.New("account is already linked to a different email")
)

// CredentialError reports input the user can correct: wrong password,
// duplicate email, weak password.
type CredentialError struct {
	Op  string
	Err error
}

func (e *CredentialError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *CredentialError) Unwrap() []error { return []error{ErrCredential, e.Err} }

// PreconditionError reports an operation invoked in a state that forbids it.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PreconditionError) Unwrap() []error { return []error{ErrPrecondition, e.Err} }

// BackendError reports a service failure unrelated to credentials.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *BackendError) Unwrap() []error { return []error{ErrBackend, e.Err} }

func precondition(op string, err error) error {
	return &PreconditionError{Op: op, Err: err}
}

func backend(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}

// classify maps a collaborator failure onto the session error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		credErr *CredentialError
		preErr  *PreconditionError
		backErr *BackendError
	)
	if errors.As(err, &credErr) || errors.As(err, &preErr) || errors.As(err, &backErr) {
		return err
	}

	switch {
	case identity.IsCredentialError(err):
		return &CredentialError{Op: op, Err: err}
	case errors.Is(err, identity.ErrNotAnonymous):
		return precondition(op, err)
	case errors.Is(err, identity.ErrNoSession):
		return precondition(op, err)
	case errors.Is(err, profiles.ErrValidation):
		// Rejected profile input is the caller's to fix.
		return err
	default:
		return backend(op, err)
	}
}
