package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Backend is the identity service surface a Client drives. *Service implements it.
type Backend interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	SignInAnonymously(ctx context.Context) (Session, error)
	SignInWithOAuth(ctx context.Context, claims OAuthClaims) (Session, error)
	LinkPassword(ctx context.Context, token, email, password string) (User, error)
	ValidateSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
}

// Listener receives change notifications. session is nil once signed out.
type Listener func(event Event, session *Session)

type subscription struct {
	id int
	fn Listener
}

type notification struct {
	event   Event
	session *Session
}

const notificationBuffer = 16

// Client holds one browser's current backend session and notifies subscribers
// whenever it changes. Notifications are delivered in order on a dedicated
// goroutine, never on the caller's.
type Client struct {
	backend Backend
	logger  *slog.Logger

	mu          sync.Mutex
	current     *Session
	storedToken string
	restored    bool
	subs        []subscription
	nextSubID   int

	events    chan notification
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient creates a Client. storedToken is a previously issued session token,
// checked on the first GetSession call.
func NewClient(backend Backend, storedToken string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		backend:     backend,
		logger:      logger,
		storedToken: storedToken,
		events:      make(chan notification, notificationBuffer),
		done:        make(chan struct{}),
	}
	c.wg.Add(1)
	go c.dispatch()
	return c
}

// GetSession returns the current session. The first call resolves the stored
// token against the backend and announces the outcome as INITIAL_SESSION.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.restored {
		current := c.current.clone()
		c.mu.Unlock()
		return current, nil
	}
	token := c.storedToken
	c.mu.Unlock()

	session, err := c.backend.ValidateSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	c.mu.Lock()
	if c.restored {
		// A sign-in or sign-out landed while the check was in flight; it wins.
		current := c.current.clone()
		c.mu.Unlock()
		return current, nil
	}
	c.restored = true
	c.storedToken = ""
	c.current = session
	c.mu.Unlock()

	c.emit(EventInitialSession, session)
	return session.clone(), nil
}

// SignUp creates a credentialed identity and makes it current.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (Session, error) {
	session, err := c.backend.SignUp(ctx, email, password, metadata)
	if err != nil {
		return Session{}, err
	}
	c.setCurrent(&session, EventSignedIn)
	return session, nil
}

// SignInWithPassword signs in with an email/password pair and makes the session current.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	session, err := c.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	c.setCurrent(&session, EventSignedIn)
	return session, nil
}

// SignInAnonymously creates an anonymous identity and makes its session current.
func (c *Client) SignInAnonymously(ctx context.Context) (Session, error) {
	session, err := c.backend.SignInAnonymously(ctx)
	if err != nil {
		return Session{}, err
	}
	c.setCurrent(&session, EventSignedIn)
	return session, nil
}

// SignInWithOAuth signs in with verified provider claims and makes the session current.
func (c *Client) SignInWithOAuth(ctx context.Context, claims OAuthClaims) (Session, error) {
	session, err := c.backend.SignInWithOAuth(ctx, claims)
	if err != nil {
		return Session{}, err
	}
	c.setCurrent(&session, EventSignedIn)
	return session, nil
}

// LinkPassword attaches an email/password credential to the current anonymous identity.
func (c *Client) LinkPassword(ctx context.Context, email, password string) (User, error) {
	token := c.Token()
	if token == "" {
		return User{}, ErrNoSession
	}

	user, err := c.backend.LinkPassword(ctx, token, email, password)
	if err != nil {
		return User{}, err
	}

	c.mu.Lock()
	var updated *Session
	if c.current != nil && c.current.UserID == user.ID {
		c.current.User = user
		updated = c.current.clone()
	}
	c.mu.Unlock()

	if updated != nil {
		c.emit(EventUserUpdated, updated)
	}
	return user, nil
}

// SignOut forgets the current session locally and revokes it at the backend.
// Local state is cleared even when the backend call fails. Every call announces
// SIGNED_OUT, with or without a session to forget.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.storedToken
	if c.current != nil {
		token = c.current.Token
	}
	c.current = nil
	c.storedToken = ""
	c.restored = true
	c.mu.Unlock()

	c.emit(EventSignedOut, nil)

	if err := c.backend.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// ResetPasswordForEmail asks the backend to mail a reset link.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.backend.RequestPasswordReset(ctx, email, redirectTo)
}

// Token returns the bearer token of the current session, or the stored token
// if it has not been checked yet.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.Token
	}
	return c.storedToken
}

// Subscribe registers fn for change notifications and returns a function that removes it.
func (c *Client) Subscribe(fn Listener) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, sub := range c.subs {
				if sub.id == id {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close stops notification delivery. Pending notifications are dropped.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

func (c *Client) setCurrent(session *Session, event Event) {
	c.mu.Lock()
	c.current = session.clone()
	c.storedToken = ""
	c.restored = true
	c.mu.Unlock()

	c.emit(event, session)
}

func (c *Client) emit(event Event, session *Session) {
	n := notification{event: event, session: session.clone()}
	select {
	case c.events <- n:
	case <-c.done:
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case n := <-c.events:
			c.deliver(n)
		case <-c.done:
			return
		}
	}
}

func (c *Client) deliver(n notification) {
	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(n.event, n.session.clone())
	}
	c.logger.Debug("identity change delivered", "event", n.event, "subscribers", len(subs))
}
