package session

import (
	"context"
	"log/slog"
	"sync"

	"teamdash/cmd/internal/account"
	"teamdash/cmd/internal/apiclient"
	"teamdash/cmd/internal/tokenstore"
	"teamdash/cmd/security/password"
)

// API is what the controller needs from the HTTP client.
// *apiclient.Client satisfies it.
type API interface {
	account.Doer
	Tokens() tokenstore.Store
	OnLogout(fn func(error)) (unsubscribe func())
}

// State is a snapshot of the session.
type State struct {
	User          *account.User
	Loading       bool
	Authenticated bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPolicy sets the password policy used by Register.
func WithPolicy(p password.Policy) Option {
	return func(c *Controller) { c.accounts = c.accounts.WithPolicy(p) }
}

// Controller owns the in-memory user and the persisted token pair.
// Loading is true until the first Hydrate or SetAuth completes.
type Controller struct {
	accounts *account.Service
	store    tokenstore.Store
	log      *slog.Logger

	mu      sync.Mutex
	user    *account.User
	loading bool
	subs    map[int]func(State)
	nextSub int

	unsubscribeLogout func()
	closeOnce         sync.Once
}

// New returns a Controller bound to api. Call Close to stop observing
// the client's logout signal.
func New(api API, opts ...Option) *Controller {
	c := &Controller{
		accounts: account.NewService(api),
		store:    api.Tokens(),
		log:      slog.Default(),
		loading:  true,
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribeLogout = api.OnLogout(c.onClientLogout)
	return c
}

// Close detaches the controller from the client. It is safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.unsubscribeLogout()
	})
}

// Accounts exposes the account endpoints that do not touch session state.
func (c *Controller) Accounts() *account.Service { return c.accounts }

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// User returns the signed-in user, if any.
func (c *Controller) User() (account.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return account.User{}, false
	}
	return *c.user, true
}

// RequireUser guards protected views.
func (c *Controller) RequireUser() (account.User, error) {
	u, ok := c.User()
	if !ok {
		return account.User{}, ErrNotAuthenticated
	}
	return u, nil
}

// Subscribe registers fn to receive every state change. fn runs on the
// goroutine that caused the change and must not block.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Login signs in and stores the returned session.
func (c *Controller) Login(ctx context.Context, cr account.Credentials) (account.User, error) {
	resp, err := c.accounts.Login(ctx, cr)
	if err != nil {
		return account.User{}, err
	}
	if err := c.SetAuth(ctx, resp); err != nil {
		return account.User{}, err
	}
	c.log.Info("auth.login.ok", "user_id", resp.User.ID)
	return resp.User, nil
}

// Register creates an account and stores the returned session.
func (c *Controller) Register(ctx context.Context, r account.Registration) (account.User, error) {
	resp, err := c.accounts.Register(ctx, r)
	if err != nil {
		return account.User{}, err
	}
	if err := c.SetAuth(ctx, resp); err != nil {
		return account.User{}, err
	}
	c.log.Info("auth.register.ok", "user_id", resp.User.ID)
	return resp.User, nil
}

// SetAuth persists the token pair and makes resp.User the current user.
func (c *Controller) SetAuth(ctx context.Context, resp account.AuthResponse) error {
	pair := tokenstore.Pair{Access: resp.Token.Access, Refresh: resp.Token.Refresh}
	if err := c.store.Save(ctx, pair); err != nil {
		return err
	}
	u := resp.User
	c.update(func() {
		c.user = &u
		c.loading = false
	})
	return nil
}

// Logout clears the stored tokens and the current user.
func (c *Controller) Logout(ctx context.Context) error {
	err := c.store.Clear(ctx)
	c.update(func() {
		c.user = nil
		c.loading = false
	})
	if err != nil {
		c.log.Warn("auth.logout.fail", "err", err)
		return err
	}
	c.log.Info("auth.logout.ok")
	return nil
}

// Hydrate restores the user from the stored tokens. Without an access token
// the session is simply empty. A failed profile fetch leaves no user and
// returns the error. Loading is false afterwards in every case.
func (c *Controller) Hydrate(ctx context.Context) error {
	pair, err := c.store.Load(ctx)
	if err != nil || pair.Access == "" {
		c.update(func() {
			c.user = nil
			c.loading = false
		})
		return err
	}

	u, err := c.accounts.Me(ctx)
	c.update(func() {
		if err != nil {
			c.user = nil
		} else {
			c.user = &u
		}
		c.loading = false
	})
	if err != nil {
		c.log.Debug("auth.hydrate.fail", "err", err)
	}
	return err
}

// RefetchProfile reloads the current user. On failure the user is kept.
func (c *Controller) RefetchProfile(ctx context.Context) (account.User, error) {
	u, err := c.accounts.Me(ctx)
	if err != nil {
		return account.User{}, err
	}
	c.update(func() { c.user = &u })
	return u, nil
}

// UpdateProfile saves profile changes and replaces the current user.
func (c *Controller) UpdateProfile(ctx context.Context, p account.ProfileUpdate) (account.User, error) {
	u, err := c.accounts.UpdateMe(ctx, p)
	if err != nil {
		return account.User{}, err
	}
	c.update(func() { c.user = &u })
	return u, nil
}

// onClientLogout runs on the refresh goroutine. The client already cleared
// the store, so only the in-memory user is dropped.
func (c *Controller) onClientLogout(err error) {
	c.log.Info("auth.session.dropped", "err", err)
	c.update(func() {
		c.user = nil
		c.loading = false
	})
}

func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	st := c.stateLocked()
	subs := make([]func(State), 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s(st)
	}
}

func (c *Controller) stateLocked() State {
	st := State{Loading: c.loading}
	if c.user != nil {
		u := *c.user
		st.User = &u
		st.Authenticated = true
	}
	return st
}

var _ API = (*apiclient.Client)(nil)
