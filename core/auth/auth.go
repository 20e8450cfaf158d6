// Package auth drives the session lifecycle: startup resolution, login, logout and forced logout.
package auth

import (
	"context"
	"net/url"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/gateway"
)

const (
	LoginPath    = "token/"
	LogoutPath   = "logout/"
	IdentityPath = "get-user-login/"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrResolving            = errors.New("session is being resolved")
	ErrAlreadyAuthenticated = errors.New("already logged in")
)

// API is the part of the gateway the controller needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, body, out interface{}) error
	OnForcedLogout(fn func(error))
	ClearCredentials()
}

var _ API = (*gateway.Gateway)(nil)

type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username)
	return validate.Struct(lr)
}

// Controller is the only writer of the session Store.
// Concurrent logins are not deduplicated: the last one to resolve its identity wins.
type Controller struct {
	store      *session.Store
	api        API
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func NewController(
	store *session.Store,
	api API,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) *Controller {
	c := &Controller{
		store:      store,
		api:        api,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
	api.OnForcedLogout(c.forceLogout)
	return c
}

// Session returns a read-only snapshot of the current session.
func (c *Controller) Session() session.Session {
	return c.store.Snapshot()
}

// Sessions returns the read side of the store.
func (c *Controller) Sessions() session.Reader {
	return c.store
}

// Start resolves the identity of an Unresolved session, once.
// Any failure ends in Anonymous. Later calls return the current snapshot.
func (c *Controller) Start(ctx context.Context) session.Session {
	if !c.store.BeginResolve() {
		return c.store.Snapshot()
	}

	id, err := c.resolve(ctx)
	if err != nil {
		var authErr *gateway.AuthorizationError
		if !errors.As(err, &authErr) {
			c.logger.Warn("resolving session at startup", err)
		}
		id = nil
	}
	if err = c.store.FinishResolve(id); err != nil {
		c.logger.Error("finishing session resolution", err)
	}
	return c.store.Snapshot()
}

func (c *Controller) resolve(ctx context.Context) (*session.Identity, error) {
	var id session.Identity
	if err := c.api.Get(ctx, IdentityPath, nil, &id); err != nil {
		return nil, errors.Wrap(err, "getting logged in user")
	}
	return &id, nil
}

// Login authenticates the user then resolves their identity.
// It is not retried: on failure the session stays Anonymous.
func (c *Controller) Login(ctx context.Context, req LoginRequest) (session.Identity, error) {
	switch c.store.State() {
	case session.Unresolved, session.Resolving:
		return session.Identity{}, ErrResolving
	case session.Authenticated:
		return session.Identity{}, ErrAlreadyAuthenticated
	}

	if err := req.Validate(c.validate); err != nil {
		return session.Identity{}, core.TranslateValidationErrors(err, c.translator)
	}

	if err := c.api.Post(ctx, LoginPath, req, nil); err != nil {
		var authErr *gateway.AuthorizationError
		if errors.As(err, &authErr) {
			return session.Identity{}, ErrInvalidCredentials
		}
		return session.Identity{}, errors.Wrap(err, "logging in")
	}

	id, err := c.resolve(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	if err = c.store.Authenticate(*id, session.CauseLogin); err != nil {
		return session.Identity{}, errors.Wrap(err, "storing identity")
	}
	c.logger.Info("logged in", *id)
	return *id, nil
}

// Logout notifies the API then clears the local credentials and identity, whatever the API answered.
// The returned error is the API's, for logging only.
func (c *Controller) Logout(ctx context.Context) error {
	if c.store.State() == session.Unresolved {
		c.Start(ctx)
	}
	if c.store.State() == session.Resolving {
		select {
		case <-c.store.Settled():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := c.api.Post(ctx, LogoutPath, nil, nil)
	c.api.ClearCredentials()
	c.store.Clear(session.CauseLogout)
	return errors.Wrap(err, "notifying logout")
}

func (c *Controller) forceLogout(cause error) {
	if c.store.Clear(session.CauseForcedLogout) {
		c.logger.Info("session expired: logged out", cause)
	}
}
