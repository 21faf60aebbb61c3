// Package session tracks who is signed in on one browser tab. The backend
// owns authentication; a Session only mirrors what the backend reports for
// the tab's cookies and exposes it as flags for gating privileged actions.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wsx4588588/canlog-frontend/internal/api"
	"github.com/wsx4588588/canlog-frontend/internal/models"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrNotAdmin    = errors.New("admin role required")
)

const (
	checkFailed  = "Failed to verify sign-in"
	logoutFailed = "Failed to log out"
)

// Backend is the part of the API client a Session needs.
type Backend interface {
	Profile(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
}

// State is the observable sign-in state.
type State struct {
	User          *models.User `json:"user"`
	Authenticated bool         `json:"authenticated"`
	Admin         bool         `json:"admin"`
	Loading       bool         `json:"loading"`
	Error         string       `json:"error,omitempty"`
}

// Session holds the sign-in state of one tab.
type Session struct {
	mu         sync.Mutex
	backend    Backend
	logger     *zap.Logger
	user       *models.User
	loading    bool
	err        string
	generation uint64
}

// New creates a Session that has not been loaded yet.
func New(backend Backend, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{backend: backend, logger: logger.Named("session")}
}

// Load performs the initial session check.
func (s *Session) Load(ctx context.Context) State {
	return s.check(ctx)
}

// Refresh re-checks the session, e.g. after returning from sign-in.
func (s *Session) Refresh(ctx context.Context) State {
	return s.check(ctx)
}

func (s *Session) check(ctx context.Context) State {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	wasLoading := s.loading
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	user, err := s.backend.Profile(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return s.stateLocked()
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		s.loading = wasLoading
		return s.stateLocked()
	}

	s.loading = false
	if err != nil {
		s.logger.Warn("Session check failed", zap.Error(err))
		s.user = nil
		s.err = api.Message(err, checkFailed)
		return s.stateLocked()
	}
	s.user = user
	return s.stateLocked()
}

// Clear signs the tab out. On failure the current user is kept.
func (s *Session) Clear(ctx context.Context) (State, error) {
	s.mu.Lock()
	s.generation++
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	err := s.backend.Logout(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return s.stateLocked(), err
		}
		s.logger.Warn("Logout failed", zap.Error(err))
		s.err = api.Message(err, logoutFailed)
		return s.stateLocked(), err
	}

	s.user = nil
	return s.stateLocked(), nil
}

// State returns the current sign-in state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// RequireAdmin reports why a privileged action is refused, or nil.
func (s *Session) RequireAdmin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.user == nil:
		return ErrNotSignedIn
	case !s.user.IsAdmin():
		return ErrNotAdmin
	}
	return nil
}

func (s *Session) stateLocked() State {
	return State{
		User:          s.user,
		Authenticated: s.user != nil,
		Admin:         s.user.IsAdmin(),
		Loading:       s.loading,
		Error:         s.err,
	}
}

// RefusalMessage is the text shown when a privileged action is refused,
// either locally by RequireAdmin or by the backend with 401/403.
func RefusalMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotAdmin):
		return "This feature is for administrators only"
	case errors.Is(err, ErrNotSignedIn), api.IsUnauthorized(err):
		return "Please sign in as an administrator to use this feature"
	}
	return ""
}

var loginErrors = map[string]string{
	"access_denied": "You cancelled the sign-in",
	"unauthorized":  "Authorization failed, please try again",
	"server_error":  "The server ran into an error, please try again later",
}

// LoginErrorMessage maps the error code the backend appends to its
// sign-in failure redirect to a readable message. Unknown codes are shown
// as they are; an empty code gets the generic message.
func LoginErrorMessage(code string) string {
	if code == "" {
		return "Something went wrong while signing in"
	}
	if msg, ok := loginErrors[code]; ok {
		return msg
	}
	return code
}
