package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsx4588588/canlog-frontend/internal/api"
	"github.com/wsx4588588/canlog-frontend/internal/models"
)

type fakeBackend struct {
	user      *models.User
	err       error
	logoutErr error
	block     chan struct{}
}

func (f *fakeBackend) Profile(ctx context.Context) (*models.User, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.user, f.err
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	return f.logoutErr
}

func TestLoad_Admin(t *testing.T) {
	s := New(&fakeBackend{user: &models.User{ID: 1, Role: models.RoleAdmin}}, nil)

	st := s.Load(context.Background())
	assert.True(t, st.Authenticated)
	assert.True(t, st.Admin)
	assert.False(t, st.Loading)
	assert.NoError(t, s.RequireAdmin())
}

func TestLoad_NoSession(t *testing.T) {
	s := New(&fakeBackend{}, nil)

	st := s.Load(context.Background())
	assert.False(t, st.Authenticated)
	assert.Empty(t, st.Error, "no session is not an error")
	assert.ErrorIs(t, s.RequireAdmin(), ErrNotSignedIn)
}

func TestLoad_RegularUserIsNotAdmin(t *testing.T) {
	s := New(&fakeBackend{user: &models.User{ID: 2, Role: models.RoleUser}}, nil)

	s.Load(context.Background())
	err := s.RequireAdmin()
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.Equal(t, "This feature is for administrators only", RefusalMessage(err))
}

func TestLoad_BackendFailure(t *testing.T) {
	s := New(&fakeBackend{err: &api.Error{Status: 500, Message: "boom"}}, nil)

	st := s.Load(context.Background())
	assert.False(t, st.Authenticated)
	assert.Equal(t, "boom", st.Error)
}

func TestLoad_CancelledChangesNothing(t *testing.T) {
	backend := &fakeBackend{user: &models.User{ID: 1, Role: models.RoleAdmin}}
	s := New(backend, nil)
	s.Load(context.Background())

	backend.block = make(chan struct{})
	backend.user = nil
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := s.Refresh(ctx)
	assert.True(t, st.Authenticated)
	assert.False(t, st.Loading)
	assert.Equal(t, st, s.State())
}

func TestClear(t *testing.T) {
	backend := &fakeBackend{user: &models.User{ID: 1, Role: models.RoleAdmin}}
	s := New(backend, nil)
	s.Load(context.Background())

	backend.logoutErr = errors.New("connection refused")
	st, err := s.Clear(context.Background())
	require.Error(t, err)
	assert.True(t, st.Authenticated, "user kept when logout fails")
	assert.Equal(t, "Failed to log out", st.Error)

	backend.logoutErr = nil
	st, err = s.Clear(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
	assert.Empty(t, st.Error)
}

func TestRefusalMessage(t *testing.T) {
	assert.Equal(t, "Please sign in as an administrator to use this feature",
		RefusalMessage(&api.Error{Status: http.StatusForbidden}))
	assert.Equal(t, "Please sign in as an administrator to use this feature", RefusalMessage(ErrNotSignedIn))
	assert.Empty(t, RefusalMessage(errors.New("other")))
}

func TestLoginErrorMessage(t *testing.T) {
	assert.Equal(t, "You cancelled the sign-in", LoginErrorMessage("access_denied"))
	assert.Equal(t, "weird_code", LoginErrorMessage("weird_code"))
	assert.Equal(t, "Something went wrong while signing in", LoginErrorMessage(""))
}
