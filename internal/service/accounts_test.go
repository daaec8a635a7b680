package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/model"
)

func TestRegisterLoginLogout(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	sess, err := env.accounts.Register(ctx, Registration{Email: " Jane@Example.com ", Password: "correct horse", Name: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", sess.User.Email)
	assert.Equal(t, model.RoleUser, sess.Role)

	p, err := env.sessions.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, p.ID)

	_, err = env.accounts.Register(ctx, Registration{Email: "jane@example.com", Password: "another pass"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = env.accounts.Register(ctx, Registration{Email: "not-an-email", Password: "correct horse"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = env.accounts.Register(ctx, Registration{Email: "short@example.com", Password: "short"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = env.accounts.Login(ctx, Credentials{Email: "jane@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, apperr.ErrBadCredentials)
	_, err = env.accounts.Login(ctx, Credentials{Email: "jane@example.com", Password: "correct horse", Role: model.RoleAdmin})
	assert.ErrorIs(t, err, apperr.ErrBadCredentials)

	again, err := env.accounts.Login(ctx, Credentials{Email: "JANE@example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.NoError(t, env.accounts.Logout(ctx, again.Token))
	_, err = env.sessions.ValidateSession(ctx, again.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRegistrationCanBeDisabled(t *testing.T) {
	env := newEnv(t)
	env.accounts.opts.AllowRegister = false
	_, err := env.accounts.Register(context.Background(), Registration{Email: "a@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestLegacyHashIsUpgradedOnLogin(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	require.NoError(t, env.stores.Users.Create(ctx, &model.User{Account: model.Account{
		ID:           "legacy-1",
		Email:        "old@example.com",
		PasswordHash: auth.LegacyHash("letmein123"),
		IsActive:     true,
		Role:         model.RoleUser,
	}}))

	_, err := env.accounts.Login(ctx, Credentials{Email: "old@example.com", Password: "letmein123"})
	require.NoError(t, err)

	u, err := env.stores.Users.Get(ctx, "legacy-1")
	require.NoError(t, err)
	assert.NotEqual(t, auth.LegacyHash("letmein123"), u.PasswordHash)
	ok, upgrade := auth.CheckPassword(u.PasswordHash, "letmein123")
	assert.True(t, ok)
	assert.False(t, upgrade)
}

func TestProfileAndPasswordChange(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	sess, err := env.accounts.Register(ctx, Registration{Email: "jane@example.com", Password: "correct horse", Name: "Jane"})
	require.NoError(t, err)
	me := &auth.Principal{ID: sess.User.ID, Role: model.RoleUser}

	_, err = env.accounts.Profile(ctx, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	prof, err := env.accounts.UpdateProfile(ctx, me, AccountUpdate{Name: ptr(" Jane Tan "), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Jane Tan", prof.Name)
	assert.True(t, prof.IsActive)

	assert.ErrorIs(t, env.accounts.ChangePassword(ctx, me, "wrong", "new password"), apperr.ErrInvalid)
	require.NoError(t, env.accounts.ChangePassword(ctx, me, "correct horse", "new password"))
	_, err = env.accounts.Login(ctx, Credentials{Email: "jane@example.com", Password: "new password"})
	require.NoError(t, err)

	assert.ErrorIs(t, env.accounts.DeleteAccount(ctx, me, "correct horse"), apperr.ErrInvalid)
	require.NoError(t, env.accounts.DeleteAccount(ctx, me, "new password"))
	_, err = env.accounts.Profile(ctx, me)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.sessions.ValidateSession(ctx, sess.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestAdminManagement(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	root, err := env.accounts.BootstrapAdmin(ctx, Registration{Email: "root@example.com", Password: "super secret"}, model.RoleSuperAdmin)
	require.NoError(t, err)
	_, err = env.accounts.BootstrapAdmin(ctx, Registration{Email: "u@example.com", Password: "super secret"}, model.RoleUser)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	rootP := &auth.Principal{ID: root.ID, Role: model.RoleSuperAdmin}

	sess, err := env.accounts.Login(ctx, Credentials{Email: "root@example.com", Password: "super secret", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, model.RoleSuperAdmin, sess.Role)

	_, err = env.accounts.CreateAdmin(ctx, reviewer, Registration{Email: "x@example.com", Password: "super secret"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	staff, err := env.accounts.CreateAdmin(ctx, rootP, Registration{Email: "staff@example.com", Password: "staff secret", Name: "Staff"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, staff.Role)
	staffP := &auth.Principal{ID: staff.ID, Role: model.RoleAdmin}

	_, err = env.accounts.CreateAdmin(ctx, rootP, Registration{Email: "STAFF@example.com", Password: "staff secret"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.accounts.UpdateAdmin(ctx, staffP, root.ID, AccountUpdate{Email: ptr("a@example.com")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = env.accounts.UpdateAdmin(ctx, staffP, staff.ID, AccountUpdate{Name: ptr("New")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	updated, err := env.accounts.UpdateAdmin(ctx, staffP, staff.ID, AccountUpdate{Email: ptr("staff2@example.com")})
	require.NoError(t, err)
	assert.Equal(t, "staff2@example.com", updated.Email)
	_, err = env.accounts.UpdateProfile(ctx, staffP, AccountUpdate{Name: ptr("Renamed")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	self, err := env.accounts.GetAdmin(ctx, rootP, staff.ID)
	require.NoError(t, err)
	assert.Equal(t, "Staff", self.Name)
	renamed, err := env.accounts.UpdateProfile(ctx, rootP, AccountUpdate{Name: ptr("Root")})
	require.NoError(t, err)
	assert.Equal(t, "Root", renamed.Name)
	_, err = env.accounts.UpdateAdmin(ctx, rootP, staff.ID, AccountUpdate{Email: ptr("root@example.com")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	admins, err := env.accounts.ListAdmins(ctx, staffP)
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	staffSession, err := env.accounts.Login(ctx, Credentials{Email: "staff2@example.com", Password: "staff secret", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.ErrorIs(t, env.accounts.DeleteAdmin(ctx, staffP, root.ID), apperr.ErrForbidden)
	assert.ErrorIs(t, env.accounts.DeleteAdmin(ctx, rootP, root.ID), apperr.ErrInvalid)
	require.NoError(t, env.accounts.DeleteAdmin(ctx, rootP, staff.ID))
	_, err = env.sessions.ValidateSession(ctx, staffSession.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = env.accounts.GetAdmin(ctx, rootP, staff.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAdminUserManagement(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	sess, err := env.accounts.Register(ctx, Registration{Email: "jane@example.com", Password: "correct horse"})
	require.NoError(t, err)

	_, err = env.accounts.ListUsers(ctx, applicant)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	users, err := env.accounts.ListUsers(ctx, reviewer)
	require.NoError(t, err)
	require.Len(t, users, 1)

	prof, err := env.accounts.UpdateUser(ctx, reviewer, sess.User.ID, AccountUpdate{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.False(t, prof.IsActive)

	_, err = env.sessions.ValidateSession(ctx, sess.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = env.accounts.Login(ctx, Credentials{Email: "jane@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, apperr.ErrBadCredentials)

	_, err = env.accounts.GetUser(ctx, reviewer, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
