package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/auth"
	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/model"
	"github.com/dharsanguruparan/esubmit/internal/store"
)

const minPasswordLength = 8

// identities adapts one account table (users or admins).
type identities[T store.Record] struct {
	entity  string
	table   *store.Table[T]
	byEmail func(string) store.Query[T]
	account func(*T) *model.Account
	wrap    func(model.Account) T
}

func (t identities[T]) get(ctx context.Context, id string) (*model.Account, error) {
	rec, err := t.table.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound(t.entity, id)
	}
	if err != nil {
		return nil, err
	}
	return t.account(rec), nil
}

func (t identities[T]) findEmail(ctx context.Context, email string) (*model.Account, error) {
	rec, err := t.table.First(ctx, t.byEmail(email))
	if err != nil {
		return nil, err
	}
	return t.account(rec), nil
}

func (t identities[T]) emailTaken(ctx context.Context, email, exceptID string) error {
	acc, err := t.findEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if acc.ID != exceptID {
		return apperr.Conflict("%s with email %s already exists", t.entity, model.NormalizeEmail(email))
	}
	return nil
}

func (t identities[T]) create(ctx context.Context, acc model.Account) error {
	if err := t.emailTaken(ctx, acc.Email, ""); err != nil {
		return err
	}
	rec := t.wrap(acc)
	return t.table.Create(ctx, &rec)
}

func (t identities[T]) update(ctx context.Context, id string, mutate func(*model.Account) error) (*model.Account, error) {
	rec, err := t.table.Update(ctx, id, func(v *T) error { return mutate(t.account(v)) })
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound(t.entity, id)
	}
	if err != nil {
		return nil, err
	}
	return t.account(rec), nil
}

func (t identities[T]) list(ctx context.Context, q store.Query[T]) ([]model.Profile, error) {
	recs, err := t.table.List(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]model.Profile, 0, len(recs))
	for i := range recs {
		out = append(out, t.account(&recs[i]).Profile())
	}
	return out, nil
}

// AccountOptions configures the account service.
type AccountOptions struct {
	BcryptCost    int
	AllowRegister bool
}

// Accounts handles sign in and the user and admin identity spaces.
type Accounts struct {
	users    identities[model.User]
	admins   identities[model.Admin]
	sessions *auth.Manager
	opts     AccountOptions
	log      *logrus.Entry
	now      clock
}

// NewAccounts returns the account service.
func NewAccounts(stores *store.Stores, sessions *auth.Manager, opts AccountOptions, log *logrus.Logger) *Accounts {
	return &Accounts{
		users: identities[model.User]{
			entity:  "user",
			table:   stores.Users,
			byEmail: store.UserByEmail,
			account: func(u *model.User) *model.Account { return &u.Account },
			wrap:    func(a model.Account) model.User { return model.User{Account: a} },
		},
		admins: identities[model.Admin]{
			entity:  "admin",
			table:   stores.Admins,
			byEmail: store.AdminByEmail,
			account: func(a *model.Admin) *model.Account { return &a.Account },
			wrap:    func(a model.Account) model.Admin { return model.Admin{Account: a} },
		},
		sessions: sessions,
		opts:     opts,
		log:      logging.Component(log, "accounts"),
	}
}

// Credentials is a sign in request.
type Credentials struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// Registration creates a user account.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// AccountUpdate is a partial account change. Nil fields are left alone.
type AccountUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password"`
}

// Session is returned by sign in and registration.
type Session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      model.Profile `json:"user"`
	Role      model.Role    `json:"role"`
}

// Authenticate checks credentials against the user or admin table. Inactive
// accounts never authenticate. Legacy password hashes are upgraded on
// success.
func (a *Accounts) Authenticate(ctx context.Context, c Credentials) (*model.Account, error) {
	var (
		acc *model.Account
		err error
	)
	admin := c.Role.IsAdmin()
	if admin {
		acc, err = a.admins.findEmail(ctx, c.Email)
	} else {
		acc, err = a.users.findEmail(ctx, c.Email)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, upgrade := auth.CheckPassword(acc.PasswordHash, c.Password)
	if !ok || !acc.IsActive {
		return nil, apperr.ErrBadCredentials
	}
	if upgrade {
		a.upgradeHash(ctx, admin, acc.ID, c.Password)
	}
	return acc, nil
}

func (a *Accounts) upgradeHash(ctx context.Context, admin bool, id, password string) {
	hash, err := auth.HashPassword(password, a.opts.BcryptCost)
	if err == nil {
		set := func(acc *model.Account) error {
			acc.PasswordHash = hash
			return nil
		}
		if admin {
			_, err = a.admins.update(ctx, id, set)
		} else {
			_, err = a.users.update(ctx, id, set)
		}
	}
	if err != nil {
		a.log.WithError(err).WithField("account", id).Warn("could not upgrade legacy password hash")
		return
	}
	a.log.WithField("account", id).Info("legacy password hash upgraded")
}

// Login authenticates and opens a session.
func (a *Accounts) Login(ctx context.Context, c Credentials) (*Session, error) {
	acc, err := a.Authenticate(ctx, c)
	if err != nil {
		return nil, err
	}
	return a.openSession(ctx, acc)
}

// Register creates a user account and signs it in.
func (a *Accounts) Register(ctx context.Context, r Registration) (*Session, error) {
	if !a.opts.AllowRegister {
		return nil, apperr.Forbidden("registration is disabled")
	}
	acc, err := a.newAccount(r.Email, r.Password, r.Name, model.RoleUser)
	if err != nil {
		return nil, err
	}
	if err := a.users.create(ctx, *acc); err != nil {
		return nil, err
	}
	a.log.WithField("account", acc.ID).Info("user registered")
	return a.openSession(ctx, acc)
}

func (a *Accounts) openSession(ctx context.Context, acc *model.Account) (*Session, error) {
	tok, err := a.sessions.CreateSession(ctx, acc.ID, acc.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok.Token, ExpiresAt: tok.ExpiresAt, User: acc.Profile(), Role: acc.Role}, nil
}

// Logout revokes the presented token.
func (a *Accounts) Logout(ctx context.Context, token string) error {
	return a.sessions.DeleteSession(ctx, token)
}

// Profile returns the caller's account.
func (a *Accounts) Profile(ctx context.Context, p *auth.Principal) (*model.Profile, error) {
	acc, err := a.self(ctx, p)
	if err != nil {
		return nil, err
	}
	out := acc.Profile()
	return &out, nil
}

// UpdateProfile changes the caller's own name or email. Admins below
// superAdmin keep the name they were given.
func (a *Accounts) UpdateProfile(ctx context.Context, p *auth.Principal, in AccountUpdate) (*model.Profile, error) {
	if p == nil {
		return nil, apperr.ErrUnauthorized
	}
	if p.IsAdmin() && !p.IsSuperAdmin() && in.Name != nil {
		return nil, apperr.Forbidden("you can only change the email and password of your account")
	}
	in.IsActive, in.Password = nil, nil
	acc, err := a.updateAccount(ctx, p.IsAdmin(), p.ID, in)
	if err != nil {
		return nil, err
	}
	out := acc.Profile()
	return &out, nil
}

// ChangePassword replaces the caller's password after checking the current
// one.
func (a *Accounts) ChangePassword(ctx context.Context, p *auth.Principal, current, next string) error {
	acc, err := a.self(ctx, p)
	if err != nil {
		return err
	}
	if ok, _ := auth.CheckPassword(acc.PasswordHash, current); !ok {
		return apperr.Invalid("current password is incorrect")
	}
	_, err = a.updateAccount(ctx, p.IsAdmin(), p.ID, AccountUpdate{Password: &next})
	return err
}

// DeleteAccount removes the caller's account after the password is re-entered
// and revokes every session of the account.
func (a *Accounts) DeleteAccount(ctx context.Context, p *auth.Principal, password string) error {
	acc, err := a.self(ctx, p)
	if err != nil {
		return err
	}
	if ok, _ := auth.CheckPassword(acc.PasswordHash, password); !ok {
		return apperr.Invalid("password is incorrect")
	}
	if p.IsAdmin() {
		err = a.admins.table.Delete(ctx, acc.ID)
	} else {
		err = a.users.table.Delete(ctx, acc.ID)
	}
	if err != nil {
		return err
	}
	n, err := a.sessions.RevokeAll(ctx, acc.ID)
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"account": acc.ID, "sessions": n}).Info("account deleted")
	return nil
}

// ListUsers returns every user account.
func (a *Accounts) ListUsers(ctx context.Context, p *auth.Principal) ([]model.Profile, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return a.users.list(ctx, store.AllUsers())
}

// GetUser returns one user account.
func (a *Accounts) GetUser(ctx context.Context, p *auth.Principal, id string) (*model.Profile, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	acc, err := a.users.get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := acc.Profile()
	return &out, nil
}

// UpdateUser lets an admin edit any user account.
func (a *Accounts) UpdateUser(ctx context.Context, p *auth.Principal, id string, in AccountUpdate) (*model.Profile, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	acc, err := a.updateAccount(ctx, false, id, in)
	if err != nil {
		return nil, err
	}
	if in.IsActive != nil && !*in.IsActive {
		a.revoke(ctx, id)
	}
	out := acc.Profile()
	return &out, nil
}

// ListAdmins returns every admin account.
func (a *Accounts) ListAdmins(ctx context.Context, p *auth.Principal) ([]model.Profile, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return a.admins.list(ctx, store.AllAdmins())
}

// GetAdmin returns one admin account.
func (a *Accounts) GetAdmin(ctx context.Context, p *auth.Principal, id string) (*model.Profile, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	acc, err := a.admins.get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := acc.Profile()
	return &out, nil
}

// CreateAdmin adds a plain admin. Only super admins may do this.
func (a *Accounts) CreateAdmin(ctx context.Context, p *auth.Principal, r Registration) (*model.Profile, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, err
	}
	return a.BootstrapAdmin(ctx, r, model.RoleAdmin)
}

// BootstrapAdmin creates an admin without a calling principal. Used by the
// command line to create the first super admin.
func (a *Accounts) BootstrapAdmin(ctx context.Context, r Registration, role model.Role) (*model.Profile, error) {
	if !role.IsAdmin() {
		return nil, apperr.Invalid("role %q is not an admin role", role)
	}
	acc, err := a.newAccount(r.Email, r.Password, r.Name, role)
	if err != nil {
		return nil, err
	}
	if err := a.admins.create(ctx, *acc); err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{"account": acc.ID, "role": role}).Info("admin created")
	out := acc.Profile()
	return &out, nil
}

// UpdateAdmin edits an admin account. Super admins may change anything on any
// admin; a plain admin may only change the email and password of its own
// account.
func (a *Accounts) UpdateAdmin(ctx context.Context, p *auth.Principal, id string, in AccountUpdate) (*model.Profile, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if !p.IsSuperAdmin() {
		if id != p.ID {
			return nil, apperr.Forbidden("you can only edit your own account")
		}
		if in.Name != nil || in.IsActive != nil {
			return nil, apperr.Forbidden("you can only change the email and password of your account")
		}
	}
	acc, err := a.updateAccount(ctx, true, id, in)
	if err != nil {
		return nil, err
	}
	if in.IsActive != nil && !*in.IsActive {
		a.revoke(ctx, id)
	}
	out := acc.Profile()
	return &out, nil
}

// DeleteAdmin removes another admin and revokes its sessions. Super admins
// only, and never their own account.
func (a *Accounts) DeleteAdmin(ctx context.Context, p *auth.Principal, id string) error {
	if err := requireSuperAdmin(p); err != nil {
		return err
	}
	if id == p.ID {
		return apperr.Invalid("you cannot delete your own account")
	}
	acc, err := a.admins.get(ctx, id)
	if err != nil {
		return err
	}
	if err := a.admins.table.Delete(ctx, acc.ID); err != nil {
		return err
	}
	a.revoke(ctx, acc.ID)
	a.log.WithField("account", acc.ID).Info("admin deleted")
	return nil
}

func (a *Accounts) self(ctx context.Context, p *auth.Principal) (*model.Account, error) {
	if p == nil {
		return nil, apperr.ErrUnauthorized
	}
	if p.IsAdmin() {
		return a.admins.get(ctx, p.ID)
	}
	return a.users.get(ctx, p.ID)
}

func (a *Accounts) revoke(ctx context.Context, id string) {
	if _, err := a.sessions.RevokeAll(ctx, id); err != nil {
		a.log.WithError(err).WithField("account", id).Warn("could not revoke sessions")
	}
}

func (a *Accounts) updateAccount(ctx context.Context, admin bool, id string, in AccountUpdate) (*model.Account, error) {
	var hash string
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, apperr.Invalid("password must be at least %d characters", minPasswordLength)
		}
		h, err := auth.HashPassword(*in.Password, a.opts.BcryptCost)
		if err != nil {
			return nil, err
		}
		hash = h
	}
	var email string
	if in.Email != nil {
		email = model.NormalizeEmail(*in.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperr.Invalid("invalid email address")
		}
		var err error
		if admin {
			err = a.admins.emailTaken(ctx, email, id)
		} else {
			err = a.users.emailTaken(ctx, email, id)
		}
		if err != nil {
			return nil, err
		}
	}
	mutate := func(acc *model.Account) error {
		if in.Name != nil {
			acc.Name = strings.TrimSpace(*in.Name)
		}
		if email != "" {
			acc.Email = email
		}
		if in.IsActive != nil {
			acc.IsActive = *in.IsActive
		}
		if hash != "" {
			acc.PasswordHash = hash
		}
		acc.UpdatedAt = a.now.now()
		return nil
	}
	if admin {
		return a.admins.update(ctx, id, mutate)
	}
	return a.users.update(ctx, id, mutate)
}

func (a *Accounts) newAccount(email, password, name string, role model.Role) (*model.Account, error) {
	email = model.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperr.Invalid("invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Invalid("password must be at least %d characters", minPasswordLength)
	}
	hash, err := auth.HashPassword(password, a.opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	now := a.now.now()
	return &model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		IsActive:     true,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
