package service

import (
	"context"
	"errors"
	"strings"

	"instafeed/internal/live"
	"instafeed/internal/models"
	"instafeed/internal/repository"
	"instafeed/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs and revokes session tokens.
type TokenIssuer interface {
	Issue(uid string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	Token  string         `json:"token"`
	Viewer *models.Viewer `json:"viewer"`
}

// IdentityGate authenticates callers and resolves them to a Viewer.
type IdentityGate struct {
	creds         repository.CredentialRepository
	accounts      repository.AccountRepository
	tokens        TokenIssuer
	publisher     live.Publisher
	emailDomain   string
	defaultAvatar string
}

// NewIdentityGate returns a new IdentityGate. An empty emailDomain accepts any
// domain.
func NewIdentityGate(
	creds repository.CredentialRepository,
	accounts repository.AccountRepository,
	tokens TokenIssuer,
	publisher live.Publisher,
	emailDomain, defaultAvatar string,
) *IdentityGate {
	return &IdentityGate{
		creds:         creds,
		accounts:      accounts,
		tokens:        tokens,
		publisher:     publisher,
		emailDomain:   emailDomain,
		defaultAvatar: defaultAvatar,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates a credential and returns a session for it.
func (g *IdentityGate) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if err := validation.ValidateEmail(email, g.emailDomain); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	cred := &models.Credential{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := g.creds.Create(ctx, cred); err != nil {
		return nil, err
	}

	return g.session(cred, nil)
}

// SignIn checks the password and returns a session. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (g *IdentityGate) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	cred, err := g.creds.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	account, err := g.accounts.GetByID(ctx, cred.ID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return g.session(cred, account)
}

func (g *IdentityGate) session(cred *models.Credential, account *models.Account) (*AuthResult, error) {
	token, err := g.tokens.Issue(cred.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{
		Token: token,
		Viewer: &models.Viewer{
			UID:       cred.ID,
			Email:     cred.Email,
			Account:   account,
			Onboarded: account != nil,
		},
	}, nil
}

// SignOut revokes the token.
func (g *IdentityGate) SignOut(ctx context.Context, token string) error {
	if err := g.tokens.Revoke(ctx, token); err != nil {
		return models.NewUnauthorizedError("Invalid or expired token")
	}
	return nil
}

// Resolve maps a verified uid to the Viewer. A credential without an account
// is a viewer that has not onboarded yet.
func (g *IdentityGate) Resolve(ctx context.Context, uid string) (*models.Viewer, error) {
	cred, err := g.creds.GetByID(ctx, uid)
	if err != nil {
		if isNotFound(err) {
			return nil, models.NewUnauthorizedError("Unknown user")
		}
		return nil, err
	}

	viewer := &models.Viewer{UID: cred.ID, Email: cred.Email}
	account, err := g.accounts.GetByID(ctx, uid)
	switch {
	case err == nil:
		viewer.Account = account
		viewer.Onboarded = true
	case isNotFound(err):
	default:
		return nil, err
	}
	return viewer, nil
}

// UsernameAvailable is advisory; Onboard is what actually claims the name.
func (g *IdentityGate) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return false, models.NewValidationError(err.Error())
	}
	exists, err := g.accounts.UsernameExists(ctx, username)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Onboard creates the viewer's public account.
func (g *IdentityGate) Onboard(ctx context.Context, viewer *models.Viewer, username, fullName string) (*models.Account, error) {
	if viewer.Onboarded {
		return nil, models.NewConflictError("Account is already onboarded")
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateFullName(fullName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	account := &models.Account{
		ID:        viewer.UID,
		Username:  username,
		FullName:  strings.TrimSpace(fullName),
		Email:     viewer.Email,
		AvatarURL: g.defaultAvatar,
	}
	if err := g.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	g.publisher.Publish(ctx, live.Event{Topic: live.TopicAccounts, Keys: []string{account.ID}})
	return account, nil
}

func isNotFound(err error) bool {
	var appErr *models.AppError
	return errors.As(err, &appErr) && appErr.Code == models.CodeNotFound
}
