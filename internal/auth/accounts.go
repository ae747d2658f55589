package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog/log"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/store"
)

var errBadCredentials = errors.New("invalid email or password")

// Accounts creates and authenticates users.
type Accounts struct {
	store *store.Store
}

// NewAccounts creates an Accounts service.
func NewAccounts(s *store.Store) *Accounts {
	return &Accounts{store: s}
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", internalerrors.Validation("signup", "invalid email address")
	}
	return email, nil
}

// Signup creates a free-tier user with a password.
func (a *Accounts) Signup(ctx context.Context, email, password string) (*store.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, internalerrors.Validation("signup", "%s", err.Error())
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &store.User{Email: email, PasswordHash: hash}
	if err := a.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, internalerrors.Validation("signup", "an account with this email already exists")
		}
		return nil, err
	}
	log.Info().Int64("user_id", u.ID).Msg("User signed up")
	return u, nil
}

// Login checks an email and password.
func (a *Accounts) Login(ctx context.Context, email, password string) (*store.User, error) {
	u, err := a.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if u == nil || !CheckPasswordHash(password, u.PasswordHash) {
		return nil, internalerrors.New(internalerrors.KindUnauthorized, "login", errBadCredentials)
	}
	return u, nil
}

// LoginGoogle finds or creates the user for a verified Google identity. An
// existing password account with the same verified email is linked.
func (a *Accounts) LoginGoogle(ctx context.Context, id *GoogleIdentity) (*store.User, error) {
	u, err := a.store.GetUserByGoogleSubject(ctx, id.Subject)
	if err != nil || u != nil {
		return u, err
	}
	if !id.EmailVerified {
		return nil, internalerrors.New(internalerrors.KindUnauthorized, "google_login", errors.New("google email is not verified"))
	}
	email := strings.ToLower(id.Email)

	u, err = a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u != nil {
		if err := a.store.LinkGoogleSubject(ctx, u.ID, id.Subject); err != nil {
			return nil, err
		}
		u.GoogleSubject = id.Subject
		log.Info().Int64("user_id", u.ID).Msg("Linked Google account")
		return u, nil
	}

	u = &store.User{Email: email, GoogleSubject: id.Subject}
	if err := a.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	log.Info().Int64("user_id", u.ID).Msg("User signed up with Google")
	return u, nil
}

// Delete removes an account with its recordings and sessions.
func (a *Accounts) Delete(ctx context.Context, userID int64) error {
	ok, err := a.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return internalerrors.NotFound("delete_account", fmt.Sprintf("user %d", userID))
	}
	log.Info().Int64("user_id", userID).Msg("Account deleted")
	return nil
}
