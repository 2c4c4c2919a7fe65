package lexauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/lexauth/internal"
)

const (
	maxUsernameLength = 64
	maxFullNameLength = 255
	maxBioLength      = 2000
	maxAvatarURLBytes = 2048
	maxTimezoneLength = 64
	maxLanguageLength = 35
)

// Register creates an active account holding the configured default role.
// A taken email or username fails with ErrDuplicateIdentity.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Accounts.AllowRegistration {
		return nil, fmt.Errorf("%w: registration disabled", ErrForbidden)
	}

	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	acct, err := e.register(ctx, email, username, req)
	if err != nil {
		e.emitAudit(ctx, EventRegisterFailure, "", "", err, nil)
		return nil, err
	}

	e.emitAudit(ctx, EventRegisterSuccess, acct.ID, "", nil, nil)
	public := acct.Public()
	return &public, nil
}

func (e *Engine) register(ctx context.Context, email, username string, req RegisterRequest) (*Account, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	if _, err := e.store.AccountByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateIdentity
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeError(err)
	}
	if username != "" {
		if _, err := e.store.AccountByUsername(ctx, username); err == nil {
			return nil, ErrDuplicateIdentity
		} else if !errors.Is(err, ErrNotFound) {
			return nil, storeError(err)
		}
	}

	digest, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.Join(ErrPasswordPolicy, err)
	}

	now := e.now().UTC()
	acct := &Account{
		ID:           internal.NewID(),
		Email:        email,
		Username:     username,
		FullName:     strings.TrimSpace(req.FullName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		PasswordHash: digest,
	}
	if err := e.store.CreateAccount(ctx, acct, e.config.Accounts.DefaultRole); err != nil {
		return nil, storeError(err)
	}
	return acct, nil
}

// Account returns the public view of an account.
func (e *Engine) Account(ctx context.Context, accountID string) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	public := acct.Public()
	return &public, nil
}

// UpdateProfile applies the non-nil fields of req to the account's profile
// and returns the updated public view. A username held by another account
// fails with ErrDuplicateIdentity.
func (e *Engine) UpdateProfile(ctx context.Context, accountID string, req ProfileUpdate) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	acct, changed, err := e.updateProfile(ctx, accountID, req)
	if err != nil {
		e.emitAudit(ctx, EventProfileUpdateFailure, accountID, "", err, nil)
		return nil, err
	}
	e.emitAudit(ctx, EventProfileUpdated, accountID, "", nil, map[string]string{"fields": strings.Join(changed, ",")})
	public := acct.Public()
	return &public, nil
}

func (e *Engine) updateProfile(ctx context.Context, accountID string, req ProfileUpdate) (*Account, []string, error) {
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	next := acct.Profile()
	changed := make(map[string]bool)
	apply := func(name string, src, dst *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed[name] = true
		}
	}
	apply("username", req.Username, &next.Username)
	apply("full_name", req.FullName, &next.FullName)
	apply("bio", req.Bio, &next.Bio)
	apply("avatar_url", req.AvatarURL, &next.AvatarURL)
	apply("timezone", req.Timezone, &next.Timezone)
	apply("language", req.Language, &next.Language)

	if err := validateProfile(next); err != nil {
		return nil, nil, err
	}
	if len(changed) == 0 {
		return acct, nil, nil
	}

	if changed["username"] && next.Username != "" {
		other, err := e.store.AccountByUsername(ctx, next.Username)
		switch {
		case err == nil && other.ID != acct.ID:
			return nil, nil, ErrDuplicateIdentity
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, nil, storeError(err)
		}
	}

	if err := e.store.UpdateProfile(ctx, acct.ID, next); err != nil {
		return nil, nil, storeError(err)
	}

	acct.Username = next.Username
	acct.FullName = next.FullName
	acct.Bio = next.Bio
	acct.AvatarURL = next.AvatarURL
	acct.Timezone = next.Timezone
	acct.Language = next.Language
	acct.UpdatedAt = e.now().UTC()

	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)
	return acct, names, nil
}

func validateUsername(username string) error {
	if len(username) > maxUsernameLength || strings.ContainsAny(username, " \t\r\n@") {
		return fmt.Errorf("%w: username is malformed", ErrInvalidInput)
	}
	return nil
}

func validateProfile(p Profile) error {
	if err := validateUsername(p.Username); err != nil {
		return err
	}
	if utf8.RuneCountInString(p.FullName) > maxFullNameLength {
		return fmt.Errorf("%w: full_name is too long", ErrInvalidInput)
	}
	if utf8.RuneCountInString(p.Bio) > maxBioLength {
		return fmt.Errorf("%w: bio is too long", ErrInvalidInput)
	}
	if p.AvatarURL != "" {
		u, err := url.Parse(p.AvatarURL)
		if err != nil || len(p.AvatarURL) > maxAvatarURLBytes || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: avatar_url must be an http or https URL", ErrInvalidInput)
		}
	}
	if len(p.Timezone) > maxTimezoneLength || strings.ContainsAny(p.Timezone, " \t\r\n") {
		return fmt.Errorf("%w: timezone is malformed", ErrInvalidInput)
	}
	if len(p.Language) > maxLanguageLength || strings.ContainsAny(p.Language, " \t\r\n") {
		return fmt.Errorf("%w: language is malformed", ErrInvalidInput)
	}
	return nil
}
