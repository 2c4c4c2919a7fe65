package lexauth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MrEthical07/lexauth/internal/flows"
	"github.com/MrEthical07/lexauth/permission"
)

// Authenticate resolves the caller of a protected request. A bearer token is
// tried first; an API key is used only when no bearer token was presented.
//
// Missing or failed credentials return ErrUnauthenticated joined with the
// cause. A valid credential of a deactivated account returns
// ErrAccountInactive.
func (e *Engine) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	id, err := e.authenticate(ctx, creds)
	if err != nil {
		var accountID string
		if id != nil {
			accountID = id.Account.ID
		}
		e.emitAudit(ctx, EventAuthenticationFailure, accountID, "", err, map[string]string{"method": string(methodOf(creds))})
		return nil, err
	}
	return id, nil
}

func methodOf(creds Credentials) AuthMethod {
	if creds.Bearer == "" && creds.APIKey != "" {
		return AuthMethodAPIKey
	}
	return AuthMethodBearer
}

func (e *Engine) authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	switch {
	case creds.Bearer != "":
		res := flows.RunValidateBearer(ctx, creds.Bearer, e.flows.Bearer)
		if res.Failure != flows.BearerFailureNone {
			return &Identity{Account: Account{ID: res.AccountID}}, bearerError(res)
		}
		return e.identity(ctx, res.AccountID, &Identity{Method: AuthMethodBearer, SessionID: res.SessionID})

	case creds.APIKey != "":
		res := flows.RunValidateAPIKey(ctx, creds.APIKey, e.flows.APIKey)
		if res.Failure != flows.APIKeyFailureNone {
			return &Identity{Account: Account{ID: res.Key.AccountID}}, apiKeyError(res)
		}
		return e.identity(ctx, res.Key.AccountID, &Identity{
			Method:   AuthMethodAPIKey,
			APIKeyID: res.Key.ID,
			Scopes:   res.Key.Scopes,
		})

	default:
		return nil, fmt.Errorf("%w: no credentials", ErrUnauthenticated)
	}
}

// identity completes id with the account and its roles.
func (e *Engine) identity(ctx context.Context, accountID string, id *Identity) (*Identity, error) {
	acct, err := e.store.AccountByID(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, errors.Join(ErrUnauthenticated, err)
	}
	if err != nil {
		return nil, storeError(err)
	}
	if !acct.IsActive {
		return &Identity{Account: Account{ID: acct.ID}}, ErrAccountInactive
	}

	roles, err := e.store.RolesForAccount(ctx, acct.ID)
	if err != nil {
		return nil, storeError(err)
	}

	id.Account = acct.Public()
	id.Roles = permission.NewResolver(e.registry, roles)
	return id, nil
}

func bearerError(res flows.BearerResult) error {
	switch res.Failure {
	case flows.BearerFailureParse:
		return errors.Join(ErrUnauthenticated, ErrInvalidOrExpiredToken, res.Err)
	case flows.BearerFailureWrongType:
		return errors.Join(ErrUnauthenticated, ErrInvalidOrExpiredToken, ErrTokenWrongType)
	case flows.BearerFailureSessionNotFound, flows.BearerFailureSessionDead:
		return errors.Join(ErrUnauthenticated, ErrInvalidOrExpiredToken, ErrSessionDead)
	case flows.BearerFailureSuperseded:
		return errors.Join(ErrUnauthenticated, ErrInvalidOrExpiredToken, ErrAccessSuperseded)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
}

func apiKeyError(res flows.APIKeyResult) error {
	switch res.Failure {
	case flows.APIKeyFailureStore:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		return errors.Join(ErrUnauthenticated, res.Err)
	}
}

// Authorize checks an authenticated identity against req. Superusers pass
// every check. API key scopes, when set, narrow the permissions the key's
// account holds. A nil identity is ErrUnauthenticated; a missing role or
// permission is ErrForbidden.
func (e *Engine) Authorize(ctx context.Context, id *Identity, req Requirement) error {
	if id == nil {
		return ErrUnauthenticated
	}
	err := authorize(id, req)
	if err != nil && e != nil {
		e.emitAudit(ctx, EventAuthorizationDenied, id.Account.ID, id.SessionID, err, nil)
	}
	return err
}

func authorize(id *Identity, req Requirement) error {
	if id.Account.IsSuperuser {
		return nil
	}
	if len(req.AnyRole) > 0 && !id.Roles.HasAnyRole(req.AnyRole...) {
		return fmt.Errorf("%w: requires one of roles %v", ErrForbidden, req.AnyRole)
	}
	if !id.Roles.HasAllPermissions(req.AllPermissions...) {
		return fmt.Errorf("%w: requires permissions %v", ErrForbidden, req.AllPermissions)
	}
	if id.Method == AuthMethodAPIKey && len(id.Scopes) > 0 {
		for _, p := range req.AllPermissions {
			if !slices.Contains(id.Scopes, p) {
				return fmt.Errorf("%w: api key scope excludes %s", ErrForbidden, p)
			}
		}
	}
	return nil
}
