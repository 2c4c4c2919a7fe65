// Package memory provides in-process implementations of lexauth.Store and
// lexauth.SessionStore. They are intended for tests and local runs; nothing
// survives a restart.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/permission"
)

var (
	_ lexauth.Store        = (*Store)(nil)
	_ lexauth.SessionStore = (*Sessions)(nil)
)

// Store keeps accounts, roles, API keys and backup code hashes in maps. It
// is seeded with permission.DefaultCatalog.
type Store struct {
	mu sync.RWMutex

	accounts    map[string]*lexauth.Account
	byEmail     map[string]string
	byUsername  map[string]string
	roles       map[string]permission.Role
	assignments map[string][]string
	keys        map[string]*lexauth.APIKey
	backup      map[string]map[string]struct{}
}

// New returns a Store holding the default role catalog.
func New() *Store {
	s := &Store{
		accounts:    make(map[string]*lexauth.Account),
		byEmail:     make(map[string]string),
		byUsername:  make(map[string]string),
		roles:       make(map[string]permission.Role),
		assignments: make(map[string][]string),
		keys:        make(map[string]*lexauth.APIKey),
		backup:      make(map[string]map[string]struct{}),
	}
	for _, r := range permission.DefaultCatalog().Roles {
		s.roles[r.Name] = r
	}
	return s
}

/*
====================================
ACCOUNTS
====================================
*/

func (s *Store) CreateAccount(_ context.Context, a *lexauth.Account, roles ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range roles {
		if _, ok := s.roles[name]; !ok {
			return lexauth.ErrNotFound
		}
	}

	email := strings.ToLower(a.Email)
	if _, ok := s.byEmail[email]; ok {
		return lexauth.ErrDuplicateIdentity
	}
	if a.Username != "" {
		if _, ok := s.byUsername[a.Username]; ok {
			return lexauth.ErrDuplicateIdentity
		}
	}
	if _, ok := s.accounts[a.ID]; ok {
		return lexauth.ErrDuplicateIdentity
	}

	cp := *a
	s.accounts[a.ID] = &cp
	s.byEmail[email] = a.ID
	if a.Username != "" {
		s.byUsername[a.Username] = a.ID
	}
	for _, name := range roles {
		if !slices.Contains(s.assignments[a.ID], name) {
			s.assignments[a.ID] = append(s.assignments[a.ID], name)
		}
	}
	return nil
}

func (s *Store) AccountByID(_ context.Context, id string) (*lexauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyAccount(id)
}

func (s *Store) AccountByEmail(_ context.Context, email string) (*lexauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyAccount(s.byEmail[strings.ToLower(email)])
}

func (s *Store) AccountByUsername(_ context.Context, username string) (*lexauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyAccount(s.byUsername[username])
}

func (s *Store) copyAccount(id string) (*lexauth.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, lexauth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.mutate(id, func(a *lexauth.Account) {
		a.PasswordHash = hash
	})
}

func (s *Store) UpdateProfile(_ context.Context, id string, p lexauth.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return lexauth.ErrNotFound
	}
	if p.Username != "" {
		if owner, taken := s.byUsername[p.Username]; taken && owner != id {
			return lexauth.ErrDuplicateIdentity
		}
	}

	if a.Username != p.Username {
		delete(s.byUsername, a.Username)
		if p.Username != "" {
			s.byUsername[p.Username] = id
		}
	}
	a.Username = p.Username
	a.FullName = p.FullName
	a.Bio = p.Bio
	a.AvatarURL = p.AvatarURL
	a.Timezone = p.Timezone
	a.Language = p.Language
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateMFA(_ context.Context, id, encryptedSecret string, enabled bool) error {
	return s.mutate(id, func(a *lexauth.Account) {
		a.MFASecret = encryptedSecret
		a.MFAEnabled = enabled
	})
}

func (s *Store) SetResetToken(_ context.Context, id, tokenHash string, expires time.Time) error {
	return s.mutate(id, func(a *lexauth.Account) {
		a.ResetTokenHash = tokenHash
		a.ResetTokenExpires = expires
	})
}

func (s *Store) AccountByResetToken(_ context.Context, tokenHash string) (*lexauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tokenHash == "" {
		return nil, lexauth.ErrNotFound
	}
	for id, a := range s.accounts {
		if a.ResetTokenHash == tokenHash {
			return s.copyAccount(id)
		}
	}
	return nil, lexauth.ErrNotFound
}

func (s *Store) ClearResetToken(_ context.Context, id, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, lexauth.ErrNotFound
	}
	if tokenHash == "" || a.ResetTokenHash != tokenHash {
		return false, nil
	}
	a.ResetTokenHash = ""
	a.ResetTokenExpires = time.Time{}
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return s.mutate(id, func(a *lexauth.Account) {
		a.LastLoginAt = at
	})
}

// SetActive activates or deactivates an account.
func (s *Store) SetActive(id string, active bool) error {
	return s.mutate(id, func(a *lexauth.Account) {
		a.IsActive = active
	})
}

// SetSuperuser grants or removes the superuser flag.
func (s *Store) SetSuperuser(id string, superuser bool) error {
	return s.mutate(id, func(a *lexauth.Account) {
		a.IsSuperuser = superuser
	})
}

func (s *Store) mutate(id string, fn func(*lexauth.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return lexauth.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

/*
====================================
ROLES
====================================
*/

// PutRole installs or replaces a role definition.
func (s *Store) PutRole(role permission.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.Name] = role
}

func (s *Store) AssignRole(_ context.Context, accountID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return lexauth.ErrNotFound
	}
	if _, ok := s.roles[roleName]; !ok {
		return lexauth.ErrNotFound
	}
	if slices.Contains(s.assignments[accountID], roleName) {
		return nil
	}
	s.assignments[accountID] = append(s.assignments[accountID], roleName)
	return nil
}

func (s *Store) RolesForAccount(_ context.Context, accountID string) ([]permission.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]permission.Role, 0, len(s.assignments[accountID]))
	for _, name := range s.assignments[accountID] {
		if r, ok := s.roles[name]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

/*
====================================
API KEYS
====================================
*/

func (s *Store) CreateAPIKey(_ context.Context, k *lexauth.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k.ID]; ok {
		return lexauth.ErrDuplicateIdentity
	}
	cp := *k
	cp.Scopes = slices.Clone(k.Scopes)
	s.keys[k.ID] = &cp
	return nil
}

func (s *Store) APIKeysByPrefix(_ context.Context, prefix string) ([]lexauth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []lexauth.APIKey
	for _, k := range s.keys {
		if k.Prefix == prefix {
			out = append(out, copyKey(k))
		}
	}
	return out, nil
}

func (s *Store) APIKeysForAccount(_ context.Context, accountID string) ([]lexauth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []lexauth.APIKey
	for _, k := range s.keys {
		if k.AccountID == accountID {
			out = append(out, copyKey(k))
		}
	}
	slices.SortFunc(out, func(a, b lexauth.APIKey) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) APIKeyByID(_ context.Context, id string) (*lexauth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, lexauth.ErrNotFound
	}
	cp := copyKey(k)
	return &cp, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return lexauth.ErrNotFound
	}
	k.IsActive = false
	return nil
}

func (s *Store) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return lexauth.ErrNotFound
	}
	k.LastUsedAt = at
	return nil
}

func copyKey(k *lexauth.APIKey) lexauth.APIKey {
	cp := *k
	cp.Scopes = slices.Clone(k.Scopes)
	return cp
}

/*
====================================
BACKUP CODES
====================================
*/

func (s *Store) ReplaceBackupCodes(_ context.Context, accountID string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	s.backup[accountID] = set
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, accountID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.backup[accountID]
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (s *Store) RemainingBackupCodes(_ context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.backup[accountID]), nil
}

func (s *Store) DeleteBackupCodes(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backup, accountID)
	return nil
}
