package credential

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	mu   sync.Mutex
	cred *Credential
}

// MemoryStore keeps credentials in process memory. Each record carries its
// own mutex, so concurrent logins for different users never contend.
type MemoryStore struct {
	byID    sync.Map // userID -> *entry
	byEmail sync.Map // normalized email -> userID
	saveMu  sync.Mutex
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context, email string) (*Credential, error) {
	id, ok := s.byEmail.Load(NormalizeEmail(email))
	if !ok {
		return nil, nil
	}
	cred, err := s.GetByID(ctx, id.(string))
	if err == ErrNotFound {
		return nil, nil
	}
	return cred, err
}

func (s *MemoryStore) GetByID(_ context.Context, userID string) (*Credential, error) {
	e, ok := s.entry(userID)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cred.Clone(), nil
}

// Save inserts or replaces a credential. Email changes re-point the index.
func (s *MemoryStore) Save(_ context.Context, cred *Credential) error {
	if cred == nil || cred.UserID == "" || cred.Email == "" {
		return ErrInvalidCredential
	}
	email := NormalizeEmail(cred.Email)

	// Serialises index maintenance only; reads and attempt counters stay per-entry.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if owner, ok := s.byEmail.Load(email); ok && owner.(string) != cred.UserID {
		return ErrDuplicateEmail
	}

	stored := cred.Clone()
	stored.Email = email

	actual, loaded := s.byID.LoadOrStore(cred.UserID, &entry{cred: stored})
	if loaded {
		e := actual.(*entry)
		e.mu.Lock()
		previous := e.cred.Email
		e.cred = stored
		e.mu.Unlock()
		if previous != email {
			s.byEmail.Delete(previous)
		}
	}
	s.byEmail.Store(email, cred.UserID)
	return nil
}

// Create inserts a new credential. It never replaces an existing record.
func (s *MemoryStore) Create(_ context.Context, cred *Credential) error {
	if cred == nil || cred.UserID == "" || cred.Email == "" {
		return ErrInvalidCredential
	}
	email := NormalizeEmail(cred.Email)

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if _, ok := s.byID.Load(cred.UserID); ok {
		return ErrDuplicateUser
	}
	if _, ok := s.byEmail.Load(email); ok {
		return ErrDuplicateEmail
	}

	stored := cred.Clone()
	stored.Email = email
	s.byID.Store(cred.UserID, &entry{cred: stored})
	s.byEmail.Store(email, cred.UserID)
	return nil
}

func (s *MemoryStore) SwapPasswordHash(_ context.Context, userID, oldHash, newHash string) error {
	e, ok := s.entry(userID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cred.PasswordHash != oldHash {
		return ErrStaleHash
	}
	e.cred.PasswordHash = newHash
	return nil
}

func (s *MemoryStore) RecordFailedAttempt(_ context.Context, userID string) (int, error) {
	e, ok := s.entry(userID)
	if !ok {
		return 0, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cred.FailedAttempts++
	return e.cred.FailedAttempts, nil
}

func (s *MemoryStore) ResetFailedAttempts(_ context.Context, userID string) error {
	e, ok := s.entry(userID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cred.FailedAttempts = 0
	e.cred.LockedUntil = time.Time{}
	return nil
}

func (s *MemoryStore) Lock(_ context.Context, userID string, until time.Time) error {
	e, ok := s.entry(userID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cred.LockedUntil = until
	return nil
}

func (s *MemoryStore) entry(userID string) (*entry, bool) {
	v, ok := s.byID.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}
