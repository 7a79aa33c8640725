package credential

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *MemoryStore, id, email string) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), &Credential{
		UserID:       id,
		Email:        email,
		Role:         "player",
		PasswordHash: "hash-" + id,
		Active:       true,
	}))
}

func TestMemoryStore_GetByEmailNormalizes(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "u1", "Alice@Example.com ")

	cred, err := s.Get(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "u1", cred.UserID)
	assert.Equal(t, "alice@example.com", cred.Email)
}

func TestMemoryStore_GetUnknownReturnsNil(t *testing.T) {
	s := NewMemoryStore()

	cred, err := s.Get(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, cred)

	_, err = s.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "u1", "a@example.com")

	cred, err := s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	cred.Role = "admin"
	cred.PasswordHistory = append(cred.PasswordHistory, "x")

	again, err := s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "player", again.Role)
	assert.Empty(t, again.PasswordHistory)
}

func TestMemoryStore_DuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "u1", "a@example.com")

	err := s.Save(context.Background(), &Credential{UserID: "u2", Email: "A@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemoryStore_EmailChangeMovesIndex(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "u1", "old@example.com")

	cred, err := s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	cred.Email = "new@example.com"
	require.NoError(t, s.Save(context.Background(), cred))

	old, err := s.Get(context.Background(), "old@example.com")
	require.NoError(t, err)
	assert.Nil(t, old)

	moved, err := s.Get(context.Background(), "new@example.com")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, "u1", moved.UserID)
}

func TestMemoryStore_FailedAttemptsConcurrent(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "u1", "a@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordFailedAttempt(context.Background(), "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cred, err := s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, cred.FailedAttempts)
}

func TestMemoryStore_LockAndReset(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "u1", "a@example.com")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Lock(context.Background(), "u1", now.Add(15*time.Minute)))
	cred, err := s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, cred.LockedAt(now))
	assert.False(t, cred.LockedAt(now.Add(15*time.Minute)))

	_, err = s.RecordFailedAttempt(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, s.ResetFailedAttempts(context.Background(), "u1"))

	cred, err = s.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, cred.FailedAttempts)
	assert.False(t, cred.LockedAt(now))
}

func TestMemoryStore_CreateNeverReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &Credential{UserID: "u1", Email: "a@example.com", PasswordHash: "h1"}))

	err := s.Create(ctx, &Credential{UserID: "u1", Email: "other@example.com", PasswordHash: "h2"})
	assert.ErrorIs(t, err, ErrDuplicateUser)
	err = s.Create(ctx, &Credential{UserID: "u2", Email: "A@example.com", PasswordHash: "h3"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	cred, err := s.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "h1", cred.PasswordHash)
	got, err := s.Get(ctx, "other@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_ConcurrentCreateOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		id := fmt.Sprintf("user-%d", round)
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Create(ctx, &Credential{
					UserID:       id,
					Email:        fmt.Sprintf("%s-%d@example.com", id, i),
					PasswordHash: "h",
				})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrDuplicateUser)
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, 1, wins, "round %d", round)
	}
}

func TestMemoryStore_SwapPasswordHash(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "u1", "a@example.com")
	_, err := s.RecordFailedAttempt(ctx, "u1")
	require.NoError(t, err)

	assert.ErrorIs(t, s.SwapPasswordHash(ctx, "u1", "not-current", "new"), ErrStaleHash)
	require.NoError(t, s.SwapPasswordHash(ctx, "u1", "hash-u1", "new"))
	assert.ErrorIs(t, s.SwapPasswordHash(ctx, "u1", "hash-u1", "newer"), ErrStaleHash)
	assert.ErrorIs(t, s.SwapPasswordHash(ctx, "missing", "a", "b"), ErrNotFound)

	cred, err := s.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", cred.PasswordHash)
	assert.Equal(t, 1, cred.FailedAttempts, "the swap leaves other fields alone")
}
