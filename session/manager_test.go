package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, cfg Config, risk RiskPolicy) (*Manager, *MemoryStore, *testClock) {
	t.Helper()
	clock := newTestClock()
	cfg.Now = clock.Now
	store := NewMemoryStore()
	return NewManager(store, cfg, risk, nil), store, clock
}

func createFor(t *testing.T, m *Manager, userID, ip, ua string) *Session {
	t.Helper()
	id, err := m.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	sess, _, err := m.Create(context.Background(), Params{
		SessionID:  id,
		UserID:     userID,
		Role:       "coach",
		IP:         ip,
		UserAgent:  ua,
		RefreshJTI: "r-" + id,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return sess
}

func TestManagerEvictionKeepsCountAtLimit(t *testing.T) {
	m, _, clock := newTestManager(t, DefaultConfig(), nil)
	ctx := context.Background()

	var first *Session
	for i := 0; i < 5; i++ {
		s := createFor(t, m, "coach-1", "10.0.0.1", "ua")
		if first == nil {
			first = s
		}
		clock.Advance(time.Minute)
	}

	before, err := m.List(ctx, "coach-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(before) != 5 {
		t.Fatalf("expected 5 sessions, got %d", len(before))
	}

	id, _ := m.NewID()
	_, evicted, err := m.Create(ctx, Params{SessionID: id, UserID: "coach-1", Role: "coach"})
	if err != nil {
		t.Fatalf("create sixth: %v", err)
	}
	if len(evicted) != 1 || evicted[0].SessionID != first.SessionID {
		t.Fatalf("expected oldest session evicted, got %+v", evicted)
	}

	after, err := m.List(ctx, "coach-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("session count changed from %d to %d", len(before), len(after))
	}
	if _, err := m.Check(ctx, first.SessionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("evicted session must be gone, got %v", err)
	}
}

func TestManagerInactivityTimeout(t *testing.T) {
	m, _, clock := newTestManager(t, DefaultConfig(), nil)
	sess := createFor(t, m, "u1", "", "")

	clock.Advance(29 * time.Minute)
	if _, err := m.Validate(context.Background(), sess.SessionID); err != nil {
		t.Fatalf("expected session valid before idle timeout: %v", err)
	}

	clock.Advance(30 * time.Minute)
	if _, err := m.Validate(context.Background(), sess.SessionID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired after idle timeout, got %v", err)
	}
}

func TestManagerSlidingExtension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lifetime = time.Hour
	cfg.InactivityTimeout = 0
	m, _, clock := newTestManager(t, cfg, nil)
	sess := createFor(t, m, "u1", "", "")
	originalExpiry := sess.ExpiresAt

	clock.Advance(20 * time.Minute)
	got, err := m.Validate(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !got.ExpiresAt.Equal(originalExpiry) {
		t.Fatal("expiry must not slide while more than half the lifetime remains")
	}

	clock.Advance(20 * time.Minute)
	got, err = m.Validate(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if want := clock.Now().Add(time.Hour); !got.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry slid to %v, got %v", want, got.ExpiresAt)
	}
}

func TestManagerAbsoluteExpiryWithoutActivity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lifetime = time.Hour
	cfg.InactivityTimeout = 0
	m, _, clock := newTestManager(t, cfg, nil)
	sess := createFor(t, m, "u1", "", "")

	clock.Advance(time.Hour)
	if _, err := m.Check(context.Background(), sess.SessionID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestManagerRevokeAllExcept(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig(), nil)
	keep := createFor(t, m, "u1", "", "")
	createFor(t, m, "u1", "", "")
	createFor(t, m, "u1", "", "")

	revoked, err := m.RevokeAll(context.Background(), "u1", keep.SessionID)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if len(revoked) != 2 {
		t.Fatalf("expected 2 revoked, got %d", len(revoked))
	}
	list, _ := m.List(context.Background(), "u1")
	if len(list) != 1 || list[0].SessionID != keep.SessionID {
		t.Fatalf("expected only the kept session, got %+v", list)
	}
}

func TestManagerRotateExtendsAndCounts(t *testing.T) {
	m, _, clock := newTestManager(t, DefaultConfig(), nil)
	sess := createFor(t, m, "u1", "", "")

	clock.Advance(time.Minute)
	rotated, err := m.Rotate(context.Background(), sess.SessionID, sess.RefreshJTI, Rotation{RefreshJTI: "r2"})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.Rotation != 1 || rotated.RefreshJTI != "r2" || !rotated.LastAccessAt.Equal(clock.Now()) {
		t.Fatalf("unexpected rotated session %+v", rotated)
	}

	if _, err := m.Rotate(context.Background(), sess.SessionID, sess.RefreshJTI, Rotation{RefreshJTI: "r3"}); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch on stale jti, got %v", err)
	}
}

func TestDeviceChangePolicyFlags(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig(), DeviceChangePolicy{})

	first := createFor(t, m, "u1", "10.0.0.1", "Firefox")
	if len(first.RiskFlags) != 0 {
		t.Fatalf("first session must not be flagged, got %v", first.RiskFlags)
	}

	same := createFor(t, m, "u1", "10.0.0.1", "Firefox")
	if len(same.RiskFlags) != 0 {
		t.Fatalf("known device must not be flagged, got %v", same.RiskFlags)
	}

	other := createFor(t, m, "u1", "192.168.1.9", "Safari")
	if len(other.RiskFlags) != 2 {
		t.Fatalf("expected new_device and new_ip, got %v", other.RiskFlags)
	}
}

func TestManagerSweepUsesStore(t *testing.T) {
	m, store, clock := newTestManager(t, DefaultConfig(), nil)
	createFor(t, m, "u1", "", "")
	clock.Advance(31 * time.Minute)

	if n := m.Sweep(context.Background()); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}
