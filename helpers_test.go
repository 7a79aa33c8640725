package goGuard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/password"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// testConfig keeps argon2 cheap and secrets valid.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.AccessSecret = []byte("access-secret-0123456789abcdef-0123456789")
	cfg.Token.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012345678")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.HashConcurrency = 4
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine *Engine
	clock  *testClock
	creds  *credential.MemoryStore
	redis  *redis.Client
}

type envOption func(*Builder)

func withRedis(t *testing.T) envOption {
	t.Helper()
	return func(b *Builder) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		b.WithRedis(rdb)
	}
}

func withAuditSink(sink AuditSink) envOption {
	return func(b *Builder) {
		b.config.Audit.Enabled = true
		b.WithAuditSink(sink)
	}
}

func newTestEnv(t *testing.T, cfg Config, opts ...envOption) *testEnv {
	t.Helper()

	clock := newTestClock()
	creds := credential.NewMemoryStore()
	b := New().
		WithConfig(cfg).
		WithCredentialStore(creds).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	env := &testEnv{engine: engine, clock: clock, creds: creds}
	if rdb, ok := b.redis.(*redis.Client); ok {
		env.redis = rdb
	}
	return env
}

// seedUser stores an active credential hashed with the engine's parameters.
func (env *testEnv) seedUser(t *testing.T, userID, email, role, teamID string) {
	t.Helper()

	cfg := env.engine.config.Password
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
		MinLength:   cfg.MinLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := env.creds.Save(context.Background(), &credential.Credential{
		UserID:       userID,
		Email:        email,
		Role:         role,
		TeamID:       teamID,
		PasswordHash: hash,
		Active:       true,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func (env *testEnv) login(t *testing.T, ctx context.Context, email string) *LoginResult {
	t.Helper()

	res, err := env.engine.Authenticate(ctx, email, testPassword)
	if err != nil {
		t.Fatalf("Authenticate(%s): %v", email, err)
	}
	return res
}

func ipContext(ip string) context.Context {
	return WithClientIP(context.Background(), ip)
}

