// Package session owns the session lifecycle: creation with a per-user
// concurrency cap, sliding expiry, inactivity timeout, refresh-token rotation
// and revocation.
//
// A [Store] holds sessions; [MemoryStore] and [RedisStore] are provided. Both
// linearise creation and eviction per user: the memory store with a striped
// per-user mutex, the Redis store with a single Lua script. The [Manager]
// applies lifetime policy on top of a Store.
//
// This package does not parse tokens or evaluate permissions.
package session
