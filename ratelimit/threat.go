package ratelimit

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoChallenge is returned when solving a challenge for an IP that has
	// none pending.
	ErrNoChallenge = errors.New("no challenge pending")
	// ErrChallengeMismatch is returned when the presented challenge id does
	// not match the pending one.
	ErrChallengeMismatch = errors.New("challenge mismatch")
)

// ThreatLevel is a coarse severity derived from how far a request rate
// exceeds its limit.
type ThreatLevel int

const (
	ThreatNone ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

func (l ThreatLevel) String() string {
	switch l {
	case ThreatLow:
		return "low"
	case ThreatMedium:
		return "medium"
	case ThreatHigh:
		return "high"
	case ThreatCritical:
		return "critical"
	default:
		return "none"
	}
}

// ClassifyThreat maps observed/allowed to a level: below 1.5x low, below 2x
// medium, below 3x high, otherwise critical.
func ClassifyThreat(observed, allowed int) ThreatLevel {
	if allowed <= 0 || observed <= 0 {
		return ThreatNone
	}
	ratio := float64(observed) / float64(allowed)
	switch {
	case ratio < 1.5:
		return ThreatLow
	case ratio < 2:
		return ThreatMedium
	case ratio < 3:
		return ThreatHigh
	default:
		return ThreatCritical
	}
}

// Mitigation is the action applied to a threat.
type Mitigation string

const (
	MitigationNone      Mitigation = ""
	MitigationLog       Mitigation = "log"
	MitigationChallenge Mitigation = "challenge"
	MitigationBlock     Mitigation = "block"
)

// Challenge is an interactive check that must be solved once before the IP
// is admitted again.
type Challenge struct {
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ThreatRecord accumulates violations for one source IP.
type ThreatRecord struct {
	IP           string
	Violations   int
	Level        ThreatLevel
	BlockedUntil time.Time
	Challenge    *Challenge
	LastSeen     time.Time
}

// Blocked reports whether the IP is blocked at now.
func (r *ThreatRecord) Blocked(now time.Time) bool {
	return !r.BlockedUntil.IsZero() && now.Before(r.BlockedUntil)
}

// ChallengePending reports whether an unexpired challenge is outstanding.
func (r *ThreatRecord) ChallengePending(now time.Time) bool {
	return r.Challenge != nil && now.Before(r.Challenge.ExpiresAt)
}

func (r *ThreatRecord) clone() *ThreatRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Challenge != nil {
		c := *r.Challenge
		out.Challenge = &c
	}
	return &out
}

const threatShards = 32

type threatShard struct {
	mu      sync.Mutex
	records map[string]*ThreatRecord
}

// ThreatTracker holds threat records keyed by IP in fixed shards.
type ThreatTracker struct {
	shards        [threatShards]threatShard
	blockDuration time.Duration
	challengeTTL  time.Duration
	recordTTL     time.Duration
}

// NewThreatTracker returns a tracker. Zero durations fall back to a one hour
// block, a fifteen minute challenge and a 24 hour record lifetime.
func NewThreatTracker(blockDuration, challengeTTL, recordTTL time.Duration) *ThreatTracker {
	if blockDuration <= 0 {
		blockDuration = time.Hour
	}
	if challengeTTL <= 0 {
		challengeTTL = 15 * time.Minute
	}
	if recordTTL <= 0 {
		recordTTL = 24 * time.Hour
	}
	t := &ThreatTracker{blockDuration: blockDuration, challengeTTL: challengeTTL, recordTTL: recordTTL}
	for i := range t.shards {
		t.shards[i].records = make(map[string]*ThreatRecord)
	}
	return t
}

func (t *ThreatTracker) shard(ip string) *threatShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return &t.shards[h.Sum32()%threatShards]
}

// Record registers a violation at level and applies the mitigation policy:
// critical blocks the IP, high issues a challenge unless one is pending, and
// lower levels are only logged.
func (t *ThreatTracker) Record(ip string, level ThreatLevel, now time.Time) (*ThreatRecord, Mitigation) {
	sh := t.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[ip]
	if !ok {
		rec = &ThreatRecord{IP: ip}
		sh.records[ip] = rec
	}
	rec.Violations++
	rec.Level = level
	rec.LastSeen = now

	mitigation := MitigationLog
	switch {
	case level >= ThreatCritical:
		rec.BlockedUntil = now.Add(t.blockDuration)
		mitigation = MitigationBlock
	case level == ThreatHigh:
		if !rec.ChallengePending(now) {
			rec.Challenge = &Challenge{
				ID:        uuid.NewString(),
				IssuedAt:  now,
				ExpiresAt: now.Add(t.challengeTTL),
			}
		}
		mitigation = MitigationChallenge
	}
	return rec.clone(), mitigation
}

// Status returns a copy of the IP's record, or nil.
func (t *ThreatTracker) Status(ip string, now time.Time) *ThreatRecord {
	sh := t.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[ip]
	if !ok {
		return nil
	}
	rec.LastSeen = now
	return rec.clone()
}

// Get returns a copy of the IP's record without touching it.
func (t *ThreatTracker) Get(ip string) *ThreatRecord {
	sh := t.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.records[ip].clone()
}

// SolveChallenge clears the pending challenge when id matches.
func (t *ThreatTracker) SolveChallenge(ip, id string, now time.Time) error {
	sh := t.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[ip]
	if !ok || !rec.ChallengePending(now) {
		return ErrNoChallenge
	}
	if rec.Challenge.ID != id {
		return ErrChallengeMismatch
	}
	rec.Challenge = nil
	rec.LastSeen = now
	return nil
}

// Unblock lifts a block and any pending challenge.
func (t *ThreatTracker) Unblock(ip string) bool {
	sh := t.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[ip]
	if !ok {
		return false
	}
	rec.BlockedUntil = time.Time{}
	rec.Challenge = nil
	return true
}

// Sweep expires blocks and challenges and drops records idle past the
// record lifetime. It returns the number of records removed.
func (t *ThreatTracker) Sweep(now time.Time) int {
	removed := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for ip, rec := range sh.records {
			if !rec.BlockedUntil.IsZero() && !now.Before(rec.BlockedUntil) {
				rec.BlockedUntil = time.Time{}
			}
			if rec.Challenge != nil && !now.Before(rec.Challenge.ExpiresAt) {
				rec.Challenge = nil
			}
			if rec.BlockedUntil.IsZero() && rec.Challenge == nil && now.Sub(rec.LastSeen) >= t.recordTTL {
				delete(sh.records, ip)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked IPs.
func (t *ThreatTracker) Len() int {
	n := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}
