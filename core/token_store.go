package core

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	cache "github.com/patrickmn/go-cache"
)

// MemoryTokenStore is the transient single-process reference implementation
// of TokenStore. Entries carry their advisory expiry and the backing cache
// checks staleness lazily on read; no janitor sweeps in the background, so
// orphaned tokens linger until looked up or until the store owner sweeps.
type MemoryTokenStore struct {
	ttl     time.Duration
	now     func() time.Time
	entries *cache.Cache
}

// NewMemoryTokenStore builds a store whose entries default to ttl when the
// caller does not pin an absolute expiry on the entry itself.
func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	return NewMemoryTokenStoreWithClock(ttl, nil)
}

// NewMemoryTokenStoreWithClock pins the clock used to turn an entry's
// absolute expiry into a cache lifetime. Entries registered against an
// injected environment clock need the store to share that clock.
func NewMemoryTokenStoreWithClock(ttl time.Duration, now func() time.Time) *MemoryTokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryTokenStore{
		ttl:     ttl,
		now:     now,
		entries: cache.New(ttl, 0),
	}
}

// Create registers entry under token. The backing cache performs the
// exists-check and insert atomically, so concurrent in-flight authorizations
// can only interfere through a genuine key collision.
func (s *MemoryTokenStore) Create(_ context.Context, token string, entry TokenEntry) error {
	if s == nil {
		return goerrors.New("core: token store is not configured", goerrors.CategoryInternal)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return goerrors.New("core: correlation token is required", goerrors.CategoryBadInput).
			WithTextCode(AccountErrorBadInput)
	}

	ttl := s.ttl
	if !entry.ExpiresAt.IsZero() {
		ttl = entry.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			// born expired; keep it visible to Add but stale on first read
			ttl = time.Nanosecond
		}
	}
	entry.Scope = append([]string(nil), entry.Scope...)
	if err := s.entries.Add(token, entry, ttl); err != nil {
		return NewDuplicateTokenError(token)
	}
	return nil
}

// Get returns the live entry for token, failing when the token is absent,
// already consumed, or lazily expired.
func (s *MemoryTokenStore) Get(_ context.Context, token string) (TokenEntry, error) {
	if s == nil {
		return TokenEntry{}, goerrors.New("core: token store is not configured", goerrors.CategoryInternal)
	}
	token = strings.TrimSpace(token)
	value, ok := s.entries.Get(token)
	if !ok {
		return TokenEntry{}, NewUnknownTokenError(token)
	}
	entry, ok := value.(TokenEntry)
	if !ok {
		return TokenEntry{}, NewUnknownTokenError(token)
	}
	entry.Scope = append([]string(nil), entry.Scope...)
	return entry, nil
}

// Delete removes token; deleting an absent token is a no-op.
func (s *MemoryTokenStore) Delete(_ context.Context, token string) {
	if s == nil {
		return
	}
	s.entries.Delete(strings.TrimSpace(token))
}

var _ TokenStore = (*MemoryTokenStore)(nil)
