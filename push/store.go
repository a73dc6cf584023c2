package push

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Record is a stored subscription of one user. A push endpoint belongs to at
// most one record.
type Record struct {
	UserID       string       `json:"userId"`
	Subscription Subscription `json:"subscription"`
	UserAgent    string       `json:"userAgent,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Preferences maps a notification type to whether the user wants it. The
// AllNotifications key switches push delivery off for every type.
type Preferences map[string]bool

// AllNotifications is the preference key covering every notification type.
const AllNotifications = "push"

// Allows reports whether a notification of kind may be delivered. Types the
// user never set are allowed.
func (p Preferences) Allows(kind string) bool {
	if on, ok := p[AllNotifications]; ok && !on {
		return false
	}
	if on, ok := p[kind]; ok {
		return on
	}
	return true
}

// Store keeps subscription records and notification preferences.
type Store interface {
	// Save inserts or updates the record for its endpoint. An endpoint
	// saved by another user moves to this one.
	Save(ctx context.Context, rec Record) (Record, error)

	// ForUser lists a user's records, oldest first.
	ForUser(ctx context.Context, userID string) ([]Record, error)

	// Delete removes the user's record for endpoint, or all of the user's
	// records when endpoint is empty. It returns the number removed.
	Delete(ctx context.Context, userID, endpoint string) (int, error)

	// DeleteEndpoint removes the record for endpoint whichever user owns it.
	DeleteEndpoint(ctx context.Context, endpoint string) (bool, error)

	Preferences(ctx context.Context, userID string) (Preferences, error)
	SetPreferences(ctx context.Context, userID string, prefs Preferences) error
}

// MemoryStore is a Store held in memory.
type MemoryStore struct {
	now func() time.Time

	mu      sync.RWMutex
	records map[string]Record
	prefs   map[string]Preferences
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		records: make(map[string]Record),
		prefs:   make(map[string]Preferences),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) (Record, error) {
	if rec.UserID == "" {
		return Record{}, ErrMissingUser
	}
	if err := rec.Subscription.Validate(); err != nil {
		return Record{}, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.records[rec.Subscription.Endpoint]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.Subscription.Endpoint] = rec
	return rec, nil
}

func (s *MemoryStore) ForUser(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Subscription.Endpoint < b.Subscription.Endpoint {
			return -1
		}
		return 1
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, endpoint string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for ep, rec := range s.records {
		if rec.UserID != userID || (endpoint != "" && ep != endpoint) {
			continue
		}
		delete(s.records, ep)
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[endpoint]
	delete(s.records, endpoint)
	return ok, nil
}

func (s *MemoryStore) Preferences(_ context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Preferences, len(s.prefs[userID]))
	for k, v := range s.prefs[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SetPreferences(_ context.Context, userID string, prefs Preferences) error {
	if userID == "" {
		return ErrMissingUser
	}
	cp := make(Preferences, len(prefs))
	for k, v := range prefs {
		cp[k] = v
	}
	s.mu.Lock()
	s.prefs[userID] = cp
	s.mu.Unlock()
	return nil
}
