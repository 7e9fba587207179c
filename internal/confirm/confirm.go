// Package confirm holds pending confirmation challenges for
// high-sensitivity tool invocations. A challenge is created when
// authorization answers "allow, but confirm first"; the caller must echo
// the exact phrase within the window or the invocation dies as denied.
// Challenges are in-memory only: a restart voids them, which fails safe.
package confirm

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkamenev/toolgate/internal/model"
)

// Phrase is the exact text a caller must send to approve a pending
// challenge. Any other text, including case or whitespace variants,
// is a denial.
const Phrase = "I AUTHORIZE"

// DefaultTTL is how long a challenge stays answerable.
const DefaultTTL = 2 * time.Minute

var (
	ErrNotFound = errors.New("confirm: unknown challenge")
	ErrExpired  = errors.New("confirm: challenge expired")
)

// Challenge is one pending high-sensitivity invocation, frozen at the
// moment authorization demanded confirmation.
type Challenge struct {
	ID         string
	Token      string
	UserID     string
	Capability model.Capability
	Params     map[string]string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Store is the in-memory challenge table.
type Store struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	ttl        time.Duration
	now        func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		challenges: make(map[string]*Challenge),
		ttl:        ttl,
		now:        time.Now,
	}
}

// Create registers a challenge and returns its id.
func (s *Store) Create(token, userID string, capability model.Capability, params map[string]string) *Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	ch := &Challenge{
		ID:         uuid.NewString(),
		Token:      token,
		UserID:     userID,
		Capability: capability,
		Params:     params,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	s.challenges[ch.ID] = ch
	return ch
}

// Take removes and returns a challenge by id. A challenge can be taken
// exactly once; a second Take reports ErrNotFound. If the challenge has
// expired, it is returned alongside ErrExpired so the caller can still
// record the denied invocation it belonged to.
func (s *Store) Take(id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.challenges, id)
	if s.now().UTC().After(ch.ExpiresAt) {
		return ch, ErrExpired
	}
	return ch, nil
}

// TakeExpired removes and returns every challenge past its deadline.
// Used by the gateway's sweeper so abandoned invocations still get
// their denial recorded.
func (s *Store) TakeExpired() []*Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	var expired []*Challenge
	for id, ch := range s.challenges {
		if now.After(ch.ExpiresAt) {
			delete(s.challenges, id)
			expired = append(expired, ch)
		}
	}
	return expired
}

// Requeue puts taken challenges back so a later sweep can retry them.
// Used when the denial entry for a swept challenge could not be written.
func (s *Store) Requeue(chs []*Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chs {
		s.challenges[ch.ID] = ch
	}
}

// Pending reports the number of live challenges.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
