// Package token issues and redeems the short-lived codes that bridge an
// in-game link request to a Discord slash command.
package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/openredstone/linkore/internal/domain"
)

const (
	codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	// DefaultLifespan is how long a code stays redeemable after issue.
	DefaultLifespan = 30 * time.Minute
)

type entry struct {
	user     domain.UnlinkedUser
	issuedAt time.Time
}

// Store holds pending link codes in memory. Codes are single-use and expire
// after the configured lifespan; a restart drops all pending codes, which is
// fine because the player just runs the link command again.
type Store struct {
	mu       sync.Mutex
	codes    map[string]entry
	lifespan time.Duration
	now      func() time.Time
}

// NewStore creates a code store with the given lifespan.
// A zero lifespan means DefaultLifespan.
func NewStore(lifespan time.Duration) *Store {
	if lifespan == 0 {
		lifespan = DefaultLifespan
	}
	return &Store{
		codes:    make(map[string]entry),
		lifespan: lifespan,
		now:      time.Now,
	}
}

// Create issues a fresh code for the given player. A colliding code silently
// replaces the old entry; with a 62^6 keyspace that is not worth guarding
// against.
func (s *Store) Create(user domain.UnlinkedUser) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generating link code: %w", err)
	}

	s.mu.Lock()
	s.codes[code] = entry{user: user, issuedAt: s.now()}
	s.mu.Unlock()

	return code, nil
}

// Consume atomically removes the code and returns its player if the code
// exists and is still within its lifespan. Unknown, already-consumed and
// expired codes all report false; expired entries are evicted here rather
// than by a background sweep.
func (s *Store) Consume(code string) (domain.UnlinkedUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[code]
	if !ok {
		return domain.UnlinkedUser{}, false
	}
	delete(s.codes, code)
	if s.now().Sub(e.issuedAt) > s.lifespan {
		return domain.UnlinkedUser{}, false
	}
	return e.user, true
}

// Pending reports how many codes are currently held, counting entries that
// have expired but not yet been evicted.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
