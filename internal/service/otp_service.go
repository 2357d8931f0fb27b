package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// OTPService keeps one-time codes in process, each entry carrying its own
// expiry that is checked on read, so an expired code is never treated as
// valid, whatever the lookup timing. Codes are keyed by purpose+address so
// a signup code cannot verify a bank link.
type OTPService struct {
	mu      sync.Mutex
	entries map[string]otpEntry
	ttl     time.Duration
	digits  int
	now     func() time.Time // swappable in tests
}

type otpEntry struct {
	code      string
	expiresAt time.Time
}

func NewOTPService(ttl time.Duration, digits int) *OTPService {
	return &OTPService{
		entries: make(map[string]otpEntry),
		ttl:     ttl,
		digits:  digits,
		now:     time.Now,
	}
}

// Generate creates and stores a fresh code for the address, replacing any
// outstanding one.
func (s *OTPService) Generate(purpose, address string) (string, error) {
	code, err := randomCode(s.digits)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[purpose+":"+address] = otpEntry{code: code, expiresAt: s.now().Add(s.ttl)}
	return code, nil
}

// Verify consumes the code on success. Expired entries are deleted and never
// validate.
func (s *OTPService) Verify(purpose, address, code string) bool {
	key := purpose + ":" + address
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return false
	}
	if e.code != code {
		return false
	}
	delete(s.entries, key)
	return true
}

func randomCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
