package erp

import "sync"

// TokenStore caches the CSRF token for the lifetime of the process.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

// DefaultTokens is shared by every client in the process.
var DefaultTokens = &TokenStore{}

func (s *TokenStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}
