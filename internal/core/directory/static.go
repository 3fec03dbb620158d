// Package directory maps caller tokens to identities.
//
// Lookups always answer from memory. Backing data (config maps, a YAML
// catalog, the store) is loaded up front and swapped in with Replace.
package directory

import (
	"strings"
	"sync"

	"github.com/throttlegate/throttlegate/internal/core"
)

// Static resolves tokens from an in-memory table.
type Static struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewStatic copies tokens into a new directory. Blank tokens or identities
// are dropped.
func NewStatic(tokens map[string]string) *Static {
	s := &Static{}
	s.Replace(tokens)
	return s
}

// Resolve returns the identity behind token.
func (s *Static) Resolve(token string) (string, error) {
	s.mu.RLock()
	identity, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return "", &core.UnknownTokenError{Token: token}
	}
	return identity, nil
}

// Replace swaps the whole table.
func (s *Static) Replace(tokens map[string]string) {
	next := make(map[string]string, len(tokens))
	for token, identity := range tokens {
		token = strings.TrimSpace(token)
		identity = strings.TrimSpace(identity)
		if token == "" || identity == "" {
			continue
		}
		next[token] = identity
	}

	s.mu.Lock()
	s.tokens = next
	s.mu.Unlock()
}

// Len returns the number of known tokens.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Tokens returns a copy of the table.
func (s *Static) Tokens() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.tokens))
	for token, identity := range s.tokens {
		out[token] = identity
	}
	return out
}
