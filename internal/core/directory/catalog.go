package directory

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk form of the token directory and SLA table:
//
//	tokens:
//	  token11: user1
//	  token2: user2
//	limits:
//	  user1: 1
//	  user2: 2
type Catalog struct {
	Tokens map[string]string `yaml:"tokens"`
	Limits map[string]int    `yaml:"limits"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog path is required")
	}

	// #nosec G304 -- operator-supplied config path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if catalog.Tokens == nil {
		catalog.Tokens = map[string]string{}
	}
	if catalog.Limits == nil {
		catalog.Limits = map[string]int{}
	}
	return &catalog, nil
}

// Validate rejects blank identities and non-positive limits.
func (c *Catalog) Validate() error {
	for token, identity := range c.Tokens {
		if strings.TrimSpace(token) == "" {
			return errors.New("catalog contains an empty token")
		}
		if strings.TrimSpace(identity) == "" {
			return fmt.Errorf("catalog token %q maps to an empty identity", token)
		}
	}
	for identity, rps := range c.Limits {
		if strings.TrimSpace(identity) == "" {
			return errors.New("catalog contains a limit for an empty identity")
		}
		if rps <= 0 {
			return fmt.Errorf("catalog limit for %q must be positive, got %d", identity, rps)
		}
	}
	return nil
}
