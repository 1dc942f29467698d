package config

import (
	"fmt"

	"github.com/rezkam/ragctl/internal/domain"
)

// IndexConfig holds the closed set of index types this deployment maintains.
type IndexConfig struct {
	// EnabledTypes is the comma-separated list of enabled index types.
	EnabledTypes []string `env:"RAGCTL_ENABLED_INDEX_TYPES"`
}

// Validate rejects values outside the closed index type set.
func (c *IndexConfig) Validate() error {
	for _, raw := range c.EnabledTypes {
		if _, err := domain.ParseIndexType(raw); err != nil {
			return fmt.Errorf("RAGCTL_ENABLED_INDEX_TYPES: %w", err)
		}
	}
	return nil
}

// EnabledIndexTypes returns the parsed enabled set, defaulting to
// VECTOR, FULLTEXT and GRAPH when unset.
func (c *IndexConfig) EnabledIndexTypes() []domain.IndexType {
	if len(c.EnabledTypes) == 0 {
		return []domain.IndexType{domain.IndexTypeVector, domain.IndexTypeFulltext, domain.IndexTypeGraph}
	}
	out := make([]domain.IndexType, 0, len(c.EnabledTypes))
	for _, raw := range c.EnabledTypes {
		t, err := domain.ParseIndexType(raw)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}
