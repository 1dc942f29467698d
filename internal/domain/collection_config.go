package domain

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CollectionConfig is the decoded form of a collection's configuration blob.
// Only the fields the controller consumes are modeled; builders read the rest
// of the blob themselves.
type CollectionConfig struct {
	// EnableSummary controls whether a generated summary may overwrite the
	// collection description.
	EnableSummary bool `yaml:"enable_summary" json:"enable_summary"`

	// Language hints the builders about the dominant document language.
	Language string `yaml:"language" json:"language"`

	// EntityTypes constrains graph extraction to the listed entity kinds.
	EntityTypes []string `yaml:"entity_types" json:"entity_types"`

	// StorageBackend names the index store the builders write to.
	StorageBackend string `yaml:"storage_backend" json:"storage_backend"`
}

// ParseCollectionConfig decodes a collection configuration blob.
// The blob is YAML; JSON blobs decode through the same path since YAML is a
// superset. An empty blob yields the zero config.
func ParseCollectionConfig(blob string) (*CollectionConfig, error) {
	cfg := &CollectionConfig{}
	if blob == "" {
		return cfg, nil
	}
	if err := yaml.Unmarshal([]byte(blob), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse collection config: %w", err)
	}
	return cfg, nil
}
