package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollectionConfig(t *testing.T) {
	tests := []struct {
		name    string
		blob    string
		want    *CollectionConfig
		wantErr bool
	}{
		{
			name: "empty blob yields defaults",
			blob: "",
			want: &CollectionConfig{},
		},
		{
			name: "yaml blob",
			blob: "enable_summary: true\nlanguage: en\nentity_types: [person, org]\nstorage_backend: neo4j\n",
			want: &CollectionConfig{
				EnableSummary:  true,
				Language:       "en",
				EntityTypes:    []string{"person", "org"},
				StorageBackend: "neo4j",
			},
		},
		{
			name: "json blob decodes through the yaml path",
			blob: `{"enable_summary": true, "language": "de"}`,
			want: &CollectionConfig{EnableSummary: true, Language: "de"},
		},
		{
			name:    "malformed blob",
			blob:    "[unclosed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCollectionConfig(tt.blob)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIndexType(t *testing.T) {
	got, err := ParseIndexType(" vector ")
	require.NoError(t, err)
	assert.Equal(t, IndexTypeVector, got)

	_, err = ParseIndexType("HOLOGRAM")
	assert.ErrorIs(t, err, ErrInvalidIndexType)
}
