package grid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	assert.Len(t, table.States, 50)
	assert.Equal(t, []string{"midwest", "northeast", "south", "us", "utah", "west"}, table.RegionKeys())
	assert.Equal(t, "Western US", table.Regions["west"].Name)
}

func TestLookup(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name string
		key  string
		want BoundingBox
	}{
		{"region key", "utah", BoundingBox{MinLat: 37.0, MaxLat: 42.0, MinLng: -114.05, MaxLng: -109.05}},
		{"exact state", "Colorado", BoundingBox{MinLat: 37.0, MaxLat: 41.0, MinLng: -109.1, MaxLng: -102.0}},
		{"padded state", "  new york ", BoundingBox{MinLat: 40.5, MaxLat: 45.0, MinLng: -79.8, MaxLng: -71.9}},
		{"partial state", "carolina", BoundingBox{MinLat: 33.8, MaxLat: 36.6, MinLng: -84.3, MaxLng: -75.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Lookup(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	table := DefaultTable()

	_, err := table.Lookup("atlantis")
	assert.ErrorIs(t, err, ErrUnknownRegion)

	_, err = table.Lookup("")
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestDisplayName(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, "Utah", table.DisplayName("utah"))
	assert.Equal(t, "United States (all)", table.DisplayName("us"))
	assert.Equal(t, "New Mexico", table.DisplayName("new mexico"))
}

func TestLoadTable_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
regions:
  wasatch:
    name: Wasatch Front
    min_lat: 40.0
    max_lat: 41.5
    min_lng: -112.2
    max_lng: -111.5
`), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	box, err := table.Lookup("wasatch")
	require.NoError(t, err)
	assert.InDelta(t, 41.5, box.MaxLat, 0.0001)
	assert.Len(t, table.States, 50)
}

func TestLoadTable_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("states:\n  bad: {min_lat: 5, max_lat: 1, min_lng: 0, max_lng: 1}\n"), 0o644))

	_, err := LoadTable(path)
	assert.Error(t, err)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
