package species

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.Greater(t, c.Len(), 20)
	assert.Empty(t, c.UnknownLabels())

	d := c.Lookup("MONARCH")
	assert.Equal(t, "Danaus plexippus", d.ScientificName)
	assert.NotEqual(t, Placeholder.Description, d.Description)
}

func TestLookupUnknownReturnsPlaceholders(t *testing.T) {
	d := Default().Lookup("NOT A BUTTERFLY")
	assert.Equal(t, "Unknown Species", d.ScientificName)
	assert.Equal(t, "No description available for this species yet.", d.Description)
	assert.Equal(t, "Unknown", d.Habitat)
	assert.Equal(t, "Unknown", d.CommonIn)

	var nilCatalog *Catalog
	assert.Equal(t, Placeholder, nilCatalog.Lookup("MONARCH"))
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	c := Default()
	assert.Equal(t, c.Lookup("RED ADMIRAL"), c.Lookup("Red Admiral"))
}

func TestLookupFillsBlankFields(t *testing.T) {
	c, err := Load(strings.NewReader("JULIA:\n  scientific: Dryas iulia\n"))
	require.NoError(t, err)

	d := c.Lookup("JULIA")
	assert.Equal(t, "Dryas iulia", d.ScientificName)
	assert.Equal(t, Placeholder.Description, d.Description)
	assert.Equal(t, "Unknown", d.Habitat)
}

func TestMergeAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
monarch:
  scientific: Danaus plexippus plexippus
  desc: overridden
  habitat: fields
  common: everywhere
"TYPO SPECIES":
  scientific: Nope
`), 0o644))

	extra, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TYPO SPECIES"}, extra.UnknownLabels())

	merged := Default().Merge(extra)
	assert.Equal(t, "overridden", merged.Lookup("MONARCH").Description)
	assert.Equal(t, "Vanessa atalanta", merged.Lookup("RED ADMIRAL").ScientificName)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader("- just\n- a list\n"))
	assert.Error(t, err)
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}
