package roster

import (
	"go/format"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_headerAliases(t *testing.T) {
	var n int
	for fld, aliases := range fieldAliases {
		for _, alias := range aliases {
			assert.Equal(t, fld, headerAliases[alias], alias)
			assert.Equal(t, normalizeToken(alias), alias, "aliases are stored normalized")
			n++
		}
	}
	assert.Len(t, headerAliases, n, "aliases are unique")
}

// the alias table mixes right-to-left keys; keep it in canonical layout
func Test_fieldsSourceFormatted(t *testing.T) {
	src, err := os.ReadFile("fields.go")
	require.NoError(t, err)
	formatted, err := format.Source(src)
	require.NoError(t, err)
	assert.Equal(t, string(formatted), string(src))
}
