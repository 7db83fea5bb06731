package roster_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/roster/core/roster"
)

func TestTemplate(t *testing.T) {
	data := Template()
	assert.True(t, bytes.HasPrefix(data, []byte("\uFEFFfull_name,email,phone,password\r\n")))
	assert.Contains(t, string(data), "\r\nمحمد خالد,,+972541234567,\r\n")
	assert.True(t, bytes.HasSuffix(data, []byte("Lina Haddad,lina@example.com,,\r\n")))

	// the template must import cleanly with every text source
	for _, src := range []RowSource{NaiveSource{}, CSVSource{}} {
		res, err := Parse(data, src, RecordValidator{})
		require.NoError(t, err)
		assert.Empty(t, res.Errors)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, Summary{Total: 4, Valid: 4}, res.Summary)
		if assert.Len(t, res.Students, 4) {
			assert.Equal(t, "أحمد علي", res.Students[0].FullName)
			assert.Equal(t, "Sara2024", res.Students[1].Password)
			assert.Empty(t, res.Students[2].Email)
			assert.Equal(t, DefaultPhone, res.Students[3].Phone)
		}
	}
}
