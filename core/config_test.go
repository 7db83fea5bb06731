package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("TEST_IMPORT_REQUIREEMAIL", "true")
	t.Setenv("TEST_IMPORT_THROTTLEDELAY", "250ms")
	t.Setenv("TEST_DEFAULTFROMEMAIL", "School <noreply@school.example.com>")

	conf := NewConfig()
	assert.Equal(t, "TEST", conf.Env)
	assert.True(t, conf.TestMode)
	assert.Equal(t, "inmem", conf.Store.Driver)
	assert.Equal(t, "sqlite", conf.Database.Engine)
	assert.True(t, conf.Import.RequireEmail)
	assert.Equal(t, 250*time.Millisecond, conf.Import.ThrottleDelay)
	assert.Equal(t, "+972", conf.Import.DefaultPhone)
	assert.Equal(t, "School", conf.DefaultFromEmail().Name)
	assert.Equal(t, "noreply@school.example.com", conf.DefaultFromEmail().Address)
}

func TestCleanString(t *testing.T) {
	tests := []struct {
		in    string
		lower bool
		want  string
	}{
		{in: "  Ahmad Ali \t", want: "Ahmad Ali"},
		{in: " AHMAD@Example.com ", lower: true, want: "ahmad@example.com"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanString(tt.in, tt.lower))
	}
}
