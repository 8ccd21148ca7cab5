package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedMap(t *testing.T) {
	Env = map[string]string{"CLUBDUES_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("CLUBDUES_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("CLUBDUES_TEST_KEY", "default"))
	assert.Equal(t, "default", GetEnv("CLUBDUES_MISSING_KEY", "default"))
}

func TestGetEnvBool(t *testing.T) {
	Env = map[string]string{}
	t.Cleanup(func() { Env = nil })

	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{raw: "", def: true, want: true},
		{raw: "true", def: false, want: true},
		{raw: "YES", def: false, want: true},
		{raw: "1", def: false, want: true},
		{raw: "false", def: true, want: false},
		{raw: "nope", def: true, want: false},
	}
	for _, tt := range tests {
		Env["CLUBDUES_BOOL"] = tt.raw
		assert.Equal(t, tt.want, GetEnvBool("CLUBDUES_BOOL", tt.def), "raw=%q", tt.raw)
	}
}

func TestGetEnvInt(t *testing.T) {
	Env = map[string]string{"CLUBDUES_INT": "7", "CLUBDUES_BAD_INT": "x"}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 7, GetEnvInt("CLUBDUES_INT", 3))
	assert.Equal(t, 3, GetEnvInt("CLUBDUES_BAD_INT", 3))
	assert.Equal(t, 3, GetEnvInt("CLUBDUES_NO_INT", 3))
}

func TestIsDev(t *testing.T) {
	Env = map[string]string{"APP_ENV": "dev"}
	t.Cleanup(func() { Env = nil })
	assert.True(t, IsDev())

	Env["APP_ENV"] = "prod"
	assert.False(t, IsDev())
}
