package env

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestConfig struct {
	Host     string        `env:"TEST_HOST" default:"localhost"`
	Port     int           `env:"TEST_PORT" default:"8080"`
	Enabled  bool          `env:"TEST_ENABLED" default:"true"`
	Interval time.Duration `env:"TEST_INTERVAL" default:"5m"`
	Tags     []string      `env:"TEST_TAGS"`
	NoDef    string        `env:"TEST_NO_DEF"`
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_HOST", "example.com")
	t.Setenv("TEST_PORT", "9090")
	t.Setenv("TEST_ENABLED", "false")
	t.Setenv("TEST_INTERVAL", "90s")
	t.Setenv("TEST_TAGS", "night, weekend,,")
	t.Setenv("TEST_NO_DEF", "foo")

	var cfg TestConfig
	err := Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "example.com", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Interval)
	assert.Equal(t, []string{"night", "weekend"}, cfg.Tags)
	assert.Equal(t, "foo", cfg.NoDef)
}

func TestLoad_Defaults(t *testing.T) {
	var cfg TestConfig
	err := Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Nil(t, cfg.Tags)
	assert.Empty(t, cfg.NoDef)
}

func TestLoad_EmptyStringRespected(t *testing.T) {
	t.Setenv("TEST_HOST", "")

	var cfg TestConfig
	err := Load(&cfg)
	require.NoError(t, err)

	// Empty strings should be respected for string fields (not use defaults)
	assert.Equal(t, "", cfg.Host)
	// Port not set, so uses default
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoad_EmptyStringIntError(t *testing.T) {
	t.Setenv("TEST_PORT", "")

	var cfg TestConfig
	err := Load(&cfg)

	var invalid ErrInvalidValue
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "TEST_PORT", invalid.EnvVar)
	assert.Equal(t, "Port", invalid.Field)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("TEST_INTERVAL", "soon")

	var cfg TestConfig
	err := Load(&cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_INTERVAL")
}

func TestLoad_NotStructPointer(t *testing.T) {
	var cfg TestConfig
	err := Load(cfg)

	var notPtr ErrNotStructPointer
	assert.ErrorAs(t, err, &notPtr)
}

type validatedSection struct {
	Limit int `env:"TEST_LIMIT" default:"1"`
}

var errLimit = errors.New("limit must be positive")

func (v *validatedSection) Validate() error {
	if v.Limit <= 0 {
		return errLimit
	}
	return nil
}

type rootWithSection struct {
	Section validatedSection
	Name    string `env:"TEST_NAME" default:"root"`
}

func TestLoad_NestedValidator(t *testing.T) {
	t.Run("valid nested section", func(t *testing.T) {
		var cfg rootWithSection
		require.NoError(t, Load(&cfg))
		assert.Equal(t, 1, cfg.Section.Limit)
		assert.Equal(t, "root", cfg.Name)
	})

	t.Run("nested validation failure", func(t *testing.T) {
		t.Setenv("TEST_LIMIT", "0")

		var cfg rootWithSection
		assert.ErrorIs(t, Load(&cfg), errLimit)
	})
}

func TestLoad_UnsupportedSlice(t *testing.T) {
	type badConfig struct {
		Ports []int `env:"TEST_PORTS"`
	}
	t.Setenv("TEST_PORTS", "1,2")

	var cfg badConfig
	err := Load(&cfg)

	var unsupported ErrUnsupportedType
	assert.ErrorAs(t, err, &unsupported)
}
