package ptr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTo(t *testing.T) {
	v := "s1"
	p := To(v)
	v = "s2"
	assert.Equal(t, "s1", *p, "To copies its argument")
}

func TestDeref(t *testing.T) {
	assert.Equal(t, "s1", Deref(To("s1"), "none"))
	assert.Equal(t, "none", Deref[string](nil, "none"))

	day := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, day, Deref(&day, time.Time{}))
	assert.True(t, Deref[time.Time](nil, time.Time{}).IsZero())
}
