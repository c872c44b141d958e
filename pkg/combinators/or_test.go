package combinators

import (
	"testing"
	"time"

	"gotest.tools/assert"
)

func TestOr(t *testing.T) {
	assert.Equal(t, "a", StringOr("a", "b"))
	assert.Equal(t, "b", StringOr("", "b"))
	assert.Equal(t, 20, Or(0, 20))
	assert.Equal(t, 7, Or(7, 20))
	assert.Equal(t, time.Second, Or(time.Duration(0), time.Second))
}
