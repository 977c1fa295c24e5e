package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnquote(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sale", Unquote(`'sale'`))
	assert.Equal(t, "sale", Unquote(`"sale"`))
	assert.Equal(t, "sale", Unquote(`"""sale"""`))
	assert.Equal(t, "sale", Unquote(`r'sale'`))
	assert.Equal(t, "sale", Unquote(`b"sale"`))
	assert.Equal(t, "plain", Unquote("plain"))
	assert.Equal(t, "", Unquote(`''`))
}
