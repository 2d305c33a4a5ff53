package cla

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeekDiscriminator(t *testing.T) {
	v, ok := PeekDiscriminator(0x06)
	assert.True(t, ok)
	assert.Equal(t, 6, v)

	v, ok = PeekDiscriminator(0x9F)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = PeekDiscriminator(0x41)
	assert.False(t, ok)
}
