package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMin(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(2), Min(2, 3))
	assert.Equal(uint64(2), Min(3, 2))
	assert.Equal(uint64(2), Min(2, 2))
}

func TestRoundUp(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(4), RoundUp(10, 3))
	assert.Equal(uint64(3), RoundUp(9, 3), "exact division")
	assert.Equal(uint64(0), RoundUp(0, 3))
	assert.Equal(uint64(2), RoundUp(64*128, 4096), "inode table blocks")
}

func TestCloneByteSlice(t *testing.T) {
	assert := assert.New(t)
	s := []byte{1, 2, 3}
	s2 := CloneByteSlice(s)
	s2[0] = 9
	assert.Equal(byte(1), s[0], "clone should not share backing array")
}
