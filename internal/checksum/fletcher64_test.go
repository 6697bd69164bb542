package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRoundTrip(t *testing.T) {
	block := make([]byte, 4096)
	for i := range block {
		block[i] = byte(i * 7)
	}
	for i := 0; i < Size; i++ {
		block[i] = 0
	}
	sum := Compute(block)
	copy(block[:Size], sum[:])

	assert.True(t, Valid(block))
}

func TestValidDetectsCorruption(t *testing.T) {
	block := make([]byte, 4096)
	for i := range block {
		block[i] = byte(i * 3)
	}
	sum := Compute(block)
	copy(block[:Size], sum[:])

	block[100] ^= 0xFF
	assert.False(t, Valid(block))
}

func TestValidRejectsShortOrMisalignedInput(t *testing.T) {
	assert.False(t, Valid(nil))
	assert.False(t, Valid(make([]byte, 4)))
	assert.False(t, Valid(make([]byte, 10)))
}

func TestComputeZeroBlock(t *testing.T) {
	block := make([]byte, 4096)
	sum := Compute(block)
	var zero [Size]byte
	require.Equal(t, zero, sum)
}
