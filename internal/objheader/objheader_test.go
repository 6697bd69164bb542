package objheader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsson-labs/apfs-recover/apfs/types"
	"github.com/nilsson-labs/apfs-recover/internal/apfserr"
	"github.com/nilsson-labs/apfs-recover/internal/checksum"
)

func makeHeader(oid, xid uint64, otype, subtype uint32) []byte {
	block := make([]byte, 4096)
	binary.LittleEndian.PutUint64(block[8:16], oid)
	binary.LittleEndian.PutUint64(block[16:24], xid)
	binary.LittleEndian.PutUint32(block[24:28], otype)
	binary.LittleEndian.PutUint32(block[28:32], subtype)
	return block
}

func TestDecode(t *testing.T) {
	block := makeHeader(0x42, 7, 0x3, 0x9)
	h, err := Decode(block)
	require.NoError(t, err)
	assert.Equal(t, types.OidT(0x42), h.OOid)
	assert.Equal(t, types.XidT(7), h.OXid)
	assert.Equal(t, uint32(0x3), h.OType)
	assert.Equal(t, uint32(0x9), h.OSubtype)
}

func TestDecodeTooSmall(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, apfserr.Corruption)
}

type fakeReader map[uint64][]byte

func (f fakeReader) ReadBlock(addr uint64) ([]byte, error) {
	b, ok := f[addr]
	if !ok {
		return nil, apfserr.NotFound
	}
	return b, nil
}

func TestReadValidatedSucceeds(t *testing.T) {
	block := makeHeader(1, 1, 1, 0)
	for i := 0; i < checksum.Size; i++ {
		block[i] = 0
	}
	sum := checksum.Compute(block)
	copy(block[:checksum.Size], sum[:])

	r := fakeReader{5: block}
	data, hdr, err := ReadValidated(r, 5)
	require.NoError(t, err)
	assert.Equal(t, block, data)
	assert.Equal(t, types.OidT(1), hdr.OOid)
}

func TestReadValidatedDetectsChecksumMismatch(t *testing.T) {
	block := makeHeader(2, 1, 1, 0)
	r := fakeReader{5: block}
	_, _, err := ReadValidated(r, 5)
	assert.ErrorIs(t, err, apfserr.Corruption)
}

func TestReadValidatedPropagatesReadError(t *testing.T) {
	r := fakeReader{}
	_, _, err := ReadValidated(r, 9)
	assert.ErrorIs(t, err, apfserr.NotFound)
}
